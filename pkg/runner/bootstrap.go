package runner

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobexec/params"
	"github.com/uhyunpark/clobexec/pkg/auth"
	"github.com/uhyunpark/clobexec/pkg/clob"
	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/metadata"
	"github.com/uhyunpark/clobexec/pkg/order"
	"github.com/uhyunpark/clobexec/pkg/storage"
	"github.com/uhyunpark/clobexec/pkg/submit"
	"github.com/uhyunpark/clobexec/pkg/util"
)

// Bootstrap performs the one-time setup of a run: identity, credential
// handshake and metadata warm-up for tokenIDs. Any failure here aborts the
// run before an order is built.
func Bootstrap(ctx context.Context, cfg params.Config, tokenIDs []*uint256.Int, clock util.Clock, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = util.RealClock{}
	}

	signer, err := crypto.FromPrivateKeyHex(cfg.Wallet.PrivateKey.Expose(), cfg.Exchange.ChainID)
	if err != nil {
		return nil, err
	}
	funder, ok := crypto.FunderFor(signer.Address(), cfg.Wallet.SignatureType, cfg.FunderAddress())
	if !ok {
		return nil, fmt.Errorf("no funder address for signature type %s", cfg.Wallet.SignatureType)
	}
	logger.Info("identity_loaded",
		zap.String("signer", signer.Address().Hex()),
		zap.String("funder", funder.Hex()),
		zap.String("signature_type", cfg.Wallet.SignatureType.String()),
		zap.Int64("chain_id", signer.ChainID()),
	)

	client, err := clob.NewClient(cfg.Exchange.Host,
		clob.WithTimeout(cfg.Exchange.HTTPTimeout),
		clob.WithClock(clock),
		clob.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	store, err := auth.NewCredentialStore(ctx, client, signer, logger)
	if err != nil {
		return nil, err
	}

	cache := metadata.NewCache(client, logger)
	if err := cache.Warm(ctx, tokenIDs...); err != nil {
		return nil, err
	}

	headers, err := auth.NewHeaderSigner(store.Credentials(), cfg.Wallet.SignatureType, cfg.Wallet.KeyMode, clock)
	if err != nil {
		return nil, err
	}
	xs, err := crypto.NewExchangeSigner(signer)
	if err != nil {
		return nil, err
	}
	pipeline, err := order.NewPipeline(cache, xs, order.Identity{
		Signer:        signer.Address(),
		Funder:        funder,
		SignatureType: cfg.Wallet.SignatureType,
		Owner:         store.Credentials().APIKey,
	})
	if err != nil {
		return nil, err
	}

	var journal storage.Journal = storage.NewMemJournal()
	if cfg.Output.JournalPath != "" {
		pj, err := storage.NewPebbleJournal(cfg.Output.JournalPath)
		if err != nil {
			return nil, err
		}
		journal = pj
	}

	submitter := submit.New(client, headers, cfg.Exchange.OrderPath, logger)
	logger.Info("submitter_ready",
		zap.String("host", client.Host()),
		zap.String("order_path", submitter.Path()),
		zap.Object("headers", headers),
		zap.Int("instruments", cache.Len()),
	)

	r, err := New(Deps{
		Pipeline:  pipeline,
		Submitter: submitter,
		Journal:   journal,
		Clock:     clock,
		Logger:    logger,
	}, Settings{
		Iterations:             cfg.Run.Iterations,
		Delay:                  cfg.Run.OrderDelay,
		Warmup:                 cfg.Run.WarmupSamples,
		MaxConsecutiveFailures: cfg.Run.MaxConsecutiveFailures,
	})
	if err != nil {
		journal.Close()
		return nil, err
	}
	return r, nil
}
