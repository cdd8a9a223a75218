// Package metadata caches the per-instrument trading parameters needed to
// build orders.
package metadata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Attribute names used in FetchError.
const (
	AttrTickSize = "tick_size"
	AttrNegRisk  = "neg_risk"
	AttrFeeRate  = "fee_rate"
)

// Instrument is the immutable metadata of one outcome token.
type Instrument struct {
	TokenID    *uint256.Int
	TickSize   decimal.Decimal
	NegRisk    bool
	FeeRateBps int64
}

// Fetcher retrieves single attributes from the exchange. *clob.Client
// satisfies it.
type Fetcher interface {
	TickSize(ctx context.Context, tokenID string) (decimal.Decimal, error)
	NegRisk(ctx context.Context, tokenID string) (bool, error)
	FeeRateBps(ctx context.Context, tokenID string) (int64, error)
}

// Lookup is the read side used by the order pipeline.
type Lookup interface {
	Get(tokenID *uint256.Int) (Instrument, bool)
}

// FetchError aborts a warm-up.
type FetchError struct {
	TokenID   string
	Attribute string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for token %s: %v", e.Attribute, e.TokenID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Cache is write-once per token id. Reads never take a lock: they load an
// immutable map through an atomic pointer. Warm calls are serialized and
// publish a new map only when every fetch in the call succeeded.
type Cache struct {
	fetcher Fetcher
	logger  *zap.Logger

	warmMu sync.Mutex
	items  atomic.Pointer[map[string]Instrument]
}

// NewCache returns an empty cache backed by fetcher.
func NewCache(fetcher Fetcher, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{fetcher: fetcher, logger: logger}
	empty := map[string]Instrument{}
	c.items.Store(&empty)
	return c
}

// Get returns the cached instrument for tokenID.
func (c *Cache) Get(tokenID *uint256.Int) (Instrument, bool) {
	if tokenID == nil {
		return Instrument{}, false
	}
	inst, ok := (*c.items.Load())[tokenID.Dec()]
	return inst, ok
}

// Len returns the number of cached instruments.
func (c *Cache) Len() int {
	return len(*c.items.Load())
}

// Warm fetches every attribute of every uncached token concurrently. The
// first failure cancels the rest and nothing from this call is committed.
func (c *Cache) Warm(ctx context.Context, tokenIDs ...*uint256.Int) error {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()

	current := *c.items.Load()

	seen := make(map[string]bool, len(tokenIDs))
	pending := make([]*uint256.Int, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id == nil {
			return &FetchError{TokenID: "<nil>", Attribute: "token_id", Err: fmt.Errorf("nil token id")}
		}
		key := id.Dec()
		if _, ok := current[key]; ok || seen[key] {
			continue
		}
		seen[key] = true
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return nil
	}

	fetched := make([]Instrument, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range pending {
		key := id.Dec()
		fetched[i].TokenID = id.Clone()

		g.Go(func() error {
			tick, err := c.fetcher.TickSize(gctx, key)
			if err != nil {
				return &FetchError{TokenID: key, Attribute: AttrTickSize, Err: err}
			}
			fetched[i].TickSize = tick
			return nil
		})
		g.Go(func() error {
			neg, err := c.fetcher.NegRisk(gctx, key)
			if err != nil {
				return &FetchError{TokenID: key, Attribute: AttrNegRisk, Err: err}
			}
			fetched[i].NegRisk = neg
			return nil
		})
		g.Go(func() error {
			fee, err := c.fetcher.FeeRateBps(gctx, key)
			if err != nil {
				return &FetchError{TokenID: key, Attribute: AttrFeeRate, Err: err}
			}
			fetched[i].FeeRateBps = fee
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	next := make(map[string]Instrument, len(current)+len(fetched))
	for k, v := range current {
		next[k] = v
	}
	for _, inst := range fetched {
		next[inst.TokenID.Dec()] = inst
		c.logger.Info("instrument_cached",
			zap.String("token_id", inst.TokenID.Dec()),
			zap.String("tick_size", inst.TickSize.String()),
			zap.Bool("neg_risk", inst.NegRisk),
			zap.Int64("fee_rate_bps", inst.FeeRateBps),
		)
	}
	c.items.Store(&next)
	return nil
}

// Static is a fixed Lookup, used by the offline signing tool.
type Static map[string]Instrument

func (s Static) Get(tokenID *uint256.Int) (Instrument, bool) {
	if tokenID == nil {
		return Instrument{}, false
	}
	inst, ok := s[tokenID.Dec()]
	return inst, ok
}
