package main

import (
	"crypto/sha256"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/clobexec/params"
	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/metadata"
	"github.com/uhyunpark/clobexec/pkg/order"
)

// sign-order builds and signs one order without touching the network and
// prints the exact request body, for comparing against a live client.
func main() {
	tokenID := flag.String("token-id", "123456", "outcome token id")
	price := flag.String("price", "0.50", "limit price")
	size := flag.String("size", "100", "size in shares")
	side := flag.String("side", "BUY", "BUY or SELL")
	tick := flag.String("tick", "0.01", "tick size of the market")
	negRisk := flag.Bool("neg-risk", false, "market settles on the neg-risk exchange")
	fee := flag.Int64("fee-bps", 0, "fee rate in basis points")
	owner := flag.String("owner", "00000000-0000-0000-0000-000000000000", "api key placed in the owner field")
	envPath := flag.String("env", "", "path to .env file")
	flag.Parse()

	cfg, err := params.LoadFromEnv(*envPath)
	if err != nil {
		fail("config", err)
	}

	// Step 1: Load or generate key
	var signer *crypto.Signer
	if cfg.Wallet.PrivateKey.IsZero() {
		fmt.Println("PK not set, generating a throwaway keypair...")
		signer, err = crypto.GenerateKey(cfg.Exchange.ChainID)
		if err == nil {
			fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
		}
	} else {
		signer, err = crypto.FromPrivateKeyHex(cfg.Wallet.PrivateKey.Expose(), cfg.Exchange.ChainID)
	}
	if err != nil {
		fail("key", err)
	}
	funder, ok := crypto.FunderFor(signer.Address(), cfg.Wallet.SignatureType, cfg.FunderAddress())
	if !ok {
		fail("funder", fmt.Errorf("FUNDER_ADDRESS required for %s", cfg.Wallet.SignatureType))
	}
	fmt.Printf("Signer: %s\nFunder: %s (%s)\n\n", signer.Address().Hex(), funder.Hex(), cfg.Wallet.SignatureType)

	// Step 2: Build order against fixed market parameters
	req, err := order.ParseRequest(*tokenID, *price, *size, *side)
	if err != nil {
		fail("request", err)
	}
	tickSize, err := decimal.NewFromString(*tick)
	if err != nil {
		fail("tick", err)
	}
	lookup := metadata.Static{req.TokenID.Dec(): {
		TokenID:    req.TokenID,
		TickSize:   tickSize,
		NegRisk:    *negRisk,
		FeeRateBps: *fee,
	}}

	xs, err := crypto.NewExchangeSigner(signer)
	if err != nil {
		fail("exchange", err)
	}
	p, err := order.NewPipeline(lookup, xs, order.Identity{
		Signer:        signer.Address(),
		Funder:        funder,
		SignatureType: cfg.Wallet.SignatureType,
		Owner:         *owner,
	})
	if err != nil {
		fail("pipeline", err)
	}
	unsigned, err := p.Build(req)
	if err != nil {
		fail("build", err)
	}

	// Step 3: Sign with EIP-712
	signed, err := p.Sign(unsigned)
	if err != nil {
		fail("sign", err)
	}

	// Step 4: Serialize once
	body, err := p.Encode(signed)
	if err != nil {
		fail("encode", err)
	}
	fmt.Println("Body:")
	fmt.Println(string(body))
	fmt.Printf("Body SHA256: %x\n\n", sha256.Sum256(body))

	// Step 5: Verify signature
	domain, _ := crypto.ExchangeDomain(cfg.Exchange.ChainID, *negRisk)
	recovered, err := crypto.NewEIP712Signer(domain).RecoverOrderSigner(signed.Typed(), signed.Signature)
	if err != nil {
		fail("verify", err)
	}
	if recovered != signer.Address() {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
	fmt.Printf("  Exchange: %s\n", domain.VerifyingContract.Hex())
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", step, err)
	os.Exit(1)
}
