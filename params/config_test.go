package params

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"

	"github.com/uhyunpark/clobexec/pkg/auth"
	"github.com/uhyunpark/clobexec/pkg/crypto"
)

const testPK = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestDefault_NeedsOnlyKey(t *testing.T) {
	cfg := Default()
	cfg.Wallet.PrivateKey = auth.NewSecret(testPK)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with key invalid: %v", err)
	}
	if cfg.Exchange.OrderPath != "/orders" || cfg.Wallet.KeyMode != auth.KeyDecoded {
		t.Errorf("defaults = %+v", cfg.Exchange)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("CLOB_HOST", "http://127.0.0.1:8080")
	t.Setenv("CHAIN_ID", "80002")
	t.Setenv("PK", "0x"+testPK)
	t.Setenv("SIGNATURE_TYPE", "eoa")
	t.Setenv("HMAC_KEY_MODE", "raw")
	t.Setenv("ORDER_PATH", "/order")
	t.Setenv("ITERATIONS", "10")
	t.Setenv("ORDER_DELAY_MS", "250")
	t.Setenv("WARMUP_SAMPLES", "2")
	t.Setenv("MAX_CONSECUTIVE_FAILURES", "3")
	t.Setenv("HTTP_TIMEOUT_MS", "1500")

	cfg, err := LoadFromEnv("")
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Exchange.Host != "http://127.0.0.1:8080" || cfg.Exchange.ChainID != 80002 || cfg.Exchange.OrderPath != "/order" {
		t.Errorf("exchange = %+v", cfg.Exchange)
	}
	if cfg.Exchange.HTTPTimeout != 1500*time.Millisecond {
		t.Errorf("timeout = %s", cfg.Exchange.HTTPTimeout)
	}
	if cfg.Wallet.SignatureType != crypto.SignatureEOA || cfg.Wallet.KeyMode != auth.KeyRaw {
		t.Errorf("wallet = %v/%v", cfg.Wallet.SignatureType, cfg.Wallet.KeyMode)
	}
	if cfg.Run.Iterations != 10 || cfg.Run.OrderDelay != 250*time.Millisecond || cfg.Run.WarmupSamples != 2 || cfg.Run.MaxConsecutiveFailures != 3 {
		t.Errorf("run = %+v", cfg.Run)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromEnv_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "ITERATIONS=7\nFUNDER_ADDRESS=0x00000000000000000000000000000000000000aa\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("ITERATIONS")
		os.Unsetenv("FUNDER_ADDRESS")
	})

	cfg, err := LoadFromEnv(path)
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Run.Iterations != 7 {
		t.Errorf("iterations = %d", cfg.Run.Iterations)
	}
	if cfg.FunderAddress() != common.HexToAddress("0xaa") {
		t.Errorf("funder = %s", cfg.FunderAddress().Hex())
	}
}

func TestLoadFromEnv_ParseErrors(t *testing.T) {
	t.Setenv("ITERATIONS", "many")
	t.Setenv("ORDER_DELAY_MS", "-1")
	t.Setenv("SIGNATURE_TYPE", "ledger")

	_, err := LoadFromEnv("")
	if got := len(multierr.Errors(err)); got != 3 {
		t.Errorf("got %d errors, want 3: %v", got, err)
	}
}

func TestValidate_AggregatesAndHidesKey(t *testing.T) {
	cfg := Default()
	cfg.Exchange.Host = "clob.polymarket.com"
	cfg.Exchange.ChainID = 1
	cfg.Wallet.SignatureType = crypto.SignaturePolyProxy
	cfg.Run.Iterations = 0
	cfg.Output.LogLevel = "loud"

	err := cfg.Validate()
	// host, chain, PK, proxy funder, iterations, log level
	if got := len(multierr.Errors(err)); got != 6 {
		t.Errorf("got %d errors, want 6: %v", got, err)
	}

	cfg = Default()
	cfg.Wallet.PrivateKey = auth.NewSecret(testPK)
	cfg.Exchange.Host = "https://clob.polymarket.com/v1"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "CLOB_HOST") {
		t.Errorf("host with path: err = %v", err)
	}

	cfg = Default()
	cfg.Wallet.PrivateKey = auth.NewSecret(testPK)
	cfg.Run.Iterations = 0
	if err := cfg.Validate(); err == nil || strings.Contains(err.Error(), testPK) {
		t.Errorf("err = %v", err)
	}
}
