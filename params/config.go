package params

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/uhyunpark/clobexec/pkg/auth"
	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/util"
)

type Exchange struct {
	Host      string
	ChainID   int64
	OrderPath string
	// HTTPTimeout bounds each request end to end; 0 leaves only the
	// transport's dial and TLS timeouts.
	HTTPTimeout time.Duration
}

type Wallet struct {
	PrivateKey    auth.Secret
	Funder        string // empty: derived from the signature type
	SignatureType crypto.SignatureType
	KeyMode       auth.KeyMode
}

type Run struct {
	Iterations    int
	OrderDelay    time.Duration
	WarmupSamples int
	// MaxConsecutiveFailures stops the loop after that many failed orders
	// in a row. 0 never stops early.
	MaxConsecutiveFailures int
}

type Output struct {
	JournalPath string // empty: in-memory journal
	LogFile     string
	LogLevel    string
}

type Config struct {
	Exchange Exchange
	Wallet   Wallet
	Run      Run
	Output   Output
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Host:      "https://clob.polymarket.com",
			ChainID:   137,
			OrderPath: "/orders",
		},
		Wallet: Wallet{
			SignatureType: crypto.SignatureGnosisSafe,
			KeyMode:       auth.KeyDecoded,
		},
		Run: Run{
			Iterations:    3,
			OrderDelay:    time.Second,
			WarmupSamples: 1,
		},
		Output: Output{
			LogLevel: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// .env is optional; godotenv never overrides variables already set
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return cfg, fmt.Errorf("load %s: %w", envPath, err)
		}
	} else {
		_ = godotenv.Load()
	}

	var errs error
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setMillis := func(key string, dst *time.Duration) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		switch {
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		case ms < 0:
			errs = multierr.Append(errs, fmt.Errorf("%s: must not be negative", key))
		default:
			*dst = time.Duration(ms) * time.Millisecond
		}
	}

	setString("CLOB_HOST", &cfg.Exchange.Host)
	setString("ORDER_PATH", &cfg.Exchange.OrderPath)
	setMillis("HTTP_TIMEOUT_MS", &cfg.Exchange.HTTPTimeout)
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("CHAIN_ID: %w", err))
		} else {
			cfg.Exchange.ChainID = id
		}
	}

	if v := os.Getenv("PK"); v != "" {
		cfg.Wallet.PrivateKey = auth.NewSecret(strings.TrimSpace(v))
	}
	setString("FUNDER_ADDRESS", &cfg.Wallet.Funder)
	if v := os.Getenv("SIGNATURE_TYPE"); v != "" {
		st, err := crypto.ParseSignatureType(v)
		errs = multierr.Append(errs, err)
		if err == nil {
			cfg.Wallet.SignatureType = st
		}
	}
	if v := os.Getenv("HMAC_KEY_MODE"); v != "" {
		m, err := auth.ParseKeyMode(v)
		errs = multierr.Append(errs, err)
		if err == nil {
			cfg.Wallet.KeyMode = m
		}
	}

	setInt("ITERATIONS", &cfg.Run.Iterations)
	setMillis("ORDER_DELAY_MS", &cfg.Run.OrderDelay)
	setInt("WARMUP_SAMPLES", &cfg.Run.WarmupSamples)
	setInt("MAX_CONSECUTIVE_FAILURES", &cfg.Run.MaxConsecutiveFailures)

	setString("JOURNAL_PATH", &cfg.Output.JournalPath)
	setString("LOG_FILE", &cfg.Output.LogFile)
	setString("LOG_LEVEL", &cfg.Output.LogLevel)

	return cfg, errs
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs error

	if u, err := url.Parse(c.Exchange.Host); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("CLOB_HOST %q is not an http(s) URL", c.Exchange.Host))
	} else if strings.Trim(u.Path, "/") != "" || u.RawQuery != "" || u.Fragment != "" {
		errs = multierr.Append(errs, fmt.Errorf("CLOB_HOST %q must not carry a path; set ORDER_PATH instead", c.Exchange.Host))
	}
	if _, err := crypto.ContractsFor(c.Exchange.ChainID); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("CHAIN_ID: %w", err))
	}
	if !strings.HasPrefix(c.Exchange.OrderPath, "/") {
		errs = multierr.Append(errs, fmt.Errorf("ORDER_PATH %q must start with /", c.Exchange.OrderPath))
	}
	if c.Exchange.HTTPTimeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("HTTP_TIMEOUT_MS must not be negative"))
	}

	if c.Wallet.PrivateKey.IsZero() {
		errs = multierr.Append(errs, fmt.Errorf("PK is required"))
	}
	if c.Wallet.Funder != "" && !common.IsHexAddress(c.Wallet.Funder) {
		errs = multierr.Append(errs, fmt.Errorf("FUNDER_ADDRESS %q is not an address", c.Wallet.Funder))
	}
	if c.Wallet.SignatureType == crypto.SignaturePolyProxy && c.Wallet.Funder == "" {
		errs = multierr.Append(errs, fmt.Errorf("FUNDER_ADDRESS is required for proxy signature type"))
	}

	if c.Run.Iterations < 1 {
		errs = multierr.Append(errs, fmt.Errorf("ITERATIONS must be at least 1, got %d", c.Run.Iterations))
	}
	if c.Run.OrderDelay < 0 {
		errs = multierr.Append(errs, fmt.Errorf("ORDER_DELAY_MS must not be negative"))
	}
	if c.Run.WarmupSamples < 0 {
		errs = multierr.Append(errs, fmt.Errorf("WARMUP_SAMPLES must not be negative"))
	}
	if c.Run.MaxConsecutiveFailures < 0 {
		errs = multierr.Append(errs, fmt.Errorf("MAX_CONSECUTIVE_FAILURES must not be negative"))
	}

	if _, err := util.ParseLevel(c.Output.LogLevel); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errs
}

// FunderAddress returns the configured funder, or the zero address.
func (c Config) FunderAddress() common.Address {
	if c.Wallet.Funder == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Wallet.Funder)
}
