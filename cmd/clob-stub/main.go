package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/clobexec/pkg/auth"
	"github.com/uhyunpark/clobexec/pkg/stub"
	"github.com/uhyunpark/clobexec/pkg/util"
)

// marketFlags collects repeated --market token:tick[:negrisk[:feebps]] values.
type marketFlags []stub.Market

func (m *marketFlags) String() string { return fmt.Sprint(len(*m), " markets") }

func (m *marketFlags) Set(v string) error {
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 4 {
		return fmt.Errorf("want token:tick[:negrisk[:feebps]], got %q", v)
	}
	tick, err := decimal.NewFromString(parts[1])
	if err != nil {
		return fmt.Errorf("tick: %w", err)
	}
	mk := stub.Market{TokenID: parts[0], TickSize: tick}
	if len(parts) > 2 {
		if mk.NegRisk, err = strconv.ParseBool(parts[2]); err != nil {
			return fmt.Errorf("negrisk: %w", err)
		}
	}
	if len(parts) > 3 {
		if mk.FeeRateBps, err = strconv.ParseInt(parts[3], 10, 64); err != nil {
			return fmt.Errorf("feebps: %w", err)
		}
	}
	*m = append(*m, mk)
	return nil
}

func main() {
	var markets marketFlags
	addr := flag.String("addr", ":8080", "listen address")
	chainID := flag.Int64("chain-id", 137, "chain id used to verify signatures")
	keyMode := flag.String("hmac-key-mode", "decoded", "decoded or raw")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Var(&markets, "market", "token:tick[:negrisk[:feebps]] (repeatable)")
	flag.Parse()

	level, err := util.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	logger, err := util.NewLogger(level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	mode, err := auth.ParseKeyMode(*keyMode)
	if err != nil {
		sugar.Fatalw("invalid_key_mode", "err", err)
	}

	s := stub.NewServer(stub.Options{ChainID: *chainID, KeyMode: mode, Logger: logger})
	if len(markets) == 0 {
		markets = marketFlags{{TokenID: "123456", TickSize: decimal.RequireFromString("0.01")}}
	}
	for _, m := range markets {
		s.AddMarket(m)
		sugar.Infow("market_added", "token_id", m.TokenID, "tick_size", m.TickSize.String(), "neg_risk", m.NegRisk, "fee_rate_bps", m.FeeRateBps)
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		sugar.Fatalw("listen_failed", "addr", *addr, "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Serve(ctx, ln); err != nil {
		sugar.Fatalw("stub_failed", "err", err)
	}
	c := s.Counters()
	sugar.Infow("stub_stopped", "orders", c.Orders, "rejected", c.Rejected, "accepted", len(s.Orders()))
}
