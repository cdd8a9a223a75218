package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobexec/params"
	"github.com/uhyunpark/clobexec/pkg/order"
	"github.com/uhyunpark/clobexec/pkg/runner"
	"github.com/uhyunpark/clobexec/pkg/util"
)

func main() {
	var (
		tokenID    = flag.String("token-id", "", "outcome token id (decimal)")
		price      = flag.String("price", "", "limit price, e.g. 0.50")
		size       = flag.String("size", "", "order size in shares")
		side       = flag.String("side", "BUY", "BUY or SELL")
		iterations = flag.Int("iterations", 0, "number of orders (overrides ITERATIONS)")
		delay      = flag.Duration("delay", 0, "pause between orders (overrides ORDER_DELAY_MS)")
		envPath    = flag.String("env", "", "path to .env file (default ./.env)")
	)
	flag.Parse()

	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv(*envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "iterations":
			cfg.Run.Iterations = *iterations
		case "delay":
			cfg.Run.OrderDelay = *delay
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	level, _ := util.ParseLevel(cfg.Output.LogLevel)
	var logger *zap.Logger
	if cfg.Output.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Output.LogFile, level)
	} else {
		logger, err = util.NewLogger(level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	req, err := order.ParseRequest(*tokenID, *price, *size, *side)
	if err != nil {
		sugar.Fatalw("invalid_order_request", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	r, err := runner.Bootstrap(ctx, cfg, []*uint256.Int{req.TokenID}, nil, logger)
	if err != nil {
		sugar.Fatalw("bootstrap_failed", "err", err)
	}
	defer r.Close()
	sugar.Infow("bootstrap_complete", "elapsed", time.Since(start))

	report, err := r.Run(ctx, req)
	if err != nil {
		sugar.Warnw("run_interrupted", "err", err)
	}

	for _, out := range report.Outcomes {
		if out.Err != nil {
			fmt.Printf("order #%d | %s | %s\n", out.Index, out.Kind, out.Err)
			continue
		}
		fmt.Printf("order #%d | %dms | %d | %s\n", out.Index, out.Sample.Post.Milliseconds(), out.Status, out.OrderID)
	}
	fmt.Println(report.Summary)

	if report.Accepted == 0 {
		r.Close()
		logger.Sync()
		stop()
		os.Exit(1)
	}
}
