package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/fulfillment/cmd/fulfillment/cli"
	"github.com/odyssey-erp/fulfillment/internal/app"
	"github.com/odyssey-erp/fulfillment/internal/billing"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const usage = `usage: billingctl <command> [flags]

commands:
  recompute -period YYYY-MM [-json]   recompute every billable invoice of a period
  invoice -uid UID -period YYYY-MM [-json]  recompute and print one invoice
  rehome [-json]                      move manual items onto their service period
  enqueue -job NAME [-arg VALUE]      queue a background job (invoice:recompute, idempotency:cleanup, marketplace:sync)
  queue                               print default queue statistics
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1], os.Args[2:]))
}

func run(ctx context.Context, command string, args []string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	period := fs.String("period", "", "billing period (YYYY-MM)")
	uid := fs.String("uid", "", "client uid")
	jsonOut := fs.Bool("json", false, "emit JSON")
	job := fs.String("job", "", "job name")
	arg := fs.String("arg", "", "job argument")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	opts := cli.CommandOptions{JSONOutput: *jsonOut}

	switch command {
	case "recompute", "rehome", "invoice":
		ops, closeFn, err := billingService(ctx, cfg, logger)
		if err != nil {
			logger.Error("init billing", slog.Any("error", err))
			return 1
		}
		defer closeFn()
		helper, err := cli.NewBillingOpsCLI(ops)
		if err != nil {
			logger.Error("init billing cli", slog.Any("error", err))
			return 1
		}
		switch command {
		case "recompute":
			return helper.RecomputeCommand(ctx, *period, opts)
		case "invoice":
			return helper.InvoiceCommand(ctx, *uid, *period, opts)
		}
		return helper.RehomeCommand(ctx, opts)
	case "enqueue", "queue":
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			logger.Error("init jobs cli", slog.Any("error", err))
			return 1
		}
		defer jobsCLI.Close()
		if command == "enqueue" {
			info, err := jobsCLI.Trigger(ctx, *job, *arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
				return 1
			}
			fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return 0
		}
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "queue: %v\n", err)
			return 1
		}
		_ = json.NewEncoder(os.Stdout).Encode(stats)
		return 0
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

func billingService(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*billing.Service, func(), error) {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.BillingComputeTimeout)
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	service := billing.NewService(billing.NewRepository(pool), cache.NewLocker(redisClient, cfg.BillingLockTTL), shared.NewAuditLogger(pool), billing.ServiceConfig{
		ComputeTimeout:   cfg.BillingComputeTimeout,
		BatchConcurrency: cfg.BillingBatchConcurrency,
		Logger:           logger,
	})
	return service, func() {
		_ = redisClient.Close()
		pool.Close()
	}, nil
}
