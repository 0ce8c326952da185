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
	"time"

	"github.com/brasato/brasato/cmd/brasato/cli"
	"github.com/brasato/brasato/internal/app"
	"github.com/brasato/brasato/internal/cashflow"
	"github.com/brasato/brasato/internal/inventory"
	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/orders"
	"github.com/brasato/brasato/internal/platform/cache"
	"github.com/brasato/brasato/internal/platform/db"
	"github.com/brasato/brasato/internal/purchasing"
	"github.com/brasato/brasato/internal/recurrence"
	"github.com/brasato/brasato/internal/settings"
	"github.com/brasato/brasato/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var runErr error
	switch os.Args[1] {
	case "jobs":
		runErr = runJobs(ctx, cfg, os.Args[2:])
	case "generate":
		runErr = runGenerate(ctx, cfg, logger, os.Args[2:])
	case "settle":
		runErr = runSettle(ctx, cfg, logger, os.Args[2:])
	case "purchase":
		runErr = runPurchase(ctx, cfg, logger, os.Args[2:])
	case "summary":
		runErr = runSummary(ctx, cfg, logger, os.Args[2:])
	case "pending":
		runErr = runPending(ctx, cfg, logger, os.Args[2:])
	case "stock":
		runErr = runStock(ctx, cfg, os.Args[2:])
	case "fees":
		runErr = runFees(ctx, cfg, logger)
	default:
		usage()
		os.Exit(2)
	}
	if runErr != nil {
		logger.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", runErr))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: brasato <command>

commands:
  jobs trigger <task> [-year N -month N]   enqueue a background task
  jobs stats                               show queue statistics
  jobs scheduled                           list scheduled tasks
  generate -year N -month N                run recurrence generation directly
  settle -order N [-actor N]               settle an order into the ledger
  purchase -file F [-actor N]              record a purchase invoice from JSON
  summary [-period P] [-pending]           print the cash flow summary
  pending [-period P] [-type T]            list pending obligations
  stock [-id N]                            show an ingredient, or the restock worklist
  fees                                     print the current fee schedule`)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("jobs: missing subcommand")
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jc.Close() }()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ExitOnError)
		year := fs.Int("year", 0, "generation year")
		month := fs.Int("month", 0, "generation month")
		if len(args) < 2 {
			return fmt.Errorf("jobs trigger: missing task name")
		}
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		info, err := jc.Trigger(ctx, args[1], *year, time.Month(*month))
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	case "scheduled":
		tasks, err := jc.ListScheduled(ctx, 20)
		if err != nil {
			return err
		}
		return printJSON(tasks)
	default:
		return fmt.Errorf("jobs: unknown subcommand %s", args[0])
	}
}

func runGenerate(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	now := time.Now().UTC()
	year := fs.Int("year", now.Year(), "generation year")
	month := fs.Int("month", int(now.Month()), "generation month")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := recurrence.NewService(recurrence.NewRepository(pool), shared.NewAuditLogger(pool), logger)
	result, err := svc.Generate(ctx, *year, time.Month(*month))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runSummary(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	period := fs.String("period", shared.PeriodThisMonth, "period: this_month, last_month, last_30_days")
	pending := fs.Bool("pending", false, "include pending amounts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	store := ledger.NewService(ledger.NewRepository(pool), nil, logger)
	svc := cashflow.NewService(store, cashflow.NewCache(redisClient, cfg.SummaryCacheTTL), logger)
	view, err := svc.Summary(ctx, *period, time.Time{}, time.Time{}, *pending)
	if err != nil {
		return err
	}
	return printJSON(view)
}

func runFees(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	svc := settings.NewService(settings.NewRepository(pool), redisClient, cfg.SettingsCacheTTL, nil, logger)
	fees, err := svc.FeeSchedule(ctx)
	if err != nil {
		return err
	}
	return printJSON(fees)
}

func runSettle(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	orderID := fs.Int64("order", 0, "order id to settle")
	actorID := fs.Int64("actor", 0, "acting user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *orderID <= 0 {
		return fmt.Errorf("settle: -order is required")
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	audit := shared.NewAuditLogger(pool)
	fees := settings.NewService(settings.NewRepository(pool), nil, cfg.SettingsCacheTTL, audit, logger)
	svc := orders.NewService(orders.NewRepository(pool), fees, audit, logger)
	result, err := svc.Complete(ctx, *orderID, *actorID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runPurchase(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("purchase", flag.ExitOnError)
	file := fs.String("file", "", "JSON file describing the invoice")
	actorID := fs.Int64("actor", 0, "acting user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("purchase: -file is required")
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var in purchasing.CreateInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("purchase: parse %s: %w", *file, err)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := purchasing.NewService(purchasing.NewRepository(pool), shared.NewAuditLogger(pool), logger)
	result, err := svc.Create(ctx, in, *actorID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runPending(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("pending", flag.ExitOnError)
	period := fs.String("period", shared.PeriodThisMonth, "period: this_month, last_month, last_30_days")
	movType := fs.String("type", "", "movement type filter (REVENUE, EXPENSE, CMV, TAX)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := ledger.NewService(ledger.NewRepository(pool), nil, logger)
	svc := cashflow.NewService(store, nil, logger)
	movements, err := svc.PendingObligations(ctx, *period, time.Time{}, time.Time{}, ledger.MovementType(*movType))
	if err != nil {
		return err
	}
	return printJSON(movements)
}

func runStock(ctx context.Context, cfg *app.Config, args []string) error {
	fs := flag.NewFlagSet("stock", flag.ExitOnError)
	id := fs.Int64("id", 0, "ingredient id; omit to list ingredients below minimum")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if *id > 0 {
		ing, err := inventory.GetIngredient(ctx, pool, *id)
		if err != nil {
			return err
		}
		return printJSON(ing)
	}
	low, err := inventory.ListBelowMinimum(ctx, pool)
	if err != nil {
		return err
	}
	return printJSON(low)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
