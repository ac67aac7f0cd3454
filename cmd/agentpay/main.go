// Command agentpay is the operational CLI for the billing engine: it manages
// the plan catalog, inspects access and subscription state, and exercises the
// payment path against the configured storage backend and provider.
//
// The backend and provider are selected through the environment:
//
//	AGENTPAY_STORAGE=memory|file|postgres|redis|mongo
//	AGENTPAY_PROVIDER=mock|stripe|paddle|crypto
//	AGENTPAY_DEFAULT_PLAN=<plan id applied to unsubscribed users>
//	AGENTPAY_ENABLED_STORAGE=<allow list, empty allows all>
//	AGENTPAY_ENABLED_PROVIDERS=<allow list, empty allows all>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrymomot/agentpay"
	"github.com/dmitrymomot/agentpay/pkg/config"
	"github.com/dmitrymomot/agentpay/pkg/logger"
	"github.com/dmitrymomot/agentpay/provider"
	"github.com/dmitrymomot/agentpay/provider/crypto"
	"github.com/dmitrymomot/agentpay/provider/mock"
	"github.com/dmitrymomot/agentpay/provider/paddle"
	"github.com/dmitrymomot/agentpay/provider/stripe"
	"github.com/dmitrymomot/agentpay/storage"
	"github.com/dmitrymomot/agentpay/storage/file"
	"github.com/dmitrymomot/agentpay/storage/memory"
	"github.com/dmitrymomot/agentpay/storage/mongo"
	"github.com/dmitrymomot/agentpay/storage/postgres"
	"github.com/dmitrymomot/agentpay/storage/redis"
)

type appConfig struct {
	Storage     string        `env:"AGENTPAY_STORAGE" envDefault:"memory"`
	StorageFile string        `env:"AGENTPAY_STORAGE_FILE" envDefault:"agentpay.json"`
	Provider    string        `env:"AGENTPAY_PROVIDER" envDefault:"mock"`
	DefaultPlan string        `env:"AGENTPAY_DEFAULT_PLAN"`
	GracePeriod time.Duration `env:"AGENTPAY_GRACE_PERIOD" envDefault:"0s"`
}

const usage = `Usage: agentpay <command> [flags]

Commands:
  plans list    [-all]                       list plans
  plans apply   -file <catalog.yaml>         load a plan catalog into storage
  check-access  -user <id> -feature <name>   report whether access is allowed
  record-usage  -user <id> -feature <name> [-cost <amount>]
  subscribe     -user <id> -plan <id>        pay for and activate a plan
  cancel        -user <id>                   cancel the user's subscription
  status        -user <id>                   show the user's subscription
  health                                     probe storage and provider
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "agentpay:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("missing command")
	}

	var logCfg logger.Config
	if err := config.Load(&logCfg); err != nil {
		return err
	}
	log := logger.NewFromConfig(logCfg, logger.WithOutput(os.Stderr))

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	store, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []agentpay.Option{
		agentpay.WithLogger(log),
		agentpay.WithGracePeriod(cfg.GracePeriod),
	}
	if cfg.DefaultPlan != "" {
		opts = append(opts, agentpay.WithDefaultPlan(cfg.DefaultPlan))
	}
	if cfg.Provider != "" {
		p, err := newRegistry().New(cfg.Provider)
		if err != nil {
			return err
		}
		opts = append(opts, agentpay.WithProvider(p))
	}

	pm := agentpay.New(store, opts...)

	switch args[0] {
	case "plans":
		return runPlans(ctx, pm, store, args[1:])
	case "check-access":
		return runCheckAccess(ctx, pm, args[1:])
	case "record-usage":
		return runRecordUsage(ctx, pm, args[1:])
	case "subscribe":
		return runSubscribe(ctx, pm, args[1:])
	case "cancel":
		return runCancel(ctx, pm, args[1:])
	case "status":
		return runStatus(ctx, pm, args[1:])
	case "health":
		return runHealth(ctx, pm)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func openStorage(ctx context.Context, cfg appConfig) (storage.Storage, storage.CloseFunc, error) {
	var gate storage.Config
	if err := config.Load(&gate); err != nil {
		return nil, nil, err
	}

	noop := func() {}
	reg := storage.NewRegistry(gate)
	reg.Register("memory", func(ctx context.Context) (storage.Storage, storage.CloseFunc, error) {
		return memory.New(), noop, nil
	})
	reg.Register("file", func(ctx context.Context) (storage.Storage, storage.CloseFunc, error) {
		s, err := file.New(cfg.StorageFile)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	})
	reg.Register("postgres", func(ctx context.Context) (storage.Storage, storage.CloseFunc, error) {
		var pgCfg postgres.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, nil, err
		}
		s, err := postgres.Open(ctx, pgCfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	})
	reg.Register("redis", func(ctx context.Context) (storage.Storage, storage.CloseFunc, error) {
		var rCfg redis.Config
		if err := config.Load(&rCfg); err != nil {
			return nil, nil, err
		}
		s, err := redis.Open(ctx, rCfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	})
	reg.Register("mongo", func(ctx context.Context) (storage.Storage, storage.CloseFunc, error) {
		var mCfg mongo.Config
		if err := config.Load(&mCfg); err != nil {
			return nil, nil, err
		}
		s, err := mongo.Open(ctx, mCfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close(ctx) }, nil
	})

	return reg.Open(ctx, cfg.Storage)
}

func newRegistry() *provider.Registry {
	var cfg provider.Config
	config.MustLoad(&cfg)

	reg := provider.NewRegistry(cfg)
	reg.Register("mock", func() (provider.Provider, error) {
		return mock.New(), nil
	})
	reg.Register("stripe", func() (provider.Provider, error) {
		var cfg stripe.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return stripe.New(cfg)
	})
	reg.Register("paddle", func() (provider.Provider, error) {
		var cfg paddle.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return paddle.New(cfg)
	})
	reg.Register("crypto", func() (provider.Provider, error) {
		var cfg crypto.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return crypto.New(cfg)
	})
	return reg
}

func runPlans(ctx context.Context, pm *agentpay.PaymentManager, store storage.Storage, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("plans: missing subcommand, want list or apply")
	}

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("plans list", flag.ContinueOnError)
		all := fs.Bool("all", false, "include deactivated plans")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		plans, err := pm.ListPlans(ctx, !*all)
		if err != nil {
			return err
		}
		return printJSON(plans)

	case "apply":
		fs := flag.NewFlagSet("plans apply", flag.ContinueOnError)
		path := fs.String("file", "", "plan catalog YAML file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *path == "" {
			return fmt.Errorf("plans apply: -file is required")
		}
		plans, err := agentpay.NewPlansFileSource(*path).Apply(ctx, store)
		if err != nil {
			return err
		}
		fmt.Printf("applied %d plans\n", len(plans))
		return nil

	default:
		return fmt.Errorf("plans: unknown subcommand %q", args[0])
	}
}

func runCheckAccess(ctx context.Context, pm *agentpay.PaymentManager, args []string) error {
	fs := flag.NewFlagSet("check-access", flag.ContinueOnError)
	user := fs.String("user", "", "user ID")
	feature := fs.String("feature", "", "feature name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	allowed, err := pm.CheckAccess(ctx, *user, *feature)
	if err != nil {
		return err
	}
	fmt.Println(allowed)
	return nil
}

func runRecordUsage(ctx context.Context, pm *agentpay.PaymentManager, args []string) error {
	fs := flag.NewFlagSet("record-usage", flag.ContinueOnError)
	user := fs.String("user", "", "user ID")
	feature := fs.String("feature", "", "feature name")
	cost := fs.Float64("cost", 0, "cost of this request")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec, err := pm.RecordUsage(ctx, *user, *feature, *cost)
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func runSubscribe(ctx context.Context, pm *agentpay.PaymentManager, args []string) error {
	fs := flag.NewFlagSet("subscribe", flag.ContinueOnError)
	user := fs.String("user", "", "user ID")
	plan := fs.String("plan", "", "plan ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sub, err := pm.SubscribeUser(ctx, *user, *plan)
	if err != nil {
		return err
	}
	return printJSON(sub)
}

func runCancel(ctx context.Context, pm *agentpay.PaymentManager, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	user := fs.String("user", "", "user ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return pm.CancelUserSubscription(ctx, *user)
}

func runStatus(ctx context.Context, pm *agentpay.PaymentManager, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	user := fs.String("user", "", "user ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sub, err := pm.Subscriptions().Status(ctx, *user)
	if err != nil {
		return err
	}
	return printJSON(sub)
}

func runHealth(ctx context.Context, pm *agentpay.PaymentManager) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	health := pm.Healthcheck(probeCtx)
	if err := printJSON(health); err != nil {
		return err
	}
	if !health.Storage.IsHealthy {
		return fmt.Errorf("storage unhealthy: %s", health.Storage.ErrorMessage)
	}
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
