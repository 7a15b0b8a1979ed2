package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tapkind/internal/catalog"
	"tapkind/internal/config"
	"tapkind/internal/db"
	"tapkind/internal/logger"
	"tapkind/internal/repo"
	"tapkind/internal/service"
)

type app struct {
	configPath string
	store      string

	cfg *config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCmd(&app{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tapkind",
		Short:         "Tips, volunteering and kindness points",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&a.store, "store", "", "override server.store (postgres or memory)")

	root.AddCommand(newServeCmd(a), newMigrateCmd(a), newResolveCmd(a), newScanCmd(a))
	return root
}

func (a *app) load() error {
	if a.store != "" {
		// Applied through the environment so it takes part in validation.
		if err := os.Setenv("TAPKIND_SERVER_STORE", a.store); err != nil {
			return err
		}
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// openStore connects the configured store. The returned func releases it.
func (a *app) openStore(ctx context.Context, migrate bool) (service.Store, func(), error) {
	if a.cfg.Server.Store == "memory" {
		a.log.Warn("using the in-memory store; data is lost on exit")
		return repo.NewMemory(), func() {}, nil
	}
	if migrate {
		if err := db.RunMigrations(a.cfg.Database.URL, a.log); err != nil {
			return nil, nil, err
		}
	}
	pool, err := db.NewPool(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return repo.New(pool), pool.Close, nil
}

func (a *app) seedCatalog(ctx context.Context, store catalog.Store) error {
	c, err := catalog.Load(a.cfg.Catalog.Path)
	if err != nil {
		return err
	}
	return c.Seed(ctx, store, a.log)
}
