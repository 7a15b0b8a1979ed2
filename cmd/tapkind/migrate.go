package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tapkind/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Server.Store != "postgres" {
				return errors.New("migrate needs server.store=postgres")
			}
			if err := db.RunMigrations(a.cfg.Database.URL, a.log); err != nil {
				return err
			}
			if !seed {
				return nil
			}
			store, closeStore, err := a.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeStore()
			if err := a.seedCatalog(cmd.Context(), store); err != nil {
				return fmt.Errorf("seed catalog: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "upsert the badge and event catalog after migrating")
	return cmd
}
