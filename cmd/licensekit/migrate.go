package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(l *loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply license store migrations",
		Long: `Applies pending goose migrations when LICENSE_STORE=postgres and
creates the collection indexes when LICENSE_STORE=mongo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg opsConfig
			if err := loadConfig(l, &cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			log := newLogger(cfg.Logger)
			d, err := openDeps(ctx, cfg.Storage, log)
			if err != nil {
				return err
			}
			defer d.close(ctx)

			out := cmd.OutOrStdout()
			switch {
			case d.pgMigrate != nil:
				if err := d.pgMigrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "postgres migrations applied")
			case d.mongoIndex != nil:
				if err := d.mongoIndex(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "mongo indexes ensured")
			default:
				fmt.Fprintf(out, "nothing to migrate for LICENSE_STORE=%s\n", cfg.Storage.LicenseStore)
			}
			return nil
		},
	}
}
