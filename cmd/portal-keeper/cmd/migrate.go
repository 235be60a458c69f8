package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"portal-keeper/db"
)

const migrateTimeout = 60 * time.Second

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|status|version|redo]",
		Short: "Run a goose command against the event journal schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "status"
			if len(args) > 0 {
				command = args[0]
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
			defer cancel()

			conn, err := db.Open(ctx, cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer conn.Close()

			return db.RunMigrations(ctx, conn, command)
		},
	}
}
