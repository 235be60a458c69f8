package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"portal-keeper/db"
	"portal-keeper/internal/envutil"
	"portal-keeper/internal/journal"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent event journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			conn, err := db.OpenSQLite(context.Background(), cfg.Journal.Path)
			if err != nil {
				return err
			}
			store := journal.NewStore(conn)
			defer store.Close()

			entries, err := store.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e.Line())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", envutil.Int(os.Getenv, "PORTALKEEPER_HISTORY_LIMIT", 20), "Number of entries to print")
	return cmd
}
