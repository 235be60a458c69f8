package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"portal-keeper/internal/envutil"
)

type rootFlags struct {
	configFile string
	fxLog      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "portal-keeper",
		Short:         "Keep a captive-portal session logged in",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errUsage
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", envutil.String(os.Getenv, "PORTALKEEPER_CONFIG", ""), "Config file (yaml, toml or json); optional")
	rootCmd.PersistentFlags().BoolVar(&flags.fxLog, "fx-log", envutil.Bool(os.Getenv, "PORTALKEEPER_FX_LOG", false), "Log dependency injection events")

	rootCmd.AddCommand(
		newRunCmd(flags),
		newOnceCmd(flags),
		newDoctorCmd(flags),
		newHistoryCmd(flags),
		newMigrateCmd(flags),
		newChromeCmd(),
	)
	return rootCmd
}
