package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"portal-keeper/config"
	"portal-keeper/internal/pkg/chromedevtools"
)

const doctorTimeout = 5 * time.Second

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate config and check the portal and browser endpoints are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "OK: config valid.")

			if cfg.Browser.CDPURL != "" {
				fmt.Fprintln(out, "Checking DevTools:", cfg.Browser.CDPURL)
				v, err := chromedevtools.Discover(context.Background(), cfg.Browser.CDPURL, doctorTimeout)
				if err != nil {
					return fmt.Errorf("Chrome DevTools not reachable at %s: %w", cfg.Browser.CDPURL, err)
				}
				fmt.Fprintf(out, "OK: %s (protocol %s).\n", v.Browser, v.ProtocolVersion)
			}

			fmt.Fprintln(out, "Checking portal:", cfg.Portal.LoginURL)
			if _, err := chromedevtools.CheckReachable(context.Background(), cfg.Portal.LoginURL, doctorTimeout); err != nil {
				return fmt.Errorf("portal login page not reachable: %w", err)
			}
			fmt.Fprintln(out, "OK: portal login page reachable.")
			return nil
		},
	}
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	v, err := config.NewViper(config.File(flags.configFile))
	if err != nil {
		return config.Config{}, err
	}
	return config.NewConfig(v)
}
