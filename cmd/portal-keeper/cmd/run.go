package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"portal-keeper/config"
	dbfx "portal-keeper/db/fx"
	appfx "portal-keeper/internal/app/fx"
	monitorfx "portal-keeper/internal/monitor/fx"
)

// startTimeout covers a first-run browser download.
const startTimeout = 5 * time.Minute

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor connectivity and log in to the portal until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			app := fx.New(
				fxLogger(flags),
				fx.StartTimeout(startTimeout),
				fx.StopTimeout(cfg.Monitor.StopTimeout()),
				fx.Supply(config.File(flags.configFile)),
				appfx.CoreAppOptions,
				dbfx.SQLiteModule,
				monitorfx.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}

			startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}

			sig := <-app.Wait()

			stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancelStop()
			if err := app.Stop(stopCtx); err != nil {
				return err
			}

			if sig.ExitCode != 0 {
				return exitError{code: sig.ExitCode}
			}
			return nil
		},
	}
}

func fxLogger(flags *rootFlags) fx.Option {
	if !flags.fxLog {
		return fx.NopLogger
	}
	return fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger}
	})
}
