package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"portal-keeper/config"
	dbfx "portal-keeper/db/fx"
	appfx "portal-keeper/internal/app/fx"
	"portal-keeper/internal/monitor"
	monitorfx "portal-keeper/internal/monitor/fx"
)

func newOnceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single check, logging in if the portal session is down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			var m *monitor.Monitor
			app := fx.New(
				fxLogger(flags),
				fx.StartTimeout(startTimeout),
				fx.StopTimeout(cfg.Monitor.StopTimeout()),
				fx.Supply(config.File(flags.configFile)),
				appfx.CoreAppOptions,
				dbfx.SQLiteModule,
				monitorfx.Components,
				fx.Populate(&m),
			)
			if err := app.Err(); err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctx, cancel := context.WithTimeout(sigCtx, app.StartTimeout())
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}

			outcome, runErr := runOnce(ctx, m)

			stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancelStop()
			if err := app.Stop(stopCtx); err != nil && runErr == nil {
				runErr = err
			}
			if runErr != nil {
				return runErr
			}

			fmt.Fprintln(cmd.OutOrStdout(), outcome)
			if !connectedAfter(outcome) {
				return exitError{code: 1}
			}
			return nil
		},
	}
}

// runOnce always closes the monitor once started; a panic in the tick is reported as an
// abnormal exit.
func runOnce(ctx context.Context, m *monitor.Monitor) (outcome monitor.Outcome, err error) {
	if err := m.Start(ctx); err != nil {
		return monitor.OutcomeNone, err
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = monitor.OutcomeNone
			err = fmt.Errorf("%w: %v", monitor.ErrAbnormalExit, r)
		}
		m.Close(context.Background(), err)
	}()

	return m.Tick(ctx), nil
}

func connectedAfter(o monitor.Outcome) bool {
	return o == monitor.OutcomeConnected || o == monitor.OutcomeLoginSucceeded
}
