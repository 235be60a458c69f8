package fx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"portal-keeper/config"
	"portal-keeper/internal/login"
	"portal-keeper/internal/logs"
	"portal-keeper/internal/monitor"
	"portal-keeper/internal/portal"
	"portal-keeper/internal/probe"
)

// Components provides a ready Monitor without starting it. The once command uses it directly.
var Components = fx.Options(
	fx.Provide(
		NewPortalFactory,
		fx.Annotate(probe.New, fx.As(new(monitor.Prober))),
		fx.Annotate(login.New, fx.As(new(monitor.Authenticator))),
		AsEventLogger,
		monitor.New,
	),
)

// Module runs the monitor loop for the lifetime of the app.
var Module = fx.Module(
	"monitor",
	Components,
	fx.Invoke(registerLifecycleHooks),
)

type NewPortalFactoryParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    config.Config
	Logger *zap.SugaredLogger
}

func NewPortalFactory(p NewPortalFactoryParams) portal.Factory {
	f := portal.NewPlaywrightFactory(p.Cfg, p.Logger)
	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := f.Close(); err != nil {
				p.Logger.Warnw("playwright_stop_failed", "err", err)
			}
			return nil
		},
	})
	return f
}

func AsEventLogger(l *logs.EventLog) monitor.EventLogger {
	return l
}

type hooksParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Monitor    *monitor.Monitor
	Logger     *zap.SugaredLogger
}

func registerLifecycleHooks(p hooksParams) {
	var (
		cancel context.CancelFunc
		done   chan error
	)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Infow("monitor_starting")
			if err := p.Monitor.Start(ctx); err != nil {
				return err
			}

			// The start context expires once startup completes; the loop needs its own.
			runCtx, c := context.WithCancel(context.Background())
			cancel = c
			done = make(chan error, 1)

			go func() {
				err := p.Monitor.Run(runCtx)
				done <- err
				if err != nil {
					p.Logger.Errorw("monitor_exited", "err", err)
					if serr := p.Shutdowner.Shutdown(fx.ExitCode(1)); serr != nil {
						p.Logger.Errorw("shutdown_failed", "err", serr)
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Infow("monitor_stopping")
			var runErr error
			if cancel != nil {
				cancel()
				select {
				case runErr = <-done:
				case <-ctx.Done():
					p.Logger.Warnw("monitor_stop_timeout")
				}
			}
			p.Monitor.Close(ctx, runErr)
			return nil
		},
	})
}
