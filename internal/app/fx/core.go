package fx

import (
	"go.uber.org/fx"

	"portal-keeper/config"
	"portal-keeper/internal/logs"
)

// CoreAppOptions wires config, the diagnostic logger and the operator event log.
var CoreAppOptions = fx.Options(
	fx.Provide(
		config.NewViper,
		config.NewConfig,
		logs.NewLogger,
		logs.NewSugaredLogger,
		logs.NewEventLog,
	),
	fx.Invoke(logs.RegisterLifecycle),
)
