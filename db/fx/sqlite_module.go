package fx

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"portal-keeper/config"
	"portal-keeper/db"
	"portal-keeper/internal/journal"
	"portal-keeper/internal/logs"
)

var SQLiteModule = fx.Module(
	"sqlite-journal",
	fx.Provide(NewJournal),
)

type NewJournalParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    config.Config
	Logger *zap.SugaredLogger
}

type JournalOut struct {
	fx.Out

	// Sinks is empty when the journal is disabled.
	Sinks []logs.Sink `group:"event_sinks,flatten"`
}

func NewJournal(p NewJournalParams) (JournalOut, error) {
	if p.Cfg.Journal.Path == "" {
		p.Logger.Infow("event_journal_disabled")
		return JournalOut{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := db.OpenSQLite(ctx, p.Cfg.Journal.Path)
	if err != nil {
		return JournalOut{}, err
	}
	store := journal.NewStore(conn)

	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := store.Close(); err != nil {
				p.Logger.Warnw("event_journal_close_failed", "err", err)
			}
			return nil
		},
	})

	p.Logger.Infow("event_journal_enabled", "path", p.Cfg.Journal.Path)
	return JournalOut{Sinks: []logs.Sink{store}}, nil
}
