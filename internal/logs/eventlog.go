package logs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"portal-keeper/config"
)

// TimeLayout is the timestamp format of every event-log line. Tooling tails the file, keep it stable.
const TimeLayout = "2006-01-02 15:04:05"

type Event string

const (
	EventStarted        Event = "started"
	EventFatal          Event = "fatal"
	EventDisconnected   Event = "disconnected"
	EventLoginSucceeded Event = "login_succeeded"
	EventLoginFailed    Event = "login_failed"
	EventRetryExhausted Event = "retry_exhausted"
	EventRestored       Event = "restored"
	EventSessionLost    Event = "session_lost"
	EventSessionRenewed Event = "session_renewed"
	EventStopped        Event = "stopped"
	EventAbnormalExit   Event = "abnormal_exit"
)

// Entry is one event-log line. Entries are never mutated once written.
type Entry struct {
	Time    time.Time
	Event   Event
	Message string
}

// Line renders the entry exactly as it appears in the log file.
func (e Entry) Line() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format(TimeLayout), e.Message)
}

// Sink receives a copy of every entry after it was written to the log file.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// EventLog is the operator-facing log: one "[YYYY-MM-DD HH:MM:SS] message" line per notable event,
// appended to a file and mirrored to stdout.
type EventLog struct {
	core  zapcore.Core
	clock zapcore.Clock
	sinks []Sink
	diag  *zap.SugaredLogger

	closeOnce sync.Once
	closeFn   func()
}

type NewEventLogParams struct {
	fx.In

	Cfg    config.Config
	Logger *zap.SugaredLogger
	Sinks  []Sink `group:"event_sinks"`
}

func NewEventLog(p NewEventLogParams) (*EventLog, error) {
	ws, closeFn, err := zap.Open(p.Cfg.LogFile, "stdout")
	if err != nil {
		return nil, fmt.Errorf("open event log %q: %w", p.Cfg.LogFile, err)
	}

	l := NewEventLogWriter(ws, zapcore.DefaultClock, p.Logger, p.Sinks...)
	l.closeFn = closeFn
	return l, nil
}

// NewEventLogWriter builds an EventLog on an arbitrary writer and clock.
func NewEventLogWriter(ws zapcore.WriteSyncer, clock zapcore.Clock, diag *zap.SugaredLogger, sinks ...Sink) *EventLog {
	if clock == nil {
		clock = zapcore.DefaultClock
	}
	if diag == nil {
		diag = zap.NewNop().Sugar()
	}

	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		EncodeTime:       encodeTime,
		ConsoleSeparator: " ",
		LineEnding:       zapcore.DefaultLineEnding,
	})

	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}

	return &EventLog{
		core:  zapcore.NewCore(enc, ws, zapcore.DebugLevel),
		clock: clock,
		sinks: live,
		diag:  diag,
	}
}

func encodeTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + t.Format(TimeLayout) + "]")
}

// Log writes one line. Sink failures are reported on the diagnostic logger and never block the caller.
// The file line and the sink entry share one timestamp.
func (l *EventLog) Log(ctx context.Context, ev Event, msg string) {
	e := Entry{Time: l.clock.Now(), Event: ev, Message: msg}

	if err := l.core.Write(zapcore.Entry{Level: zapcore.InfoLevel, Time: e.Time, Message: msg}, nil); err != nil {
		l.diag.Warnw("event_log_write_failed", "event", ev, "err", err)
	}

	for _, s := range l.sinks {
		if err := s.Record(ctx, e); err != nil {
			l.diag.Warnw("event_sink_record_failed", "event", ev, "err", err)
		}
	}
}

func (l *EventLog) Sync() error {
	return l.core.Sync()
}

// Close flushes and releases the log file. Sync errors on stdout are expected and ignored.
func (l *EventLog) Close() error {
	_ = l.Sync()
	l.closeOnce.Do(func() {
		if l.closeFn != nil {
			l.closeFn()
		}
	})
	return nil
}
