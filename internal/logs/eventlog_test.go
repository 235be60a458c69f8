package logs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"portal-keeper/config"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time                         { return c.t }
func (c fixedClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

// tickingClock advances one second on every read.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *tickingClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

type recordingSink struct {
	entries []Entry
	err     error
}

func (s *recordingSink) Record(_ context.Context, e Entry) error {
	s.entries = append(s.entries, e)
	return s.err
}

func TestEventLog_LineFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	at := time.Date(2026, 3, 7, 9, 5, 2, 0, time.Local)
	l := NewEventLogWriter(zapcore.AddSync(&buf), fixedClock{t: at}, nil)

	l.Log(context.Background(), EventStarted, "portal-keeper started")
	l.Log(context.Background(), EventLoginFailed, "portal login failed (attempt 1/3): boom")

	require.Equal(t,
		"[2026-03-07 09:05:02] portal-keeper started\n"+
			"[2026-03-07 09:05:02] portal login failed (attempt 1/3): boom\n",
		buf.String())
}

func TestEventLog_SinksReceiveEntries(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := &recordingSink{}
	l := NewEventLogWriter(zapcore.AddSync(&bytes.Buffer{}), fixedClock{t: at}, nil, sink, nil)

	l.Log(context.Background(), EventRestored, "network restored")

	require.Len(t, sink.entries, 1)
	require.Equal(t, Entry{Time: at, Event: EventRestored, Message: "network restored"}, sink.entries[0])
	require.Equal(t, "[2026-01-02 03:04:05] network restored", sink.entries[0].Line())
}

func TestEventLog_FileAndSinkShareTimestamp(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := &recordingSink{}
	l := NewEventLogWriter(zapcore.AddSync(&buf), &tickingClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}, nil, sink)

	l.Log(context.Background(), EventDisconnected, "network disconnected")
	l.Log(context.Background(), EventLoginSucceeded, "portal login succeeded")

	require.Len(t, sink.entries, 2)
	require.Equal(t, sink.entries[0].Line()+"\n"+sink.entries[1].Line()+"\n", buf.String())
	require.Equal(t, "[2026-01-02 03:04:07] portal login succeeded", sink.entries[1].Line())
}

func TestEventLog_SinkFailureIsDiagnosticOnly(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	var buf bytes.Buffer
	sink := &recordingSink{err: errors.New("disk full")}
	l := NewEventLogWriter(zapcore.AddSync(&buf), nil, zap.New(core).Sugar(), sink)

	l.Log(context.Background(), EventStopped, "portal-keeper stopped")

	require.Contains(t, buf.String(), "portal-keeper stopped")
	require.Equal(t, 1, logs.FilterMessage("event_sink_record_failed").Len())
}

func TestNewEventLog_AppendsToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "campus.log")
	require.NoError(t, os.WriteFile(path, []byte("[2025-12-31 23:59:59] earlier line\n"), 0o644))

	l, err := NewEventLog(NewEventLogParams{
		Cfg:    config.Config{LogFile: path},
		Logger: zap.NewNop().Sugar(),
	})
	require.NoError(t, err)

	l.Log(context.Background(), EventStarted, "portal-keeper started")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "[2025-12-31 23:59:59] earlier line", lines[0])
	require.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] portal-keeper started$`, lines[1])
}
