package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"portal-keeper/config"
	"portal-keeper/internal/logs"
	"portal-keeper/internal/portal"
	"portal-keeper/internal/probe"
	"portal-keeper/internal/retry"
)

var ErrAbnormalExit = errors.New("monitor exited abnormally")

type Prober interface {
	Check(ctx context.Context, s portal.Session) probe.Result
}

type Authenticator interface {
	Attempt(ctx context.Context, s portal.Session) error
}

type EventLogger interface {
	Log(ctx context.Context, ev logs.Event, msg string)
}

type State int

const (
	StateIdle State = iota
	StateProbing
	StateConnected
	StateDisconnected
	StateAuthenticating
	StateLoginSucceeded
	StateLoginFailed
	StateRetryExhausted
	StateShuttingDown
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateProbing:        "probing",
	StateConnected:      "connected",
	StateDisconnected:   "disconnected",
	StateAuthenticating: "authenticating",
	StateLoginSucceeded: "login_succeeded",
	StateLoginFailed:    "login_failed",
	StateRetryExhausted: "retry_exhausted",
	StateShuttingDown:   "shutting_down",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is the result of one tick.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeConnected
	OutcomeLoginSucceeded
	OutcomeLoginFailed
	OutcomeRetryExhausted
	// OutcomeCanceled: the tick was interrupted by cancellation and recorded nothing.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConnected:
		return "connected"
	case OutcomeLoginSucceeded:
		return "login_succeeded"
	case OutcomeLoginFailed:
		return "login_failed"
	case OutcomeRetryExhausted:
		return "retry_exhausted"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// failing reports whether the outcome belongs to a disconnect episode that is still open.
func (o Outcome) failing() bool {
	return o == OutcomeLoginFailed || o == OutcomeRetryExhausted
}

// Monitor owns the portal session and the retry counter. All methods except Close are meant
// to be called from a single goroutine.
type Monitor struct {
	interval time.Duration

	factory portal.Factory
	probe   Prober
	auth    Authenticator
	policy  *retry.Policy
	events  EventLogger
	logger  *zap.SugaredLogger
	clock   Clock

	mu      sync.Mutex
	session portal.Session
	state   State
	last    Outcome

	// closed is set by Close; later event lines from an in-flight tick are dropped.
	closed bool

	// eventMu orders event lines against the shutdown line.
	eventMu sync.Mutex

	closeOnce sync.Once
}

type Params struct {
	fx.In

	Config  config.Config
	Factory portal.Factory
	Probe   Prober
	Auth    Authenticator
	Events  EventLogger
	Logger  *zap.SugaredLogger
	Clock   Clock `optional:"true"`
}

func New(p Params) *Monitor {
	clock := p.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Monitor{
		interval: p.Config.Monitor.Interval,
		factory:  p.Factory,
		probe:    p.Probe,
		auth:     p.Auth,
		policy:   retry.NewPolicy(p.Config.Monitor.MaxRetries),
		events:   p.Events,
		logger:   logger,
		clock:    clock,
	}
}

// Start logs the service start and creates the portal session. A failure here is fatal: the
// caller must not enter Run.
func (m *Monitor) Start(ctx context.Context) error {
	m.event(ctx, logs.EventStarted, "portal-keeper started")

	s, err := m.factory.NewSession(ctx)
	if err != nil {
		m.event(ctx, logs.EventFatal, fmt.Sprintf("fatal: cannot create portal session: %v", err))
		return fmt.Errorf("create portal session: %w", err)
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	return nil
}

// Run ticks until ctx is canceled. A panic inside a tick is recovered and returned wrapped in
// ErrAbnormalExit; cancellation returns nil.
func (m *Monitor) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("monitor_panic", "panic", r, "state", m.State())
			err = fmt.Errorf("%w: %v", ErrAbnormalExit, r)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		m.Tick(ctx)
		if err := m.clock.Sleep(ctx, m.interval); err != nil {
			return nil
		}
	}
}

// Tick runs one probe and, when disconnected, one login attempt.
func (m *Monitor) Tick(ctx context.Context) Outcome {
	start := m.clock.Now()
	outcome := m.tick(ctx)
	if outcome != OutcomeCanceled {
		m.last = outcome
	}
	m.logger.Debugw("monitor_tick",
		"outcome", outcome,
		"retry_count", m.policy.Count(),
		"elapsed", m.clock.Now().Sub(start),
	)
	return outcome
}

func (m *Monitor) tick(ctx context.Context) Outcome {
	m.setState(StateProbing)
	res := m.check(ctx)
	if ctx.Err() != nil {
		return OutcomeCanceled
	}

	if res.State == probe.Connected {
		m.setState(StateConnected)
		if m.last.failing() {
			m.event(ctx, logs.EventRestored, "network restored")
		}
		m.policy.Reset()
		return OutcomeConnected
	}

	m.setState(StateDisconnected)
	if m.last.failing() {
		m.logger.Debugw("probe_still_disconnected", "err", res.Err)
	} else {
		m.event(ctx, logs.EventDisconnected,
			fmt.Sprintf("network disconnected (%s), attempting portal login", causeOf(res.Err)))
	}

	m.setState(StateAuthenticating)
	err := m.login(ctx)
	if ctx.Err() != nil {
		return OutcomeCanceled
	}

	if err == nil {
		m.setState(StateLoginSucceeded)
		m.policy.OnSuccess()
		m.event(ctx, logs.EventLoginSucceeded, "portal login succeeded")
		return OutcomeLoginSucceeded
	}

	m.setState(StateLoginFailed)
	n := m.policy.OnFailure()
	m.event(ctx, logs.EventLoginFailed,
		fmt.Sprintf("portal login failed (attempt %d/%d): %v", n, m.policy.Max(), err))

	if !m.policy.Exhausted() {
		return OutcomeLoginFailed
	}

	m.setState(StateRetryExhausted)
	m.event(ctx, logs.EventRetryExhausted, "max retries reached, waiting for next check")
	m.policy.Reset()
	return OutcomeRetryExhausted
}

func (m *Monitor) check(ctx context.Context) probe.Result {
	s, err := m.ensureSession(ctx)
	if err != nil {
		return probe.Result{State: probe.Disconnected, Err: err}
	}
	res := m.probe.Check(ctx, s)
	if portal.IsSessionError(res.Err) && ctx.Err() == nil {
		m.discardSession(ctx, s, res.Err)
	}
	return res
}

func (m *Monitor) login(ctx context.Context) error {
	s, err := m.ensureSession(ctx)
	if err != nil {
		return err
	}
	err = m.auth.Attempt(ctx, s)
	if portal.IsSessionError(err) && ctx.Err() == nil {
		m.discardSession(ctx, s, err)
	}
	return err
}

// ensureSession returns the live session, creating a replacement when the previous one was
// discarded.
func (m *Monitor) ensureSession(ctx context.Context) (portal.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	s, closed := m.session, m.closed
	m.mu.Unlock()
	if s != nil {
		return s, nil
	}
	if closed {
		return nil, &portal.Error{Kind: portal.KindSession, Op: "recreate session", Err: portal.ErrSessionClosed}
	}

	s, err := m.factory.NewSession(ctx)
	if err != nil {
		m.logger.Warnw("portal_session_recreate_failed", "err", err)
		return nil, &portal.Error{Kind: portal.KindSession, Op: "recreate session", Err: err}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = s.Close()
		return nil, &portal.Error{Kind: portal.KindSession, Op: "recreate session", Err: portal.ErrSessionClosed}
	}
	m.session = s
	m.mu.Unlock()
	m.event(ctx, logs.EventSessionRenewed, "portal session recreated")
	return s, nil
}

func (m *Monitor) discardSession(ctx context.Context, s portal.Session, cause error) {
	m.mu.Lock()
	if m.session == s {
		m.session = nil
	}
	m.mu.Unlock()

	if err := s.Close(); err != nil {
		m.logger.Warnw("portal_session_close_failed", "session_id", s.ID(), "err", err)
	}
	m.event(ctx, logs.EventSessionLost, fmt.Sprintf("portal session unusable, recreating: %v", cause))
}

// Close tears the portal session down and writes the shutdown line. cause is nil for an
// orderly stop. Only the first call has any effect.
func (m *Monitor) Close(ctx context.Context, cause error) {
	m.closeOnce.Do(func() {
		m.setState(StateShuttingDown)

		m.mu.Lock()
		s := m.session
		m.session = nil
		m.closed = true
		m.mu.Unlock()

		if s != nil {
			if err := s.Close(); err != nil {
				m.logger.Warnw("portal_session_close_failed", "session_id", s.ID(), "err", err)
			}
		}

		m.eventMu.Lock()
		defer m.eventMu.Unlock()
		if cause != nil {
			m.events.Log(ctx, logs.EventAbnormalExit, fmt.Sprintf("portal-keeper exited abnormally: %v", cause))
			return
		}
		m.events.Log(ctx, logs.EventStopped, "portal-keeper stopped")
	})
}

// event writes one event line unless the monitor is already closed.
func (m *Monitor) event(ctx context.Context, ev logs.Event, msg string) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.logger.Debugw("event_after_close_dropped", "event", ev, "msg", msg)
		return
	}
	m.events.Log(ctx, ev, msg)
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RetryCount is the number of consecutive failed logins in the current episode.
func (m *Monitor) RetryCount() int {
	return m.policy.Count()
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s {
		m.logger.Debugw("monitor_state", "from", prev, "to", s)
	}
}

func causeOf(err error) string {
	if err == nil {
		return "logout indicator not present"
	}
	return err.Error()
}
