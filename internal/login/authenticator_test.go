package login

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"portal-keeper/config"
	"portal-keeper/internal/portal"
	"portal-keeper/internal/portal/portaltest"
)

func testConfig(confirm bool) config.Config {
	return config.Config{
		Portal: config.PortalConfig{
			LoginURL:        "https://portal.example.test/login",
			ProbeURL:        "http://www.example.test/",
			Username:        "alice",
			Password:        "s3cret",
			UsernameField:   "username",
			PasswordField:   "password",
			SubmitButton:    "login-account",
			LogoutIndicator: "logout",
			ConfirmLogin:    confirm,
			DomainField:     "domain",
		},
		Monitor: config.MonitorConfig{SettleTimeout: 10 * time.Second},
	}
}

func TestAttempt_Success(t *testing.T) {
	t.Parallel()

	s := portaltest.NewSession("s1")

	err := New(testConfig(true), zap.NewNop().Sugar()).Attempt(context.Background(), s)

	require.NoError(t, err)
	require.Equal(t, []string{
		"navigate https://portal.example.test/login",
		"wait username 10s",
		"fill username=alice",
		"fill password=s3cret",
		"click login-account",
		"wait logout 10s",
	}, s.CallLog())
}

func TestAttempt_NoConfirmation(t *testing.T) {
	t.Parallel()

	s := portaltest.NewSession("s1")
	s.WaitErr["logout"] = portal.ErrElementNotFound

	err := New(testConfig(false), zap.NewNop().Sugar()).Attempt(context.Background(), s)

	require.NoError(t, err)
	require.NotContains(t, s.CallLog(), "wait logout 10s")
}

func TestAttempt_StepFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	cases := []struct {
		name     string
		setup    func(s *portaltest.Session)
		wantOp   string
		lastCall string
	}{
		{
			name:     "navigation",
			setup:    func(s *portaltest.Session) { s.NavigateErr = boom },
			wantOp:   "open login page",
			lastCall: "navigate https://portal.example.test/login",
		},
		{
			name:     "form never rendered",
			setup:    func(s *portaltest.Session) { s.WaitErr["username"] = portal.ErrElementNotFound },
			wantOp:   "wait for login form",
			lastCall: "wait username 10s",
		},
		{
			name:     "password field",
			setup:    func(s *portaltest.Session) { s.FillErr["password"] = boom },
			wantOp:   "fill #password",
			lastCall: "fill password=s3cret",
		},
		{
			name:     "submit",
			setup:    func(s *portaltest.Session) { s.ClickErr["login-account"] = boom },
			wantOp:   "click #login-account",
			lastCall: "click login-account",
		},
		{
			name:     "rejected credentials",
			setup:    func(s *portaltest.Session) { s.WaitErr["logout"] = fmt.Errorf("wait for #logout: %w", portal.ErrElementNotFound) },
			wantOp:   "login not confirmed",
			lastCall: "wait logout 10s",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := portaltest.NewSession("s1")
			tc.setup(s)

			err := New(testConfig(true), zap.NewNop().Sugar()).Attempt(context.Background(), s)

			require.Error(t, err)
			require.Equal(t, portal.KindLogin, portal.KindOf(err))

			var pe *portal.Error
			require.ErrorAs(t, err, &pe)
			require.Equal(t, tc.wantOp, pe.Op)

			calls := s.CallLog()
			require.Equal(t, tc.lastCall, calls[len(calls)-1], "no step runs after a failure")
		})
	}
}

func TestAttempt_DeadSession(t *testing.T) {
	t.Parallel()

	s := portaltest.NewSession("s1")
	s.FillErr["username"] = &portal.Error{Kind: portal.KindSession, Op: "fill", Err: portal.ErrSessionClosed}

	err := New(testConfig(true), zap.NewNop().Sugar()).Attempt(context.Background(), s)

	require.True(t, portal.IsSessionError(err))
}

func TestAttempt_SelectsDomain(t *testing.T) {
	t.Parallel()

	cfg := testConfig(false)
	cfg.Portal.Domain = "@cmcc"
	s := portaltest.NewSession("s1")

	err := New(cfg, zap.NewNop().Sugar()).Attempt(context.Background(), s)

	require.NoError(t, err)
	require.Equal(t, []string{
		"navigate https://portal.example.test/login",
		"wait username 10s",
		"fill username=alice",
		"fill password=s3cret",
		"select domain=@cmcc",
		"click login-account",
	}, s.CallLog())
}

func TestAttempt_DomainSelectFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(true)
	cfg.Portal.Domain = "@cmcc"
	s := portaltest.NewSession("s1")
	s.SelectErr["domain"] = portal.ErrElementNotFound

	err := New(cfg, zap.NewNop().Sugar()).Attempt(context.Background(), s)

	var pe *portal.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, portal.KindLogin, pe.Kind)
	require.Equal(t, "select #domain", pe.Op)
	require.NotContains(t, s.CallLog(), "click login-account")
}

func TestAttempt_DiscoversLoginURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig(false)
	cfg.Portal.DiscoverLoginURL = true
	s := portaltest.NewSession("s1")
	s.Pages["http://www.example.test/"] = `<html><body>
<form action="https://elsewhere.example.test/track"></form>
<form method="post" action="https://portal.example.test/srun_portal_pc?ac_id=8&amp;theme=pro"></form>
</body></html>`

	core, logs := observer.New(zap.DebugLevel)
	err := New(cfg, zap.New(core).Sugar()).Attempt(context.Background(), s)

	require.NoError(t, err)
	calls := s.CallLog()
	require.Equal(t, []string{
		"navigate http://www.example.test/",
		"html",
		"navigate https://portal.example.test/srun_portal_pc?ac_id=8&theme=pro",
	}, calls[:3])
	require.Equal(t, 1, logs.FilterMessage("login_url_discovered").Len())
}

func TestAttempt_DiscoveryFallsBackToLoginURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig(false)
	cfg.Portal.DiscoverLoginURL = true
	s := portaltest.NewSession("s1")
	s.Pages["http://www.example.test/"] = `<html><body>no portal here</body></html>`

	core, logs := observer.New(zap.DebugLevel)
	err := New(cfg, zap.New(core).Sugar()).Attempt(context.Background(), s)

	require.NoError(t, err)
	calls := s.CallLog()
	reads := 0
	for _, c := range calls {
		if c == "html" {
			reads++
		}
	}
	require.Equal(t, discoverAttempts, reads)
	require.Contains(t, calls, "navigate https://portal.example.test/login")
	require.Equal(t, 1, logs.FilterMessage("login_url_not_found").Len())
}

func TestAttempt_DiscoveryUnreadablePageRetries(t *testing.T) {
	t.Parallel()

	cfg := testConfig(false)
	cfg.Portal.DiscoverLoginURL = true
	s := portaltest.NewSession("s1")
	s.HTMLErr = errors.New("navigation interrupted")

	err := New(cfg, zap.NewNop().Sugar()).Attempt(context.Background(), s)

	require.NoError(t, err)
	require.Contains(t, s.CallLog(), "navigate https://portal.example.test/login")
}

func TestAttempt_DiscoveryDeadSession(t *testing.T) {
	t.Parallel()

	cfg := testConfig(false)
	cfg.Portal.DiscoverLoginURL = true
	s := portaltest.NewSession("s1")
	s.HTMLErr = &portal.Error{Kind: portal.KindSession, Op: "read page", Err: portal.ErrSessionClosed}

	err := New(cfg, zap.NewNop().Sugar()).Attempt(context.Background(), s)

	require.True(t, portal.IsSessionError(err))
	require.Equal(t, []string{"navigate http://www.example.test/", "html"}, s.CallLog())
}
