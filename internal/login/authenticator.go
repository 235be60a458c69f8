package login

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"portal-keeper/config"
	"portal-keeper/internal/portal"
)

// discoverAttempts bounds how often the probe page is re-read; the redirect to the portal is flaky.
const discoverAttempts = 5

var formActionRe = regexp.MustCompile(`(?i)action="(https://[^"\s]+)"`)

// Authenticator submits the portal login form once. It never retries; the monitor counts failures.
type Authenticator struct {
	portal config.PortalConfig
	settle time.Duration
	logger *zap.SugaredLogger
}

func New(cfg config.Config, logger *zap.SugaredLogger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Authenticator{
		portal: cfg.Portal,
		settle: cfg.Monitor.SettleTimeout,
		logger: logger,
	}
}

// Attempt returns nil on success, otherwise a *portal.Error of KindLogin, or KindSession when the
// browser died mid-attempt.
func (a *Authenticator) Attempt(ctx context.Context, s portal.Session) error {
	p := a.portal

	loginURL := p.LoginURL
	if p.DiscoverLoginURL {
		u, err := a.discover(ctx, s)
		if err != nil {
			return fail("discover login page", err)
		}
		loginURL = u
	}

	if err := s.Navigate(ctx, loginURL); err != nil {
		return fail("open login page", err)
	}
	// Portal pages render the form asynchronously.
	if err := s.WaitFor(ctx, p.UsernameField, a.settle); err != nil {
		return fail("wait for login form", err)
	}
	if err := s.Fill(ctx, p.UsernameField, p.Username); err != nil {
		return fail(fmt.Sprintf("fill #%s", p.UsernameField), err)
	}
	if err := s.Fill(ctx, p.PasswordField, p.Password); err != nil {
		return fail(fmt.Sprintf("fill #%s", p.PasswordField), err)
	}
	if p.Domain != "" {
		if err := s.Select(ctx, p.DomainField, p.Domain); err != nil {
			return fail(fmt.Sprintf("select #%s", p.DomainField), err)
		}
	}
	if err := s.Click(ctx, p.SubmitButton); err != nil {
		return fail(fmt.Sprintf("click #%s", p.SubmitButton), err)
	}

	if !p.ConfirmLogin {
		return nil
	}
	if err := s.WaitFor(ctx, p.LogoutIndicator, a.settle); err != nil {
		return fail("login not confirmed", err)
	}
	return nil
}

// discover returns the login form action found on the probe page, or LoginURL when no attempt
// yields one. Only a dead session or cancellation is an error.
func (a *Authenticator) discover(ctx context.Context, s portal.Session) (string, error) {
	for i := 1; i <= discoverAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page, err := a.readProbePage(ctx, s)
		if portal.IsSessionError(err) {
			return "", err
		}
		if err != nil {
			a.logger.Debugw("login_url_discovery_failed", "attempt", i, "err", err)
			continue
		}
		if u, ok := a.formAction(page); ok {
			a.logger.Infow("login_url_discovered", "url", u, "attempt", i)
			return u, nil
		}
	}

	a.logger.Warnw("login_url_not_found", "fallback", a.portal.LoginURL)
	return a.portal.LoginURL, nil
}

func (a *Authenticator) readProbePage(ctx context.Context, s portal.Session) (string, error) {
	if err := s.Navigate(ctx, a.portal.ProbeURL); err != nil {
		return "", err
	}
	return s.HTML(ctx)
}

// formAction picks the first https form action served by the portal host.
func (a *Authenticator) formAction(page string) (string, bool) {
	base, err := url.Parse(a.portal.LoginURL)
	if err != nil {
		return "", false
	}
	for _, m := range formActionRe.FindAllStringSubmatch(page, -1) {
		raw := html.UnescapeString(m[1])
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() != base.Hostname() {
			continue
		}
		return raw, true
	}
	return "", false
}

func fail(op string, err error) error {
	return portal.Classify(portal.KindLogin, op, err)
}
