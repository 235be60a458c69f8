package probe

import (
	"context"
	"fmt"
	"time"

	"portal-keeper/config"
	"portal-keeper/internal/portal"
)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Result is derived fresh on every check. Err carries the cause of a Disconnected state and is
// nil for Connected.
type Result struct {
	State State
	Err   error
}

// Probe infers the authentication state from the portal landing page: the session counts as
// connected only while the logout indicator is present.
//
// It fails closed. A logged-out page, a page that did not load and a renamed indicator all read
// as Disconnected; the three are not told apart.
type Probe struct {
	url       string
	indicator string
	timeout   time.Duration
}

func New(cfg config.Config) *Probe {
	return &Probe{
		url:       cfg.Portal.ProbeURL,
		indicator: cfg.Portal.LogoutIndicator,
		timeout:   cfg.Monitor.Timeout,
	}
}

func (p *Probe) Check(ctx context.Context, s portal.Session) Result {
	if err := s.Navigate(ctx, p.url); err != nil {
		return disconnected("open landing page", err)
	}
	if err := s.WaitFor(ctx, p.indicator, p.timeout); err != nil {
		return disconnected(fmt.Sprintf("find #%s", p.indicator), err)
	}
	return Result{State: Connected}
}

func disconnected(op string, err error) Result {
	return Result{State: Disconnected, Err: portal.Classify(portal.KindProbe, op, err)}
}
