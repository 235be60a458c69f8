// Package portaltest provides in-memory portal sessions for tests.
package portaltest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portal-keeper/internal/portal"
)

// Session records every call and fails the ones configured to fail.
type Session struct {
	mu sync.Mutex

	SessionID   string
	NavigateErr error
	WaitErr     map[string]error
	FillErr     map[string]error
	SelectErr   map[string]error
	ClickErr    map[string]error
	HealthErr   error

	// Pages maps a URL to the HTML served after navigating to it. HTMLErr fails every read.
	Pages   map[string]string
	HTMLErr error

	Calls  []string
	Closes int

	current string
	done    chan struct{}
}

func NewSession(id string) *Session {
	return &Session{
		SessionID: id,
		WaitErr:   map[string]error{},
		FillErr:   map[string]error{},
		SelectErr: map[string]error{},
		ClickErr:  map[string]error{},
		Pages:     map[string]string{},
		done:      make(chan struct{}),
	}
}

func (s *Session) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, call)
}

func (s *Session) ID() string { return s.SessionID }

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.record("navigate " + url)
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.mu.Lock()
	s.current = url
	s.mu.Unlock()
	return nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	s.record("html")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.HTMLErr != nil {
		return "", s.HTMLErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Pages[s.current], nil
}

func (s *Session) WaitFor(ctx context.Context, elementID string, timeout time.Duration) error {
	s.record(fmt.Sprintf("wait %s %s", elementID, timeout))
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.WaitErr[elementID]
}

func (s *Session) Fill(ctx context.Context, elementID, value string) error {
	s.record(fmt.Sprintf("fill %s=%s", elementID, value))
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.FillErr[elementID]
}

func (s *Session) Select(ctx context.Context, elementID, value string) error {
	s.record(fmt.Sprintf("select %s=%s", elementID, value))
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.SelectErr[elementID]
}

func (s *Session) Click(ctx context.Context, elementID string) error {
	s.record("click " + elementID)
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.ClickErr[elementID]
}

func (s *Session) Healthy() error { return s.HealthErr }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closes == 0 {
		close(s.done)
	}
	s.Closes++
	return nil
}

// Done is closed by the first Close.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closes
}

func (s *Session) CallLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Calls...)
}

// Factory hands out sessions in order. Errs[i], when non-nil, fails the i-th NewSession call.
type Factory struct {
	mu sync.Mutex

	Errs    []error
	Created []*Session
	calls   int
}

func (f *Factory) NewSession(ctx context.Context) (portal.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	if i < len(f.Errs) && f.Errs[i] != nil {
		return nil, f.Errs[i]
	}

	s := NewSession(fmt.Sprintf("fake-%d", len(f.Created)+1))
	f.Created = append(f.Created, s)
	return s, nil
}

func (f *Factory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
