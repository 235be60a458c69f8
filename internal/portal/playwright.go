package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"portal-keeper/config"
	"portal-keeper/internal/pkg/chromedevtools"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

// PlaywrightFactory starts the playwright driver lazily on the first NewSession call, so a
// missing browser surfaces as a session-creation failure rather than a wiring error.
type PlaywrightFactory struct {
	cfg       config.BrowserConfig
	opTimeout time.Duration
	logger    *zap.SugaredLogger

	mu sync.Mutex
	pw *playwright.Playwright
}

func NewPlaywrightFactory(cfg config.Config, logger *zap.SugaredLogger) *PlaywrightFactory {
	return &PlaywrightFactory{
		cfg:       cfg.Browser,
		opTimeout: cfg.Monitor.Timeout,
		logger:    logger,
	}
}

func (f *PlaywrightFactory) start() (*playwright.Playwright, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pw != nil {
		return f.pw, nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if f.cfg.Install && f.cfg.CDPURL == "" {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	f.pw = pw
	return pw, nil
}

func (f *PlaywrightFactory) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := f.start()
	if err != nil {
		return nil, err
	}

	browser, err := f.browser(ctx, pw)
	if err != nil {
		return nil, err
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: viewportWidth, Height: viewportHeight},
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(millis(f.opTimeout))

	s := &PlaywrightSession{
		id:        uuid.NewString(),
		browser:   browser,
		context:   bctx,
		page:      page,
		opTimeout: f.opTimeout,
	}
	f.logger.Infow("portal_session_created",
		"session_id", s.id,
		"cdp", f.cfg.CDPURL != "",
		"headless", f.cfg.Headless,
	)
	return s, nil
}

func (f *PlaywrightFactory) browser(ctx context.Context, pw *playwright.Playwright) (playwright.Browser, error) {
	if f.cfg.CDPURL == "" {
		headless := f.cfg.Headless
		b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: &headless,
			Args:     f.cfg.Args,
		})
		if err != nil {
			return nil, fmt.Errorf("launch chromium: %w", err)
		}
		return b, nil
	}

	v, err := chromedevtools.Discover(ctx, f.cfg.CDPURL, f.opTimeout)
	if err != nil {
		return nil, err
	}
	timeout := millis(f.opTimeout)
	b, err := pw.Chromium.ConnectOverCDP(v.WebSocketDebuggerURL, playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: &timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect over cdp %s: %w", v.WebSocketDebuggerURL, err)
	}
	return b, nil
}

// Close stops the playwright driver. Sessions must be closed first.
func (f *PlaywrightFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pw == nil {
		return nil
	}
	err := f.pw.Stop()
	f.pw = nil
	if err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}

type PlaywrightSession struct {
	id        string
	browser   playwright.Browser
	context   playwright.BrowserContext
	page      playwright.Page
	opTimeout time.Duration

	closeOnce sync.Once
	closed    atomic.Bool
}

func (s *PlaywrightSession) ID() string { return s.id }

func (s *PlaywrightSession) Navigate(ctx context.Context, url string) error {
	timeout, err := s.timeout(ctx, s.opTimeout)
	if err != nil {
		return err
	}
	waitUntil := playwright.WaitUntilState("domcontentloaded")
	_, err = s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   &timeout,
	})
	return s.wrap("navigate "+url, err)
}

func (s *PlaywrightSession) HTML(ctx context.Context) (string, error) {
	if _, err := s.timeout(ctx, s.opTimeout); err != nil {
		return "", err
	}
	html, err := s.page.Content()
	if err != nil {
		return "", s.wrap("read page", err)
	}
	return html, nil
}

func (s *PlaywrightSession) WaitFor(ctx context.Context, elementID string, d time.Duration) error {
	timeout, err := s.timeout(ctx, d)
	if err != nil {
		return err
	}
	state := playwright.WaitForSelectorState("attached")
	_, err = s.page.WaitForSelector(selectorFor(elementID), playwright.PageWaitForSelectorOptions{
		State:   &state,
		Timeout: &timeout,
	})
	if err != nil && errors.Is(err, playwright.ErrTimeout) && s.Healthy() == nil {
		return fmt.Errorf("wait for #%s: %w", elementID, ErrElementNotFound)
	}
	return s.wrap("wait for #"+elementID, err)
}

func (s *PlaywrightSession) Fill(ctx context.Context, elementID, value string) error {
	timeout, err := s.timeout(ctx, s.opTimeout)
	if err != nil {
		return err
	}
	err = s.page.Fill(selectorFor(elementID), value, playwright.PageFillOptions{Timeout: &timeout})
	return s.wrap("fill #"+elementID, err)
}

func (s *PlaywrightSession) Select(ctx context.Context, elementID, value string) error {
	timeout, err := s.timeout(ctx, s.opTimeout)
	if err != nil {
		return err
	}
	_, err = s.page.SelectOption(selectorFor(elementID), playwright.SelectOptionValues{
		Values: &[]string{value},
	}, playwright.PageSelectOptionOptions{Timeout: &timeout})
	return s.wrap("select #"+elementID, err)
}

func (s *PlaywrightSession) Click(ctx context.Context, elementID string) error {
	timeout, err := s.timeout(ctx, s.opTimeout)
	if err != nil {
		return err
	}
	err = s.page.Click(selectorFor(elementID), playwright.PageClickOptions{Timeout: &timeout})
	return s.wrap("click #"+elementID, err)
}

func (s *PlaywrightSession) Healthy() error {
	switch {
	case s.closed.Load():
		return ErrSessionClosed
	case s.page == nil || s.page.IsClosed():
		return fmt.Errorf("page closed: %w", ErrSessionClosed)
	case s.browser != nil && !s.browser.IsConnected():
		return fmt.Errorf("browser disconnected: %w", ErrSessionClosed)
	}
	return nil
}

func (s *PlaywrightSession) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := s.page.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.context.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("close portal session %s: %w", s.id, errors.Join(errs...))
	}
	return nil
}

// wrap marks err as a session failure when the browser is gone; otherwise it only adds op.
func (s *PlaywrightSession) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if herr := s.Healthy(); herr != nil || errors.Is(err, playwright.ErrTargetClosed) {
		return &Error{Kind: KindSession, Op: op, Err: errors.Join(err, herr)}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// timeout caps d by the context deadline and returns it in playwright's milliseconds.
func (s *PlaywrightSession) timeout(ctx context.Context, d time.Duration) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.closed.Load() {
		return 0, &Error{Kind: KindSession, Op: "use", Err: ErrSessionClosed}
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d <= 0 {
		return 0, context.DeadlineExceeded
	}
	return millis(d), nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

var selectorEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func selectorFor(elementID string) string {
	return `[id="` + selectorEscaper.Replace(elementID) + `"]`
}
