package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/sources"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// LauncherOptions configures the playwright engine
type LauncherOptions struct {
	Headless bool
	// InstallBrowsers downloads the playwright driver and chromium on start
	InstallBrowsers bool
	// ClickTimeout bounds each play-button click attempt
	ClickTimeout time.Duration
}

// PlaywrightLauncher runs one chromium process per stealth profile and
// gives every session its own browser context.
type PlaywrightLauncher struct {
	opts LauncherOptions
	pw   *playwright.Playwright

	mu       sync.Mutex
	browsers map[string]playwright.Browser
	closed   bool
}

// NewPlaywrightLauncher starts the playwright driver
func NewPlaywrightLauncher(opts LauncherOptions) (*PlaywrightLauncher, error) {
	if opts.ClickTimeout <= 0 {
		opts.ClickTimeout = 2 * time.Second
	}
	if opts.InstallBrowsers {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("install playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &PlaywrightLauncher{
		opts:     opts,
		pw:       pw,
		browsers: make(map[string]playwright.Browser),
	}, nil
}

// Launch opens a new isolated session
func (l *PlaywrightLauncher) Launch(ctx context.Context, stealth sources.Stealth) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	browser, err := l.browserFor(stealth)
	if err != nil {
		return nil, err
	}

	s := &playwrightSession{
		id:           uuid.NewString(),
		stealth:      stealth,
		browser:      browser,
		clickTimeout: l.opts.ClickTimeout,
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	util.Debug("Browser session opened", "session", s.id, "stealth", stealth.ID)
	return s, nil
}

func (l *PlaywrightLauncher) browserFor(stealth sources.Stealth) (playwright.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if b, ok := l.browsers[stealth.ID]; ok && b.IsConnected() {
		return b, nil
	}

	b, err := l.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args:     stealth.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	b.OnDisconnected(func(playwright.Browser) {
		util.Warn("Chromium disconnected", "stealth", stealth.ID)
	})
	l.browsers[stealth.ID] = b
	return b, nil
}

// Close shuts every browser and the driver down
func (l *PlaywrightLauncher) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	browsers := l.browsers
	l.browsers = nil
	l.mu.Unlock()

	var errs []error
	for id, b := range browsers {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser %s: %w", id, err))
		}
	}
	if err := l.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

// popup tracks one page opened by the embed page
type popup struct {
	index int
	page  playwright.Page
	// 0 undecided, 1 attributed, 2 ignored
	state atomic.Int32
}

type playwrightSession struct {
	id           string
	stealth      sources.Stealth
	browser      playwright.Browser
	clickTimeout time.Duration

	mu      sync.Mutex
	bctx    playwright.BrowserContext
	page    playwright.Page
	crashed atomic.Bool
	closed  atomic.Bool
	feed    atomic.Pointer[Feed]
	popups  atomic.Int32
}

func (s *playwrightSession) ID() string        { return s.id }
func (s *playwrightSession) StealthID() string { return s.stealth.ID }

// open creates a fresh browser context with the stealth profile applied
func (s *playwrightSession) open() error {
	opts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(s.stealth.UserAgent()),
		Viewport:          &playwright.Size{Width: s.stealth.Viewport.Width, Height: s.stealth.Viewport.Height},
		JavaScriptEnabled: playwright.Bool(true),
	}
	if s.stealth.Locale != "" {
		opts.Locale = playwright.String(s.stealth.Locale)
	}
	if s.stealth.Timezone != "" {
		opts.TimezoneId = playwright.String(s.stealth.Timezone)
	}

	bctx, err := s.browser.NewContext(opts)
	if err != nil {
		return fmt.Errorf("new browser context: %w", err)
	}
	if s.stealth.InitScript != "" {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(s.stealth.InitScript)}); err != nil {
			_ = bctx.Close()
			return fmt.Errorf("add stealth script: %w", err)
		}
	}
	if err := bctx.Route("**/*", s.route); err != nil {
		_ = bctx.Close()
		return fmt.Errorf("install ad blocker: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return fmt.Errorf("new page: %w", err)
	}

	root := &popup{index: 0, page: page}
	root.state.Store(1)
	page.OnResponse(func(r playwright.Response) { s.record(root, r) })
	page.OnDialog(func(d playwright.Dialog) { _ = d.Dismiss() })
	page.OnCrash(func(playwright.Page) {
		util.Warn("Page crashed", "session", s.id)
		s.crashed.Store(true)
	})
	page.OnPopup(s.adoptPopup)

	s.mu.Lock()
	s.bctx = bctx
	s.page = page
	s.mu.Unlock()
	s.crashed.Store(false)
	return nil
}

// route aborts requests to blocked ad networks
func (s *playwrightSession) route(route playwright.Route) {
	if u, err := url.Parse(route.Request().URL()); err == nil && s.stealth.Blocks(u.Hostname()) {
		_ = route.Abort("blockedbyclient")
		return
	}
	_ = route.Continue()
}

func (s *playwrightSession) adoptPopup(p playwright.Page) {
	tab := &popup{index: int(s.popups.Add(1)), page: p}
	p.OnDialog(func(d playwright.Dialog) { _ = d.Dismiss() })
	p.OnResponse(func(r playwright.Response) { s.record(tab, r) })
	util.Debug("Popup opened", "session", s.id, "tab", tab.index, "url", p.URL())
}

// record turns a response event into an exchange on the current feed
func (s *playwrightSession) record(tab *popup, r playwright.Response) {
	feed := s.feed.Load()
	if feed == nil {
		return
	}
	req := r.Request()

	if tab.index > 0 {
		switch tab.state.Load() {
		case 2:
			return
		case 0:
			if !req.IsNavigationRequest() {
				return
			}
			if !feed.Scope().Attributes(r.URL()) {
				tab.state.Store(2)
				if s.stealth.BlockPopups {
					go func() { _ = tab.page.Close() }()
				}
				util.Debug("Ignoring unrelated popup", "session", s.id, "url", r.URL())
				return
			}
			tab.state.Store(1)
		}
	}

	headers := r.Headers()
	ex := models.Exchange{
		URL:            r.URL(),
		Method:         req.Method(),
		ContentType:    headers["content-type"],
		Status:         r.Status(),
		SizeHint:       -1,
		Tab:            tab.index,
		Navigation:     req.IsNavigationRequest(),
		RequestHeaders: req.Headers(),
		ObservedAt:     time.Now(),
	}
	if n, err := strconv.ParseInt(headers["content-length"], 10, 64); err == nil {
		ex.SizeHint = n
	}
	feed.Push(ex)
}

func (s *playwrightSession) Watch(scope Scope) *Feed {
	f := NewFeed(scope)
	if old := s.feed.Swap(f); old != nil {
		old.Close()
	}
	return f
}

func (s *playwrightSession) currentPage() playwright.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *playwrightSession) Navigate(ctx context.Context, target string, timeout time.Duration) error {
	page := s.currentPage()
	if page == nil {
		return ErrClosed
	}

	type result struct {
		resp playwright.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := page.Goto(target, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		})
		done <- result{resp, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-done:
	}

	if res.err != nil {
		switch {
		case errors.Is(res.err, playwright.ErrTimeout):
			util.Debug("Page load timed out, capturing anyway", "url", target)
			return nil
		case isNetworkFailure(res.err):
			return &NavigationError{URL: target, Err: res.err}
		default:
			return fmt.Errorf("navigate %s: %w", target, res.err)
		}
	}
	if res.resp != nil {
		if status := res.resp.Status(); status < 200 || status > 299 {
			return &NavigationError{URL: target, Status: status}
		}
	}
	return nil
}

// isNetworkFailure reports chromium load errors (DNS, TLS, refused, aborted)
func isNetworkFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "net::ERR_") || strings.Contains(msg, "SSL_ERROR") || strings.Contains(msg, "NS_ERROR_")
}

func (s *playwrightSession) Interact(ctx context.Context, selectors []string) error {
	page := s.currentPage()
	if page == nil {
		return ErrClosed
	}
	clickTimeout := playwright.Float(float64(s.clickTimeout.Milliseconds()))

	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		el, err := page.QuerySelector(sel)
		if err != nil || el == nil {
			continue
		}
		if err := el.Click(playwright.ElementHandleClickOptions{Timeout: clickTimeout}); err == nil {
			util.Debug("Clicked play control", "session", s.id, "selector", sel)
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	vp := s.stealth.Viewport
	return page.Mouse().Click(float64(vp.Width)/2, float64(vp.Height)/2)
}

func (s *playwrightSession) Cookies(_ context.Context, target string) (string, error) {
	s.mu.Lock()
	bctx := s.bctx
	s.mu.Unlock()
	if bctx == nil {
		return "", ErrClosed
	}

	cookies, err := bctx.Cookies(target)
	if err != nil {
		return "", fmt.Errorf("read cookies: %w", err)
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; "), nil
}

// Reset replaces the browser context, which drops cookies, storage, pages
// and any in-flight navigation.
func (s *playwrightSession) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if old := s.feed.Swap(nil); old != nil {
		old.Close()
	}
	s.closeContext()
	s.popups.Store(0)
	return s.open()
}

func (s *playwrightSession) Alive() bool {
	return !s.closed.Load() && !s.crashed.Load() && s.browser.IsConnected()
}

func (s *playwrightSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if f := s.feed.Swap(nil); f != nil {
		f.Close()
	}
	return s.closeContext()
}

func (s *playwrightSession) closeContext() error {
	s.mu.Lock()
	bctx := s.bctx
	s.bctx, s.page = nil, nil
	s.mu.Unlock()
	if bctx == nil {
		return nil
	}
	return bctx.Close()
}
