package celcat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultTimeout bounds every individual portal interaction (navigation,
// login submission, week render). The portal session is a shared,
// non-thread-safe resource: all requests go through one browser tab,
// sequentially.
const DefaultTimeout = 30 * time.Second

// SessionOptions configures a portal session.
type SessionOptions struct {
	BaseURL   string
	Username  string
	Password  string
	StudentID string

	// Timeout bounds each portal interaction. Zero means DefaultTimeout.
	Timeout time.Duration

	// DebugDir, when non-empty, receives page-source snapshots on auth and
	// harvest failures.
	DebugDir string

	// Headless controls whether the browser runs without a visible window.
	Headless bool

	Logger *slog.Logger
}

// Session holds one authenticated browser session against the timetable
// portal. Its lifecycle is owned by the caller: Start, Login, any number of
// FetchWeekPage calls, Close.
type Session struct {
	opts   SessionOptions
	logger *slog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewSession creates an unstarted session.
func NewSession(opts SessionOptions) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{opts: opts, logger: logger}
}

// Start launches the headless browser. The session inherits cancellation
// from ctx: cancelling it tears the browser down.
func (s *Session) Start(ctx context.Context) error {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if !s.opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so launch failures surface
	// here rather than inside Login.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return &AuthError{Reason: AuthPortalUnreachable, Err: fmt.Errorf("start browser: %w", err)}
	}

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	return nil
}

// Close tears down the browser. Safe to call multiple times.
func (s *Session) Close() {
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
}

// Login submits the credentials to the portal's login form. The portal
// leaves failed logins on the /login page, so "still on the login URL after
// submitting" is the invalid-credentials signal.
func (s *Session) Login(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.browserCtx == nil {
		return &AuthError{Reason: AuthUnexpectedResponse, Err: errors.New("session not started")}
	}

	loginURL := s.opts.BaseURL + "/login"
	s.logger.Info("navigating to login page", "url", loginURL)

	if err := s.run(
		chromedp.Navigate(loginURL),
		chromedp.WaitReady("body"),
	); err != nil {
		return &AuthError{Reason: AuthPortalUnreachable, Err: err}
	}

	if err := s.run(chromedp.WaitVisible("form", chromedp.ByQuery)); err != nil {
		s.snapshot("login_form_missing")
		return &AuthError{Reason: AuthUnexpectedResponse, Err: fmt.Errorf("login form: %w", err)}
	}

	var currentURL string
	if err := s.run(
		chromedp.SendKeys(`input[type='text'], input[type='email']`, s.opts.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[type='password']`, s.opts.Password, chromedp.ByQuery),
		chromedp.Click(`button[type='submit'], input[type='submit']`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&currentURL),
	); err != nil {
		s.snapshot("login_submit_failed")
		return &AuthError{Reason: AuthUnexpectedResponse, Err: fmt.Errorf("submit login: %w", err)}
	}

	if strings.Contains(strings.ToLower(currentURL), "login") {
		s.snapshot("login_rejected")
		return &AuthError{Reason: AuthInvalidCredentials, Err: fmt.Errorf("still on login page: %s", currentURL)}
	}

	s.logger.Info("logged in to portal", "url", currentURL)
	return nil
}

// FetchWeekPage navigates to the agendaWeek view starting at weekStart and
// returns the rendered page source once the calendar element is present.
func (s *Session) FetchWeekPage(ctx context.Context, weekStart time.Time, weekOffset int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.browserCtx == nil {
		return "", &FetchError{Reason: FetchSessionExpired, WeekOffset: weekOffset, Err: errors.New("session not started")}
	}

	weekURL := fmt.Sprintf("%s/cal?vt=agendaWeek&dt=%s&et=student&fid0=%s",
		s.opts.BaseURL, weekStart.Format("2006-01-02"), url.QueryEscape(s.opts.StudentID))
	s.logger.Debug("fetching week view", "offset", weekOffset, "url", weekURL)

	var currentURL string
	if err := s.run(
		chromedp.Navigate(weekURL),
		chromedp.WaitReady("body"),
		chromedp.Location(&currentURL),
	); err != nil {
		return "", &FetchError{Reason: FetchCalendarNotFound, WeekOffset: weekOffset, Err: err}
	}

	if strings.Contains(strings.ToLower(currentURL), "login") {
		return "", &FetchError{Reason: FetchSessionExpired, WeekOffset: weekOffset, Err: fmt.Errorf("redirected to %s", currentURL)}
	}

	if err := s.run(chromedp.WaitVisible("#calendar", chromedp.ByID)); err != nil {
		s.snapshot(fmt.Sprintf("calendar_missing_week%+d", weekOffset))
		return "", &FetchError{Reason: FetchCalendarNotFound, WeekOffset: weekOffset, Err: err}
	}

	var html string
	if err := s.run(chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", &FetchError{Reason: FetchParseError, WeekOffset: weekOffset, Err: fmt.Errorf("read page source: %w", err)}
	}
	return html, nil
}

// run executes chromedp actions against the session tab, bounded by the
// session timeout.
func (s *Session) run(actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.browserCtx, s.opts.Timeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// snapshot writes the current page source into the debug directory. Purely
// diagnostic: failures here are logged, never propagated.
func (s *Session) snapshot(prefix string) {
	if s.opts.DebugDir == "" || s.browserCtx == nil {
		return
	}

	var html string
	if err := s.run(chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		s.logger.Debug("could not capture debug snapshot", "prefix", prefix, "error", err)
		return
	}

	if err := os.MkdirAll(s.opts.DebugDir, 0o755); err != nil {
		s.logger.Debug("could not create debug dir", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.html", prefix, time.Now().Format("20060102_150405"))
	path := filepath.Join(s.opts.DebugDir, name)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		s.logger.Debug("could not write debug snapshot", "path", path, "error", err)
		return
	}
	s.logger.Info("saved debug snapshot", "path", path)
}
