package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/entrhq/askweb/pkg/config"
	"github.com/entrhq/askweb/pkg/logging"
	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"
)

// Setup stages reported in SessionInitError.Stage
const (
	stageLaunch   = "launch"
	stagePage     = "page"
	stageNavigate = "navigate"
)

// Manager owns the single Session of the process. It creates the session
// lazily, remediates it on behalf of the RecoveryMachine, and tears it down
// after a period of inactivity or on Shutdown.
type Manager struct {
	cfg *config.Config
	log *logging.Logger

	mu        sync.Mutex
	session   Session
	closed    bool
	busy      int
	idleTimer *time.Timer
	idleGen   uint64

	pwMu sync.Mutex
	pw   *playwright.Playwright

	// Replaced in tests
	launch   func() (playwright.Browser, error)
	navigate func(ctx context.Context, page playwright.Page) (string, error)
}

// NewManager creates a manager that navigates new pages with nav.
// No browser is launched until the first EnsureSession.
func NewManager(cfg *config.Config, nav *Navigator, log *logging.Logger) *Manager {
	m := &Manager{cfg: cfg, log: log}
	m.launch = m.launchChromium
	if nav != nil {
		m.navigate = nav.Navigate
	}
	return m
}

// EnsureSession returns the ready session, creating it if needed. Any
// failure is a *SessionInitError.
func (m *Manager) EnsureSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.session.ready {
		s := m.session
		m.mu.Unlock()
		return &s, nil
	}
	m.mu.Unlock()

	return m.initialize(ctx)
}

// initialize launches a browser, opens and prepares a page, and navigates
// it to the target. On failure the handles created so far stay in the
// session for recovery to close.
func (m *Manager) initialize(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, &SessionInitError{Err: ErrManagerClosed}
	}
	if m.session.settingUp {
		m.mu.Unlock()
		return nil, &SessionInitError{Err: ErrSetupInProgress}
	}
	m.session.settingUp = true
	stale := m.detachLocked()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.session.settingUp = false
		m.mu.Unlock()
	}()

	closeHandles(stale, m.log)

	m.log.Infof("starting browser session (headless=%t)", m.cfg.Browser.Headless)

	browser, err := m.launch()
	if err != nil {
		return nil, &SessionInitError{Stage: stageLaunch, Err: err}
	}
	if err := m.attach(browser, nil); err != nil {
		return nil, &SessionInitError{Stage: stageLaunch, Err: err}
	}

	page, err := m.openPage(browser)
	if err != nil {
		return nil, &SessionInitError{Stage: stagePage, Err: err}
	}
	if err := m.attach(browser, page); err != nil {
		return nil, &SessionInitError{Stage: stagePage, Err: err}
	}

	selector, err := m.navigate(ctx, page)
	if err != nil {
		return nil, &SessionInitError{Stage: stageNavigate, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Selector = selector
	m.session.ready = true
	m.session.CreatedAt = time.Now()
	s := m.session
	return &s, nil
}

// attach stores freshly created handles. After Shutdown the handles are
// closed instead.
func (m *Manager) attach(browser playwright.Browser, page playwright.Page) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		closeHandles(Session{Browser: browser, Page: page}, m.log)
		return ErrManagerClosed
	}
	m.session.Browser = browser
	m.session.Page = page
	m.mu.Unlock()
	return nil
}

// openPage creates a page with the configured identity and evasions.
func (m *Manager) openPage(browser playwright.Browser) (playwright.Page, error) {
	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(m.cfg.Browser.UserAgent),
		Viewport: &playwright.Size{
			Width:  m.cfg.Browser.ViewportWidth,
			Height: m.cfg.Browser.ViewportHeight,
		},
		Locale: playwright.String("en-US"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := InjectEvasions(page); err != nil {
		_ = page.Close()
		return nil, err
	}

	page.SetDefaultNavigationTimeout(config.Millis(m.cfg.Timeouts.Navigation))
	return page, nil
}

func (m *Manager) launchChromium() (playwright.Browser, error) {
	pw, err := m.driver()
	if err != nil {
		return nil, err
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless:          playwright.Bool(m.cfg.Browser.Headless),
		Args:              stealthArgs,
		IgnoreDefaultArgs: []string{"--enable-automation"},
	}
	if m.cfg.Browser.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(m.cfg.Browser.ExecutablePath)
	}

	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return browser, nil
}

// driver starts the Playwright driver once per process.
func (m *Manager) driver() (*playwright.Playwright, error) {
	m.pwMu.Lock()
	defer m.pwMu.Unlock()

	if m.pw != nil {
		return m.pw, nil
	}

	// Driver output would corrupt the stdio transport
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if m.cfg.Browser.Install {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	m.pw = pw
	return pw, nil
}

// Current returns a snapshot of the session, or ErrSessionNotReady.
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.session.ready || m.session.Page == nil {
		return nil, ErrSessionNotReady
	}
	s := m.session
	return &s, nil
}

// RememberSelector caches the query input selector that last qualified.
func (m *Manager) RememberSelector(selector string) {
	m.mu.Lock()
	m.session.Selector = selector
	m.mu.Unlock()
}

// Throttle blocks until the cooldown since the previous query has elapsed,
// then charges the current query against it.
func (m *Manager) Throttle(ctx context.Context) error {
	m.mu.Lock()
	if m.session.limiter == nil {
		m.session.limiter = rate.NewLimiter(rate.Every(m.cfg.Search.Cooldown), 1)
	}
	limiter := m.session.limiter
	m.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("cooldown wait interrupted: %w", err)
	}

	m.mu.Lock()
	m.session.LastQueryAt = time.Now()
	m.mu.Unlock()
	return nil
}

// NextOp returns the next recovery correlation number.
func (m *Manager) NextOp() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.ops++
	return m.session.ops
}

// ReloadPage reloads the current page within the navigation budget.
func (m *Manager) ReloadPage(ctx context.Context) error {
	m.mu.Lock()
	page := m.session.Page
	m.mu.Unlock()
	if page == nil {
		return ErrSessionNotReady
	}

	_, err := page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(config.Millis(m.cfg.Timeouts.Navigation)),
	})
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return sleepCtx(ctx, m.cfg.Timeouts.Settle)
}

// ReplacePage closes the current page and opens a fresh one on the same
// browser, then navigates it to the target.
func (m *Manager) ReplacePage(ctx context.Context) error {
	m.mu.Lock()
	browser, old := m.session.Browser, m.session.Page
	m.session.Page = nil
	m.session.ready = false
	m.mu.Unlock()

	if browser == nil {
		return ErrSessionNotReady
	}
	if old != nil {
		if err := old.Close(); err != nil {
			m.log.Debugf("closing replaced page: %v", err)
		}
	}

	page, err := m.openPage(browser)
	if err != nil {
		return err
	}
	if err := m.attach(browser, page); err != nil {
		return err
	}

	selector, err := m.navigate(ctx, page)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.session.Selector = selector
	m.session.ready = true
	m.mu.Unlock()
	return nil
}

// Restart closes both handles, waits the recovery delay, and runs the full
// setup path again. Only a failure to launch the browser or open the page is
// returned. When navigation fails on the fresh page the page stays attached
// and the next attempt fails against it, so the search loop keeps counting.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	stale := m.detachLocked()
	m.mu.Unlock()
	closeHandles(stale, m.log)

	if err := sleepCtx(ctx, m.cfg.Timeouts.RecoveryDelay); err != nil {
		return err
	}

	_, err := m.initialize(ctx)
	var initErr *SessionInitError
	if !errors.As(err, &initErr) || initErr.Stage != stageNavigate {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.session.Page == nil {
		return err
	}
	m.log.Warnf("restart: browser is up but %v; keeping the page for the next attempt", initErr.Err)
	m.session.Selector = ""
	m.session.ready = true
	m.session.CreatedAt = time.Now()
	return nil
}

// Teardown closes the session and resets it to empty. Safe to call at any
// time, including when there is no session.
func (m *Manager) Teardown() {
	m.teardownIf(nil)
}

// teardownIf resets the session and closes its handles when ok, evaluated
// under the lock, returns true. A nil ok always tears down.
func (m *Manager) teardownIf(ok func() bool) bool {
	m.mu.Lock()
	if ok != nil && !ok() {
		m.mu.Unlock()
		return false
	}
	stale := m.resetLocked()
	m.mu.Unlock()

	closeHandles(stale, m.log)
	return true
}

// Touch records activity and restarts the idle timer.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.armIdleLocked()
}

// Begin marks a search as in flight. The idle timer will not tear down the
// session until the returned func is called.
func (m *Manager) Begin() func() {
	m.mu.Lock()
	m.busy++
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.busy--
			if !m.closed {
				m.armIdleLocked()
			}
		})
	}
}

func (m *Manager) armIdleLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.idleGen++
	gen := m.idleGen
	m.idleTimer = time.AfterFunc(m.cfg.Search.IdleTimeout, func() { m.onIdle(gen) })
}

func (m *Manager) onIdle(gen uint64) {
	m.teardownIf(func() bool {
		if gen != m.idleGen || m.closed {
			return false
		}
		if m.busy > 0 {
			m.log.Debugf("idle timeout during search, re-arming")
			m.armIdleLocked()
			return false
		}
		if m.session.Browser == nil && m.session.Page == nil {
			return false
		}
		m.log.Infof("session idle for %s, closing browser", m.cfg.Search.IdleTimeout)
		return true
	})
}

// Shutdown tears the session down, stops the idle timer and the Playwright
// driver. Later calls are no-ops.
func (m *Manager) Shutdown() error {
	first := m.teardownIf(func() bool {
		if m.closed {
			return false
		}
		m.closed = true
		if m.idleTimer != nil {
			m.idleTimer.Stop()
		}
		return true
	})
	if !first {
		return nil
	}

	m.pwMu.Lock()
	pw := m.pw
	m.pw = nil
	m.pwMu.Unlock()
	if pw != nil {
		if err := pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
	}
	m.log.Infof("browser manager shut down")
	return nil
}

// detachLocked removes the handles from the session, keeping the cooldown
// state and the op counter, and returns the old session.
func (m *Manager) detachLocked() Session {
	stale := m.session
	m.session.Browser = nil
	m.session.Page = nil
	m.session.Selector = ""
	m.session.ready = false
	return stale
}

// resetLocked empties the session and returns the old one.
func (m *Manager) resetLocked() Session {
	stale := m.session
	m.session = Session{ops: stale.ops, settingUp: stale.settingUp}
	return stale
}

// closeHandles closes page then browser. Close errors are logged only.
func closeHandles(s Session, log *logging.Logger) {
	if s.Page != nil {
		if err := s.Page.Close(); err != nil {
			log.Debugf("closing page: %v", err)
		}
	}
	if s.Browser != nil {
		if err := s.Browser.Close(); err != nil {
			log.Debugf("closing browser: %v", err)
		}
	}
}
