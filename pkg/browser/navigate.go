package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/entrhq/askweb/pkg/config"
	"github.com/entrhq/askweb/pkg/logging"
	"github.com/gobwas/glob"
	"github.com/playwright-community/playwright-go"
)

// loadStates are tried in order; each is weaker than the one before.
var loadStates = []*playwright.WaitUntilState{
	playwright.WaitUntilStateNetworkidle,
	playwright.WaitUntilStateDomcontentloaded,
	playwright.WaitUntilStateLoad,
}

// Navigator loads the target site and confirms the page is usable.
type Navigator struct {
	cfg    *config.Config
	hosts  glob.Glob
	finder *SelectorFinder
	log    *logging.Logger
}

// NewNavigator compiles the target host pattern. It fails only when the
// pattern is invalid.
func NewNavigator(cfg *config.Config, finder *SelectorFinder, log *logging.Logger) (*Navigator, error) {
	hosts, err := config.CompileHostPattern(cfg.Target.HostPattern)
	if err != nil {
		return nil, err
	}
	return &Navigator{cfg: cfg, hosts: hosts, finder: finder, log: log}, nil
}

// Navigate loads the target URL in page and returns the query input
// selector that qualified. Every failure is a *NavigationError.
func (n *Navigator) Navigate(ctx context.Context, page playwright.Page) (string, error) {
	target := n.cfg.Target.URL

	if err := n.load(page, target); err != nil {
		captureScreenshot(page, n.cfg.Browser.ScreenshotPath, n.log)
		return "", &NavigationError{URL: target, Reason: "page did not load", Err: err}
	}

	if err := sleepCtx(ctx, n.cfg.Timeouts.Settle); err != nil {
		return "", &NavigationError{URL: target, Reason: "interrupted while settling", Err: err}
	}

	landed := page.URL()
	if !n.allowedHost(landed) {
		captureScreenshot(page, n.cfg.Browser.ScreenshotPath, n.log)
		return "", &NavigationError{URL: target, Reason: fmt.Sprintf("landed on unexpected page %s", landed)}
	}

	// FindQueryInput takes its own screenshot on failure
	selector, ok := n.finder.FindQueryInput(page)
	if !ok {
		return "", &NavigationError{URL: target, Reason: "no usable query input"}
	}

	n.log.Infof("navigated to %s (input %q)", landed, selector)
	return selector, nil
}

// load tries each load state in turn with the navigation timeout and
// returns the last error if none succeeds.
func (n *Navigator) load(page playwright.Page, target string) error {
	timeout := config.Millis(n.cfg.Timeouts.Navigation)

	var lastErr error
	for _, state := range loadStates {
		_, err := page.Goto(target, playwright.PageGotoOptions{
			WaitUntil: state,
			Timeout:   playwright.Float(timeout),
		})
		if err == nil {
			return nil
		}
		n.log.Warnf("goto %s (wait until %s) failed: %v", target, *state, err)
		lastErr = err
	}
	return lastErr
}

// allowedHost reports whether rawURL's host matches the target pattern.
func (n *Navigator) allowedHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return n.hosts.Match(u.Hostname())
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
