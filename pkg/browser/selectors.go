package browser

import (
	"github.com/entrhq/askweb/pkg/config"
	"github.com/entrhq/askweb/pkg/logging"
	"github.com/playwright-community/playwright-go"
)

// SelectorFinder locates the query input by probing candidate selectors in
// order. A candidate qualifies when it becomes visible within the selector
// timeout, is enabled, and is not aria-hidden.
type SelectorFinder struct {
	candidates     []string
	timeout        float64
	screenshotPath string
	log            *logging.Logger
}

// NewSelectorFinder creates a finder using QueryInputSelectors.
func NewSelectorFinder(cfg *config.Config, log *logging.Logger) *SelectorFinder {
	return &SelectorFinder{
		candidates:     QueryInputSelectors,
		timeout:        config.Millis(cfg.Timeouts.Selector),
		screenshotPath: cfg.Browser.ScreenshotPath,
		log:            log,
	}
}

// Candidates returns the selectors probed, in order.
func (f *SelectorFinder) Candidates() []string {
	return f.candidates
}

// FindQueryInput returns the first qualifying candidate. When none
// qualifies a diagnostic screenshot is taken and ok is false.
func (f *SelectorFinder) FindQueryInput(page playwright.Page) (string, bool) {
	for _, selector := range f.candidates {
		if f.usable(page, selector) {
			f.log.Debugf("query input matched %q", selector)
			return selector, true
		}
	}

	f.log.Warnf("no query input matched any of %d candidates", len(f.candidates))
	captureScreenshot(page, f.screenshotPath, f.log)
	return "", false
}

// Revalidate checks the cached selector first and falls back to a full
// probe when it no longer qualifies.
func (f *SelectorFinder) Revalidate(page playwright.Page, cached string) (string, bool) {
	if cached != "" && f.usable(page, cached) {
		return cached, true
	}
	if cached != "" {
		f.log.Debugf("cached query input %q no longer usable, re-probing", cached)
	}
	return f.FindQueryInput(page)
}

func (f *SelectorFinder) usable(page playwright.Page, selector string) bool {
	locator := page.Locator(selector).First()

	if err := locator.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(f.timeout),
	}); err != nil {
		return false
	}

	enabled, err := locator.IsEnabled()
	if err != nil || !enabled {
		return false
	}

	hidden, err := locator.GetAttribute("aria-hidden")
	if err != nil {
		return false
	}
	return hidden != "true"
}
