package browser

import (
	"github.com/entrhq/askweb/pkg/logging"
	"github.com/playwright-community/playwright-go"
)

// captureScreenshot writes a full-page screenshot for post-mortem
// inspection. Failures are logged and otherwise ignored.
func captureScreenshot(page playwright.Page, path string, log *logging.Logger) {
	if page == nil || path == "" {
		return
	}
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		log.Debugf("screenshot to %s failed: %v", path, err)
		return
	}
	log.Infof("saved diagnostic screenshot to %s", path)
}
