package browser

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// evasionScript runs before any page script. It removes the most common
// automation tells that bot-detection scripts look for.
const evasionScript = `(() => {
	const define = (obj, prop, value) => {
		try {
			Object.defineProperty(obj, prop, { get: () => value, configurable: true });
		} catch (e) {}
	};

	define(Navigator.prototype, 'webdriver', undefined);
	define(navigator, 'hardwareConcurrency', 8);
	define(navigator, 'deviceMemory', 8);
	define(navigator, 'platform', 'Win32');
	define(navigator, 'languages', ['en-US', 'en']);
	define(navigator, 'plugins', [1, 2, 3, 4, 5]);

	if (navigator.permissions && navigator.permissions.query) {
		const originalQuery = navigator.permissions.query.bind(navigator.permissions);
		navigator.permissions.query = (parameters) => (
			parameters && parameters.name === 'notifications'
				? Promise.resolve({ state: Notification.permission, onchange: null })
				: originalQuery(parameters)
		);
	}

	window.chrome = window.chrome || {};
	window.chrome.runtime = window.chrome.runtime || {};
	window.chrome.app = window.chrome.app || {
		isInstalled: false,
		InstallState: { DISABLED: 'disabled', INSTALLED: 'installed', NOT_INSTALLED: 'not_installed' },
		RunningState: { CANNOT_RUN: 'cannot_run', READY_TO_RUN: 'ready_to_run', RUNNING: 'running' },
	};
	window.chrome.csi = window.chrome.csi || (() => ({ onloadT: Date.now(), pageT: performance.now(), tran: 15 }));
	window.chrome.loadTimes = window.chrome.loadTimes || (() => ({
		requestTime: Date.now() / 1000,
		startLoadTime: Date.now() / 1000,
		finishDocumentLoadTime: Date.now() / 1000,
		navigationType: 'Other',
		wasFetchedViaSpdy: true,
		connectionInfo: 'h2',
	}));
})();`

// Chromium flags that keep the automation banner and blink's automation
// feature out of the launched browser.
var stealthArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-infobars",
	"--disable-dev-shm-usage",
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-features=IsolateOrigins,site-per-process",
	"--lang=en-US",
}

// InjectEvasions installs the fingerprint overrides on page. They apply to
// every document the page loads from now on.
func InjectEvasions(page playwright.Page) error {
	script := evasionScript
	if err := page.AddInitScript(playwright.Script{Content: &script}); err != nil {
		return fmt.Errorf("failed to install evasion script: %w", err)
	}
	return nil
}
