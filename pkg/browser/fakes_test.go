package browser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/askweb/pkg/config"
	"github.com/entrhq/askweb/pkg/logging"
	"github.com/playwright-community/playwright-go"
)

func testLogger() *logging.Logger {
	return logging.NewWriterLogger("test", io.Discard)
}

// testConfig shrinks every budget so tests run in milliseconds.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Timeouts = config.TimeoutProfile{
		Navigation:    time.Second,
		Selector:      10 * time.Millisecond,
		Generation:    5 * time.Second,
		RecoveryDelay: 0,
		Settle:        0,
		PollInterval:  20 * time.Millisecond,
	}
	cfg.Search.Cooldown = 0
	cfg.Search.IdleTimeout = time.Hour
	cfg.Browser.ScreenshotPath = ""
	return cfg
}

// fakeElement is a DOM node as seen through a locator.
type fakeElement struct {
	text       string
	disabled   bool
	hidden     bool
	ariaHidden string
	showAt     time.Time
	hideAt     time.Time
}

func (e *fakeElement) visible(now time.Time) bool {
	if e.hidden || now.Before(e.showAt) {
		return false
	}
	return e.hideAt.IsZero() || now.Before(e.hideAt)
}

// fakePage implements the parts of playwright.Page the package uses.
// Selectors are matched literally; a locator for "a, b" matches the
// elements registered under "a" followed by those under "b".
type fakePage struct {
	playwright.Page

	mu          sync.Mutex
	url         string
	content     string
	contentErr  error
	elements    map[string][]*fakeElement
	typed       []string
	submits     []time.Time
	onSubmit    func(p *fakePage)
	closed      bool
	initScripts int
	reloads     int
	gotoErrs    []error
	gotoStates  []playwright.WaitUntilState
	screenshots int
}

func newFakePage() *fakePage {
	return &fakePage{
		url:      "https://www.perplexity.ai/",
		content:  "<html><body><main></main></body></html>",
		elements: make(map[string][]*fakeElement),
	}
}

func (p *fakePage) add(selector string, el *fakeElement) *fakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = append(p.elements[selector], el)
	return el
}

func (p *fakePage) submitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.submits)
}

func (p *fakePage) Locator(selector string, _ ...playwright.PageLocatorOptions) playwright.Locator {
	return &fakeLocator{page: p, selectors: strings.Split(selector, ", ")}
}

func (p *fakePage) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, p.contentErr
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Goto(url string, opts ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(opts) > 0 && opts[0].WaitUntil != nil {
		p.gotoStates = append(p.gotoStates, *opts[0].WaitUntil)
	}
	if len(p.gotoErrs) > 0 {
		err := p.gotoErrs[0]
		p.gotoErrs = p.gotoErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if p.url == "" {
		p.url = url
	}
	return nil, nil
}

func (p *fakePage) Reload(...playwright.PageReloadOptions) (playwright.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	return nil, nil
}

func (p *fakePage) Screenshot(...playwright.PageScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshots++
	return nil, nil
}

func (p *fakePage) AddInitScript(script playwright.Script) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if script.Content == nil || *script.Content == "" {
		return fmt.Errorf("empty init script")
	}
	p.initScripts++
	return nil
}

func (p *fakePage) SetDefaultNavigationTimeout(float64) {}

func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// pwLocator lets fakeLocator embed the interface without its field name
// shadowing the interface's own Locator method.
type pwLocator = playwright.Locator

// fakeLocator resolves against the page's element map at call time.
type fakeLocator struct {
	pwLocator

	page      *fakePage
	selectors []string
	first     bool
}

func (l *fakeLocator) matches() []*fakeElement {
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	var out []*fakeElement
	for _, selector := range l.selectors {
		out = append(out, l.page.elements[selector]...)
	}
	if l.first && len(out) > 1 {
		out = out[:1]
	}
	return out
}

func (l *fakeLocator) First() playwright.Locator {
	return &fakeLocator{page: l.page, selectors: l.selectors, first: true}
}

func (l *fakeLocator) WaitFor(opts ...playwright.LocatorWaitForOptions) error {
	timeout := 30 * time.Second
	if len(opts) > 0 && opts[0].Timeout != nil {
		timeout = time.Duration(*opts[0].Timeout) * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		for _, el := range l.matches() {
			if el.visible(time.Now()) {
				return nil
			}
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: waiting for %s to be visible", playwright.ErrTimeout, strings.Join(l.selectors, ", "))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (l *fakeLocator) IsVisible(...playwright.LocatorIsVisibleOptions) (bool, error) {
	for _, el := range l.matches() {
		if el.visible(time.Now()) {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLocator) IsEnabled(...playwright.LocatorIsEnabledOptions) (bool, error) {
	els := l.matches()
	if len(els) == 0 {
		return false, fmt.Errorf("%w: no element", playwright.ErrTimeout)
	}
	return !els[0].disabled, nil
}

func (l *fakeLocator) GetAttribute(name string, _ ...playwright.LocatorGetAttributeOptions) (string, error) {
	els := l.matches()
	if len(els) == 0 {
		return "", fmt.Errorf("%w: no element", playwright.ErrTimeout)
	}
	if name == "aria-hidden" {
		return els[0].ariaHidden, nil
	}
	return "", nil
}

func (l *fakeLocator) Count() (int, error) {
	return len(l.matches()), nil
}

func (l *fakeLocator) AllTextContents() ([]string, error) {
	var texts []string
	for _, el := range l.matches() {
		texts = append(texts, el.text)
	}
	return texts, nil
}

func (l *fakeLocator) InnerText(...playwright.LocatorInnerTextOptions) (string, error) {
	els := l.matches()
	if len(els) == 0 {
		return "", fmt.Errorf("%w: no element", playwright.ErrTimeout)
	}
	return els[0].text, nil
}

func (l *fakeLocator) Fill(value string, _ ...playwright.LocatorFillOptions) error {
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	l.page.typed = append(l.page.typed, value)
	return nil
}

func (l *fakeLocator) PressSequentially(text string, _ ...playwright.LocatorPressSequentiallyOptions) error {
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	l.page.typed = append(l.page.typed, text)
	return nil
}

func (l *fakeLocator) Press(key string, _ ...playwright.LocatorPressOptions) error {
	if key != "Enter" {
		return nil
	}
	l.page.mu.Lock()
	l.page.submits = append(l.page.submits, time.Now())
	onSubmit := l.page.onSubmit
	l.page.mu.Unlock()

	if onSubmit != nil {
		onSubmit(l.page)
	}
	return nil
}

// fakeBrowser hands out pages from newPage.
type fakeBrowser struct {
	playwright.Browser

	mu      sync.Mutex
	newPage func() *fakePage
	pages   []*fakePage
	closed  int
	pageErr error
}

func (b *fakeBrowser) NewPage(...playwright.BrowserNewPageOptions) (playwright.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	page := newFakePage()
	if b.newPage != nil {
		page = b.newPage()
	}
	b.pages = append(b.pages, page)
	return page, nil
}

func (b *fakeBrowser) Close(...playwright.BrowserCloseOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

// fakeRemediator records which remediations ran and fails the ones listed.
type fakeRemediator struct {
	mu    sync.Mutex
	calls []RecoveryLevel
	fail  map[RecoveryLevel]error
	ops   uint64
}

func (r *fakeRemediator) run(level RecoveryLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, level)
	return r.fail[level]
}

func (r *fakeRemediator) ReloadPage(context.Context) error  { return r.run(LevelReload) }
func (r *fakeRemediator) ReplacePage(context.Context) error { return r.run(LevelNewPage) }
func (r *fakeRemediator) Restart(context.Context) error     { return r.run(LevelFullRestart) }

func (r *fakeRemediator) NextOp() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops++
	return r.ops
}
