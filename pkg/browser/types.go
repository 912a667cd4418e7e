package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"
)

// Session is the single live automation context of the process.
// The page handle is never non-nil while the browser handle is nil.
type Session struct {
	// Browser is the Playwright browser process handle
	Browser playwright.Browser

	// Page is the one page driven by every search; it is a child of Browser
	Page playwright.Page

	// Selector is the last query-input selector that qualified. It is a
	// hint only: every attempt re-validates it.
	Selector string

	// LastQueryAt is when the last query was charged against the cooldown
	LastQueryAt time.Time

	// CreatedAt is when the current browser/page pair finished setup
	CreatedAt time.Time

	// settingUp keeps a second caller from launching
	// another browser while the first is still being set up
	settingUp bool

	// ready is set once setup produced a page the pipeline can drive
	ready bool

	// ops correlates recovery attempts in logs
	ops uint64

	limiter *rate.Limiter
}

// RecoveryLevel is the scope of a remediation. Higher levels are more
// invasive and more expensive.
type RecoveryLevel int

const (
	// LevelReload reloads the current page
	LevelReload RecoveryLevel = iota + 1

	// LevelNewPage replaces the page, keeping the browser
	LevelNewPage

	// LevelFullRestart relaunches the browser and redoes setup
	LevelFullRestart
)

func (l RecoveryLevel) String() string {
	switch l {
	case LevelReload:
		return "reload"
	case LevelNewPage:
		return "new_page"
	case LevelFullRestart:
		return "full_restart"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// attempt is the transient state of one pass through the search loop.
type attempt struct {
	query    string
	retry    int
	selector string
}

// Recorder receives pipeline events for metrics. All methods must be safe
// to call from any goroutine.
type Recorder interface {
	SearchFinished(outcome string, elapsed time.Duration)
	RecoveryPerformed(level string)
	ChallengeSeen()
}

type nopRecorder struct{}

func (nopRecorder) SearchFinished(string, time.Duration) {}
func (nopRecorder) RecoveryPerformed(string)             {}
func (nopRecorder) ChallengeSeen()                       {}

// Search outcomes reported to the Recorder
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeRecovery = "recovery_failed"
)

// Candidate selectors for the query input, most specific first.
var QueryInputSelectors = []string{
	`#ask-input`,
	`textarea[placeholder*="Ask"]`,
	`textarea[placeholder*="Search"]`,
	`[contenteditable="true"][role="textbox"]`,
	`[role="textbox"]`,
	`textarea`,
}

// Selectors for the rendered answer, in extraction priority order.
var AnswerSelectors = []string{
	`.prose`,
	`[class*="prose"]`,
	`[class*="markdown"]`,
	`[class*="answer"]`,
}

// Markers that are visible only while an answer is still streaming.
var GeneratingSelectors = []string{
	`button[aria-label*="Stop"]`,
	`[data-testid="stop-generating-button"]`,
	`.animate-pulse`,
}
