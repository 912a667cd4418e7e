package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/askweb/pkg/config"
	"github.com/entrhq/askweb/pkg/logging"
	"github.com/google/uuid"
)

// typingDelay is the per-keystroke delay in milliseconds.
const typingDelay = 40

// SessionProvider hands the Searcher a usable session. Manager implements it.
type SessionProvider interface {
	EnsureSession(ctx context.Context) (*Session, error)
	Current() (*Session, error)
	RememberSelector(selector string)
	Throttle(ctx context.Context) error
	Begin() func()
}

// Searcher submits queries to the target site and extracts the answers.
// Calls to Search are serialized.
type Searcher struct {
	cfg      *config.Config
	sessions SessionProvider
	recovery Recoverer
	finder   *SelectorFinder
	log      *logging.Logger
	metrics  Recorder

	mu sync.Mutex
}

// NewSearcher creates a Searcher.
func NewSearcher(cfg *config.Config, sessions SessionProvider, recovery Recoverer, finder *SelectorFinder, log *logging.Logger) *Searcher {
	return &Searcher{
		cfg:      cfg,
		sessions: sessions,
		recovery: recovery,
		finder:   finder,
		log:      log,
		metrics:  nopRecorder{},
	}
}

// SetRecorder routes search events to rec.
func (s *Searcher) SetRecorder(rec Recorder) {
	if rec == nil {
		rec = nopRecorder{}
	}
	s.metrics = rec
}

// Search asks query and returns the normalized answer. It fails with
// *SearchFailedError once MaxAttempts attempts have failed, or with
// *RecoveryError when a full restart fails.
func (s *Searcher) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	done := s.sessions.Begin()
	defer done()

	id := uuid.NewString()[:8]
	start := time.Now()
	s.log.Infof("search %s: %q", id, query)

	// A failed setup is left to the first attempt's recovery
	if _, err := s.sessions.EnsureSession(ctx); err != nil {
		s.log.Warnf("search %s: session setup failed: %v", id, err)
	}

	if err := s.sessions.Throttle(ctx); err != nil {
		s.metrics.SearchFinished(OutcomeFailed, time.Since(start))
		return "", &SearchFailedError{Query: query, Err: err}
	}

	at := &attempt{query: query}
	for {
		answer, err := s.runAttempt(ctx, at)
		if err == nil {
			s.log.Infof("search %s: answered in %s after %d attempt(s)", id, time.Since(start).Round(time.Millisecond), at.retry+1)
			s.metrics.SearchFinished(OutcomeSuccess, time.Since(start))
			return answer, nil
		}

		s.log.Warnf("search %s: attempt %d/%d failed: %v", id, at.retry+1, s.cfg.Search.MaxAttempts, err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.SearchFinished(OutcomeFailed, time.Since(start))
			return "", &SearchFailedError{Query: query, Attempts: at.retry + 1, Err: ctxErr}
		}

		if rerr := s.recovery.Recover(ctx, err); rerr != nil {
			var recoveryErr *RecoveryError
			if errors.As(rerr, &recoveryErr) {
				s.log.Errorf("search %s: %v", id, rerr)
				s.metrics.SearchFinished(OutcomeRecovery, time.Since(start))
				return "", recoveryErr
			}
			s.metrics.SearchFinished(OutcomeFailed, time.Since(start))
			return "", &SearchFailedError{Query: query, Attempts: at.retry + 1, Err: rerr}
		}

		at.retry++
		if at.retry >= s.cfg.Search.MaxAttempts {
			s.log.Errorf("search %s: giving up after %d attempts", id, at.retry)
			s.metrics.SearchFinished(OutcomeFailed, time.Since(start))
			return "", &SearchFailedError{Query: query, Attempts: at.retry, Err: err}
		}
	}
}

// runAttempt is one pass through the pipeline. Every failure is a
// *StepError naming the step.
func (s *Searcher) runAttempt(ctx context.Context, at *attempt) (string, error) {
	sess, err := s.sessions.Current()
	if err != nil {
		return "", stepErr("session", FailureSession, err)
	}
	page := sess.Page

	if marker, found := HasChallenge(page, s.log); found {
		s.metrics.ChallengeSeen()
		captureScreenshot(page, s.cfg.Browser.ScreenshotPath, s.log)
		return "", stepErr("challenge", FailureChallenge, &ChallengeDetectedError{URL: page.URL(), Marker: marker})
	}

	selector, ok := s.finder.Revalidate(page, sess.Selector)
	if !ok {
		return "", stepErr("input", FailureSelector, &SelectorNotFoundError{
			Purpose:    "query input",
			Candidates: s.finder.Candidates(),
		})
	}
	at.selector = selector
	s.sessions.RememberSelector(selector)

	if err := s.submit(page, selector, at.query); err != nil {
		return "", stepErr("submit", FailureUnknown, err)
	}

	if err := s.waitForAnswer(page); err != nil {
		return "", stepErr("answer", FailureUnknown, err)
	}

	if err := s.waitForGeneration(ctx, page); err != nil {
		var timeoutErr *GenerationTimeoutError
		if !errors.As(err, &timeoutErr) {
			return "", stepErr("generation", FailureUnknown, err)
		}
		s.log.Warnf("%v, extracting what is rendered", err)
	}

	raw, err := s.extract(page)
	if err != nil {
		return "", stepErr("extract", FailureUnknown, err)
	}

	answer := Normalize(raw)
	if answer == "" {
		return "", stepErr("extract", FailureTimeout, errors.New("extracted answer is empty"))
	}
	return answer, nil
}
