package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// answeringPage renders answer after a simulated generation delay: the
// stop control is visible for delay after every submit.
func answeringPage(answer string, delay time.Duration) func() *fakePage {
	return func() *fakePage {
		page := newFakePage()
		page.add(QueryInputSelectors[0], &fakeElement{})
		page.onSubmit = func(p *fakePage) {
			now := time.Now()
			p.add(GeneratingSelectors[0], &fakeElement{hideAt: now.Add(delay)})
			p.add(AnswerSelectors[0], &fakeElement{text: answer, showAt: now.Add(50 * time.Millisecond)})
		}
		return page
	}
}

// countingRecoverer counts invocations and always succeeds.
type countingRecoverer struct {
	mu     sync.Mutex
	causes []error
	err    error
}

func (r *countingRecoverer) Recover(_ context.Context, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.causes = append(r.causes, cause)
	return r.err
}

func (r *countingRecoverer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.causes)
}

func newSearchFixture(t *testing.T, newPage func() *fakePage) (*Searcher, *Manager, *testLaunches) {
	t.Helper()
	m, launches := newTestManager(t)
	launches.newPage = newPage
	finder := NewSelectorFinder(m.cfg, testLogger())
	searcher := NewSearcher(m.cfg, m, NewRecoveryMachine(m, testLogger()), finder, testLogger())
	return searcher, m, launches
}

func TestSearchEndToEnd(t *testing.T) {
	searcher, _, launches := newSearchFixture(t, answeringPage("Paris is the capital of France.\n\n\n\nIt is...", 2*time.Second))

	start := time.Now()
	answer, err := searcher.Search(context.Background(), "capital of France")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.\n\nIt is...", answer)
	assert.GreaterOrEqual(t, elapsed, 2*time.Second, "waited for generation to finish")
	assert.Less(t, elapsed, searcher.cfg.Timeouts.Generation)

	page := launches.browsers[0].pages[0]
	assert.Equal(t, []string{"", "capital of France"}, page.typed)
	assert.Equal(t, 1, page.submitCount())
}

func TestSearchToleratesGenerationTimeout(t *testing.T) {
	searcher, _, _ := newSearchFixture(t, answeringPage("partial answer", time.Hour))
	searcher.cfg.Timeouts.Generation = 200 * time.Millisecond

	answer, err := searcher.Search(context.Background(), "still streaming")
	require.NoError(t, err)
	assert.Equal(t, "partial answer", answer)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	searcher, _, launches := newSearchFixture(t, answeringPage("x", 0))

	_, err := searcher.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, launches.count())
}

func TestSearchFailsAfterMaxAttempts(t *testing.T) {
	cfg := testConfig()
	finder := NewSelectorFinder(cfg, testLogger())
	nav, err := NewNavigator(cfg, finder, testLogger())
	require.NoError(t, err)

	m := NewManager(cfg, nav, testLogger())
	t.Cleanup(func() { _ = m.Shutdown() })
	// Every page loads but never shows a query input
	launches := &testLaunches{newPage: newFakePage}
	m.launch = launches.launch

	recovery := NewRecoveryMachine(m, testLogger())
	rec := &countingRecorder{}
	recovery.SetRecorder(rec)
	searcher := NewSearcher(cfg, m, recovery, finder, testLogger())

	_, err = searcher.Search(context.Background(), "capital of France")

	var failed *SearchFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, KindSearchFailed, ErrorKind(err))
	assert.Equal(t, cfg.Search.MaxAttempts, failed.Attempts)
	assert.Len(t, rec.levels, cfg.Search.MaxAttempts, "one remediation per failed attempt")
	for _, level := range rec.levels {
		assert.Equal(t, LevelFullRestart.String(), level)
	}
	// Initial setup plus one relaunch per remediation
	assert.Equal(t, cfg.Search.MaxAttempts+1, launches.count())

	var selectorErr *SelectorNotFoundError
	assert.ErrorAs(t, err, &selectorErr)
	var recoveryErr *RecoveryError
	assert.False(t, errors.As(err, &recoveryErr))
}

func TestSearchBudgetCountsLoopIterations(t *testing.T) {
	m, launches := newTestManager(t)
	launches.newPage = newFakePage
	recoverer := &countingRecoverer{}
	searcher := NewSearcher(m.cfg, m, recoverer, NewSelectorFinder(m.cfg, testLogger()), testLogger())
	searcher.cfg.Search.MaxAttempts = 4

	_, err := searcher.Search(context.Background(), "capital of France")

	var failed *SearchFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 4, failed.Attempts)
	assert.Equal(t, 4, recoverer.count())
}

func TestSearchFailsWithFullRecoveryStack(t *testing.T) {
	searcher, _, launches := newSearchFixture(t, newFakePage)
	searcher.cfg.Search.MaxAttempts = 3

	_, err := searcher.Search(context.Background(), "capital of France")

	var failed *SearchFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 3, failed.Attempts)
	// Selector failures restart the browser every time
	assert.Equal(t, 4, launches.count())
}

func TestSearchRecoversFromChallenge(t *testing.T) {
	attempts := 0
	newPage := func() *fakePage {
		attempts++
		page := answeringPage("answer after restart", 0)()
		if attempts == 1 {
			page.content = `<html><body><div id="challenge-stage"></div></body></html>`
		}
		return page
	}
	searcher, _, launches := newSearchFixture(t, newPage)

	answer, err := searcher.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "answer after restart", answer)
	assert.Equal(t, 2, launches.count(), "challenge triggers a full restart")
}

func TestSearchReturnsRecoveryError(t *testing.T) {
	m, launches := newTestManager(t)
	launches.newPage = newFakePage
	recoveryErr := &RecoveryError{Level: LevelFullRestart, Err: errors.New("chromium exited")}
	recoverer := &countingRecoverer{err: recoveryErr}
	searcher := NewSearcher(m.cfg, m, recoverer, NewSelectorFinder(m.cfg, testLogger()), testLogger())

	_, err := searcher.Search(context.Background(), "q")
	assert.Same(t, recoveryErr, err)
	assert.Equal(t, 1, recoverer.count())
	assert.Equal(t, KindRecovery, ErrorKind(err))
}

func TestSearchSetupFailureIsRecovered(t *testing.T) {
	searcher, _, launches := newSearchFixture(t, answeringPage("ok", 0))
	launches.navFail = errors.New("net::ERR_NAME_NOT_RESOLVED")

	// This recoverer repairs nothing, so every attempt finds no ready session
	recoverer := &countingRecoverer{}
	searcher.recovery = recoverer
	searcher.cfg.Search.MaxAttempts = 2

	_, err := searcher.Search(context.Background(), "q")
	var failed *SearchFailedError
	require.ErrorAs(t, err, &failed)
	assert.ErrorIs(t, err, ErrSessionNotReady)
	assert.Equal(t, 2, recoverer.count())
}

func TestSearchCooldownBetweenQueries(t *testing.T) {
	searcher, _, launches := newSearchFixture(t, answeringPage("answer", 0))
	searcher.cfg.Search.Cooldown = 300 * time.Millisecond

	_, err := searcher.Search(context.Background(), "first")
	require.NoError(t, err)
	_, err = searcher.Search(context.Background(), "second")
	require.NoError(t, err)

	page := launches.browsers[0].pages[0]
	page.mu.Lock()
	defer page.mu.Unlock()
	require.Len(t, page.submits, 2)
	// The cooldown is charged just before the attempt loop, so allow for
	// the difference in per-attempt work ahead of each submit
	assert.GreaterOrEqual(t, page.submits[1].Sub(page.submits[0]), 290*time.Millisecond)
}

func TestSearchSerializesCallers(t *testing.T) {
	searcher, _, launches := newSearchFixture(t, answeringPage("answer", 100*time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := searcher.Search(context.Background(), "parallel")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, launches.count())
	page := launches.browsers[0].pages[0]
	assert.Equal(t, 3, page.submitCount())
}

func TestSearchCancelledContext(t *testing.T) {
	searcher, _, _ := newSearchFixture(t, newFakePage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := searcher.Search(ctx, "q")
	var failed *SearchFailedError
	require.ErrorAs(t, err, &failed)
	assert.ErrorIs(t, err, context.Canceled)
}
