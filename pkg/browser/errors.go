package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Machine-readable error kinds surfaced to the protocol layer.
const (
	KindSessionInit       = "session_init"
	KindNavigation        = "navigation"
	KindSelectorNotFound  = "selector_not_found"
	KindChallenge         = "challenge_detected"
	KindGenerationTimeout = "generation_timeout"
	KindRecovery          = "recovery"
	KindSearchFailed      = "search_failed"
	KindInternal          = "internal_error"
)

var (
	// ErrSetupInProgress is returned when a session setup is already running.
	ErrSetupInProgress = errors.New("session setup already in progress")

	// ErrSessionNotReady means there is no usable browser/page pair.
	ErrSessionNotReady = errors.New("browser session is not ready")

	// ErrManagerClosed is returned after Shutdown.
	ErrManagerClosed = errors.New("browser manager is shut down")

	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query is required")

	// errFallbackRecovery marks the synthetic cause used when escalating.
	errFallbackRecovery = errors.New("fallback recovery")
)

// SessionInitError means the browser or page could not be created.
type SessionInitError struct {
	Stage string
	Err   error
}

func (e *SessionInitError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("session init failed: %v", e.Err)
	}
	return fmt.Sprintf("session init failed during %s: %v", e.Stage, e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }

// Kind returns the machine-readable error kind.
func (e *SessionInitError) Kind() string { return KindSessionInit }

// NavigationError means the page failed to load, landed on the wrong host,
// or loaded without a usable input.
type NavigationError struct {
	URL    string
	Reason string
	Err    error
}

func (e *NavigationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("navigation to %s failed: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("navigation to %s failed: %s: %v", e.URL, e.Reason, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// Kind returns the machine-readable error kind.
func (e *NavigationError) Kind() string { return KindNavigation }

// SelectorNotFoundError means no candidate selector qualified.
type SelectorNotFoundError struct {
	Purpose    string
	Candidates []string
}

func (e *SelectorNotFoundError) Error() string {
	return fmt.Sprintf("no %s found (tried %d selectors)", e.Purpose, len(e.Candidates))
}

// Kind returns the machine-readable error kind.
func (e *SelectorNotFoundError) Kind() string { return KindSelectorNotFound }

// ChallengeDetectedError means an anti-automation marker was on the page.
type ChallengeDetectedError struct {
	URL    string
	Marker string
}

func (e *ChallengeDetectedError) Error() string {
	return fmt.Sprintf("challenge detected on %s (marker %q)", e.URL, e.Marker)
}

// Kind returns the machine-readable error kind.
func (e *ChallengeDetectedError) Kind() string { return KindChallenge }

// GenerationTimeoutError means the generating indicators never went away.
// The pipeline tolerates it and extracts whatever is rendered.
type GenerationTimeoutError struct {
	Waited time.Duration
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("answer still generating after %s", e.Waited)
}

// Kind returns the machine-readable error kind.
func (e *GenerationTimeoutError) Kind() string { return KindGenerationTimeout }

// RecoveryError means a remediation failed with nowhere left to escalate.
type RecoveryError struct {
	Level RecoveryLevel
	Err   error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recovery (%s) failed: %v", e.Level, e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }

// Kind returns the machine-readable error kind.
func (e *RecoveryError) Kind() string { return KindRecovery }

// SearchFailedError means the attempt budget was exhausted.
type SearchFailedError struct {
	Query    string
	Attempts int
	Err      error
}

func (e *SearchFailedError) Error() string {
	return fmt.Sprintf("search failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SearchFailedError) Unwrap() error { return e.Err }

// Kind returns the machine-readable error kind.
func (e *SearchFailedError) Kind() string { return KindSearchFailed }

// ErrorKind returns the machine-readable kind of the outermost typed error
// in err's chain, or KindInternal.
func ErrorKind(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// FailureKind is the structured condition code a pipeline step attaches to
// its failure. It drives recovery classification.
type FailureKind string

const (
	// FailureUnknown defers classification to the wrapped error
	FailureUnknown    FailureKind = ""
	FailureTimeout    FailureKind = "timeout"
	FailureNavigation FailureKind = "navigation"
	FailureDetached   FailureKind = "detached"
	FailureSelector   FailureKind = "selector"
	FailureChallenge  FailureKind = "challenge"
	FailureSession    FailureKind = "session"
	FailureFatal      FailureKind = "fatal"
)

// StepError ties a failure to the pipeline step that produced it.
type StepError struct {
	Step    string
	Failure FailureKind
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step string, failure FailureKind, err error) *StepError {
	return &StepError{Step: step, Failure: failure, Err: err}
}

// messageFailure is the fallback classification for raw driver errors
// that carry no structured code.
func messageFailure(msg string) FailureKind {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"detached", "target closed", "target page, context or browser has been closed", "execution context was destroyed"} {
		if strings.Contains(msg, marker) {
			return FailureDetached
		}
	}
	for _, marker := range []string{"timeout", "navigation", "net::err_"} {
		if strings.Contains(msg, marker) {
			return FailureTimeout
		}
	}
	return FailureFatal
}
