package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/askweb/pkg/logging"
	"github.com/playwright-community/playwright-go"
)

// Recoverer restores the session after a failed search attempt.
type Recoverer interface {
	Recover(ctx context.Context, cause error) error
}

// remediator performs the three remediations. Manager implements it.
type remediator interface {
	ReloadPage(ctx context.Context) error
	ReplacePage(ctx context.Context) error
	Restart(ctx context.Context) error
	NextOp() uint64
}

// Classify maps a failure to the remediation that addresses it. Structured
// failure codes win; message inspection is the fallback for raw driver
// errors. A nil cause means a full restart.
func Classify(cause error) RecoveryLevel {
	if cause == nil || errors.Is(cause, errFallbackRecovery) {
		return LevelFullRestart
	}

	var step *StepError
	if errors.As(cause, &step) && step.Failure != FailureUnknown {
		return levelFor(step.Failure)
	}

	var (
		initErr      *SessionInitError
		navErr       *NavigationError
		challengeErr *ChallengeDetectedError
		selectorErr  *SelectorNotFoundError
	)
	switch {
	case errors.As(cause, &initErr):
		return LevelFullRestart
	case errors.As(cause, &navErr):
		return LevelReload
	case errors.As(cause, &challengeErr), errors.As(cause, &selectorErr):
		return LevelFullRestart
	case errors.Is(cause, playwright.ErrTargetClosed):
		return LevelNewPage
	case errors.Is(cause, playwright.ErrTimeout), errors.Is(cause, context.DeadlineExceeded):
		return LevelReload
	}

	return levelFor(messageFailure(cause.Error()))
}

func levelFor(failure FailureKind) RecoveryLevel {
	switch failure {
	case FailureDetached:
		return LevelNewPage
	case FailureTimeout, FailureNavigation:
		return LevelReload
	default:
		return LevelFullRestart
	}
}

// RecoveryMachine applies the remediation Classify selects and escalates
// to a full restart when a lighter one fails.
type RecoveryMachine struct {
	target  remediator
	log     *logging.Logger
	metrics Recorder
}

// NewRecoveryMachine creates a machine that remediates through target.
func NewRecoveryMachine(target remediator, log *logging.Logger) *RecoveryMachine {
	return &RecoveryMachine{target: target, log: log, metrics: nopRecorder{}}
}

// SetRecorder routes recovery events to r.
func (r *RecoveryMachine) SetRecorder(rec Recorder) {
	if rec == nil {
		rec = nopRecorder{}
	}
	r.metrics = rec
}

// Recover classifies cause and performs the matching remediation. A failed
// reload or page replacement is followed by a full restart. A failed full
// restart is returned as a *RecoveryError.
func (r *RecoveryMachine) Recover(ctx context.Context, cause error) error {
	level := Classify(cause)
	op := r.target.NextOp()

	r.log.Warnf("recovery op=%d level=%s cause=%v", op, level, cause)
	r.metrics.RecoveryPerformed(level.String())

	var err error
	switch level {
	case LevelReload:
		err = r.target.ReloadPage(ctx)
	case LevelNewPage:
		err = r.target.ReplacePage(ctx)
	default:
		err = r.target.Restart(ctx)
	}
	if err == nil {
		r.log.Infof("recovery op=%d level=%s succeeded", op, level)
		return nil
	}

	if level == LevelFullRestart {
		r.log.Errorf("recovery op=%d full restart failed: %v", op, err)
		return &RecoveryError{Level: level, Err: err}
	}

	r.log.Warnf("recovery op=%d level=%s failed, escalating: %v", op, level, err)
	return r.Recover(ctx, fmt.Errorf("%w after %s: %v", errFallbackRecovery, level, err))
}
