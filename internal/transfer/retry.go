package transfer

import (
	"go.uber.org/zap"
)

// DefaultExtraTries is the number of retries after the first attempt.
const DefaultExtraTries = 1

// Escalator runs an action up to 1+extra times with no delay in between.
// It does not tag anything: escalation on exhaustion is up to the caller.
type Escalator struct {
	extra int
}

// NewEscalator creates an escalator allowing extra retries.
func NewEscalator(extra int) *Escalator {
	if extra < 0 {
		extra = 0
	}
	return &Escalator{extra: extra}
}

// MaxAttempts returns the total number of attempts per action.
func (e *Escalator) MaxAttempts() int {
	return 1 + e.extra
}

// Attempt calls action until it succeeds or attempts run out, logging each
// failed attempt with its ordinal. It returns the last error.
func (e *Escalator) Attempt(logger *zap.Logger, stage Stage, action func() error) error {
	var err error
	for attempt := 1; attempt <= e.MaxAttempts(); attempt++ {
		if err = action(); err == nil {
			return nil
		}
		logger.Warn("Stage attempt failed",
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.MaxAttempts()),
			zap.Error(err),
		)
	}
	return err
}
