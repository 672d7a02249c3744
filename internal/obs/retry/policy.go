package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Permanent marks an error that retrying in-process cannot fix.
type Permanent struct{ Err error }

func (p Permanent) Error() string { return p.Err.Error() }
func (p Permanent) Unwrap() error { return p.Err }

func IsPermanent(err error) bool {
	var p Permanent
	return errors.As(err, &p)
}

// DefaultTaskPolicy retries a task handler in-process a few times with a
// short backoff; longer outages fall through to the task row's NotBefore.
func DefaultTaskPolicy(log *zap.Logger) Policy {
	return Policy{
		Attempts: 3,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !IsPermanent(err) && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("task retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Warn("task retries exhausted", zap.Error(err))
			}
		},
	}
}
