package aggregator

import (
	"time"

	"github.com/NordCoder/Herald/internal/domain/aggregation"
	"github.com/NordCoder/Herald/internal/domain/event"
)

const minRequeueDelay = time.Second

// Decision is the outcome of a flush check. RequeueDelay is zero when the
// caller must not schedule another check.
type Decision struct {
	ShouldFlush  bool
	RequeueDelay time.Duration
}

// Decide evaluates the batching policy of sample's event type against the
// unhandled events of its aggregation key at now. It performs no I/O.
func Decide(policy aggregation.Lookup, sample *event.Event, unhandled []*event.Event, now time.Time) Decision {
	if sample == nil {
		return Decision{}
	}
	cfg, ok := policy.Lookup(sample.EmitterIdentifier, sample.EventIdentifier)
	if !ok || !cfg.NotificationsEnabled {
		return Decision{}
	}
	if len(unhandled) == 0 {
		return Decision{}
	}

	debounce := cfg.Debounce()
	if debounce <= 0 {
		return Decision{ShouldFlush: true}
	}

	first, last := unhandled[0].CreatedAt, unhandled[0].CreatedAt
	for _, e := range unhandled[1:] {
		if e.CreatedAt.Before(first) {
			first = e.CreatedAt
		}
		if e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}

	maxWait := cfg.MaxInterval()
	held := now.Sub(first)
	if maxWait > 0 && held >= maxWait {
		return Decision{ShouldFlush: true}
	}

	quietFor := now.Sub(last)
	if quietFor >= debounce {
		return Decision{ShouldFlush: true}
	}

	delay := debounce - quietFor
	if maxWait > 0 && maxWait-held < delay {
		delay = maxWait - held
	}
	if delay < minRequeueDelay {
		delay = minRequeueDelay
	}
	return Decision{RequeueDelay: delay}
}
