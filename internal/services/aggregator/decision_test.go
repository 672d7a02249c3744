package aggregator

import (
	"testing"
	"time"

	"github.com/NordCoder/Herald/internal/domain/aggregation"
	"github.com/NordCoder/Herald/internal/domain/event"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func ev(id int64, eventID string, createdSec int) *event.Event {
	return &event.Event{
		ID: id, EventIdentifier: eventID, EmitterIdentifier: aggregation.EmitterCore,
		AggregationKey: "K", CreatedAt: at(createdSec),
	}
}

func TestDecide(t *testing.T) {
	table := aggregation.NewTable(aggregation.DefaultCore(), nil)

	cases := []struct {
		name      string
		sample    *event.Event
		unhandled []*event.Event
		now       time.Time
		want      Decision
	}{
		{
			name:   "unknown type is suppressed",
			sample: ev(1, "unknown", 0), unhandled: []*event.Event{ev(1, "unknown", 0)},
			now: at(100), want: Decision{},
		},
		{
			name:   "non core emitter is suppressed",
			sample: &event.Event{EmitterIdentifier: "plugin", EventIdentifier: aggregation.EventObjectAdded},
			now:    at(100), want: Decision{},
		},
		{
			name:   "nothing unhandled",
			sample: ev(1, aggregation.EventObjectAdded, 0),
			now:    at(100), want: Decision{},
		},
		{
			name:   "zero debounce flushes at once",
			sample: ev(1, aggregation.EventFolderShared, 0), unhandled: []*event.Event{ev(1, aggregation.EventFolderShared, 0)},
			now: at(0), want: Decision{ShouldFlush: true},
		},
		{
			name:   "quiet period not over",
			sample: ev(1, aggregation.EventObjectAdded, 0), unhandled: []*event.Event{ev(1, aggregation.EventObjectAdded, 0)},
			now: at(1), want: Decision{RequeueDelay: 4 * time.Second},
		},
		{
			name:   "requeue delay has a floor",
			sample: ev(1, aggregation.EventObjectAdded, 0), unhandled: []*event.Event{ev(1, aggregation.EventObjectAdded, 0)},
			now: t0.Add(4800 * time.Millisecond), want: Decision{RequeueDelay: time.Second},
		},
		{
			name:   "debounce satisfied",
			sample: ev(1, aggregation.EventObjectAdded, 0), unhandled: []*event.Event{ev(1, aggregation.EventObjectAdded, 0), ev(2, aggregation.EventObjectAdded, 3)},
			now: at(8), want: Decision{ShouldFlush: true},
		},
		{
			name:   "max interval forces flush",
			sample: ev(1, aggregation.EventObjectAdded, 0), unhandled: []*event.Event{ev(1, aggregation.EventObjectAdded, 0), ev(2, aggregation.EventObjectAdded, 59)},
			now: at(60), want: Decision{ShouldFlush: true},
		},
		{
			name:   "requeue does not overshoot max interval",
			sample: ev(1, aggregation.EventObjectAdded, 0), unhandled: []*event.Event{ev(1, aggregation.EventObjectAdded, 0), ev(2, aggregation.EventObjectAdded, 57)},
			now: at(58), want: Decision{RequeueDelay: 2 * time.Second},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(table, tc.sample, tc.unhandled, tc.now))
		})
	}
}

func TestDecide_DisabledConfig(t *testing.T) {
	table := aggregation.NewTable(map[string]aggregation.Config{
		aggregation.EventObjectAdded: {NotificationsEnabled: false},
	}, nil)
	e := ev(1, aggregation.EventObjectAdded, 0)
	assert.Equal(t, Decision{}, Decide(table, e, []*event.Event{e}, at(100)))
}

// Events every 3s never satisfy a 5s debounce; the 60s bound still flushes.
func TestDecide_SteadyStreamFlushesAtMaxInterval(t *testing.T) {
	table := aggregation.NewTable(aggregation.DefaultCore(), nil)
	var unhandled []*event.Event
	flushedAt := -1
	for sec := 0; sec <= 90; sec++ {
		if sec%3 == 0 {
			unhandled = append(unhandled, ev(int64(sec+1), aggregation.EventObjectAdded, sec))
		}
		if d := Decide(table, unhandled[0], unhandled, at(sec)); d.ShouldFlush {
			flushedAt = sec
			break
		}
	}
	assert.Equal(t, 60, flushedAt)
}
