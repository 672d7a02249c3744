package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NordCoder/Herald/internal/domain"
	"github.com/NordCoder/Herald/internal/domain/event"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/task"
)

type scheduled struct {
	Handler string
	Payload any
	Opts    task.ScheduleOptions
}

// world is an in-memory store shared by every fake port. The fake transactor
// serializes transactions and restores the snapshot on error.
type world struct {
	mu         sync.Mutex
	txMu       sync.Mutex
	events     map[int64]*event.Event
	notifs     []*notification.Notification
	scheduled  []scheduled
	nextNotif  int64
	txMarked   []int64
	beforeMark func(w *world)
}

func newWorld(evs ...*event.Event) *world {
	w := &world{events: map[int64]*event.Event{}}
	for _, e := range evs {
		c := *e
		w.events[e.ID] = &c
	}
	return w
}

type snapshot struct {
	notifs    int
	scheduled int
	nextNotif int64
}

func (w *world) snapshot() snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txMarked = nil
	return snapshot{notifs: len(w.notifs), scheduled: len(w.scheduled), nextNotif: w.nextNotif}
}

// restore undoes what the failed transaction wrote. Changes made by a
// beforeMark hook stand for a concurrent committed run and are kept.
func (w *world) restore(s snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range w.txMarked {
		w.events[id].AggregationHandledAt = nil
	}
	w.txMarked = nil
	w.notifs = w.notifs[:s.notifs]
	w.scheduled = w.scheduled[:s.scheduled]
	w.nextNotif = s.nextNotif
}

func (w *world) unhandled(key string) []*event.Event {
	var out []*event.Event
	for _, e := range w.events {
		if e.AggregationKey == key && e.AggregationHandledAt == nil {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (w *world) add(e *event.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := *e
	w.events[e.ID] = &c
}

type fakeTx struct{ w *world }

func (f fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.w.txMu.Lock()
	defer f.w.txMu.Unlock()
	snap := f.w.snapshot()
	if err := fn(ctx); err != nil {
		f.w.restore(snap)
		return err
	}
	return nil
}

type fakeEvents struct{ w *world }

func (f fakeEvents) FindAnyUnhandled(_ context.Context, key string) (*event.Event, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	list := f.w.unhandled(key)
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return list[0], nil
}

func (f fakeEvents) ListUnhandled(_ context.Context, key string) ([]*event.Event, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return f.w.unhandled(key), nil
}

func (f fakeEvents) MarkHandled(_ context.Context, ids []int64, at time.Time) (int64, error) {
	if hook := f.w.beforeMark; hook != nil {
		f.w.beforeMark = nil
		hook(f.w)
	}
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var n int64
	for _, id := range ids {
		e, ok := f.w.events[id]
		if ok && e.AggregationHandledAt == nil {
			t := at
			e.AggregationHandledAt = &t
			f.w.txMarked = append(f.w.txMarked, id)
			n++
		}
	}
	return n, nil
}

func (f fakeEvents) GetByID(_ context.Context, id int64) (*event.Event, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	e, ok := f.w.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (f fakeEvents) ListStaleKeys(context.Context, time.Time, *event.StaleKey, int) ([]event.StaleKey, error) {
	return nil, nil
}

type fakeNotifs struct{ w *world }

func (f fakeNotifs) Create(_ context.Context, n *notification.Notification) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.nextNotif++
	n.ID = f.w.nextNotif
	c := *n
	f.w.notifs = append(f.w.notifs, &c)
	return nil
}

func (f fakeNotifs) GetByID(_ context.Context, id int64) (*notification.Notification, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, n := range f.w.notifs {
		if n.ID == id {
			c := *n
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeSched struct{ w *world }

func (f fakeSched) Schedule(_ context.Context, handler string, payload any, opts task.ScheduleOptions) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, s := range f.w.scheduled {
		if s.Opts.DedupeKey == opts.DedupeKey {
			return nil
		}
	}
	f.w.scheduled = append(f.w.scheduled, scheduled{Handler: handler, Payload: payload, Opts: opts})
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
