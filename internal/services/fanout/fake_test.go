package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NordCoder/Herald/internal/domain"
	"github.com/NordCoder/Herald/internal/domain/event"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/task"
	"github.com/google/uuid"
)

type fakeFolders struct {
	owners map[uuid.UUID]uuid.UUID
	shares map[uuid.UUID][]uuid.UUID
}

func (f fakeFolders) GetOwnerID(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	o, ok := f.owners[id]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	return o, nil
}

func (f fakeFolders) ListActiveShareUserIDs(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	return f.shares[id], nil
}

type fakeSettings struct{ rows []notification.Setting }

func (f fakeSettings) ListForResolve(_ context.Context, userID uuid.UUID, eventID, emitterID string, folderID *uuid.UUID) ([]notification.Setting, error) {
	var out []notification.Setting
	for _, s := range f.rows {
		if s.UserID != userID || s.EventIdentifier != eventID || s.EmitterIdentifier != emitterID {
			continue
		}
		if s.FolderID != nil && (folderID == nil || *s.FolderID != *folderID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type fakeNotifs map[int64]*notification.Notification

func (f fakeNotifs) Create(context.Context, *notification.Notification) error {
	return errors.New("not supported")
}

func (f fakeNotifs) GetByID(_ context.Context, id int64) (*notification.Notification, error) {
	n, ok := f[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return n, nil
}

type fakeEvents map[int64]*event.Event

func (f fakeEvents) FindAnyUnhandled(context.Context, string) (*event.Event, error) {
	return nil, domain.ErrNotFound
}
func (f fakeEvents) ListUnhandled(context.Context, string) ([]*event.Event, error) { return nil, nil }
func (f fakeEvents) MarkHandled(context.Context, []int64, time.Time) (int64, error) {
	return 0, nil
}
func (f fakeEvents) GetByID(_ context.Context, id int64) (*event.Event, error) {
	e, ok := f[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}
func (f fakeEvents) ListStaleKeys(context.Context, time.Time, *event.StaleKey, int) ([]event.StaleKey, error) {
	return nil, nil
}

type deliveryKey struct {
	notificationID int64
	userID         uuid.UUID
}

type deliveryRow struct {
	email  *notification.ChannelStatus
	mobile *notification.ChannelStatus
}

// fakeDeliveries mirrors the upgrade-only upsert of the SQL repository.
type fakeDeliveries struct {
	mu   sync.Mutex
	rows map[deliveryKey]*deliveryRow
}

func newFakeDeliveries() *fakeDeliveries {
	return &fakeDeliveries{rows: map[deliveryKey]*deliveryRow{}}
}

func pending() *notification.ChannelStatus {
	s := notification.StatusPending
	return &s
}

func (f *fakeDeliveries) Upsert(_ context.Context, notificationID int64, userID uuid.UUID, email, mobile bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := deliveryKey{notificationID, userID}
	row, ok := f.rows[k]
	if !ok {
		row = &deliveryRow{}
		f.rows[k] = row
	}
	if email && row.email == nil {
		row.email = pending()
	}
	if mobile && row.mobile == nil {
		row.mobile = pending()
	}
	return nil
}

func (f *fakeDeliveries) ClaimPendingEmail(context.Context, int, time.Duration) ([]notification.EmailJob, error) {
	return nil, nil
}
func (f *fakeDeliveries) MarkEmailSent(context.Context, []int64, time.Time) error { return nil }
func (f *fakeDeliveries) MarkEmailFailed(context.Context, []int64, string, time.Time) error {
	return nil
}
func (f *fakeDeliveries) ReleaseEmail(context.Context, []int64) error { return nil }
func (f *fakeDeliveries) CountPendingEmail(context.Context) (int64, error) {
	return 0, nil
}

type push struct {
	userID uuid.UUID
	typ    string
	body   map[string]any
}

type fakePusher struct {
	pushes []push
	fail   map[uuid.UUID]bool
}

func (f *fakePusher) PushToUser(_ context.Context, userID uuid.UUID, typ string, payload map[string]any) error {
	if f.fail[userID] {
		return errors.New("broker down")
	}
	f.pushes = append(f.pushes, push{userID, typ, payload})
	return nil
}

type scheduled struct {
	handler string
	payload any
	opts    task.ScheduleOptions
}

type fakeSched struct{ calls []scheduled }

func (f *fakeSched) Schedule(_ context.Context, handler string, payload any, opts task.ScheduleOptions) error {
	f.calls = append(f.calls, scheduled{handler, payload, opts})
	return nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }
