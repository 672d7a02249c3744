package emailsender

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/task"
	"github.com/google/uuid"
)

type row struct {
	job    notification.EmailJob
	status notification.ChannelStatus
	code   string
}

// fakeDeliveries keeps email status per delivery and claims like the SQL
// repository: pending rows move to sending, in id order.
type fakeDeliveries struct {
	mu   sync.Mutex
	rows []*row
}

func newFakeDeliveries(n int, withEmail func(i int) bool) *fakeDeliveries {
	f := &fakeDeliveries{}
	for i := 0; i < n; i++ {
		j := notification.EmailJob{
			DeliveryID:   int64(i + 1),
			UserID:       uuid.New(),
			Notification: notification.Notification{ID: 1, Title: "2 objects added"},
		}
		if withEmail == nil || withEmail(i) {
			addr := "user" + uuid.NewString()[:8] + "@example.com"
			j.Email = &addr
		}
		f.rows = append(f.rows, &row{job: j, status: notification.StatusPending})
	}
	return f
}

func (f *fakeDeliveries) count(s notification.ChannelStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.status == s {
			n++
		}
	}
	return n
}

func (f *fakeDeliveries) byID(id int64) *row {
	for _, r := range f.rows {
		if r.job.DeliveryID == id {
			return r
		}
	}
	return nil
}

func (f *fakeDeliveries) Upsert(context.Context, int64, uuid.UUID, bool, bool) error { return nil }

func (f *fakeDeliveries) ClaimPendingEmail(_ context.Context, limit int, _ time.Duration) ([]notification.EmailJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notification.EmailJob
	for _, r := range f.rows {
		if len(out) == limit {
			break
		}
		if r.status == notification.StatusPending {
			r.status = notification.StatusSending
			out = append(out, r.job)
		}
	}
	return out, nil
}

func (f *fakeDeliveries) move(ids []int64, to notification.ChannelStatus, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if r := f.byID(id); r != nil && r.status == notification.StatusSending {
			r.status = to
			r.code = code
		}
	}
}

func (f *fakeDeliveries) MarkEmailSent(_ context.Context, ids []int64, _ time.Time) error {
	f.move(ids, notification.StatusSent, "")
	return nil
}

func (f *fakeDeliveries) MarkEmailFailed(_ context.Context, ids []int64, code string, _ time.Time) error {
	f.move(ids, notification.StatusFailed, code)
	return nil
}

func (f *fakeDeliveries) ReleaseEmail(_ context.Context, ids []int64) error {
	f.move(ids, notification.StatusPending, "")
	return nil
}

func (f *fakeDeliveries) CountPendingEmail(context.Context) (int64, error) {
	return int64(f.count(notification.StatusPending)), nil
}

// fakeSender fails according to failAt (1-based call number).
type fakeSender struct {
	configured bool
	calls      int
	sent       []notification.EmailMessage
	failAt     map[int]error
}

func (s *fakeSender) Configured() bool { return s.configured }

func (s *fakeSender) Send(_ context.Context, msg notification.EmailMessage) error {
	s.calls++
	if err := s.failAt[s.calls]; err != nil {
		if errors.Is(err, ErrNotConfigured) {
			s.configured = false
		}
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type fakeSched struct {
	calls []task.ScheduleOptions
}

func (f *fakeSched) Schedule(_ context.Context, handler string, _ any, opts task.ScheduleOptions) error {
	if handler != task.HandlerEmailBatch {
		return errors.New("unexpected handler " + handler)
	}
	f.calls = append(f.calls, opts)
	return nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }
