package trigger

import (
	"context"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/task"
	kafkax "github.com/NordCoder/Herald/internal/repository/kafka"
	"github.com/NordCoder/Herald/internal/services/aggregator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trigger_events_consumed_total", Help: "Event-recorded messages consumed.",
	})
	mMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trigger_events_malformed_total", Help: "Event-recorded messages skipped as malformed.",
	})
)

// Usecase turns event-recorded announcements into flush checks.
type Usecase struct {
	sched task.Scheduler
	clock notification.Clock
	log   *zap.Logger
}

func NewUC(sched task.Scheduler, clock notification.Clock, log *zap.Logger) *Usecase {
	return &Usecase{sched: sched, clock: clock, log: log.With(zap.String("component", "trigger"))}
}

func (u *Usecase) OnEventRecorded(ctx context.Context, ev kafkax.EventRecorded) error {
	mConsumed.Inc()
	if err := aggregator.ScheduleCheck(ctx, u.sched, ev.AggregationKey, u.clock.Now()); err != nil {
		return fmt.Errorf("schedule flush check: %w", err)
	}
	u.log.Debug("flush check scheduled",
		zap.String("aggregation_key", ev.AggregationKey),
		zap.Time("recorded_at", ev.RecordedAt),
	)
	return nil
}
