package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/NordCoder/Herald/internal/domain"
	"github.com/NordCoder/Herald/internal/domain/aggregation"
	"github.com/NordCoder/Herald/internal/domain/event"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/task"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/NordCoder/Herald/internal/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrClaimRaced is returned when a concurrent run handled some of the batch
// between the re-read and the claim. The transaction is rolled back.
var ErrClaimRaced = fmt.Errorf("events claimed concurrently: %w", domain.ErrConflict)

// errNothingToFlush aborts the flush transaction without side effects.
var errNothingToFlush = errors.New("nothing to flush")

var (
	mFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aggregator_flushes_total", Help: "Notifications created by a flush.",
	})
	mRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aggregator_requeues_total", Help: "Flush checks deferred by the debounce window.",
	})
	mRaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aggregator_races_lost_total", Help: "Flushes aborted because the batch was claimed concurrently.",
	})
	mFlushedEvents = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "aggregator_flush_batch_events", Help: "Events per flushed notification.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})
)

type Config struct {
	// FanoutDelay is how long after a flush the delivery fan-out runs.
	FanoutDelay time.Duration
	// FanoutBucket is the width of the fan-out dedupe window.
	FanoutBucket time.Duration
}

type Outcome string

const (
	OutcomeNoop     Outcome = "noop"
	OutcomeDisabled Outcome = "disabled"
	OutcomeRequeued Outcome = "requeued"
	OutcomeFlushed  Outcome = "flushed"
)

type Usecase struct {
	events event.Repo
	notifs notification.Repo
	tx     domain.Transactor
	sched  task.Scheduler
	policy aggregation.Lookup
	clock  notification.Clock
	cfg    Config
	log    *zap.Logger
}

func NewUC(
	events event.Repo,
	notifs notification.Repo,
	tx domain.Transactor,
	sched task.Scheduler,
	policy aggregation.Lookup,
	clock notification.Clock,
	cfg Config,
	log *zap.Logger,
) *Usecase {
	if cfg.FanoutDelay <= 0 {
		cfg.FanoutDelay = 2 * time.Second
	}
	if cfg.FanoutBucket <= 0 {
		cfg.FanoutBucket = 5 * time.Second
	}
	return &Usecase{
		events: events, notifs: notifs, tx: tx, sched: sched, policy: policy, clock: clock, cfg: cfg,
		log: log.With(zap.String("component", "aggregator")),
	}
}

// ScheduleCheck schedules a flush check of key at the end of the second
// containing at. Requests for the same key within that second collapse onto
// one task, which is never due before any of them.
func ScheduleCheck(ctx context.Context, sched task.Scheduler, key string, at time.Time) error {
	due, _ := tasks.Window(at, time.Second)
	return sched.Schedule(ctx, task.HandlerAggregate, task.AggregatePayload{AggregationKey: key}, task.ScheduleOptions{
		DedupeKey: tasks.BucketKey("aggregate", key, at, time.Second),
		NotBefore: due,
	})
}

// HandleTask is the task handler for task.HandlerAggregate.
func (u *Usecase) HandleTask(ctx context.Context, data []byte) error {
	var p task.AggregatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return retry.Permanent{Err: fmt.Errorf("decode aggregate payload: %w", err)}
	}
	if p.AggregationKey == "" {
		return retry.Permanent{Err: errors.New("aggregate payload: empty aggregation_key")}
	}
	_, err := u.Handle(ctx, p.AggregationKey)
	return err
}

// Handle runs one flush check for key. It is safe to call repeatedly and
// concurrently: at most one caller creates a notification for a given batch.
func (u *Usecase) Handle(ctx context.Context, key string) (Outcome, error) {
	tr := otel.Tracer("aggregator.uc")
	ctx, span := tr.Start(ctx, "aggregator.handle",
		trace.WithAttributes(attribute.String("aggregation.key", key)),
	)
	defer span.End()
	log := obs.WithTrace(ctx, u.log).With(zap.String("aggregation_key", key))

	sample, err := u.events.FindAnyUnhandled(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return OutcomeNoop, nil
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("find unhandled event: %w", err)
	}

	unhandled, err := u.events.ListUnhandled(ctx, key)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("list unhandled events: %w", err)
	}

	now := u.clock.Now()
	d := Decide(u.policy, sample, unhandled, now)
	span.SetAttributes(
		attribute.Bool("flush", d.ShouldFlush),
		attribute.Int("events.unhandled", len(unhandled)),
	)

	if !d.ShouldFlush {
		if d.RequeueDelay <= 0 {
			log.Debug("notifications disabled or nothing unhandled",
				zap.String("event", sample.EventIdentifier), zap.String("emitter", sample.EmitterIdentifier))
			if len(unhandled) == 0 {
				return OutcomeNoop, nil
			}
			return OutcomeDisabled, nil
		}
		if err := ScheduleCheck(ctx, u.sched, key, now.Add(d.RequeueDelay)); err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("requeue aggregate: %w", err)
		}
		mRequeued.Inc()
		log.Debug("flush deferred", zap.Duration("delay", d.RequeueDelay))
		return OutcomeRequeued, nil
	}

	n, err := u.flush(ctx, key, now)
	switch {
	case errors.Is(err, errNothingToFlush):
		log.Debug("batch already flushed")
		return OutcomeNoop, nil
	case errors.Is(err, ErrClaimRaced):
		mRaced.Inc()
		log.Info("flush lost race", zap.Error(err))
		return "", err
	case err != nil:
		span.RecordError(err)
		return "", fmt.Errorf("flush: %w", err)
	}

	mFlushed.Inc()
	mFlushedEvents.Observe(float64(len(n.EventIDs)))
	span.SetAttributes(attribute.Int64("notification.id", n.ID))
	log.Info("notification created",
		zap.Int64("notification_id", n.ID),
		zap.Int("events", len(n.EventIDs)),
	)
	return OutcomeFlushed, nil
}

func (u *Usecase) flush(ctx context.Context, key string, now time.Time) (*notification.Notification, error) {
	var created *notification.Notification

	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		batch, err := u.events.ListUnhandled(ctx, key)
		if err != nil {
			return fmt.Errorf("re-read unhandled events: %w", err)
		}
		if len(batch) == 0 {
			return errNothingToFlush
		}

		first := batch[0]
		content := BuildContent(first, batch)
		ids := make([]int64, len(batch))
		for i, e := range batch {
			ids[i] = e.ID
		}

		n := &notification.Notification{
			EventIdentifier:         first.EventIdentifier,
			EmitterIdentifier:       first.EmitterIdentifier,
			AggregationKey:          key,
			TargetLocationFolderID:  first.TargetLocationFolderID,
			TargetLocationObjectKey: first.TargetLocationObjectKey,
			TargetUserID:            first.TargetUserID,
			EventIDs:                ids,
			Title:                   content.Title,
			Body:                    content.Body,
			Path:                    content.Path,
			CreatedAt:               now,
		}
		if err := u.notifs.Create(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}

		affected, err := u.events.MarkHandled(ctx, ids, now)
		if err != nil {
			return fmt.Errorf("mark events handled: %w", err)
		}
		if affected != int64(len(ids)) {
			return fmt.Errorf("%w: claimed %d of %d", ErrClaimRaced, affected, len(ids))
		}

		at, window := tasks.DueAfterWindow(now, u.cfg.FanoutBucket, u.cfg.FanoutDelay)
		err = u.sched.Schedule(ctx, task.HandlerFanout, task.FanoutPayload{NotificationID: n.ID}, task.ScheduleOptions{
			DedupeKey: tasks.Key("fanout", key, strconv.FormatInt(n.ID, 10)) + ":" + window,
			NotBefore: at,
		})
		if err != nil {
			return fmt.Errorf("schedule fanout: %w", err)
		}
		created = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
