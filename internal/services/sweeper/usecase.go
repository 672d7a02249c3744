package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NordCoder/Herald/internal/domain/aggregation"
	"github.com/NordCoder/Herald/internal/domain/event"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/task"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/services/aggregator"
	"github.com/NordCoder/Herald/internal/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	mKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_stale_keys_total", Help: "Stale aggregation keys rescheduled for a flush check.",
	})
	mSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_disabled_keys_skipped_total", Help: "Stale keys skipped because their event type is disabled.",
	})
	mEmail = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_email_batches_total", Help: "Email batches scheduled for leftover pending deliveries.",
	})
)

type Config struct {
	// StaleAfter is how old an unhandled event must be before its key is
	// considered forgotten.
	StaleAfter time.Duration
	// KeyLimit is the page size and the most keys rescheduled per sweep.
	KeyLimit int
	// MaxPages bounds how many pages one sweep reads.
	MaxPages int
}

type Result struct {
	Keys           int
	Skipped        int
	EmailScheduled bool
}

// Usecase re-schedules work whose task was lost or collapsed onto one that
// had already run.
type Usecase struct {
	events     event.Repo
	policy     aggregation.Lookup
	deliveries notification.DeliveryRepo
	sender     notification.EmailSender
	sched      task.Scheduler
	clock      notification.Clock
	cfg        Config
	log        *zap.Logger

	// cursor resumes the scan where the previous sweep stopped, so keys that
	// stay unhandled forever cannot hide the ones behind them.
	mu     sync.Mutex
	cursor *event.StaleKey
}

func NewUC(
	events event.Repo,
	policy aggregation.Lookup,
	deliveries notification.DeliveryRepo,
	sender notification.EmailSender,
	sched task.Scheduler,
	clock notification.Clock,
	cfg Config,
	log *zap.Logger,
) *Usecase {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.KeyLimit <= 0 {
		cfg.KeyLimit = 500
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &Usecase{
		events: events, policy: policy, deliveries: deliveries, sender: sender, sched: sched, clock: clock, cfg: cfg,
		log: log.With(zap.String("component", "sweeper")),
	}
}

func (u *Usecase) Sweep(ctx context.Context) (Result, error) {
	ctx, span := otel.Tracer("sweeper.uc").Start(ctx, "sweeper.sweep")
	defer span.End()
	log := obs.WithTrace(ctx, u.log)

	now := u.clock.Now()
	res, err := u.sweepKeys(ctx, now)
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	if u.sender.Configured() {
		pending, err := u.deliveries.CountPendingEmail(ctx)
		if err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("count pending email: %w", err)
		}
		if pending > 0 {
			due, bucket := tasks.Window(now, time.Second)
			err := u.sched.Schedule(ctx, task.HandlerEmailBatch, task.EmailBatchPayload{Bucket: bucket}, task.ScheduleOptions{
				DedupeKey: "email_batch:sweep:" + bucket,
				NotBefore: due,
			})
			if err != nil {
				span.RecordError(err)
				return res, fmt.Errorf("schedule email batch: %w", err)
			}
			res.EmailScheduled = true
			mEmail.Inc()
		}
	}

	span.SetAttributes(
		attribute.Int("keys", res.Keys),
		attribute.Int("skipped", res.Skipped),
		attribute.Bool("email", res.EmailScheduled),
	)
	if res.Keys > 0 || res.EmailScheduled {
		log.Info("sweep rescheduled work",
			zap.Int("keys", res.Keys),
			zap.Int("skipped", res.Skipped),
			zap.Bool("email", res.EmailScheduled),
		)
	}
	return res, nil
}

// sweepKeys reschedules flush checks for stale keys of enabled event types.
// Keys of disabled types never get handled, so they are skipped rather than
// counted against KeyLimit.
func (u *Usecase) sweepKeys(ctx context.Context, now time.Time) (Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var res Result
	for page := 0; page < u.cfg.MaxPages && res.Keys < u.cfg.KeyLimit; page++ {
		keys, err := u.events.ListStaleKeys(ctx, now.Add(-u.cfg.StaleAfter), u.cursor, u.cfg.KeyLimit)
		if err != nil {
			return res, fmt.Errorf("list stale keys: %w", err)
		}
		for i := range keys {
			if res.Keys == u.cfg.KeyLimit {
				return res, nil
			}
			k := keys[i]
			u.cursor = &k
			if cfg, ok := u.policy.Lookup(k.Emitter, k.Event); !ok || !cfg.NotificationsEnabled {
				res.Skipped++
				mSkipped.Inc()
				continue
			}
			if err := aggregator.ScheduleCheck(ctx, u.sched, k.Key, now); err != nil {
				return res, fmt.Errorf("schedule flush check for %q: %w", k.Key, err)
			}
			res.Keys++
			mKeys.Inc()
		}
		if len(keys) < u.cfg.KeyLimit {
			// End of the stale set; the next sweep starts over.
			u.cursor = nil
			break
		}
	}
	return res, nil
}
