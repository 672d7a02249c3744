package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain"
	"github.com/NordCoder/Herald/internal/domain/event"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/realtime"
	"github.com/NordCoder/Herald/internal/domain/task"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/NordCoder/Herald/internal/tasks"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	mDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanout_deliveries_upserted_total", Help: "Delivery rows inserted or upgraded.",
	})
	mPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanout_realtime_pushes_total", Help: "Realtime notifications pushed.",
	})
	mPushErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanout_realtime_push_errors_total", Help: "Realtime pushes that failed.",
	})
	mEmailBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanout_email_batches_scheduled_total", Help: "Email batch schedules requested by fan-out.",
	})
)

type Config struct {
	// EmailDelay is how long after fan-out the email batch runs.
	EmailDelay time.Duration
	// EmailBucket is the window within which fan-outs share one email batch.
	EmailBucket time.Duration
}

type Result struct {
	Recipients     int
	Pushed         int
	EmailScheduled bool
}

type Usecase struct {
	notifs     notification.Repo
	events     event.Repo
	deliveries notification.DeliveryRepo
	recipients *RecipientResolver
	settings   *SettingsResolver
	pusher     realtime.Pusher
	sched      task.Scheduler
	clock      notification.Clock
	cfg        Config
	log        *zap.Logger
}

func NewUC(
	notifs notification.Repo,
	events event.Repo,
	deliveries notification.DeliveryRepo,
	recipients *RecipientResolver,
	settings *SettingsResolver,
	pusher realtime.Pusher,
	sched task.Scheduler,
	clock notification.Clock,
	cfg Config,
	log *zap.Logger,
) *Usecase {
	if cfg.EmailDelay <= 0 {
		cfg.EmailDelay = 5 * time.Second
	}
	if cfg.EmailBucket <= 0 {
		cfg.EmailBucket = 10 * time.Second
	}
	return &Usecase{
		notifs: notifs, events: events, deliveries: deliveries,
		recipients: recipients, settings: settings, pusher: pusher, sched: sched,
		clock: clock, cfg: cfg,
		log: log.With(zap.String("component", "fanout")),
	}
}

// HandleTask is the task handler for task.HandlerFanout.
func (u *Usecase) HandleTask(ctx context.Context, data []byte) error {
	var p task.FanoutPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return retry.Permanent{Err: fmt.Errorf("decode fanout payload: %w", err)}
	}
	if p.NotificationID <= 0 {
		return retry.Permanent{Err: fmt.Errorf("fanout payload: bad notification_id %d", p.NotificationID)}
	}
	_, err := u.Handle(ctx, p.NotificationID)
	return err
}

// Handle materializes the deliveries of one notification. Re-running it for
// the same notification never duplicates rows nor downgrades statuses.
func (u *Usecase) Handle(ctx context.Context, notificationID int64) (Result, error) {
	tr := otel.Tracer("fanout.uc")
	ctx, span := tr.Start(ctx, "fanout.handle",
		trace.WithAttributes(attribute.Int64("notification.id", notificationID)),
	)
	defer span.End()
	log := obs.WithTrace(ctx, u.log).With(zap.Int64("notification_id", notificationID))

	n, err := u.notifs.GetByID(ctx, notificationID)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("get notification %d: %w", notificationID, err)
	}

	actor, err := u.actor(ctx, n)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	users, err := u.recipients.Resolve(ctx, n)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("resolve recipients: %w", err)
	}

	res := Result{Recipients: len(users)}
	wantsEmail := false
	payload := pushPayload(n)

	for _, userID := range users {
		ch, err := u.settings.Resolve(ctx, userID, n.EventIdentifier, n.EmitterIdentifier, n.TargetLocationFolderID)
		if err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("resolve settings for %s: %w", userID, err)
		}
		if err := u.deliveries.Upsert(ctx, n.ID, userID, ch.Email, ch.Mobile); err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("upsert delivery for %s: %w", userID, err)
		}
		mDeliveries.Inc()
		if ch.Email {
			wantsEmail = true
		}

		if actor != nil && *actor == userID {
			continue
		}
		if err := u.pusher.PushToUser(ctx, userID, realtime.MessageTypeNotification, payload); err != nil {
			mPushErr.Inc()
			log.Warn("realtime push failed", zap.String("user_id", userID.String()), zap.Error(err))
			continue
		}
		mPushed.Inc()
		res.Pushed++
	}

	if wantsEmail {
		// Fan-outs later in the window collapse onto this batch, so it is due
		// only once the window has closed.
		due, bucket := tasks.DueAfterWindow(u.clock.Now(), u.cfg.EmailBucket, u.cfg.EmailDelay)
		err := u.sched.Schedule(ctx, task.HandlerEmailBatch, task.EmailBatchPayload{Bucket: bucket}, task.ScheduleOptions{
			DedupeKey: "email_batch:" + bucket,
			NotBefore: due,
		})
		if err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("schedule email batch: %w", err)
		}
		mEmailBatches.Inc()
		res.EmailScheduled = true
	}

	span.SetAttributes(
		attribute.Int("recipients", res.Recipients),
		attribute.Int("pushed", res.Pushed),
		attribute.Bool("email", res.EmailScheduled),
	)
	log.Debug("fanout done",
		zap.Int("recipients", res.Recipients),
		zap.Int("pushed", res.Pushed),
		zap.Bool("email", res.EmailScheduled),
	)
	return res, nil
}

// actor is the user who caused the first event of the batch, if recorded.
func (u *Usecase) actor(ctx context.Context, n *notification.Notification) (*uuid.UUID, error) {
	if len(n.EventIDs) == 0 {
		return nil, nil
	}
	e, err := u.events.GetByID(ctx, n.EventIDs[0])
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get first event: %w", err)
	}
	return e.ActorID(), nil
}

// pushPayload is the notification as the web client lists it, unread. Values
// are restricted to what a protobuf Struct can carry.
func pushPayload(n *notification.Notification) map[string]any {
	ids := make([]any, len(n.EventIDs))
	for i, id := range n.EventIDs {
		ids[i] = id
	}
	return map[string]any{
		"id":                         n.ID,
		"event_identifier":           n.EventIdentifier,
		"emitter_identifier":         n.EmitterIdentifier,
		"aggregation_key":            n.AggregationKey,
		"target_location_folder_id":  uuidOrNil(n.TargetLocationFolderID),
		"target_location_object_key": stringOrNil(n.TargetLocationObjectKey),
		"target_user_id":             uuidOrNil(n.TargetUserID),
		"event_ids":                  ids,
		"title":                      n.Title,
		"body":                       stringOrNil(n.Body),
		"path":                       stringOrNil(n.Path),
		"created_at":                 n.CreatedAt.UTC().Format(time.RFC3339Nano),
		"read_at":                    nil,
	}
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
