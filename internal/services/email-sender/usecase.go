package emailsender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

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

// Failure codes stored in email_error.
const (
	CodeNoAddress      = "no_email_address"
	CodeInvalidAddress = "invalid_email_address"
	CodeSendFailed     = "send_failed"
)

var (
	mSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_sender_emails_sent_total", Help: "Emails accepted by the provider.",
	})
	mFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "email_sender_emails_failed_total", Help: "Email deliveries marked failed.",
	}, []string{"code"})
	mPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_sender_pages_total", Help: "Pages of pending deliveries processed.",
	})
	mReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_sender_released_total", Help: "Claimed deliveries returned to pending unsent.",
	})
)

type Config struct {
	PageSize       int
	NextDelay      time.Duration
	ClaimTTL       time.Duration
	PlatformOrigin string
}

type Result struct {
	Claimed     int
	Sent        int
	Failed      int
	Released    int
	Rescheduled bool
}

type Usecase struct {
	deliveries notification.DeliveryRepo
	sender     notification.EmailSender
	sched      task.Scheduler
	clock      notification.Clock
	cfg        Config
	log        *zap.Logger
}

func NewUC(
	deliveries notification.DeliveryRepo,
	sender notification.EmailSender,
	sched task.Scheduler,
	clock notification.Clock,
	cfg Config,
	log *zap.Logger,
) *Usecase {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.NextDelay <= 0 {
		cfg.NextDelay = 2 * time.Second
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	return &Usecase{
		deliveries: deliveries, sender: sender, sched: sched, clock: clock, cfg: cfg,
		log: log.With(zap.String("component", "email-sender")),
	}
}

// HandleTask is the task handler for task.HandlerEmailBatch.
func (u *Usecase) HandleTask(ctx context.Context, data []byte) error {
	var p task.EmailBatchPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return retry.Permanent{Err: fmt.Errorf("decode email batch payload: %w", err)}
	}
	_, err := u.Handle(ctx, p.Bucket)
	return err
}

// Handle sends one page of pending email deliveries and schedules the next
// page when this one came back full or the provider throttled it.
func (u *Usecase) Handle(ctx context.Context, bucket string) (Result, error) {
	tr := otel.Tracer("email-sender.uc")
	ctx, span := tr.Start(ctx, "email.batch",
		trace.WithAttributes(attribute.String("bucket", bucket)),
	)
	defer span.End()
	log := obs.WithTrace(ctx, u.log).With(zap.String("bucket", bucket))

	if !u.sender.Configured() {
		log.Info("email provider not configured; skipping batch")
		return Result{}, nil
	}

	jobs, err := u.deliveries.ClaimPendingEmail(ctx, u.cfg.PageSize, u.cfg.ClaimTTL)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("claim pending email: %w", err)
	}
	res := Result{Claimed: len(jobs)}
	if len(jobs) == 0 {
		return res, nil
	}
	mPages.Inc()

	var sent []int64
	failed := map[string][]int64{}
	var release []int64
	throttled := false

	for i, job := range jobs {
		if ctx.Err() != nil {
			release = idsOf(jobs[i:])
			break
		}
		if job.Email == nil || *job.Email == "" {
			failed[CodeNoAddress] = append(failed[CodeNoAddress], job.DeliveryID)
			continue
		}

		msg, err := Render(job.Notification, *job.Email, u.cfg.PlatformOrigin)
		if err == nil {
			err = u.sender.Send(ctx, msg)
		}
		switch {
		case err == nil:
			sent = append(sent, job.DeliveryID)
		case errors.Is(err, ErrNotConfigured):
			log.Warn("email provider became unconfigured; leaving rest of page pending",
				zap.Int("processed", i), zap.Int("page", len(jobs)))
			release = idsOf(jobs[i:])
		case errors.Is(err, ErrThrottled):
			log.Info("provider rate limit reached; deferring rest of page",
				zap.Int("processed", i), zap.Int("page", len(jobs)))
			release = idsOf(jobs[i:])
			throttled = true
		case errors.Is(err, ErrInvalidAddress):
			failed[CodeInvalidAddress] = append(failed[CodeInvalidAddress], job.DeliveryID)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			release = idsOf(jobs[i:])
		default:
			log.Warn("email send failed", zap.Int64("delivery_id", job.DeliveryID), zap.Error(err))
			failed[CodeSendFailed] = append(failed[CodeSendFailed], job.DeliveryID)
		}
		if release != nil {
			break
		}
	}

	// Bookkeeping must land even if the task is being cancelled.
	bctx := context.WithoutCancel(ctx)
	now := u.clock.Now()

	if err := u.deliveries.MarkEmailSent(bctx, sent, now); err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("mark email sent: %w", err)
	}
	res.Sent = len(sent)
	mSent.Add(float64(len(sent)))

	codes := make([]string, 0, len(failed))
	for code := range failed {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		ids := failed[code]
		if err := u.deliveries.MarkEmailFailed(bctx, ids, code, now); err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("mark email failed: %w", err)
		}
		res.Failed += len(ids)
		mFailed.WithLabelValues(code).Add(float64(len(ids)))
	}

	if len(release) > 0 {
		if err := u.deliveries.ReleaseEmail(bctx, release); err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("release email: %w", err)
		}
		res.Released = len(release)
		mReleased.Add(float64(len(release)))
	}

	if len(jobs) == u.cfg.PageSize || throttled {
		due, next := tasks.DueAfterWindow(now, time.Millisecond, u.cfg.NextDelay)
		err := u.sched.Schedule(bctx, task.HandlerEmailBatch, task.EmailBatchPayload{Bucket: next}, task.ScheduleOptions{
			DedupeKey: "email_batch:next:" + next,
			NotBefore: due,
		})
		if err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("schedule next email page: %w", err)
		}
		res.Rescheduled = true
	}

	span.SetAttributes(
		attribute.Int("claimed", res.Claimed),
		attribute.Int("sent", res.Sent),
		attribute.Int("failed", res.Failed),
		attribute.Int("released", res.Released),
		attribute.Bool("rescheduled", res.Rescheduled),
	)
	log.Info("email page processed",
		zap.Int("claimed", res.Claimed),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("released", res.Released),
		zap.Bool("rescheduled", res.Rescheduled),
	)
	return res, ctx.Err()
}

func idsOf(jobs []notification.EmailJob) []int64 {
	out := make([]int64, len(jobs))
	for i, j := range jobs {
		out[i] = j.DeliveryID
	}
	return out
}
