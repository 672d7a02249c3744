package tasks

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/NordCoder/Herald/internal/domain/task"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type RunnerConfig struct {
	Workers       int
	BatchSize     int
	PollInterval  time.Duration
	InProgressTTL time.Duration
	MaxAttempts   int
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.InProgressTTL <= 0 {
		c.InProgressTTL = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	return c
}

// Runner executes due tasks at least once. A task whose handler fails stays
// IN_PROGRESS and is picked again after InProgressTTL, unless the error is
// retry.Permanent.
type Runner struct {
	log      *zap.Logger
	repo     task.Repository
	dispatch task.Dispatcher
	cfg      RunnerConfig
	wg       sync.WaitGroup
}

var (
	mPicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasks_picked_total", Help: "Tasks picked into processing.",
	})
	mOk = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasks_processed_ok_total", Help: "Tasks processed successfully.",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasks_processed_err_total", Help: "Task handler and bookkeeping errors.",
	})
	mTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "tasks_tick_duration_seconds", Help: "Tick duration.",
		Buckets: prometheus.DefBuckets,
	})
	mBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tasks_last_batch_size", Help: "Size of last picked batch.",
	})
)

func NewRunner(
	log *zap.Logger,
	repo task.Repository,
	dispatch task.Dispatcher,
	cfg RunnerConfig,
) *Runner {
	return &Runner{
		log: log.With(zap.String("component", "tasks.runner")), repo: repo, dispatch: dispatch,
		cfg: cfg.withDefaults(),
	}
}

func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
}

// Wait blocks until every worker has returned after ctx cancellation.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.log.With(zap.Int("worker", id))
	log.Info("task worker started", zap.String("poll_ms", strconv.FormatInt(r.cfg.PollInterval.Milliseconds(), 10)))

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("task worker stop")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick picks one batch of due tasks and runs them.
func (r *Runner) Tick(ctx context.Context) {
	t0 := time.Now()
	tr := otel.Tracer("tasks.runner")
	prop := otel.GetTextMapPropagator()

	ctxSpan, span := tr.Start(ctx, "tasks.tick")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.limit", r.cfg.BatchSize),
		attribute.String("in_progress_ttl", r.cfg.InProgressTTL.String()),
	)

	picked, err := r.repo.PickBatch(ctxSpan, r.cfg.BatchSize, r.cfg.InProgressTTL)
	if err != nil {
		span.RecordError(err)
		mErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("task pick error", zap.Error(err))
		return
	}
	mPicked.Add(float64(len(picked)))
	mBatchSize.Set(float64(len(picked)))

	okKeys := make([]string, 0, len(picked))

	for _, t := range picked {
		parent := prop.Extract(ctx, propagation.MapCarrier{
			"traceparent": t.Traceparent,
			"tracestate":  t.Tracestate,
		})

		taskCtx, taskSpan := tr.Start(parent, "tasks.dispatch",
			trace.WithAttributes(
				attribute.String("task.key", t.IdempotencyKey),
				attribute.String("task.handler", t.Handler),
				attribute.Int("task.attempt", t.Attempts),
			),
		)
		log := obs.WithTrace(taskCtx, r.log).With(
			zap.String("handler", t.Handler),
			zap.String("key", t.IdempotencyKey),
			zap.Int("attempt", t.Attempts),
		)

		handler, herr := r.dispatch(t.Handler)
		if herr != nil {
			taskSpan.RecordError(herr)
			mErr.Inc()
			log.Error("no handler for task", zap.Error(herr))
			r.markError(taskCtx, t, herr, log)
			taskSpan.End()
			continue
		}

		if err := handler(taskCtx, t.Data); err != nil {
			taskSpan.RecordError(err)
			mErr.Inc()
			log.Warn("task handler error", zap.Error(err))
			r.markError(taskCtx, t, err, log)
			taskSpan.End()
			continue
		}

		taskSpan.End()
		okKeys = append(okKeys, t.IdempotencyKey)
		mOk.Inc()
	}

	if err := r.repo.MarkSuccess(ctxSpan, okKeys); err != nil {
		span.RecordError(err)
		mErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("mark success error", zap.Error(err))
	}

	mTickDur.Observe(time.Since(t0).Seconds())
}

// markError fails a task with a permanent error on its first pick.
func (r *Runner) markError(ctx context.Context, t task.Task, cause error, log *zap.Logger) {
	limit := r.cfg.MaxAttempts
	if retry.IsPermanent(cause) {
		limit = 1
	}
	if t.Attempts >= limit {
		log.Error("task gave up", zap.Int("max_attempts", limit), zap.Error(cause))
	}
	if err := r.repo.MarkError(ctx, t.IdempotencyKey, cause.Error(), limit); err != nil {
		mErr.Inc()
		log.Error("mark error failed", zap.Error(err))
	}
}
