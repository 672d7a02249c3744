package tasks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NordCoder/Herald/internal/domain/task"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	taskHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "task_handler_latency_seconds",
		Help:    "Latency of task handlers including in-process retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})
	taskHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "task_handler_errors_total",
		Help: "Errors in task handlers (after retries).",
	}, []string{"handler"})
)

func instrument(name string, h task.HandlerFunc, pol retry.Policy) task.HandlerFunc {
	tr := otel.Tracer("tasks.handler")
	if pol.Name == "" {
		pol.Name = "task_" + name
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "task.handle "+name)
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		taskHandlerLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			taskHandlerErrors.WithLabelValues(name).Inc()
		}
		return err
	}
}

// Registry maps handler names to their implementations.
type Registry struct {
	policy   retry.Policy
	handlers map[string]task.HandlerFunc
}

func NewRegistry(pol retry.Policy) *Registry {
	return &Registry{policy: pol, handlers: make(map[string]task.HandlerFunc)}
}

// Register panics on duplicate names; registration happens once at wiring time.
func (r *Registry) Register(name string, h task.HandlerFunc) *Registry {
	if _, dup := r.handlers[name]; dup {
		panic("tasks: duplicate handler " + name)
	}
	r.handlers[name] = instrument(name, h, r.policy)
	return r
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Dispatcher() task.Dispatcher {
	return func(name string) (task.HandlerFunc, error) {
		h, ok := r.handlers[name]
		if !ok {
			return nil, fmt.Errorf("unsupported task handler: %s", name)
		}
		return h, nil
	}
}
