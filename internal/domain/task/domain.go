package task

import (
	"context"
	"time"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// Handler names registered with the task runner.
const (
	HandlerAggregate  = "notifications.aggregate"
	HandlerFanout     = "notifications.fanout"
	HandlerEmailBatch = "notifications.email_batch"
)

type Task struct {
	IdempotencyKey string
	Handler        string
	Data           []byte
	Status         Status
	NotBefore      time.Time
	Attempts       int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Traceparent    string
	Tracestate     string
}

// ScheduleOptions carries the scheduling identity of a task: two Schedule calls
// with the same DedupeKey collapse onto one task.
type ScheduleOptions struct {
	DedupeKey string
	NotBefore time.Time
}

type Scheduler interface {
	Schedule(ctx context.Context, handler string, payload any, opts ScheduleOptions) error
}

type Repository interface {
	Enqueue(ctx context.Context, key, handler string, data []byte, notBefore time.Time) error

	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Task, error)

	MarkSuccess(ctx context.Context, keys []string) error

	// MarkError records the failure and moves the task to FAILED once it has
	// been picked maxAttempts times; otherwise it waits for the TTL re-pick.
	MarkError(ctx context.Context, key string, errText string, maxAttempts int) error
}

type HandlerFunc func(ctx context.Context, data []byte) error

type Dispatcher func(handler string) (HandlerFunc, error)

type AggregatePayload struct {
	AggregationKey string `json:"aggregation_key"`
}

type FanoutPayload struct {
	NotificationID int64 `json:"notification_id"`
}

type EmailBatchPayload struct {
	Bucket string `json:"bucket"`
}
