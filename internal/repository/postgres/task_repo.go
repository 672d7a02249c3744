package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/task"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var _ task.Repository = (*TaskRepo)(nil)

type TaskRepo struct{ db *DB }

func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

const (
	qTaskEnqueue = `
INSERT INTO scheduled_tasks (idempotency_key, handler, payload, status, not_before, traceparent, tracestate)
VALUES ($1, $2, $3, 'CREATED', COALESCE($4, now()), $5, $6)
ON CONFLICT (idempotency_key) DO NOTHING;`

	qTaskPick = `
WITH cand AS (
   SELECT idempotency_key
   FROM scheduled_tasks
   WHERE (status = 'CREATED' AND not_before <= now())
      OR (status = 'IN_PROGRESS' AND updated_at < now() - $2::interval)
   ORDER BY not_before, created_at
   LIMIT $1
   FOR UPDATE SKIP LOCKED
), upd AS (
   UPDATE scheduled_tasks t
   SET status = 'IN_PROGRESS', attempts = t.attempts + 1, updated_at = now()
   FROM cand
   WHERE t.idempotency_key = cand.idempotency_key
   RETURNING t.idempotency_key, t.handler, t.payload, t.status, t.not_before, t.attempts,
             COALESCE(t.last_error, '') AS last_error, t.created_at, t.updated_at, t.traceparent, t.tracestate
)
SELECT idempotency_key, handler, payload, status, not_before, attempts, last_error,
       created_at, updated_at, traceparent, tracestate
FROM upd;`

	qTaskMarkSuccess = `
UPDATE scheduled_tasks
SET status = 'SUCCESS', last_error = NULL, updated_at = now()
WHERE idempotency_key = ANY($1);`

	qTaskMarkError = `
UPDATE scheduled_tasks
SET last_error = $2,
    status = CASE WHEN attempts >= $3 THEN 'FAILED' ELSE status END,
    updated_at = now()
WHERE idempotency_key = $1 AND status = 'IN_PROGRESS';`
)

func (r *TaskRepo) Enqueue(ctx context.Context, key, handler string, data []byte, notBefore time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	// The handler span continues the trace of whoever scheduled the task.
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	eq := r.db.execQueryer(ctx)
	if _, err := eq.Exec(ctx, qTaskEnqueue, key, handler, data, nullTime(notBefore),
		carrier.Get("traceparent"), carrier.Get("tracestate")); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

func (r *TaskRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]task.Task, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ttl := fmt.Sprintf("%f seconds", inProgressTTL.Seconds())
	rows, err := r.db.Pool.Query(ctx, qTaskPick, batch, ttl)
	if err != nil {
		return nil, fmt.Errorf("task pick: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		var t task.Task
		var status string
		if err := rows.Scan(&t.IdempotencyKey, &t.Handler, &t.Data, &status, &t.NotBefore,
			&t.Attempts, &t.LastError, &t.CreatedAt, &t.UpdatedAt, &t.Traceparent, &t.Tracestate); err != nil {
			return nil, fmt.Errorf("task scan: %w", err)
		}
		t.Status = task.Status(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TaskRepo) MarkSuccess(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.Pool.Exec(ctx, qTaskMarkSuccess, keys); err != nil {
		return fmt.Errorf("task mark success: %w", err)
	}
	return nil
}

func (r *TaskRepo) MarkError(ctx context.Context, key string, errText string, maxAttempts int) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.Pool.Exec(ctx, qTaskMarkError, key, errText, maxAttempts); err != nil {
		return fmt.Errorf("task mark error: %w", err)
	}
	return nil
}
