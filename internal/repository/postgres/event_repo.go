package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/event"
	"github.com/jackc/pgx/v5"
)

var _ event.Repo = (*EventRepo)(nil)

type EventRepo struct{ db *DB }

func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, event_identifier, emitter_identifier, aggregation_key,
       target_location_folder_id, target_location_object_key, target_user_id,
       data, created_at, aggregation_handled_at`

const (
	qEventAnyUnhandled = `
SELECT ` + eventColumns + `
FROM events
WHERE aggregation_key = $1 AND aggregation_handled_at IS NULL
LIMIT 1;`

	qEventListUnhandled = `
SELECT ` + eventColumns + `
FROM events
WHERE aggregation_key = $1 AND aggregation_handled_at IS NULL
ORDER BY created_at, id;`

	qEventMarkHandled = `
UPDATE events
SET aggregation_handled_at = $2
WHERE id = ANY($1) AND aggregation_handled_at IS NULL;`

	qEventByID = `
SELECT ` + eventColumns + `
FROM events
WHERE id = $1;`

	qEventStaleKeys = `
SELECT aggregation_key, min(emitter_identifier), min(event_identifier), min(created_at) AS first_at
FROM events
WHERE aggregation_handled_at IS NULL AND created_at < $1
GROUP BY aggregation_key
HAVING $2::timestamptz IS NULL OR (min(created_at), aggregation_key) > ($2::timestamptz, $3::text)
ORDER BY first_at, aggregation_key
LIMIT $4;`
)

func scanEvent(row pgx.Row, e *event.Event) error {
	if err := row.Scan(
		&e.ID,
		&e.EventIdentifier,
		&e.EmitterIdentifier,
		&e.AggregationKey,
		&e.TargetLocationFolderID,
		&e.TargetLocationObjectKey,
		&e.TargetUserID,
		&e.Data,
		&e.CreatedAt,
		&e.AggregationHandledAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan event: %w", err)
	}
	return nil
}

func (r *EventRepo) FindAnyUnhandled(ctx context.Context, aggregationKey string) (*event.Event, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var e event.Event
	if err := scanEvent(r.db.execQueryer(ctx).QueryRow(ctx, qEventAnyUnhandled, aggregationKey), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) ListUnhandled(ctx context.Context, aggregationKey string) ([]*event.Event, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qEventListUnhandled, aggregationKey)
	if err != nil {
		return nil, fmt.Errorf("query unhandled events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var e event.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *EventRepo) MarkHandled(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qEventMarkHandled, ids, at)
	if err != nil {
		return 0, fmt.Errorf("mark events handled: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *EventRepo) GetByID(ctx context.Context, id int64) (*event.Event, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var e event.Event
	if err := scanEvent(r.db.execQueryer(ctx).QueryRow(ctx, qEventByID, id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) ListStaleKeys(ctx context.Context, olderThan time.Time, after *event.StaleKey, limit int) ([]event.StaleKey, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var afterAt *time.Time
	var afterKey string
	if after != nil {
		afterAt, afterKey = &after.FirstAt, after.Key
	}
	rows, err := r.db.Pool.Query(ctx, qEventStaleKeys, olderThan, afterAt, afterKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale keys: %w", err)
	}
	defer rows.Close()

	var out []event.StaleKey
	for rows.Next() {
		var k event.StaleKey
		if err := rows.Scan(&k.Key, &k.Emitter, &k.Event, &k.FirstAt); err != nil {
			return nil, fmt.Errorf("scan stale key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
