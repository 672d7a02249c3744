package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/jackc/pgx/v5"
)

var _ notification.Repo = (*NotificationRepoImpl)(nil)

type NotificationRepoImpl struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepoImpl { return &NotificationRepoImpl{db: db} }

const (
	qNotifInsert = `
INSERT INTO notifications (event_identifier, emitter_identifier, aggregation_key,
                           target_location_folder_id, target_location_object_key, target_user_id,
                           event_ids, title, body, path, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()))
RETURNING id, created_at;
`
	qNotifByID = `
SELECT id, event_identifier, emitter_identifier, aggregation_key,
       target_location_folder_id, target_location_object_key, target_user_id,
       event_ids, title, body, path, created_at
FROM notifications
WHERE id = $1;
`
)

func (r *NotificationRepoImpl) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.execQueryer(ctx).QueryRow(ctx, qNotifInsert,
		n.EventIdentifier,
		n.EmitterIdentifier,
		n.AggregationKey,
		n.TargetLocationFolderID,
		n.TargetLocationObjectKey,
		n.TargetUserID,
		n.EventIDs,
		n.Title,
		n.Body,
		n.Path,
		nullTime(n.CreatedAt),
	).Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepoImpl) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n notification.Notification
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qNotifByID, id).Scan(
		&n.ID,
		&n.EventIdentifier,
		&n.EmitterIdentifier,
		&n.AggregationKey,
		&n.TargetLocationFolderID,
		&n.TargetLocationObjectKey,
		&n.TargetUserID,
		&n.EventIDs,
		&n.Title,
		&n.Body,
		&n.Path,
		&n.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	return &n, nil
}
