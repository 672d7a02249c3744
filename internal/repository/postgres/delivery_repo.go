package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/google/uuid"

	sq "github.com/Masterminds/squirrel"
)

var _ notification.DeliveryRepo = (*DeliveryRepo)(nil)

type DeliveryRepo struct{ db *DB }

func NewDeliveryRepo(db *DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

const (
	tableDeliveries = "notification_deliveries"

	qDeliveryUpsert = `
INSERT INTO notification_deliveries (notification_id, user_id, email_status, mobile_status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (notification_id, user_id) DO UPDATE
SET email_status  = COALESCE(notification_deliveries.email_status, EXCLUDED.email_status),
    mobile_status = COALESCE(notification_deliveries.mobile_status, EXCLUDED.mobile_status);`

	qDeliveryClaimEmail = `
WITH cand AS (
   SELECT d.id
   FROM notification_deliveries d
   WHERE d.email_status = 'pending'
      OR (d.email_status = 'sending' AND d.email_claimed_at < now() - $2::interval)
   ORDER BY d.created_at, d.id
   LIMIT $1
   FOR UPDATE SKIP LOCKED
), claimed AS (
   UPDATE notification_deliveries d
   SET email_status = 'sending', email_claimed_at = now()
   FROM cand
   WHERE d.id = cand.id
   RETURNING d.id, d.notification_id, d.user_id, d.created_at
)
SELECT c.id, c.user_id, u.email,
       n.id, n.event_identifier, n.emitter_identifier, n.aggregation_key,
       n.target_location_folder_id, n.target_location_object_key, n.target_user_id,
       n.event_ids, n.title, n.body, n.path, n.created_at
FROM claimed c
JOIN notifications n ON n.id = c.notification_id
LEFT JOIN users u ON u.id = c.user_id
ORDER BY c.created_at, c.id;`

	qDeliveryCountPendingEmail = `
SELECT count(*) FROM notification_deliveries WHERE email_status = 'pending';`
)

func pendingIf(b bool) *string {
	if !b {
		return nil
	}
	s := string(notification.StatusPending)
	return &s
}

func (r *DeliveryRepo) Upsert(ctx context.Context, notificationID int64, userID uuid.UUID, emailPending, mobilePending bool) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qDeliveryUpsert,
		notificationID, userID, pendingIf(emailPending), pendingIf(mobilePending),
	); err != nil {
		return fmt.Errorf("upsert delivery: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) ClaimPendingEmail(ctx context.Context, limit int, claimTTL time.Duration) ([]notification.EmailJob, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ttl := fmt.Sprintf("%f seconds", claimTTL.Seconds())
	rows, err := r.db.Pool.Query(ctx, qDeliveryClaimEmail, limit, ttl)
	if err != nil {
		return nil, fmt.Errorf("claim pending email: %w", err)
	}
	defer rows.Close()

	out := make([]notification.EmailJob, 0, limit)
	for rows.Next() {
		var j notification.EmailJob
		n := &j.Notification
		if err := rows.Scan(
			&j.DeliveryID, &j.UserID, &j.Email,
			&n.ID, &n.EventIdentifier, &n.EmitterIdentifier, &n.AggregationKey,
			&n.TargetLocationFolderID, &n.TargetLocationObjectKey, &n.TargetUserID,
			&n.EventIDs, &n.Title, &n.Body, &n.Path, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan email job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Status writes only move rows that are still claimed, so a terminal status
// is never overwritten.
func buildMarkEmailSent(ids []int64, at time.Time) (string, []any, error) {
	return psql.Update(tableDeliveries).
		Set("email_status", string(notification.StatusSent)).
		Set("email_sent_at", at).
		Set("email_claimed_at", nil).
		Where(sq.Eq{"id": ids}).
		Where(sq.Eq{"email_status": string(notification.StatusSending)}).
		ToSql()
}

func buildMarkEmailFailed(ids []int64, code string, at time.Time) (string, []any, error) {
	return psql.Update(tableDeliveries).
		Set("email_status", string(notification.StatusFailed)).
		Set("email_failed_at", at).
		Set("email_error", code).
		Set("email_claimed_at", nil).
		Where(sq.Eq{"id": ids}).
		Where(sq.Eq{"email_status": string(notification.StatusSending)}).
		ToSql()
}

func buildReleaseEmail(ids []int64) (string, []any, error) {
	return psql.Update(tableDeliveries).
		Set("email_status", string(notification.StatusPending)).
		Set("email_claimed_at", nil).
		Where(sq.Eq{"id": ids}).
		Where(sq.Eq{"email_status": string(notification.StatusSending)}).
		ToSql()
}

func (r *DeliveryRepo) exec(ctx context.Context, what string, statement string, args []any, err error) error {
	if err != nil {
		return fmt.Errorf("build %s: %w", what, err)
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, statement, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (r *DeliveryRepo) MarkEmailSent(ctx context.Context, deliveryIDs []int64, at time.Time) error {
	if len(deliveryIDs) == 0 {
		return nil
	}
	statement, args, err := buildMarkEmailSent(deliveryIDs, at)
	return r.exec(ctx, "mark email sent", statement, args, err)
}

func (r *DeliveryRepo) MarkEmailFailed(ctx context.Context, deliveryIDs []int64, code string, at time.Time) error {
	if len(deliveryIDs) == 0 {
		return nil
	}
	statement, args, err := buildMarkEmailFailed(deliveryIDs, code, at)
	return r.exec(ctx, "mark email failed", statement, args, err)
}

func (r *DeliveryRepo) ReleaseEmail(ctx context.Context, deliveryIDs []int64) error {
	if len(deliveryIDs) == 0 {
		return nil
	}
	statement, args, err := buildReleaseEmail(deliveryIDs)
	return r.exec(ctx, "release email", statement, args, err)
}

func (r *DeliveryRepo) CountPendingEmail(ctx context.Context) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.Pool.QueryRow(ctx, qDeliveryCountPendingEmail).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending email: %w", err)
	}
	return n, nil
}
