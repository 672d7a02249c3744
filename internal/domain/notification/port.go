package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repo interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
}

type DeliveryRepo interface {
	// Upsert inserts the (notification, user) row or upgrades null channel
	// statuses to pending. It never overwrites an existing status.
	Upsert(ctx context.Context, notificationID int64, userID uuid.UUID, emailPending, mobilePending bool) error
	ClaimPendingEmail(ctx context.Context, limit int, claimTTL time.Duration) ([]EmailJob, error)
	MarkEmailSent(ctx context.Context, deliveryIDs []int64, at time.Time) error
	MarkEmailFailed(ctx context.Context, deliveryIDs []int64, code string, at time.Time) error
	ReleaseEmail(ctx context.Context, deliveryIDs []int64) error
	CountPendingEmail(ctx context.Context) (int64, error)
}

type SettingRepo interface {
	// ListForResolve returns global rows and, when folderID is set, the rows
	// scoped to that folder.
	ListForResolve(ctx context.Context, userID uuid.UUID, eventIdentifier, emitterIdentifier string, folderID *uuid.UUID) ([]Setting, error)
}
