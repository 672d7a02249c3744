package realtime

import (
	"context"

	"github.com/google/uuid"
)

const MessageTypeNotification = "notification"

// Pusher delivers a message to a user's live channel. Delivery is best effort.
type Pusher interface {
	PushToUser(ctx context.Context, userID uuid.UUID, messageType string, payload map[string]any) error
}
