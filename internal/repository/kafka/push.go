package kafka

import (
	"context"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/realtime"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

// RealtimePusher publishes live messages for websocket gateways, keyed by
// user so one user's messages stay ordered on a partition.
type RealtimePusher struct {
	p *Producer
}

func NewRealtimePusher(p *Producer) *RealtimePusher { return &RealtimePusher{p: p} }

var _ realtime.Pusher = (*RealtimePusher)(nil)

func (r *RealtimePusher) PushToUser(ctx context.Context, userID uuid.UUID, messageType string, payload map[string]any) error {
	msg, err := EncodePush(uuid.New(), userID, messageType, payload)
	if err != nil {
		return err
	}
	return r.p.PublishProto(ctx, []byte(userID.String()), msg)
}

func EncodePush(messageID, userID uuid.UUID, messageType string, payload map[string]any) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"message_id": messageID.String(),
		"user_id":    userID.String(),
		"type":       messageType,
		"payload":    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode push payload: %w", err)
	}
	return msg, nil
}
