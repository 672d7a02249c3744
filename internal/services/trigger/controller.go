package trigger

import (
	"context"
	"errors"

	kafkax "github.com/NordCoder/Herald/internal/repository/kafka"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Usecase
}

func (c *Controller) Handler() kafkax.Handler {
	return kafkax.ProtoHandler(
		func() *structpb.Struct { return &structpb.Struct{} },
		func(ctx context.Context, _ []byte, msg *structpb.Struct) error {
			ev, err := kafkax.DecodeEventRecorded(msg)
			if err != nil {
				mMalformed.Inc()
				c.Log.Warn("event-recorded: skipping malformed message", zap.Error(err))
				return nil
			}
			return c.UC.OnEventRecorded(ctx, ev)
		},
	)
}

func (c *Controller) Run(ctx context.Context) error {
	if err := c.Sub.Consume(ctx, c.Handler()); err != nil && !errors.Is(err, context.Canceled) {
		c.Log.Warn("kafka consume", zap.Error(err))
		return err
	}
	return ctx.Err()
}
