package kafka

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/proto"
)

var unmarshalOpts = proto.UnmarshalOptions{DiscardUnknown: true}

// ProtoHandler decodes each value into a fresh M from newMsg before calling
// handle. Empty values and values that do not decode fail with ErrMalformed,
// which the consumer commits without retrying.
func ProtoHandler[M proto.Message](newMsg func() M, handle func(context.Context, []byte, M) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		if len(value) == 0 {
			return fmt.Errorf("%w: empty value", ErrMalformed)
		}
		msg := newMsg()
		if err := unmarshalOpts.Unmarshal(value, msg); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return handle(ctx, key, msg)
	}
}
