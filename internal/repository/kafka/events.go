package kafka

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// EventRecorded announces that the ingestion path stored an event under an
// aggregation key.
type EventRecorded struct {
	AggregationKey string
	RecordedAt     time.Time
}

var ErrMalformed = errors.New("malformed message")

func EncodeEventRecorded(ev EventRecorded) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"aggregation_key": ev.AggregationKey,
		"recorded_at":     ev.RecordedAt.UTC().Format(time.RFC3339Nano),
	})
}

// DecodeEventRecorded accepts a missing recorded_at; a missing key is malformed.
func DecodeEventRecorded(s *structpb.Struct) (EventRecorded, error) {
	f := s.GetFields()
	key := f["aggregation_key"].GetStringValue()
	if key == "" {
		return EventRecorded{}, fmt.Errorf("%w: empty aggregation_key", ErrMalformed)
	}
	ev := EventRecorded{AggregationKey: key}
	if raw := f["recorded_at"].GetStringValue(); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return EventRecorded{}, fmt.Errorf("%w: recorded_at: %v", ErrMalformed, err)
		}
		ev.RecordedAt = at
	}
	return ev, nil
}
