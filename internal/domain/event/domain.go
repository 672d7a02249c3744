package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a raw domain event written by the ingestion path. The pipeline
// only ever sets AggregationHandledAt, and only once.
type Event struct {
	ID                      int64      `json:"id"`
	EventIdentifier         string     `json:"event_identifier"`
	EmitterIdentifier       string     `json:"emitter_identifier"`
	AggregationKey          string     `json:"aggregation_key"`
	TargetLocationFolderID  *uuid.UUID `json:"target_location_folder_id,omitempty"`
	TargetLocationObjectKey *string    `json:"target_location_object_key,omitempty"`
	TargetUserID            *uuid.UUID `json:"target_user_id,omitempty"`
	Data                    []byte     `json:"data,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	AggregationHandledAt    *time.Time `json:"aggregation_handled_at,omitempty"`
}

// StaleKey is an aggregation key whose oldest unhandled event is FirstAt.
// Keys of one aggregation share an event type, so Emitter and Event name it.
type StaleKey struct {
	Key     string
	Emitter string
	Event   string
	FirstAt time.Time
}

// ActorID reads the optional "actorId" field of the opaque event data.
func (e *Event) ActorID() *uuid.UUID {
	if e == nil || len(e.Data) == 0 {
		return nil
	}
	var body struct {
		ActorID string `json:"actorId"`
	}
	if err := json.Unmarshal(e.Data, &body); err != nil || body.ActorID == "" {
		return nil
	}
	id, err := uuid.Parse(body.ActorID)
	if err != nil {
		return nil
	}
	return &id
}

// StringField returns a top-level string field of the event data, or "".
func (e *Event) StringField(name string) string {
	if e == nil || len(e.Data) == 0 {
		return ""
	}
	var body map[string]any
	if err := json.Unmarshal(e.Data, &body); err != nil {
		return ""
	}
	s, _ := body[name].(string)
	return s
}
