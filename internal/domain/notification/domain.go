package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notification is created once per flush and never mutated afterwards.
type Notification struct {
	ID                      int64      `json:"id"`
	EventIdentifier         string     `json:"event_identifier"`
	EmitterIdentifier       string     `json:"emitter_identifier"`
	AggregationKey          string     `json:"aggregation_key"`
	TargetLocationFolderID  *uuid.UUID `json:"target_location_folder_id,omitempty"`
	TargetLocationObjectKey *string    `json:"target_location_object_key,omitempty"`
	TargetUserID            *uuid.UUID `json:"target_user_id,omitempty"`
	EventIDs                []int64    `json:"event_ids"`
	Title                   string     `json:"title"`
	Body                    *string    `json:"body,omitempty"`
	Path                    *string    `json:"path,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
}

type ChannelStatus string

const (
	StatusPending ChannelStatus = "pending"
	// StatusSending marks a row claimed by an email batch run; it is never terminal.
	StatusSending ChannelStatus = "sending"
	StatusSent    ChannelStatus = "sent"
	StatusFailed  ChannelStatus = "failed"
)

type Channel string

const (
	ChannelWeb    Channel = "web"
	ChannelEmail  Channel = "email"
	ChannelMobile Channel = "mobile"
)

// Setting is one preference row. A nil FolderID is the global scope.
type Setting struct {
	UserID            uuid.UUID  `json:"user_id"`
	EventIdentifier   string     `json:"event_identifier"`
	EmitterIdentifier string     `json:"emitter_identifier"`
	Channel           Channel    `json:"channel"`
	FolderID          *uuid.UUID `json:"folder_id,omitempty"`
	Enabled           bool       `json:"enabled"`
}

// Channels is the resolved per-channel preference for one user and event type.
type Channels struct {
	Web    bool `json:"web"`
	Email  bool `json:"email"`
	Mobile bool `json:"mobile"`
}

// EmailJob is a claimed pending email delivery joined with what is needed to send it.
type EmailJob struct {
	DeliveryID   int64
	Notification Notification
	UserID       uuid.UUID
	Email        *string
}

type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type EmailMessage struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
}

type EmailSender interface {
	Configured() bool
	Send(ctx context.Context, msg EmailMessage) error
}
