package fanout

import (
	"context"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/google/uuid"
)

// Defaults apply when a user has no setting row for a channel.
var Defaults = notification.Channels{Web: true, Email: false, Mobile: false}

// ApplySettings resolves channel preferences from setting rows. Global rows
// apply first, then rows scoped to folderID override them per channel. Rows
// scoped to any other folder, or any folder row when folderID is nil, are
// ignored.
func ApplySettings(rows []notification.Setting, folderID *uuid.UUID) notification.Channels {
	out := Defaults
	for _, s := range rows {
		if s.FolderID == nil {
			set(&out, s)
		}
	}
	if folderID == nil {
		return out
	}
	for _, s := range rows {
		if s.FolderID != nil && *s.FolderID == *folderID {
			set(&out, s)
		}
	}
	return out
}

func set(c *notification.Channels, s notification.Setting) {
	switch s.Channel {
	case notification.ChannelWeb:
		c.Web = s.Enabled
	case notification.ChannelEmail:
		c.Email = s.Enabled
	case notification.ChannelMobile:
		c.Mobile = s.Enabled
	}
}

type SettingsResolver struct {
	repo notification.SettingRepo
}

func NewSettingsResolver(repo notification.SettingRepo) *SettingsResolver {
	return &SettingsResolver{repo: repo}
}

func (r *SettingsResolver) Resolve(ctx context.Context, userID uuid.UUID, eventIdentifier, emitterIdentifier string, folderID *uuid.UUID) (notification.Channels, error) {
	rows, err := r.repo.ListForResolve(ctx, userID, eventIdentifier, emitterIdentifier, folderID)
	if err != nil {
		return notification.Channels{}, fmt.Errorf("list settings: %w", err)
	}
	return ApplySettings(rows, folderID), nil
}
