package postgres

import (
	"context"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/google/uuid"

	sq "github.com/Masterminds/squirrel"
)

var _ notification.SettingRepo = (*SettingRepo)(nil)

type SettingRepo struct{ db *DB }

func NewSettingRepo(db *DB) *SettingRepo { return &SettingRepo{db: db} }

// buildListForResolve selects global rows, plus folder-scoped rows only when
// folderID is given. Global rows sort first so folder rows are applied last.
func buildListForResolve(userID uuid.UUID, eventIdentifier, emitterIdentifier string, folderID *uuid.UUID) (string, []any, error) {
	// uuid.UUID is an array, which squirrel would expand into an IN list.
	scope := sq.Or{sq.Eq{"folder_id": nil}}
	if folderID != nil {
		scope = append(scope, sq.Eq{"folder_id": folderID.String()})
	}
	return psql.Select("user_id", "event_identifier", "emitter_identifier", "channel", "folder_id", "enabled").
		From("notification_settings").
		Where(sq.Eq{
			"user_id":            userID.String(),
			"event_identifier":   eventIdentifier,
			"emitter_identifier": emitterIdentifier,
		}).
		Where(scope).
		OrderBy("folder_id IS NOT NULL", "channel").
		ToSql()
}

func (r *SettingRepo) ListForResolve(ctx context.Context, userID uuid.UUID, eventIdentifier, emitterIdentifier string, folderID *uuid.UUID) ([]notification.Setting, error) {
	statement, args, err := buildListForResolve(userID, eventIdentifier, emitterIdentifier, folderID)
	if err != nil {
		return nil, fmt.Errorf("build settings query: %w", err)
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	var out []notification.Setting
	for rows.Next() {
		var (
			s       notification.Setting
			channel string
		)
		if err := rows.Scan(&s.UserID, &s.EventIdentifier, &s.EmitterIdentifier, &channel, &s.FolderID, &s.Enabled); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		s.Channel = notification.Channel(channel)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
