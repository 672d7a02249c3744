package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/folder"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ folder.Repo = (*FolderRepo)(nil)

// FolderRepo reads folder ownership and shares. Those tables belong to the
// storage service; this repo never writes them.
type FolderRepo struct{ db *DB }

func NewFolderRepo(db *DB) *FolderRepo { return &FolderRepo{db: db} }

const (
	qFolderOwner = `SELECT owner_id FROM folders WHERE id = $1;`

	qFolderActiveShares = `
SELECT user_id
FROM folder_shares
WHERE folder_id = $1 AND revoked_at IS NULL AND accepted_at IS NOT NULL
ORDER BY user_id;`
)

func (r *FolderRepo) GetOwnerID(ctx context.Context, folderID uuid.UUID) (uuid.UUID, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var owner uuid.UUID
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qFolderOwner, folderID).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("folder owner: %w", err)
	}
	return owner, nil
}

func (r *FolderRepo) ListActiveShareUserIDs(ctx context.Context, folderID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qFolderActiveShares, folderID)
	if err != nil {
		return nil, fmt.Errorf("query folder shares: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan folder share: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
