package fanout

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain"
	"github.com/NordCoder/Herald/internal/domain/folder"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/google/uuid"
)

type RecipientResolver struct {
	folders folder.Repo
}

func NewRecipientResolver(folders folder.Repo) *RecipientResolver {
	return &RecipientResolver{folders: folders}
}

// Resolve returns the distinct users a notification is for: the owner and
// active share members of its target folder, plus its target user. The order
// is stable: owner, shares, target user.
func (r *RecipientResolver) Resolve(ctx context.Context, n *notification.Notification) ([]uuid.UUID, error) {
	var set recipientSet

	if n.TargetLocationFolderID != nil {
		folderID := *n.TargetLocationFolderID
		owner, err := r.folders.GetOwnerID(ctx, folderID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// folder deleted since the event; its members no longer apply
		case err != nil:
			return nil, fmt.Errorf("get folder owner: %w", err)
		default:
			set.add(owner)
			shared, err := r.folders.ListActiveShareUserIDs(ctx, folderID)
			if err != nil {
				return nil, fmt.Errorf("list folder shares: %w", err)
			}
			for _, id := range shared {
				set.add(id)
			}
		}
	}
	if n.TargetUserID != nil {
		set.add(*n.TargetUserID)
	}
	return set.list, nil
}

type recipientSet struct {
	seen map[uuid.UUID]struct{}
	list []uuid.UUID
}

func (s *recipientSet) add(id uuid.UUID) {
	if s.seen == nil {
		s.seen = make(map[uuid.UUID]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.list = append(s.list, id)
}
