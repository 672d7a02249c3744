package folder

import (
	"context"

	"github.com/google/uuid"
)

type Repo interface {
	GetOwnerID(ctx context.Context, folderID uuid.UUID) (uuid.UUID, error)
	ListActiveShareUserIDs(ctx context.Context, folderID uuid.UUID) ([]uuid.UUID, error)
}
