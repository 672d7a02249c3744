package event

import (
	"context"
	"time"
)

type Repo interface {
	// FindAnyUnhandled returns domain.ErrNotFound when the key has nothing left to flush.
	FindAnyUnhandled(ctx context.Context, aggregationKey string) (*Event, error)
	ListUnhandled(ctx context.Context, aggregationKey string) ([]*Event, error)
	// MarkHandled sets aggregation_handled_at only on rows where it is still NULL
	// and reports how many rows it touched.
	MarkHandled(ctx context.Context, ids []int64, at time.Time) (int64, error)
	GetByID(ctx context.Context, id int64) (*Event, error)
	// ListStaleKeys pages through keys with unhandled events older than
	// olderThan, ordered by (FirstAt, Key) and starting after the cursor.
	ListStaleKeys(ctx context.Context, olderThan time.Time, after *StaleKey, limit int) ([]StaleKey, error)
}
