package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/task"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ task.Scheduler = (*Scheduler)(nil)

// Scheduler persists tasks through the repository. When ctx carries a
// transaction the task commits or rolls back with it.
type Scheduler struct {
	repo task.Repository
	log  *zap.Logger
}

func NewScheduler(repo task.Repository, log *zap.Logger) *Scheduler {
	return &Scheduler{repo: repo, log: log.With(zap.String("component", "tasks.scheduler"))}
}

func (s *Scheduler) Schedule(ctx context.Context, handler string, payload any, opts task.ScheduleOptions) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", handler, err)
	}
	key := opts.DedupeKey
	if key == "" {
		key = handler + ":" + uuid.NewString()
	}
	// A key collision is a no-op insert: the existing task will do the work.
	if err := s.repo.Enqueue(ctx, key, handler, data, opts.NotBefore); err != nil {
		return fmt.Errorf("schedule %s: %w", handler, err)
	}
	s.log.Debug("task scheduled",
		zap.String("handler", handler),
		zap.String("key", key),
		zap.Time("not_before", opts.NotBefore),
	)
	return nil
}
