package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/Herald/internal/domain/task"
)

type fakeRepo struct {
	mu       sync.Mutex
	enqueued map[string]task.Task
	due      []task.Task
	pickErr  error
	ok       []string
	failed   map[string]string
	maxSeen  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{enqueued: map[string]task.Task{}, failed: map[string]string{}}
}

func (f *fakeRepo) Enqueue(_ context.Context, key, handler string, data []byte, notBefore time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.enqueued[key]; ok {
		return nil
	}
	f.enqueued[key] = task.Task{IdempotencyKey: key, Handler: handler, Data: data, NotBefore: notBefore, Status: task.StatusCreated}
	return nil
}

func (f *fakeRepo) PickBatch(_ context.Context, batch int, _ time.Duration) ([]task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pickErr != nil {
		return nil, f.pickErr
	}
	n := batch
	if n > len(f.due) {
		n = len(f.due)
	}
	out := f.due[:n]
	f.due = f.due[n:]
	return out, nil
}

func (f *fakeRepo) MarkSuccess(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ok = append(f.ok, keys...)
	return nil
}

func (f *fakeRepo) MarkError(_ context.Context, key, errText string, maxAttempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[key] = errText
	f.maxSeen = maxAttempts
	return nil
}
