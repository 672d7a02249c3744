package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NordCoder/Herald/internal/domain/task"
	kafkax "github.com/NordCoder/Herald/internal/repository/kafka"
	"github.com/NordCoder/Herald/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

type scheduled struct {
	handler string
	payload any
	opts    task.ScheduleOptions
}

type fakeSched struct {
	calls []scheduled
	err   error
}

func (f *fakeSched) Schedule(_ context.Context, handler string, payload any, opts task.ScheduleOptions) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, scheduled{handler, payload, opts})
	return nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

var now = time.Date(2024, 3, 1, 12, 0, 0, 400_000_000, time.UTC)

func newController(s *fakeSched) *Controller {
	log := zap.NewNop()
	return &Controller{Log: log, UC: NewUC(s, fixedClock(now), log)}
}

func encode(t *testing.T, ev kafkax.EventRecorded) []byte {
	t.Helper()
	msg, err := kafkax.EncodeEventRecorded(ev)
	require.NoError(t, err)
	raw, err := proto.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func TestHandler_SchedulesFlushCheck(t *testing.T) {
	s := &fakeSched{}
	h := newController(s).Handler()

	raw := encode(t, kafkax.EventRecorded{AggregationKey: "folder:f1:object_added", RecordedAt: now})
	require.NoError(t, h(context.Background(), nil, raw))

	require.Len(t, s.calls, 1)
	c := s.calls[0]
	assert.Equal(t, task.HandlerAggregate, c.handler)
	assert.Equal(t, task.AggregatePayload{AggregationKey: "folder:f1:object_added"}, c.payload)
	assert.True(t, c.opts.NotBefore.Equal(now.Truncate(time.Second).Add(time.Second)), "due at the end of its second")
	assert.Equal(t, tasks.BucketKey("aggregate", "folder:f1:object_added", now, time.Second), c.opts.DedupeKey)
}

func TestHandler_SameSecondCollapses(t *testing.T) {
	s := &fakeSched{}
	h := newController(s).Handler()
	raw := encode(t, kafkax.EventRecorded{AggregationKey: "k"})

	require.NoError(t, h(context.Background(), nil, raw))
	require.NoError(t, h(context.Background(), nil, raw))

	require.Len(t, s.calls, 2)
	assert.Equal(t, s.calls[0].opts.DedupeKey, s.calls[1].opts.DedupeKey)
}

func TestHandler_MalformedIsSkipped(t *testing.T) {
	s := &fakeSched{}
	h := newController(s).Handler()

	raw := encode(t, kafkax.EventRecorded{})
	require.NoError(t, h(context.Background(), nil, raw))
	assert.Empty(t, s.calls)
}

func TestHandler_UndecodableBytes(t *testing.T) {
	s := &fakeSched{}
	h := newController(s).Handler()

	assert.Error(t, h(context.Background(), nil, []byte{0xff}))
	assert.Empty(t, s.calls)
}

func TestHandler_ScheduleErrorPropagates(t *testing.T) {
	s := &fakeSched{err: errors.New("db down")}
	h := newController(s).Handler()

	err := h(context.Background(), nil, encode(t, kafkax.EventRecorded{AggregationKey: "k"}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "db down")
}
