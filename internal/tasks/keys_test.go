package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, Key("p", "a", "b"), Key("p", "a", "b"))
	assert.NotEqual(t, Key("p", "ab", "c"), Key("p", "a", "bc"))
	assert.NotEqual(t, Key("p", "a"), Key("q", "a"))
	assert.Len(t, Key("p", "x"), len("p:")+32)
}

func TestBucketKey(t *testing.T) {
	at := time.Unix(1_000, 0)
	k := BucketKey("fanout", "key-1", at, 5*time.Second)
	assert.Equal(t, Key("fanout", "key-1")+":200", k)
}

func TestWindow(t *testing.T) {
	base := time.Unix(1_000, 0)

	end, id := Window(base, 5*time.Second)
	assert.True(t, end.Equal(base), "an aligned instant closes its own window")
	assert.Equal(t, "200", id)

	end, id = Window(base.Add(time.Millisecond), 5*time.Second)
	assert.True(t, end.Equal(time.Unix(1_005, 0)))
	assert.Equal(t, "201", id)

	_, same := Window(base.Add(5*time.Second), 5*time.Second)
	assert.Equal(t, id, same)
}

func TestDueAfterWindow(t *testing.T) {
	width, delay := 10*time.Second, 5*time.Second
	start := time.Unix(1_000, 0)

	first, id := DueAfterWindow(start.Add(time.Second), width, delay)
	assert.True(t, first.Equal(time.Unix(1_010, 0)), "early in the window the window end wins")

	// A later request in the same window collapses onto the first task, which
	// must not be due before that request happened.
	late := start.Add(7 * time.Second)
	lateDue, lateID := DueAfterWindow(late, width, delay)
	require.Equal(t, id, lateID)
	assert.False(t, first.Before(late))
	assert.True(t, lateDue.Equal(time.Unix(1_012, 0)), "late in the window the delay wins")

	due, _ := DueAfterWindow(start, time.Second, 2*time.Second)
	assert.True(t, due.Equal(time.Unix(1_002, 0)))
}
