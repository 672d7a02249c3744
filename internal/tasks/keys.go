package tasks

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Window names the right-closed, width-aligned window (end-width, end]
// containing t. Every t sharing an id is at or before end, so a task keyed by
// id and due no earlier than end runs after all requests that collapse onto it.
func Window(t time.Time, width time.Duration) (end time.Time, id string) {
	if width <= 0 {
		width = time.Second
	}
	w, n := int64(width), t.UnixNano()
	e := n / w * w
	if e < n {
		e += w
	}
	return time.Unix(0, e).In(t.Location()), strconv.FormatInt(e/w, 10)
}

// DueAfterWindow is the later of t+delay and the end of t's window.
func DueAfterWindow(t time.Time, width, delay time.Duration) (due time.Time, id string) {
	end, id := Window(t, width)
	if due = t.Add(delay); due.Before(end) {
		due = end
	}
	return due, id
}

// Key builds an idempotency key from a prefix and arbitrary parts. Parts are
// hashed so opaque, unbounded inputs map to a fixed-width key.
func Key(prefix string, parts ...string) string {
	h, _ := blake2b.New(16, nil)
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

// BucketKey is Key with the id of t's Window kept readable at the end.
func BucketKey(prefix string, id string, t time.Time, width time.Duration) string {
	_, window := Window(t, width)
	var b strings.Builder
	b.WriteString(Key(prefix, id))
	b.WriteByte(':')
	b.WriteString(window)
	return b.String()
}
