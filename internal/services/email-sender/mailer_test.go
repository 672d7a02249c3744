package emailsender

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	config "github.com/NordCoder/Herald/internal/config/notifier"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailer_NotConfigured(t *testing.T) {
	m := New(config.SMTP{From: "noreply@herald.dev"})
	assert.False(t, m.Configured())
	err := m.Send(context.Background(), notification.EmailMessage{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	m = New(config.SMTP{Addr: "localhost:25"})
	assert.False(t, m.Configured())
}

func TestMailer_InvalidAddress(t *testing.T) {
	m := New(config.SMTP{Addr: "localhost:1", From: "noreply@herald.dev"})
	require.True(t, m.Configured())
	err := m.Send(context.Background(), notification.EmailMessage{To: "not-an-address"})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestMailer_ThrottleBoundsWait(t *testing.T) {
	m := New(config.SMTP{
		Addr: "localhost:1", From: "noreply@herald.dev",
		RatePerSec: 0.5, MaxThrottleWait: 10 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, m.throttle(ctx), "burst slot is free")
	start := time.Now()
	err := m.throttle(ctx)
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, New(config.SMTP{Addr: "localhost:1", From: "x@herald.dev"}).throttle(ctx), "no limiter")
}

func TestCompose_Multipart(t *testing.T) {
	raw, err := Compose(notification.EmailMessage{
		To: "a@example.com", From: "noreply@herald.dev", Subject: "[Herald] 2 objects added",
		Text: "plain body", HTML: "<p>html body</p>",
	}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	r, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer r.Close()

	subj, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "[Herald] 2 objects added", subj)
	to, err := r.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "a@example.com", to[0].Address)

	parts := map[string]string{}
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		h, ok := p.Header.(*mail.InlineHeader)
		require.True(t, ok)
		ct, _, err := h.ContentType()
		require.NoError(t, err)
		b, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		parts[ct] = string(b)
	}
	assert.Equal(t, "plain body", parts["text/plain"])
	assert.Equal(t, "<p>html body</p>", parts["text/html"])
}

func TestLink(t *testing.T) {
	p := "/folders/abc"
	assert.Equal(t, "https://h.example/folders/abc", Link("https://h.example/", &p))
	assert.Equal(t, "https://h.example/notifications", Link("https://h.example", nil))
	assert.Equal(t, "", Link("", &p))
}

func TestRender_EscapesHTML(t *testing.T) {
	body := "<script>x</script>\nb.txt"
	path := "/folders/f1"
	msg, err := Render(notification.Notification{Title: "2 objects added", Body: &body, Path: &path}, "a@example.com", "https://h.example")
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, "2 objects added", msg.Subject)
	assert.True(t, strings.HasPrefix(msg.Text, "2 objects added\n\n<script>x</script>\nb.txt\n"))
	assert.Contains(t, msg.Text, "https://h.example/folders/f1")
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, `href="https://h.example/folders/f1"`)
}
