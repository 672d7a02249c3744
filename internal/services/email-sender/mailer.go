package emailsender

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strings"
	"time"

	config "github.com/NordCoder/Herald/internal/config/notifier"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/emersion/go-message/mail"
	"github.com/mcnijman/go-emailaddress"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by Send when no SMTP provider is set up.
var ErrNotConfigured = errors.New("email provider not configured")

// ErrInvalidAddress is returned by Send for a malformed recipient.
var ErrInvalidAddress = errors.New("invalid email address")

// ErrThrottled is returned by Send when the next rate-limit slot is further
// away than the configured wait. Nothing was sent.
var ErrThrottled = errors.New("email rate limit reached")

var _ notification.EmailSender = (*Mailer)(nil)

type Mailer struct {
	addr       string
	auth       smtp.Auth
	useTLS     bool
	timeout    time.Duration
	from       string
	subjPrefix string
	limiter    *rate.Limiter
	maxWait    time.Duration

	log *zap.Logger
}

func New(cfg config.SMTP) *Mailer {
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, host(cfg.Addr))
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxWait := cfg.MaxThrottleWait
	if maxWait <= 0 {
		maxWait = time.Second
	}
	return &Mailer{
		addr:       strings.TrimSpace(cfg.Addr),
		auth:       auth,
		useTLS:     cfg.UseTLS,
		timeout:    timeout,
		from:       strings.TrimSpace(cfg.From),
		subjPrefix: cfg.SubjPrefix,
		limiter:    limiter,
		maxWait:    maxWait,
		log:        zap.L().With(zap.String("component", "email-sender.mailer")),
	}
}

func (m *Mailer) WithLogger(l *zap.Logger) *Mailer {
	if l == nil {
		return m
	}
	cp := *m
	cp.log = l.With(zap.String("component", "email-sender.mailer"))
	return &cp
}

func (m *Mailer) Configured() bool { return m.addr != "" && m.from != "" }

func (m *Mailer) Send(ctx context.Context, msg notification.EmailMessage) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	if msg.From == "" {
		msg.From = m.from
	}
	if _, err := emailaddress.Parse(msg.To); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddress, msg.To, err)
	}
	msg.Subject = strings.TrimSpace(m.subjPrefix + " " + msg.Subject)

	raw, err := Compose(msg, time.Now())
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	if err := m.throttle(ctx); err != nil {
		return err
	}

	start := time.Now()
	log := m.log.With(
		zap.String("smtp_addr", m.addr),
		zap.Bool("tls", m.useTLS),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)

	if err := m.deliver(ctx, msg.From, msg.To, raw); err != nil {
		log.Warn("smtp send failed", zap.Error(err))
		return err
	}
	log.Debug("email sent", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// throttle takes a rate-limit slot, waiting at most maxWait for it.
func (m *Mailer) throttle(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	r := m.limiter.Reserve()
	if !r.OK() {
		return ErrThrottled
	}
	d := r.Delay()
	if d == 0 {
		return nil
	}
	if d > m.maxWait {
		r.Cancel()
		return fmt.Errorf("%w: next slot in %s", ErrThrottled, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *Mailer) deliver(ctx context.Context, from, to string, raw []byte) error {
	dialer := net.Dialer{Timeout: m.timeout}
	dctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var conn net.Conn
	var err error
	if m.useTLS {
		td := tls.Dialer{NetDialer: &dialer, Config: &tls.Config{ServerName: host(m.addr)}}
		conn, err = td.DialContext(dctx, "tcp", m.addr)
	} else {
		conn, err = dialer.DialContext(dctx, "tcp", m.addr)
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(m.timeout))

	c, err := smtp.NewClient(conn, host(m.addr))
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if !m.useTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host(m.addr)}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return c.Quit()
}

// Compose renders msg as a multipart/alternative message with a text and an
// HTML part.
func Compose(msg notification.EmailMessage, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	if err := writePart(tw, "text/plain", msg.Text); err != nil {
		return nil, err
	}
	if err := writePart(tw, "text/html", msg.HTML); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(tw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ph)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

func host(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
