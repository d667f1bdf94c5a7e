package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"

	"frontdesk/internal/storage"
)

// MailConfig configures the supervisor alert mailer.
type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       string
}

// MailAlerter emails the supervisor when a new request needs attention.
type MailAlerter struct {
	dialer     *gomail.Dialer
	from       string
	to         string
	retryCount int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewMailAlerter creates a MailAlerter from cfg.
func NewMailAlerter(cfg MailConfig) *MailAlerter {
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	from := cfg.From
	if from == "" {
		from = "frontdesk@localhost"
	}
	return &MailAlerter{
		dialer:     gomail.NewDialer(cfg.Host, port, cfg.User, cfg.Password),
		from:       from,
		to:         cfg.To,
		retryCount: 3,
		backoff:    100 * time.Millisecond,
		logger:     slog.Default(),
	}
}

// AlertSupervisor sends the alert mail, retrying transient failures with
// doubling backoff.
func (m *MailAlerter) AlertSupervisor(_ context.Context, req storage.HelpRequest) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", fmt.Sprintf("Help needed: %s", truncate(req.Question, 80)))
	msg.SetBody("text/plain", fmt.Sprintf(
		"A caller question needs a supervisor answer.\n\nQuestion: %s\nCaller: %s\nRequest:  %s\nReceived: %s\n",
		req.Question, req.CallerID, req.ID, req.CreatedAt.Format(time.RFC3339),
	))

	var lastErr error
	backoff := m.backoff
	for attempt := 0; attempt <= m.retryCount; attempt++ {
		err := m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < m.retryCount {
			m.logger.Warn("supervisor mail attempt failed", "attempt", attempt+1, "error", lastErr)
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("sending supervisor mail after %d attempts: %w", m.retryCount+1, lastErr)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
