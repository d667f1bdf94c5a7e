// Package notify holds the delivery boundary for escalation events: caller
// notifications handed to the inbound gateway, and supervisor alerts for new
// pending requests. The engine only signals intent; delivery lives here.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"frontdesk/internal/storage"
)

// LogNotifier announces events on the process log. It is the default
// boundary when no gateway endpoint is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default()}
}

func (n *LogNotifier) NotifyCaller(_ context.Context, req storage.HelpRequest) error {
	n.logger.Info("caller notification",
		"caller_id", req.CallerID,
		"question", req.Question,
		"answer", req.Answer,
	)
	return nil
}

func (n *LogNotifier) AlertSupervisor(_ context.Context, req storage.HelpRequest) error {
	n.logger.Info("supervisor alert: help needed",
		"request_id", req.ID,
		"caller_id", req.CallerID,
		"question", req.Question,
	)
	return nil
}

// WebhookNotifier delivers caller notifications to the inbound gateway over
// HTTP. The gateway owns speaking the answer back to the caller.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier posting to url. If client is
// nil a client with a 10s timeout is used.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

type callerNotification struct {
	RequestID string `json:"request_id"`
	CallerID  string `json:"caller_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
}

func (n *WebhookNotifier) NotifyCaller(ctx context.Context, req storage.HelpRequest) error {
	payload, err := json.Marshal(callerNotification{
		RequestID: req.ID,
		CallerID:  req.CallerID,
		Question:  req.Question,
		Answer:    req.Answer,
	})
	if err != nil {
		return fmt.Errorf("marshalling notification: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("delivering notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}
