package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"frontdesk/internal/storage"
)

func sampleRequest() storage.HelpRequest {
	return storage.HelpRequest{
		ID:        "req-1",
		CallerID:  "c1",
		Question:  "Do you validate parking?",
		Status:    storage.StatusResolved,
		Answer:    "Yes, free for 2 hours",
		CreatedAt: time.Now().UTC(),
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	if err := n.NotifyCaller(context.Background(), sampleRequest()); err != nil {
		t.Errorf("NotifyCaller: %v", err)
	}
	if err := n.AlertSupervisor(context.Background(), sampleRequest()); err != nil {
		t.Errorf("AlertSupervisor: %v", err)
	}
}

func TestWebhookNotifier_DeliversPayload(t *testing.T) {
	var got callerNotification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	if err := n.NotifyCaller(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("NotifyCaller: %v", err)
	}

	if got.CallerID != "c1" || got.Answer != "Yes, free for 2 hours" || got.Question != "Do you validate parking?" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookNotifier_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	if err := n.NotifyCaller(context.Background(), sampleRequest()); err == nil {
		t.Error("expected an error for a non-2xx gateway response")
	}
}

func TestNewMailAlerter_Defaults(t *testing.T) {
	m := NewMailAlerter(MailConfig{Host: "smtp.example.com"})
	if m.dialer.Port != 587 {
		t.Errorf("port = %d, want default 587", m.dialer.Port)
	}
	if m.from == "" {
		t.Error("from address should default")
	}
}
