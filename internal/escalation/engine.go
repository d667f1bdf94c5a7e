// Package escalation implements the help-request lifecycle: answer a caller
// question from the knowledge base, escalate unknown questions to a human
// supervisor as pending requests, fold supervisor answers back into the
// knowledge base, and time out requests the supervisor never answered.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"frontdesk/internal/storage"
)

// ErrUnknownRequest is returned by Resolve when no request has the given ID.
var ErrUnknownRequest = errors.New("unknown request")

// ErrAlreadyFinal is returned by Resolve when the request has already been
// resolved or timed out. Terminal states are never left.
var ErrAlreadyFinal = errors.New("request already in a terminal state")

// DefaultTimeout is how long a request may stay pending before a sweep marks
// it unresolved.
const DefaultTimeout = 2 * time.Hour

// KnowledgeStore is the read/append surface of the knowledge base.
type KnowledgeStore interface {
	LookupAnswer(query string) (string, bool, error)
	InsertKnowledge(e storage.KnowledgeEntry) error
}

// RequestLedger is the persistence surface for help requests.
// TransitionRequest must be a single atomic conditional update.
type RequestLedger interface {
	InsertRequest(r storage.HelpRequest) error
	GetRequest(id string) (storage.HelpRequest, error)
	TransitionRequest(id string, from, to storage.Status, answer string) (bool, error)
	ListRequestsByStatus(status storage.Status) ([]storage.HelpRequest, error)
}

// CallerNotifier signals the inbound gateway that a caller's question has
// been answered. Delivery mechanics belong to the gateway.
type CallerNotifier interface {
	NotifyCaller(ctx context.Context, req storage.HelpRequest) error
}

// SupervisorAlerter signals a human supervisor that a new request needs
// attention.
type SupervisorAlerter interface {
	AlertSupervisor(ctx context.Context, req storage.HelpRequest) error
}

// Deps holds the collaborators of an Engine. Notifier and Alerter are
// optional; notification failures never fail the operation that triggered
// them.
type Deps struct {
	Knowledge KnowledgeStore
	Ledger    RequestLedger
	Notifier  CallerNotifier
	Alerter   SupervisorAlerter
	Timeout   time.Duration // <= 0 means DefaultTimeout
	Logger    *slog.Logger  // nil means slog.Default()
}

// Engine is the sole writer of escalation business rules. All mutation of
// the knowledge base and the request ledger goes through its operations,
// each of which is safe under concurrent invocation.
type Engine struct {
	knowledge KnowledgeStore
	ledger    RequestLedger
	notifier  CallerNotifier
	alerter   SupervisorAlerter
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates an Engine from deps.
func New(deps Deps) *Engine {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		knowledge: deps.Knowledge,
		ledger:    deps.Ledger,
		notifier:  deps.Notifier,
		alerter:   deps.Alerter,
		timeout:   timeout,
		logger:    logger,
	}
}

// Timeout returns the pending-request timeout threshold.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// IngestResult is the outcome of a caller question: either a known answer,
// or the ID of the pending request created for the supervisor.
type IngestResult struct {
	Known     bool   `json:"known"`
	Answer    string `json:"answer,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Ingest answers a caller question from the knowledge base, or creates a
// pending help request when no stored question matches. Every miss creates
// its own request; repeated identical questions are not deduplicated.
func (e *Engine) Ingest(ctx context.Context, callerID, question string) (IngestResult, error) {
	answer, ok, err := e.knowledge.LookupAnswer(question)
	if err != nil {
		return IngestResult{}, fmt.Errorf("knowledge lookup: %w", err)
	}
	if ok {
		e.logger.Debug("answered from knowledge base", "caller_id", callerID)
		return IngestResult{Known: true, Answer: answer}, nil
	}

	now := time.Now().UTC()
	req := storage.HelpRequest{
		ID:        uuid.New().String(),
		CallerID:  callerID,
		Question:  question,
		Status:    storage.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.ledger.InsertRequest(req); err != nil {
		return IngestResult{}, fmt.Errorf("creating help request: %w", err)
	}
	e.logger.Info("help request created", "request_id", req.ID, "caller_id", callerID)

	if e.alerter != nil {
		if err := e.alerter.AlertSupervisor(ctx, req); err != nil {
			e.logger.Warn("supervisor alert failed", "request_id", req.ID, "error", err)
		}
	}
	return IngestResult{Known: false, RequestID: req.ID}, nil
}

// Resolve records a supervisor answer: it atomically transitions the request
// from pending to resolved, adds the question/answer pair to the knowledge
// base, and signals the caller. A request that is not currently pending is
// left untouched and the call reports ErrUnknownRequest or ErrAlreadyFinal;
// neither the knowledge base nor the caller is touched in that case. The
// ledger transition is the commit point: at most one of a concurrent Resolve
// and timeout sweep wins, so the knowledge base learns from a request at
// most once.
func (e *Engine) Resolve(ctx context.Context, requestID, answer string) error {
	ok, err := e.ledger.TransitionRequest(requestID, storage.StatusPending, storage.StatusResolved, answer)
	if err != nil {
		return fmt.Errorf("resolving request: %w", err)
	}
	if !ok {
		if _, getErr := e.ledger.GetRequest(requestID); getErr != nil {
			if errors.Is(getErr, storage.ErrNotFound) {
				return ErrUnknownRequest
			}
			return fmt.Errorf("classifying failed transition: %w", getErr)
		}
		return ErrAlreadyFinal
	}

	req, err := e.ledger.GetRequest(requestID)
	if err != nil {
		return fmt.Errorf("loading resolved request: %w", err)
	}

	entry := storage.KnowledgeEntry{
		ID:        uuid.New().String(),
		Question:  req.Question,
		Answer:    answer,
		Source:    "resolve",
		CreatedAt: time.Now().UTC(),
	}
	if err := e.knowledge.InsertKnowledge(entry); err != nil {
		// The resolution stands; the insert is safe to retry later since the
		// knowledge base never rejects.
		e.logger.Error("knowledge insert failed after resolve", "request_id", requestID, "error", err)
	} else {
		e.logger.Info("knowledge base updated", "request_id", requestID)
	}

	if e.notifier != nil {
		if err := e.notifier.NotifyCaller(ctx, req); err != nil {
			e.logger.Warn("caller notification failed", "request_id", requestID, "caller_id", req.CallerID, "error", err)
		}
	}
	return nil
}

// SweepTimeouts transitions every pending request created before
// now - timeout to unresolved and returns how many were transitioned. Each
// transition is conditioned on the request still being pending, so a request
// resolved between the scan and the update is not overwritten. Running the
// sweep repeatedly with the same clock value converges: requests already
// unresolved are untouched.
func (e *Engine) SweepTimeouts(now time.Time) (int, error) {
	pending, err := e.ledger.ListRequestsByStatus(storage.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("scanning pending requests: %w", err)
	}

	cutoff := now.Add(-e.timeout)
	count := 0
	for _, req := range pending {
		if !req.CreatedAt.Before(cutoff) {
			continue
		}
		ok, err := e.ledger.TransitionRequest(req.ID, storage.StatusPending, storage.StatusUnresolved, "")
		if err != nil {
			return count, fmt.Errorf("timing out request %s: %w", req.ID, err)
		}
		if ok {
			count++
			e.logger.Info("request timed out", "request_id", req.ID, "age", now.Sub(req.CreatedAt).String())
		}
	}
	return count, nil
}

// ListByStatus returns a snapshot of all requests in the given state, in
// insertion order.
func (e *Engine) ListByStatus(status storage.Status) ([]storage.HelpRequest, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	return e.ledger.ListRequestsByStatus(status)
}

// Get returns a single request by ID.
func (e *Engine) Get(requestID string) (storage.HelpRequest, error) {
	return e.ledger.GetRequest(requestID)
}
