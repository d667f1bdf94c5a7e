package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"frontdesk/internal/storage"
)

func newTestEngine(t *testing.T, deps Deps) (*Engine, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if deps.Knowledge == nil {
		deps.Knowledge = store
	}
	if deps.Ledger == nil {
		deps.Ledger = store
	}
	return New(deps), store
}

func seedKnowledge(t *testing.T, store *storage.Store, question, answer string) {
	t.Helper()
	err := store.InsertKnowledge(storage.KnowledgeEntry{
		ID:        "seed-" + question,
		Question:  question,
		Answer:    answer,
		Source:    "seed",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertKnowledge: %v", err)
	}
}

func insertPendingAt(t *testing.T, store *storage.Store, id, caller, question string, createdAt time.Time) {
	t.Helper()
	err := store.InsertRequest(storage.HelpRequest{
		ID:        id,
		CallerID:  caller,
		Question:  question,
		Status:    storage.StatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("InsertRequest(%s): %v", id, err)
	}
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []storage.HelpRequest
}

func (n *recordingNotifier) NotifyCaller(_ context.Context, req storage.HelpRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, req)
	return nil
}

func (n *recordingNotifier) AlertSupervisor(_ context.Context, req storage.HelpRequest) error {
	return n.NotifyCaller(context.Background(), req)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// failingKnowledge wraps a real store but rejects inserts.
type failingKnowledge struct {
	*storage.Store
}

func (f failingKnowledge) InsertKnowledge(storage.KnowledgeEntry) error {
	return errors.New("disk full")
}

// Scenario: seeded store answers a case-insensitive repeat of the seed
// question without creating a request.
func TestIngest_KnownQuestion(t *testing.T) {
	e, store := newTestEngine(t, Deps{})
	seedKnowledge(t, store, "What are your hours?", "9 to 5, Mon-Fri")

	res, err := e.Ingest(context.Background(), "c1", "what are your hours?")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !res.Known {
		t.Fatal("expected known=true")
	}
	if res.Answer != "9 to 5, Mon-Fri" {
		t.Errorf("answer = %q, want %q", res.Answer, "9 to 5, Mon-Fri")
	}
	if res.RequestID != "" {
		t.Errorf("request_id should be empty on a hit, got %q", res.RequestID)
	}

	pending, err := store.ListRequestsByStatus(storage.StatusPending)
	if err != nil {
		t.Fatalf("ListRequestsByStatus: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("a knowledge hit must create no requests, got %d", len(pending))
	}
}

func TestIngest_UnknownCreatesPendingRequest(t *testing.T) {
	alerter := &recordingNotifier{}
	e, store := newTestEngine(t, Deps{Alerter: alerter})

	res, err := e.Ingest(context.Background(), "c1", "Do you validate parking?")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Known {
		t.Fatal("expected known=false on an empty knowledge base")
	}
	if res.RequestID == "" {
		t.Fatal("expected a request_id")
	}

	req, err := store.GetRequest(res.RequestID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if req.Status != storage.StatusPending {
		t.Errorf("status = %s, want pending", req.Status)
	}
	if req.Question != "Do you validate parking?" {
		t.Errorf("question = %q, want the ingested text verbatim", req.Question)
	}
	if req.CallerID != "c1" {
		t.Errorf("caller_id = %q, want c1", req.CallerID)
	}
	if alerter.count() != 1 {
		t.Errorf("supervisor alerts = %d, want 1", alerter.count())
	}
}

func TestIngest_RepeatedMissesCreateSeparateRequests(t *testing.T) {
	e, store := newTestEngine(t, Deps{})

	ids := make(map[string]bool)
	for _, caller := range []string{"c1", "c2", "c1"} {
		res, err := e.Ingest(context.Background(), caller, "Do you allow pets?")
		if err != nil {
			t.Fatalf("Ingest(%s): %v", caller, err)
		}
		if res.Known {
			t.Fatal("expected a miss")
		}
		ids[res.RequestID] = true
	}
	if len(ids) != 3 {
		t.Errorf("got %d distinct request IDs, want 3 (no dedup of repeated questions)", len(ids))
	}

	pending, err := store.ListRequestsByStatus(storage.StatusPending)
	if err != nil {
		t.Fatalf("ListRequestsByStatus: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("pending = %d, want 3", len(pending))
	}
}

// Scenario B: miss, resolve, then the same question from another caller is
// answered from the learned knowledge.
func TestResolve_LearnsAndAnswersNextCaller(t *testing.T) {
	notifier := &recordingNotifier{}
	e, store := newTestEngine(t, Deps{Notifier: notifier})

	res, err := e.Ingest(context.Background(), "c1", "Do you validate parking?")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := e.Resolve(context.Background(), res.RequestID, "Yes, free for 2 hours"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	req, err := store.GetRequest(res.RequestID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if req.Status != storage.StatusResolved {
		t.Errorf("status = %s, want resolved", req.Status)
	}
	if req.Answer != "Yes, free for 2 hours" {
		t.Errorf("answer = %q", req.Answer)
	}

	entries, err := store.ListKnowledge(10)
	if err != nil {
		t.Fatalf("ListKnowledge: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("knowledge entries = %d, want exactly 1", len(entries))
	}
	if entries[0].Question != "Do you validate parking?" {
		t.Errorf("learned question = %q, want the original request question", entries[0].Question)
	}

	if notifier.count() != 1 {
		t.Errorf("caller notifications = %d, want 1", notifier.count())
	}

	second, err := e.Ingest(context.Background(), "c2", "do you validate parking?")
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if !second.Known || second.Answer != "Yes, free for 2 hours" {
		t.Errorf("second caller got %+v, want the learned answer", second)
	}
}

func TestResolve_UnknownRequest(t *testing.T) {
	e, store := newTestEngine(t, Deps{})

	err := e.Resolve(context.Background(), "no-such-id", "answer")
	if !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("Resolve error = %v, want ErrUnknownRequest", err)
	}

	n, _ := store.CountKnowledge()
	if n != 0 {
		t.Errorf("knowledge base changed on a failed resolve: %d entries", n)
	}
}

func TestResolve_AlreadyResolved(t *testing.T) {
	e, store := newTestEngine(t, Deps{})

	res, err := e.Ingest(context.Background(), "c1", "q")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := e.Resolve(context.Background(), res.RequestID, "first"); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	err = e.Resolve(context.Background(), res.RequestID, "second")
	if !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("second Resolve error = %v, want ErrAlreadyFinal", err)
	}

	// The knowledge base learned from the request exactly once.
	n, _ := store.CountKnowledge()
	if n != 1 {
		t.Errorf("knowledge entries = %d, want 1", n)
	}
	req, _ := store.GetRequest(res.RequestID)
	if req.Answer != "first" {
		t.Errorf("answer = %q, want the first resolution kept", req.Answer)
	}
}

func TestResolve_KnowledgeInsertFailureKeepsResolution(t *testing.T) {
	notifier := &recordingNotifier{}
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	e := New(Deps{
		Knowledge: failingKnowledge{store},
		Ledger:    store,
		Notifier:  notifier,
	})

	insertPendingAt(t, store, "req-1", "c1", "q", time.Now().UTC())

	if err := e.Resolve(context.Background(), "req-1", "a"); err != nil {
		t.Fatalf("Resolve should succeed despite the knowledge insert failing, got %v", err)
	}

	req, _ := store.GetRequest("req-1")
	if req.Status != storage.StatusResolved || req.Answer != "a" {
		t.Errorf("request = %+v, want resolved with answer", req)
	}
	if notifier.count() != 1 {
		t.Errorf("caller notifications = %d, want 1", notifier.count())
	}
}

// Scenario C: a request created at t0 is unresolved after a sweep at t0+3h
// with a 2h threshold, and a late resolve fails.
func TestSweepTimeouts_StaleRequest(t *testing.T) {
	e, store := newTestEngine(t, Deps{Timeout: 2 * time.Hour})

	t0 := time.Now().UTC().Add(-3 * time.Hour)
	insertPendingAt(t, store, "old", "c1", "q-old", t0)
	insertPendingAt(t, store, "fresh", "c2", "q-fresh", time.Now().UTC())

	count, err := e.SweepTimeouts(time.Now().UTC())
	if err != nil {
		t.Fatalf("SweepTimeouts: %v", err)
	}
	if count != 1 {
		t.Errorf("swept = %d, want 1", count)
	}

	old, _ := store.GetRequest("old")
	if old.Status != storage.StatusUnresolved {
		t.Errorf("old request status = %s, want unresolved", old.Status)
	}
	fresh, _ := store.GetRequest("fresh")
	if fresh.Status != storage.StatusPending {
		t.Errorf("fresh request status = %s, want pending", fresh.Status)
	}

	err = e.Resolve(context.Background(), "old", "too late")
	if !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("late Resolve error = %v, want ErrAlreadyFinal", err)
	}
}

func TestSweepTimeouts_Idempotent(t *testing.T) {
	e, store := newTestEngine(t, Deps{Timeout: 2 * time.Hour})

	insertPendingAt(t, store, "old", "c1", "q", time.Now().UTC().Add(-5*time.Hour))

	now := time.Now().UTC()
	first, err := e.SweepTimeouts(now)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	second, err := e.SweepTimeouts(now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if first != 1 || second != 0 {
		t.Errorf("sweep counts = %d, %d; want 1, 0", first, second)
	}

	unresolved, _ := store.ListRequestsByStatus(storage.StatusUnresolved)
	if len(unresolved) != 1 {
		t.Errorf("unresolved = %d, want 1", len(unresolved))
	}
}

func TestSweepTimeouts_ThresholdBoundary(t *testing.T) {
	e, store := newTestEngine(t, Deps{Timeout: 2 * time.Hour})

	now := time.Now().UTC()
	// Exactly at the cutoff: not older than the threshold, so untouched.
	insertPendingAt(t, store, "edge", "c1", "q", now.Add(-2*time.Hour))

	count, err := e.SweepTimeouts(now)
	if err != nil {
		t.Fatalf("SweepTimeouts: %v", err)
	}
	if count != 0 {
		t.Errorf("swept = %d, want 0 for a request exactly at the threshold", count)
	}
}

// Race property: when a resolve and a sweep whose window includes the same
// requests run concurrently, every request ends in exactly one terminal
// state, and the knowledge base learned exactly once per resolved request.
func TestResolveSweepRace(t *testing.T) {
	e, store := newTestEngine(t, Deps{Timeout: 2 * time.Hour})

	const n = 20
	stale := time.Now().UTC().Add(-3 * time.Hour)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("req-%02d", i)
		insertPendingAt(t, store, ids[i], "c1", "question "+ids[i], stale)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			err := e.Resolve(context.Background(), id, "answer")
			if err != nil && !errors.Is(err, ErrAlreadyFinal) {
				t.Errorf("Resolve(%s): %v", id, err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := e.SweepTimeouts(time.Now().UTC()); err != nil {
			t.Errorf("SweepTimeouts: %v", err)
		}
	}()
	wg.Wait()

	resolved := 0
	for _, id := range ids {
		req, err := store.GetRequest(id)
		if err != nil {
			t.Fatalf("GetRequest(%s): %v", id, err)
		}
		switch req.Status {
		case storage.StatusResolved:
			resolved++
			if req.Answer != "answer" {
				t.Errorf("%s resolved without its answer", id)
			}
		case storage.StatusUnresolved:
			if req.Answer != "" {
				t.Errorf("%s unresolved but carries an answer %q", id, req.Answer)
			}
		default:
			t.Errorf("%s left in state %s", id, req.Status)
		}
	}

	kb, err := store.CountKnowledge()
	if err != nil {
		t.Fatalf("CountKnowledge: %v", err)
	}
	if kb != resolved {
		t.Errorf("knowledge entries = %d, want %d (one per winning resolve)", kb, resolved)
	}
}
