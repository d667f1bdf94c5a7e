package storage

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned when inserting a record whose ID already exists.
var ErrDuplicateID = errors.New("duplicate id")

// Status is the lifecycle state of a help request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
)

// Valid reports whether s is one of the known request states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusResolved, StatusUnresolved:
		return true
	}
	return false
}

// Terminal reports whether s is a final state. Requests never leave a
// terminal state.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusUnresolved
}

// KnowledgeEntry is a question/answer pair in the knowledge base.
// Entries are append-only: never mutated, never deleted, duplicates allowed.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Source    string    `json:"source"` // "seed", "resolve", "api", "import"
	CreatedAt time.Time `json:"created_at"`
}

// HelpRequest is a caller question escalated to a human supervisor.
type HelpRequest struct {
	ID        string    `json:"request_id"`
	CallerID  string    `json:"caller_id"`
	Question  string    `json:"question"`
	Status    Status    `json:"status"`
	Answer    string    `json:"answer,omitempty"` // set once status is resolved
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchQuestion reports whether a stored question answers the given query.
// The match is case-insensitive substring containment in either direction:
// the query may be contained in the stored question or vice versa. This is a
// cheap heuristic, not semantic search.
func MatchQuestion(stored, query string) bool {
	s := strings.ToLower(strings.TrimSpace(stored))
	q := strings.ToLower(strings.TrimSpace(query))
	if s == "" || q == "" {
		return false
	}
	return strings.Contains(s, q) || strings.Contains(q, s)
}
