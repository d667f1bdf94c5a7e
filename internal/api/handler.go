// Package api exposes the escalation engine over HTTP (for the inbound and
// supervisor gateways) and over MCP (for agent runtimes).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"frontdesk/internal/escalation"
	"frontdesk/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds the handler dependencies.
type Deps struct {
	Engine *escalation.Engine
	Store  *storage.Store
	Token  string
}

// NewHandler builds the HTTP surface. Everything except /health requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/agent/ingest", handleIngest(deps))
		r.Post("/resolve", handleResolve(deps))
		r.Get("/requests", handleListRequests(deps))
		r.Get("/requests/{id}", handleGetRequest(deps))
		r.Get("/knowledge", handleListKnowledge(deps))
		r.Post("/knowledge", handleAddKnowledge(deps))
	})

	return r
}

// IngestRequest is the payload the inbound gateway posts for each caller
// utterance.
type IngestRequest struct {
	CallerID   string `json:"caller_id"`
	Transcript string `json:"transcript"`
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Transcript == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "transcript is required")
			return
		}
		if req.CallerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "caller_id is required")
			return
		}

		result, err := deps.Engine.Ingest(r.Context(), req.CallerID, req.Transcript)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "ingest failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// ResolveRequest is the supervisor's answer submission.
type ResolveRequest struct {
	RequestID string `json:"request_id"`
	Answer    string `json:"answer"`
}

func handleResolve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req ResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.RequestID == "" || req.Answer == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "request_id and answer are required")
			return
		}

		err := deps.Engine.Resolve(r.Context(), req.RequestID, req.Answer)
		if errors.Is(err, escalation.ErrUnknownRequest) {
			httpError(w, http.StatusNotFound, "not_found", "request not found")
			return
		}
		if errors.Is(err, escalation.ErrAlreadyFinal) {
			httpError(w, http.StatusConflict, "invalid_transition", "request is no longer pending")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resolve failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "resolved"})
	}
}

func handleListRequests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := storage.Status(r.URL.Query().Get("status"))
		if status == "" {
			status = storage.StatusPending
		}
		if !status.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", status)
			return
		}

		requests, err := deps.Engine.ListByStatus(status)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list requests: %v", err)
			return
		}
		if requests == nil {
			requests = []storage.HelpRequest{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(requests)
	}
}

func handleGetRequest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		req, err := deps.Engine.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "request not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get request: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(req)
	}
}

func handleListKnowledge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)

		entries, err := deps.Store.ListKnowledge(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list knowledge: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.KnowledgeEntry{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

// KnowledgeRequest adds a question/answer pair outside the resolve path.
type KnowledgeRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func handleAddKnowledge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req KnowledgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" || req.Answer == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question and answer are required")
			return
		}

		entry := storage.KnowledgeEntry{
			ID:        uuid.New().String(),
			Question:  req.Question,
			Answer:    req.Answer,
			Source:    "api",
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.InsertKnowledge(entry); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to insert entry: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": entry.ID, "status": "created"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
