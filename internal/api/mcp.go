package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"frontdesk/internal/escalation"
	"frontdesk/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine *escalation.Engine
	Store  *storage.Store
}

// NewMCPServer creates an MCP server exposing the escalation flow to agent
// runtimes over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"frontdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("frontdesk — answers caller questions from the knowledge base and escalates unknowns to a human supervisor."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("ask_frontdesk",
			mcp.WithDescription("Look up an answer for a caller question. Escalates to a supervisor when the knowledge base has no match."),
			mcp.WithString("caller_id", mcp.Description("Identifier of the caller asking"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The caller's question"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_request",
			mcp.WithDescription("Answer a pending help request. The answer is saved to the knowledge base and the caller is notified."),
			mcp.WithString("request_id", mcp.Description("ID of the pending request"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The supervisor's answer"), mcp.Required()),
		),
		mcpResolve(deps),
	)

	s.AddTool(
		mcp.NewTool("list_requests",
			mcp.WithDescription("List help requests by status."),
			mcp.WithString("status", mcp.Description("pending, resolved or unresolved (default pending)")),
		),
		mcpListRequests(deps),
	)

	s.AddTool(
		mcp.NewTool("add_knowledge",
			mcp.WithDescription("Add a question/answer pair directly to the knowledge base."),
			mcp.WithString("question", mcp.Description("The question to store"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The answer to store"), mcp.Required()),
		),
		mcpAddKnowledge(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"frontdesk://requests/pending",
			"Pending Help Requests",
			mcp.WithResourceDescription("Help requests still waiting for a supervisor answer"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePending(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callerID, err := req.RequireString("caller_id")
		if err != nil {
			return mcpError("caller_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		result, err := deps.Engine.Ingest(ctx, callerID, question)
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResolve(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		requestID, err := req.RequireString("request_id")
		if err != nil {
			return mcpError("request_id is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}

		err = deps.Engine.Resolve(ctx, requestID, answer)
		if errors.Is(err, escalation.ErrUnknownRequest) {
			return mcpError(fmt.Sprintf("no request with id %s", requestID)), nil
		}
		if errors.Is(err, escalation.ErrAlreadyFinal) {
			return mcpError(fmt.Sprintf("request %s is no longer pending", requestID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("resolve failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Resolved request %s", requestID)), nil
	}
}

func mcpListRequests(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := storage.Status(req.GetString("status", string(storage.StatusPending)))

		requests, err := deps.Engine.ListByStatus(status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list requests: %v", err)), nil
		}
		if len(requests) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(requests)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal requests: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}

		entry := storage.KnowledgeEntry{
			ID:        uuid.New().String(),
			Question:  question,
			Answer:    answer,
			Source:    "mcp",
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.InsertKnowledge(entry); err != nil {
			return mcpError(fmt.Sprintf("failed to store entry: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored knowledge entry %s", entry.ID)), nil
	}
}

func mcpResourcePending(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		requests, err := deps.Engine.ListByStatus(storage.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending requests: %w", err)
		}
		if requests == nil {
			requests = []storage.HelpRequest{}
		}

		b, err := json.Marshal(requests)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal requests: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
