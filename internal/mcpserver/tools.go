package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/pitchroom/internal/persona"
	"github.com/apresai/pitchroom/internal/session"
)

var tracer = otel.Tracer("pitchroom-mcp")

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "start_pitch",
			Description: "Start a new investor pitch session. The chosen persona opens the meeting and the session starts at interest score 50. Returns a session_id for subsequent turns.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"persona": map[string]any{
						"type":        "string",
						"description": "Counterpart persona: shark (ruthless VC), visionary (big-picture angel), skeptic (technical founder), mentor (supportive coach)",
						"default":     "shark",
					},
					"provider": map[string]any{
						"type":        "string",
						"description": "Text generation provider: claude, gemini, nova",
						"default":     "claude",
					},
					"startup_name": map[string]any{
						"type":        "string",
						"description": "Name of the startup being pitched",
					},
					"startup_description": map[string]any{
						"type":        "string",
						"description": "One-paragraph description of what the startup does",
					},
					"locale": map[string]any{
						"type":        "string",
						"description": "Language for the meeting (default English); the counterpart always answers in the founder's language regardless",
					},
				},
				Required: []string{"startup_name"},
			},
		},
		{
			Name:        "submit_pitch_turn",
			Description: "Send one founder answer to an active pitch session. Returns the counterpart's reply, the interest delta, the new score, and whether the meeting terminated.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"session_id": map[string]any{
						"type":        "string",
						"description": "The session ID returned from start_pitch",
					},
					"text": map[string]any{
						"type":        "string",
						"description": "The founder's answer",
					},
				},
				Required: []string{"session_id", "text"},
			},
		},
		{
			Name:        "end_pitch",
			Description: "End an active pitch session early at the founder's request. The session terminates and a report can then be generated.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"session_id": map[string]any{
						"type":        "string",
						"description": "The session ID to end",
					},
				},
				Required: []string{"session_id"},
			},
		},
		{
			Name:        "pitch_report",
			Description: "Generate the post-meeting report for a finished session: final score, feedback, funding decision (FUNDED, PASSED, or GHOSTED), strengths, and weaknesses. Idempotent.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"session_id": map[string]any{
						"type":        "string",
						"description": "The session ID to report on",
					},
				},
				Required: []string{"session_id"},
			},
		},
		{
			Name:        "delete_session",
			Description: "Delete a pitch session permanently. The transcript and report are gone afterwards; archived copies in S3 are not touched.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"session_id": map[string]any{
						"type":        "string",
						"description": "The session ID to delete",
					},
				},
				Required: []string{"session_id"},
			},
		},
		{
			Name:        "list_sessions",
			Description: "List pitch sessions, pinned first then newest first. Returns session IDs, startups, personas, statuses, and scores.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"owner": map[string]any{
						"type":        "string",
						"description": "Filter to sessions belonging to this owner",
					},
				},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	svc *session.Service
	log *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(svc *session.Service, logger *slog.Logger) *Handlers {
	return &Handlers{svc: svc, log: logger}
}

// HandleStartPitch opens a new session.
func (h *Handlers) HandleStartPitch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.start_pitch")
	defer span.End()

	startReq := session.StartRequest{
		Owner:     callerOwner(req),
		Provider:  mcp.ParseString(req, "provider", "claude"),
		PersonaID: mcp.ParseString(req, "persona", "shark"),
		Startup: persona.Startup{
			Name:        mcp.ParseString(req, "startup_name", ""),
			Description: mcp.ParseString(req, "startup_description", ""),
		},
		Locale: mcp.ParseString(req, "locale", ""),
	}

	span.SetAttributes(
		attribute.String("provider", startReq.Provider),
		attribute.String("persona", startReq.PersonaID),
		attribute.String("startup", startReq.Startup.Name),
	)

	result, err := h.svc.StartPitch(ctx, startReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start pitch failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start pitch: %v", err)), nil
	}

	span.SetAttributes(attribute.String("session_id", result.SessionID))
	h.log.InfoContext(ctx, "Pitch started via MCP",
		"session_id", result.SessionID, "persona", startReq.PersonaID, "provider", startReq.Provider)

	return jsonResult(map[string]any{
		"session_id": result.SessionID,
		"opening":    result.Opening,
		"score":      result.Score,
		"persona":    result.Persona.Name,
	})
}

// HandleSubmitTurn routes one founder answer.
func (h *Handlers) HandleSubmitTurn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.submit_pitch_turn")
	defer span.End()

	id := mcp.ParseString(req, "session_id", "")
	text := mcp.ParseString(req, "text", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing session_id")
		return mcp.NewToolResultError("session_id is required"), nil
	}
	span.SetAttributes(attribute.String("session_id", id))

	outcome, err := h.svc.SubmitTurn(ctx, callerOwner(req), id, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit turn failed")
		if errors.Is(err, session.ErrTurnInFlight) {
			return mcp.NewToolResultError("a turn is already in flight for this session, wait for it to finish"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to submit turn: %v", err)), nil
	}

	span.SetAttributes(
		attribute.Int("delta", outcome.Delta),
		attribute.Int("score", outcome.Score),
		attribute.Bool("terminated", outcome.Terminated),
	)

	result := map[string]any{
		"reply": outcome.Reply,
		"delta": outcome.Delta,
		"score": outcome.Score,
	}
	if outcome.Terminated {
		result["terminated"] = true
		result["termination_reason"] = string(outcome.Reason)
		result["message"] = "The meeting is over. Use pitch_report to get the verdict."
	}
	return jsonResult(result)
}

// HandleEndPitch terminates a session early.
func (h *Handlers) HandleEndPitch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.end_pitch")
	defer span.End()

	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing session_id")
		return mcp.NewToolResultError("session_id is required"), nil
	}
	span.SetAttributes(attribute.String("session_id", id))

	if err := h.svc.EndPitch(ctx, callerOwner(req), id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "end pitch failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to end pitch: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"ended":   true,
		"message": "Session ended. Use pitch_report to get the verdict.",
	})
}

// HandlePitchReport generates or returns the session's report.
func (h *Handlers) HandlePitchReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.pitch_report")
	defer span.End()

	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing session_id")
		return mcp.NewToolResultError("session_id is required"), nil
	}
	span.SetAttributes(attribute.String("session_id", id))

	rep, err := h.svc.GenerateReport(ctx, callerOwner(req), id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to generate report: %v", err)), nil
	}

	span.SetAttributes(
		attribute.Int("score", rep.Score),
		attribute.String("decision", string(rep.Decision)),
	)
	return jsonResult(rep)
}

// HandleListSessions returns session summaries.
func (h *Handlers) HandleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_sessions")
	defer span.End()

	// The proxy-injected owner wins over the explicit filter so one key can
	// never browse another key's sessions.
	owner := mcp.ParseString(req, "_owner", "")
	if owner == "" {
		owner = mcp.ParseString(req, "owner", "mcp-server")
	}
	snaps, err := h.svc.ListSessions(ctx, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list sessions failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	span.SetAttributes(attribute.Int("result_count", len(snaps)))

	sessions := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		s := map[string]any{
			"session_id": snap.ID,
			"startup":    snap.Startup.Name,
			"persona":    snap.Persona.ID,
			"status":     string(snap.Status),
			"score":      snap.Score,
			"updated_at": snap.UpdatedAt,
		}
		if snap.Title != "" {
			s["title"] = snap.Title
		}
		if snap.Pinned {
			s["pinned"] = true
		}
		if snap.Reason != "" {
			s["termination_reason"] = string(snap.Reason)
		}
		sessions = append(sessions, s)
	}

	return jsonResult(map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// HandleDeleteSession removes a session permanently.
func (h *Handlers) HandleDeleteSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.delete_session")
	defer span.End()

	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing session_id")
		return mcp.NewToolResultError("session_id is required"), nil
	}
	span.SetAttributes(attribute.String("session_id", id))

	if err := h.svc.DeleteSession(ctx, callerOwner(req), id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete session: %v", err)), nil
	}

	h.log.InfoContext(ctx, "Session deleted via MCP", "session_id", id)
	return jsonResult(map[string]any{"deleted": true})
}

// callerOwner resolves the session-scoping owner for a tool call. The edge
// proxy injects _owner after API key auth; direct (unproxied) callers share
// one bucket.
func callerOwner(req mcp.CallToolRequest) string {
	return mcp.ParseString(req, "_owner", "mcp-server")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
