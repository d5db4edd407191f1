package api

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/query"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
)

// defaultListLimit caps dashboard lists when no limit is given.
const defaultListLimit = 50

// ErrorResponse is the body of every failed dashboard request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionsResponse lists sessions.
type SessionsResponse struct {
	Sessions []*record.Session `json:"sessions"`
	Count    int               `json:"count"`
}

// InformationResponse lists information records.
type InformationResponse struct {
	Information []*record.InformationRecord `json:"information"`
	Count       int                         `json:"count"`
}

// CallsResponse lists call logs.
type CallsResponse struct {
	Calls []query.CallSummary `json:"calls"`
	Count int                 `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleSummary returns the dashboard's headline counts.
func (s *Server) handleSummary(c *fiber.Ctx) error {
	sum, err := s.query.Summary(c.UserContext())
	if err != nil {
		return s.readError(c, "failed to build summary", err)
	}
	return c.JSON(sum)
}

// handleListSessions returns sessions, most recently active first.
// Query parameters:
//   - limit (optional): maximum number of sessions
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	limit, err := parseLimit(c, 0)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	sessions, err := s.query.ListSessions(c.UserContext())
	if err != nil {
		return s.readError(c, "failed to list sessions", err)
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return c.JSON(SessionsResponse{Sessions: sessions, Count: len(sessions)})
}

// handleGetSession returns one session with its records and call log.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "session id parameter required"})
	}

	detail, err := s.query.SessionDetail(c.UserContext(), id)
	if storage.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "session not found"})
	}
	if err != nil {
		return s.readError(c, "failed to load session", err)
	}
	return c.JSON(detail)
}

// handleListInformation returns information records, most recent first.
// Query parameters:
//   - category, caller_id, session_id (optional): AND-combined filters
//   - limit (optional, default 50): positive integer
func (s *Server) handleListInformation(c *fiber.Ctx) error {
	limit, err := parseLimit(c, defaultListLimit)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	records, err := s.query.FilterInformation(c.UserContext(), query.InformationQuery{
		Category:  c.Query("category"),
		CallerID:  c.Query("caller_id"),
		SessionID: c.Query("session_id"),
		Limit:     limit,
	})
	if err != nil {
		return s.readError(c, "failed to list information", err)
	}
	return c.JSON(InformationResponse{Information: records, Count: len(records)})
}

// handleListCalls returns call logs with their qualification outcome.
// Query parameters:
//   - limit (optional, default 50): positive integer
func (s *Server) handleListCalls(c *fiber.Ctx) error {
	limit, err := parseLimit(c, defaultListLimit)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	calls, err := s.query.ListCalls(c.UserContext(), limit)
	if err != nil {
		return s.readError(c, "failed to list calls", err)
	}
	return c.JSON(CallsResponse{Calls: calls, Count: len(calls)})
}

// handleRawData returns a full snapshot of the store.
func (s *Server) handleRawData(c *fiber.Ctx) error {
	snap, err := s.query.Snapshot(c.UserContext())
	if err != nil {
		return s.readError(c, "failed to snapshot store", err)
	}
	return c.JSON(snap)
}

// handleFunctionCall runs one agent function call. The response is always a
// gateway.FunctionResult; the status code reflects the error kind.
func (s *Server) handleFunctionCall(c *fiber.Ctx) error {
	var call gateway.FunctionCall
	if err := json.Unmarshal(c.Body(), &call); err != nil {
		verr := gateway.ValidationError{Operation: gateway.OpDispatch, Field: "body", Reason: err.Error()}
		return c.Status(fiber.StatusBadRequest).JSON(gateway.FunctionResult{
			Error:     verr.Error(),
			ErrorKind: gateway.KindValidation,
		})
	}

	result, err := s.gateway.Dispatch(c.UserContext(), call)
	if err != nil {
		return c.Status(statusFor(err)).JSON(result)
	}
	return c.JSON(result)
}

// readError logs a failed read and answers with a generic message.
func (s *Server) readError(c *fiber.Ctx, msg string, err error) error {
	s.logger.Error(msg, "path", c.Path(), "error", err)
	return c.Status(statusFor(err)).JSON(ErrorResponse{Error: msg})
}

// statusFor maps the caller-facing error kind onto an HTTP status.
func statusFor(err error) int {
	switch gateway.Kind(err) {
	case gateway.KindValidation:
		return fiber.StatusBadRequest
	case gateway.KindSessionState:
		return fiber.StatusConflict
	case gateway.KindInvariantViolation:
		return fiber.StatusInternalServerError
	}
	return fiber.StatusServiceUnavailable
}

// parseLimit reads the limit query parameter, falling back to def when it is
// absent.
func parseLimit(c *fiber.Ctx, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, query.ErrInvalidLimit
	}
	return limit, nil
}
