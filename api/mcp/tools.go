package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
)

var (
	shareInformationDescription = "Record one fact the customer shared during the call, tagged with a category such as debt_info or contact_info. Omit session_id on the first call; reuse the returned session_id for every later call in the same conversation."

	endCallDescription = "End the current call and write its call log. The reason is a short outcome label such as customer_qualified_transfer or customer_declined; duration is the call length in whole seconds."

	getSharedInformationDescription = "Look up facts already captured, most recent first, so the customer is not asked for them twice. Filters are optional and combine with AND; limit must be positive when given."
)

// ShareInformationInput represents the input arguments for the share_information tool.
type ShareInformationInput struct {
	Information string `json:"information" jsonschema:"the fact the customer shared, in plain text"`
	Category    string `json:"category" jsonschema:"free-form category tag for the fact, e.g. debt_info"`
	CallerID    string `json:"caller_id" jsonschema:"identifier of the caller, usually a name and phone number"`
	SessionID   string `json:"session_id,omitempty" jsonschema:"the session returned by an earlier call; omit to start a new session"`
}

// ShareInformationOutput represents the structured output of share_information.
type ShareInformationOutput struct {
	InfoID           string `json:"info_id"`
	SessionID        string `json:"session_id"`
	Timestamp        string `json:"timestamp"`
	Created          bool   `json:"created"`
	InformationCount int    `json:"information_count"`
}

// EndCallInput represents the input arguments for the end_call tool.
type EndCallInput struct {
	Reason    string `json:"reason" jsonschema:"outcome label for the call"`
	CallerID  string `json:"caller_id" jsonschema:"identifier of the caller"`
	Duration  int64  `json:"duration" jsonschema:"call length in seconds, zero or more"`
	SessionID string `json:"session_id,omitempty" jsonschema:"the session to end"`
}

// EndCallOutput represents the structured output of end_call.
type EndCallOutput struct {
	CallLogID              string `json:"call_log_id"`
	SessionID              string `json:"session_id"`
	InformationSharedCount int    `json:"information_shared_count"`
	TotalCalls             int    `json:"total_calls"`
}

// GetSharedInformationInput represents the input arguments for the
// get_shared_information tool.
type GetSharedInformationInput struct {
	Category  string `json:"category,omitempty" jsonschema:"only return facts with this category"`
	CallerID  string `json:"caller_id,omitempty" jsonschema:"only return facts from this caller"`
	SessionID string `json:"session_id,omitempty" jsonschema:"only return facts from this session"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of facts to return"`
}

// SharedInformation is one fact in a get_shared_information result.
type SharedInformation struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	CallerID    string `json:"caller_id"`
	Information string `json:"information"`
	Category    string `json:"category"`
	Timestamp   string `json:"timestamp"`
}

// GetSharedInformationOutput represents the structured output of
// get_shared_information.
type GetSharedInformationOutput struct {
	Information    []SharedInformation `json:"information"`
	Count          int                 `json:"count"`
	TotalAvailable int                 `json:"total_available"`
}

func (s *Server) handleShareInformation(ctx context.Context, _ *mcp.CallToolRequest, input ShareInformationInput) (*mcp.CallToolResult, ShareInformationOutput, error) {
	s.config.Logger.Debug("MCP share_information request",
		"session_id", input.SessionID,
		"category", input.Category,
	)

	res, err := s.config.Gateway.ShareInformation(ctx, gateway.ShareInformationRequest{
		Information: input.Information,
		Category:    input.Category,
		CallerID:    input.CallerID,
		SessionID:   input.SessionID,
	})
	if err != nil {
		return errorResult(err), ShareInformationOutput{}, nil
	}

	output := ShareInformationOutput{
		InfoID:           res.ID,
		SessionID:        res.SessionID,
		Timestamp:        res.Timestamp.Format(time.RFC3339Nano),
		Created:          res.Created,
		InformationCount: res.InformationCount,
	}
	return jsonResult(output), output, nil
}

func (s *Server) handleEndCall(ctx context.Context, _ *mcp.CallToolRequest, input EndCallInput) (*mcp.CallToolResult, EndCallOutput, error) {
	s.config.Logger.Debug("MCP end_call request",
		"session_id", input.SessionID,
		"reason", input.Reason,
	)

	res, err := s.config.Gateway.EndCall(ctx, gateway.EndCallRequest{
		Reason:    input.Reason,
		CallerID:  input.CallerID,
		Duration:  input.Duration,
		SessionID: input.SessionID,
	})
	if err != nil {
		return errorResult(err), EndCallOutput{}, nil
	}

	output := EndCallOutput{
		CallLogID:              res.CallLogID,
		SessionID:              res.SessionID,
		InformationSharedCount: res.InformationSharedCount,
		TotalCalls:             res.TotalCalls,
	}
	return jsonResult(output), output, nil
}

func (s *Server) handleGetSharedInformation(ctx context.Context, _ *mcp.CallToolRequest, input GetSharedInformationInput) (*mcp.CallToolResult, GetSharedInformationOutput, error) {
	s.config.Logger.Debug("MCP get_shared_information request",
		"session_id", input.SessionID,
		"caller_id", input.CallerID,
		"category", input.Category,
	)

	req := gateway.GetSharedInformationRequest{
		Category:  input.Category,
		CallerID:  input.CallerID,
		SessionID: input.SessionID,
	}
	// The schema cannot tell an absent limit from zero; treat zero as absent.
	if input.Limit != 0 {
		req.Limit = &input.Limit
	}

	res, err := s.config.Gateway.GetSharedInformation(ctx, req)
	if err != nil {
		return errorResult(err), GetSharedInformationOutput{Information: []SharedInformation{}}, nil
	}

	output := GetSharedInformationOutput{
		Information:    toSharedInformation(res.Information),
		Count:          len(res.Information),
		TotalAvailable: res.TotalAvailable,
	}
	return jsonResult(output), output, nil
}

func toSharedInformation(records []*record.InformationRecord) []SharedInformation {
	out := make([]SharedInformation, 0, len(records))
	for _, r := range records {
		out = append(out, SharedInformation{
			ID:          r.ID,
			SessionID:   r.SessionID,
			CallerID:    r.CallerID,
			Information: r.Information,
			Category:    r.Category,
			Timestamp:   r.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return out
}

// errorResult reports a gateway failure to the agent as a tool error, so the
// model can read the kind and adapt instead of the call failing at the
// protocol level.
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", gateway.Kind(err), err)},
		},
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}
