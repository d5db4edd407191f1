package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
)

// OpDispatch names errors raised before a call reaches an operation.
const OpDispatch = "dispatch"

// FunctionCall is a raw function call as the agent emits it. A session_id in
// Parameters takes precedence over the top-level one.
type FunctionCall struct {
	FunctionName string          `json:"function_name"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
}

// FunctionResult is the response envelope for a dispatched call. Only the
// fields of the invoked operation are set.
type FunctionResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// share_information
	InfoID           string    `json:"info_id,omitempty"`
	Timestamp        time.Time `json:"timestamp,omitzero"`
	Created          *bool     `json:"created,omitempty"`
	InformationCount *int      `json:"information_count,omitempty"`

	// end_call
	CallLogID              string `json:"call_log_id,omitempty"`
	InformationSharedCount *int   `json:"information_shared_count,omitempty"`
	TotalCalls             *int   `json:"total_calls,omitempty"`

	// get_shared_information
	Information    []*record.InformationRecord `json:"information,omitzero"`
	Count          *int                        `json:"count,omitempty"`
	TotalAvailable *int                        `json:"total_available,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type shareInformationParams struct {
	Information string `json:"information"`
	Category    string `json:"category"`
	CallerID    string `json:"caller_id"`
	SessionID   string `json:"session_id"`
}

type endCallParams struct {
	Reason    string `json:"reason"`
	CallerID  string `json:"caller_id"`
	Duration  *int64 `json:"duration"`
	SessionID string `json:"session_id"`
}

type getSharedInformationParams struct {
	Category  string `json:"category"`
	CallerID  string `json:"caller_id"`
	SessionID string `json:"session_id"`
	Limit     *int   `json:"limit"`
}

// Dispatch decodes and runs one function call. The returned result is never
// nil: on failure it carries success=false with the error and its kind, and
// the error is returned as well.
func (g *Gateway) Dispatch(ctx context.Context, call FunctionCall) (*FunctionResult, error) {
	var (
		result *FunctionResult
		err    error
	)

	switch call.FunctionName {
	case OpShareInformation:
		result, err = g.dispatchShareInformation(ctx, call)
	case OpEndCall:
		result, err = g.dispatchEndCall(ctx, call)
	case OpGetSharedInformation:
		result, err = g.dispatchGetSharedInformation(ctx, call)
	case "":
		err = ValidationError{Operation: OpDispatch, Field: "function_name", Reason: "is required"}
	default:
		err = ValidationError{
			Operation: OpDispatch,
			Field:     "function_name",
			Reason:    fmt.Sprintf("unknown function %q", call.FunctionName),
		}
	}

	if err != nil {
		return &FunctionResult{
			Success:   false,
			SessionID: call.SessionID,
			Error:     err.Error(),
			ErrorKind: Kind(err),
		}, err
	}
	return result, nil
}

func (g *Gateway) dispatchShareInformation(ctx context.Context, call FunctionCall) (*FunctionResult, error) {
	var p shareInformationParams
	if err := decodeParams(OpShareInformation, call.Parameters, &p); err != nil {
		return nil, err
	}

	res, err := g.ShareInformation(ctx, ShareInformationRequest{
		Information: p.Information,
		Category:    p.Category,
		CallerID:    p.CallerID,
		SessionID:   firstNonEmpty(p.SessionID, call.SessionID),
	})
	if err != nil {
		return nil, err
	}

	return &FunctionResult{
		Success:          true,
		Message:          "Information received and stored successfully. Category: " + p.Category,
		SessionID:        res.SessionID,
		InfoID:           res.ID,
		Timestamp:        res.Timestamp,
		Created:          &res.Created,
		InformationCount: &res.InformationCount,
	}, nil
}

func (g *Gateway) dispatchEndCall(ctx context.Context, call FunctionCall) (*FunctionResult, error) {
	var p endCallParams
	if err := decodeParams(OpEndCall, call.Parameters, &p); err != nil {
		return nil, err
	}
	if p.Duration == nil {
		return nil, ValidationError{Operation: OpEndCall, Field: "duration", Reason: "is required"}
	}

	res, err := g.EndCall(ctx, EndCallRequest{
		Reason:    p.Reason,
		CallerID:  p.CallerID,
		Duration:  *p.Duration,
		SessionID: firstNonEmpty(p.SessionID, call.SessionID),
	})
	if err != nil {
		return nil, err
	}

	return &FunctionResult{
		Success:                true,
		Message:                "Call ended successfully. Reason: " + p.Reason,
		SessionID:              res.SessionID,
		Timestamp:              res.EndTime,
		CallLogID:              res.CallLogID,
		InformationSharedCount: &res.InformationSharedCount,
		TotalCalls:             &res.TotalCalls,
	}, nil
}

func (g *Gateway) dispatchGetSharedInformation(ctx context.Context, call FunctionCall) (*FunctionResult, error) {
	var p getSharedInformationParams
	if err := decodeParams(OpGetSharedInformation, call.Parameters, &p); err != nil {
		return nil, err
	}

	// Only an explicit filter narrows retrieval: the top-level session_id
	// identifies the caller's current call, not a constraint on prior facts.
	res, err := g.GetSharedInformation(ctx, GetSharedInformationRequest{
		Category:  p.Category,
		CallerID:  p.CallerID,
		SessionID: p.SessionID,
		Limit:     p.Limit,
	})
	if err != nil {
		return nil, err
	}

	count := len(res.Information)
	return &FunctionResult{
		Success:        true,
		Message:        fmt.Sprintf("Found %d information records", count),
		SessionID:      call.SessionID,
		Information:    res.Information,
		Count:          &count,
		TotalAvailable: &res.TotalAvailable,
	}, nil
}

// decodeParams unmarshals raw parameters into v. Missing parameters decode as
// an empty object so required-field checks report the field by name.
func decodeParams(op string, raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if err := json.Unmarshal(raw, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return ValidationError{
				Operation: op,
				Field:     typeErr.Field,
				Reason:    fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			}
		}
		return ValidationError{Operation: op, Field: "parameters", Reason: err.Error()}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
