// Package api provides the callfacts HTTP API: read-only dashboard endpoints
// over the record store, the live event stream, the raw function-call
// endpoint and the MCP mount.
package api

import (
	"time"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream/broadcast"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// DisableMCP leaves /mcp unmounted.
	DisableMCP bool

	// Events feeds GET /api/events. The route is not registered when nil.
	Events *broadcast.Hub

	// KeepAlive is the interval between keep-alive comments on an idle
	// event stream (defaults to 15s).
	KeepAlive time.Duration
}
