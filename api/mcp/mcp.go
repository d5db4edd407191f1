// Package mcp provides an MCP (Model Context Protocol) server that exposes the
// callfacts function calls as tools to a conversational agent.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/utils"
)

type Config struct {
	// Gateway executes every tool call.
	Gateway *gateway.Gateway

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the share_information, end_call and
// get_shared_information tools.
func NewServer(c Config) (*Server, error) {
	if c.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "callfacts",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        gateway.OpShareInformation,
		Description: shareInformationDescription,
	}, s.handleShareInformation)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        gateway.OpEndCall,
		Description: endCallDescription,
	}, s.handleEndCall)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        gateway.OpGetSharedInformation,
		Description: getSharedInformationDescription,
	}, s.handleGetSharedInformation)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying MCP server, for connecting transports
// other than streamable HTTP.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
