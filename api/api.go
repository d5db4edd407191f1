package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/im-sanjay-sai/gemini-falir-agent/api/mcp"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/query"
)

// Server is the API server for the callfacts store.
type Server struct {
	config  Config
	gateway *gateway.Gateway
	query   *query.Service
	logger  *slog.Logger
	app     *fiber.App
}

// NewServer creates a new API server.
// The gateway and query service are injected so they share one store with
// the rest of the process.
func NewServer(config Config, gw *gateway.Gateway, q *query.Service, logger *slog.Logger) (*Server, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	if q == nil {
		return nil, errors.New("query service is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = 15 * time.Second
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		gateway: gw,
		query:   q,
		logger:  logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)

	// Dashboard reads
	app.Get("/api/summary", s.handleSummary)
	app.Get("/api/sessions", s.handleListSessions)
	app.Get("/api/sessions/:id", s.handleGetSession)
	app.Get("/api/information", s.handleListInformation)
	app.Get("/api/calls", s.handleListCalls)
	app.Get("/api/raw_data", s.handleRawData)
	if config.Events != nil {
		app.Get("/api/events", s.handleEvents)
	}

	// Agent function calls
	app.Post("/api/function", s.handleFunctionCall)

	if !config.DisableMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Gateway: gw,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server. Open event streams end
// first so they do not hold the shutdown open.
func (s *Server) Shutdown() error {
	if s.config.Events != nil {
		_ = s.config.Events.Close()
	}
	return s.app.Shutdown()
}
