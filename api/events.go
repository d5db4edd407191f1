package api

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/sse"
)

// handleEvents streams committed record events as Server-Sent Events. Each
// event's type is the record event type and its data the JSON payload.
// Query parameters:
//   - session_id (optional): only stream events of this session
func (s *Server) handleEvents(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	sub := s.config.Events.Subscribe()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	s.logger.Debug("event stream opened", "session_id", sessionID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		ticker := time.NewTicker(s.config.KeepAlive)
		defer ticker.Stop()

		// An initial comment flushes the headers to the client.
		if sse.Comment(w, "connected") != nil || w.Flush() != nil {
			return
		}

		for {
			select {
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				if sessionID != "" && event.SessionID != sessionID {
					continue
				}
				data, err := json.Marshal(event)
				if err != nil {
					s.logger.Error("encoding event", "event_id", event.EventID, "error", err)
					continue
				}
				err = sse.Write(w, sse.Event{ID: event.EventID, Type: event.EventType, Data: string(data)})
				if err != nil || w.Flush() != nil {
					s.logger.Debug("event stream closed by client", "session_id", sessionID)
					return
				}
			case <-ticker.C:
				if sse.Comment(w, "keep-alive") != nil || w.Flush() != nil {
					return
				}
			}
		}
	})

	return nil
}
