package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/bookverse/internal/domain"
)

// StateWatcher streams authentication state changes.
type StateWatcher interface {
	Watch(ctx context.Context) <-chan domain.AuthState
}

// StreamHandler serves Server-Sent Events of authentication state.
type StreamHandler struct {
	gate      StateWatcher
	heartbeat time.Duration
}

// NewStreamHandler creates a new SSE stream handler.
func NewStreamHandler(gate StateWatcher) *StreamHandler {
	return &StreamHandler{gate: gate, heartbeat: 25 * time.Second}
}

// Register sets up streaming routes.
func (h *StreamHandler) Register(router fiber.Router) {
	router.Get("/auth/events", h.StreamState)
}

// StreamState sends the current state, then every change until the client
// disconnects or the gate closes.
func (h *StreamHandler) StreamState(c fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(context.Background())
	ch := h.gate.Watch(ctx)

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case state, ok := <-ch:
				if !ok {
					return
				}
				data, _ := json.Marshal(state)
				fmt.Fprintf(w, "event: auth_state\ndata: %s\n\n", string(data))
				if err := w.Flush(); err != nil {
					slog.Debug("SSE client disconnected", "error", err)
					return
				}
			case <-ticker.C:
				fmt.Fprintf(w, ": ping\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
}
