package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rochus-keller/FlowLine2/internal/streaming"
)

// ChangeNotifier pushes repository changes to the sessions watching the
// affected diagram.
type ChangeNotifier interface {
	Notify(ctx context.Context, ev streaming.ChangeEvent) error
}

// MCPNotifier implements ChangeNotifier using MCP server push.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
	logger    *slog.Logger
}

// NewMCPNotifier creates a notifier that pushes via MCP.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, logger *slog.Logger) *MCPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions, logger: logger}
}

// Notify sends ev to every session watching its object or parent.
// Best-effort: sessions that went away are forgotten.
func (n *MCPNotifier) Notify(_ context.Context, ev streaming.ChangeEvent) error {
	targets := n.sessions.Watchers(ev.Object)
	if ev.Parent != 0 && ev.Parent != ev.Object {
		targets = append(targets, n.sessions.Watchers(ev.Parent)...)
	}
	if len(targets) == 0 {
		return nil
	}
	payload := map[string]any{
		"level":  "info",
		"logger": "flowline",
		"data":   ev,
	}
	var errs []error
	sent := make(map[string]bool, len(targets))
	for _, sid := range targets {
		if sent[sid] {
			continue
		}
		sent[sid] = true
		err := n.mcpServer.SendNotificationToSpecificClient(sid, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sid)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run subscribes to hub and notifies every event until ctx is done or
// the subscription ends.
func (n *MCPNotifier) Run(ctx context.Context, hub streaming.Hub, filter streaming.ChangeFilter) error {
	ch, cancel, err := hub.Subscribe(ctx, filter)
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := n.Notify(ctx, ev); err != nil {
				n.logger.Warn("change notification failed", "object", ev.Object, "error", err)
			}
		}
	}
}

var _ ChangeNotifier = (*MCPNotifier)(nil)
