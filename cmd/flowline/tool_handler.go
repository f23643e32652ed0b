package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
)

// toolHandler serves the MCP SSE endpoint of the current tool server. A
// settings reload installs a new server; the one it replaces stops
// forwarding diagram changes to its sessions.
type toolHandler struct {
	mu         sync.RWMutex
	current    http.Handler
	stop       context.CancelFunc
	generation int
	logger     *slog.Logger
}

func newToolHandler(logger *slog.Logger) *toolHandler {
	return &toolHandler{logger: logger}
}

func (t *toolHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mu.RLock()
	h := t.current
	t.mu.RUnlock()
	if h == nil {
		http.Error(w, "tool server starting", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}

// Install makes h the served tool server. stop cancels the context h
// forwards changes under; it runs when h is replaced or closed.
func (t *toolHandler) Install(h http.Handler, stop context.CancelFunc) {
	t.mu.Lock()
	prev := t.stop
	t.current, t.stop = h, stop
	t.generation++
	gen := t.generation
	t.mu.Unlock()
	if prev != nil {
		prev()
	}
	t.logger.Debug("tool server installed", "generation", gen)
}

// Close stops the current tool server. Requests still reach it.
func (t *toolHandler) Close() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}
