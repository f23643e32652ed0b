package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rochus-keller/FlowLine2/internal/controller"
	"github.com/rochus-keller/FlowLine2/internal/expressions"
	"github.com/rochus-keller/FlowLine2/internal/layout"
	"github.com/rochus-keller/FlowLine2/internal/scene"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/streaming"
)

// ServerDeps holds the dependencies of a FlowServer.
type ServerDeps struct {
	Store  store.Store
	Bridge layout.Bridge
	Hub    streaming.Hub
	Logger *slog.Logger
	// Lock serializes tool calls with other writers of Store.
	Lock         sync.Locker
	ReadOnly     bool
	StrictSyntax bool
	Ortho        bool
}

// FlowServer exposes diagram commands as MCP tools.
type FlowServer struct {
	store    store.Store
	bridge   layout.Bridge
	hub      streaming.Hub
	logger   *slog.Logger
	lock     sync.Locker
	readOnly bool
	strict   bool
	ortho    bool

	jq        *expressions.GoJQEngine
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewFlowServer creates a FlowServer with every tool registered.
func NewFlowServer(deps ServerDeps) *FlowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	lock := deps.Lock
	if lock == nil {
		lock = &sync.Mutex{}
	}
	s := &FlowServer{
		store:    deps.Store,
		bridge:   deps.Bridge,
		hub:      deps.Hub,
		logger:   logger,
		lock:     lock,
		readOnly: deps.ReadOnly,
		strict:   deps.StrictSyntax,
		ortho:    deps.Ortho,
		jq:       expressions.NewGoJQEngine(),
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"flowline",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("FlowLine edits event-driven process chain diagrams. Use flowline.diagrams to find a diagram, flowline.snapshot to read it, flowline.extend, flowline.shortest_path and flowline.hidden_links to grow it, flowline.layout to arrange it, flowline.query and flowline.lint to inspect it, and flowline.export to obtain a process stream."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve runs the stdio transport until ctx is cancelled or stdin closes.
func (s *FlowServer) Serve(ctx context.Context) error {
	s.forwardChanges(ctx)
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// SSEHandler returns an http.Handler serving the SSE transport under
// baseURL. Change notifications are forwarded until ctx is done.
func (s *FlowServer) SSEHandler(ctx context.Context, baseURL string) http.Handler {
	s.forwardChanges(ctx)
	return server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
}

// forwardChanges pushes hub events to watching sessions until ctx is done.
func (s *FlowServer) forwardChanges(ctx context.Context) {
	if s.hub == nil {
		return
	}
	n := NewMCPNotifier(s.mcpServer, s.sessions, s.logger)
	go func() {
		if err := n.Run(ctx, s.hub, streaming.ChangeFilter{}); err != nil {
			s.logger.Error("change forwarding stopped", "error", err)
		}
	}()
}

// MCPServer returns the underlying server for tests and custom transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the registry of clients watching diagrams.
func (s *FlowServer) Sessions() *SessionRegistry { return s.sessions }

func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: diagramsTool(), Handler: s.handleDiagrams},
		{Tool: snapshotTool(), Handler: s.handleSnapshot},
		{Tool: hiddenLinksTool(), Handler: s.handleHiddenLinks},
		{Tool: shortestPathTool(), Handler: s.handleShortestPath},
		{Tool: extendTool(), Handler: s.handleExtend},
		{Tool: layoutTool(), Handler: s.handleLayout},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: lintTool(), Handler: s.handleLint},
		{Tool: exportTool(), Handler: s.handleExport},
	}
}

// --- Tool definitions ---

func diagramArg() mcp.ToolOption {
	return mcp.WithNumber("diagram", mcp.Required(), mcp.Description("Object id of the diagram or process"))
}

func layoutArg() mcp.ToolOption {
	return mcp.WithBoolean("layout", mcp.Description("Lay the diagram out afterwards (default: false)"))
}

func diagramsTool() mcp.Tool {
	return mcp.NewTool("flowline.diagrams",
		mcp.WithDescription("List the diagrams and processes of the repository"),
	)
}

func snapshotTool() mcp.Tool {
	return mcp.NewTool("flowline.snapshot",
		mcp.WithDescription("Describe the nodes and flows shown on a diagram"),
		diagramArg(),
	)
}

func hiddenLinksTool() mcp.Tool {
	return mcp.NewTool("flowline.hidden_links",
		mcp.WithDescription("List, and optionally show, flows between shown nodes that the diagram does not show"),
		diagramArg(),
		mcp.WithBoolean("show", mcp.Description("Show the hidden flows (default: false)")),
	)
}

func shortestPathTool() mcp.Tool {
	return mcp.NewTool("flowline.shortest_path",
		mcp.WithDescription("Show the nodes on a shortest flow path between two shown nodes"),
		diagramArg(),
		mcp.WithNumber("from", mcp.Required(), mcp.Description("Object id of the first node")),
		mcp.WithNumber("to", mcp.Required(), mcp.Description("Object id of the second node")),
		layoutArg(),
	)
}

func extendTool() mcp.Tool {
	return mcp.NewTool("flowline.extend",
		mcp.WithDescription("Show the nodes reachable within a number of flows from the given nodes, or from every shown node"),
		diagramArg(),
		mcp.WithArray("from", mcp.Description("Object ids of the start nodes (default: every shown node)"), mcp.Items(map[string]any{"type": "number"})),
		mcp.WithNumber("levels", mcp.Description("Number of flows to follow, 1 to 255 (default: 1)")),
		mcp.WithString("direction", mcp.Enum("succ", "pred", "both"), mcp.Description("Follow successors, predecessors or both (default: succ)")),
		layoutArg(),
	)
}

func layoutTool() mcp.Tool {
	return mcp.NewTool("flowline.layout",
		mcp.WithDescription("Lay a diagram out automatically"),
		diagramArg(),
		mcp.WithBoolean("ortho", mcp.Description("Route flows orthogonally")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("flowline.query",
		mcp.WithDescription("Find the items of a diagram matching an expression over type, kind, text, ident, alias, process, conn, x, y, preds, succs and pinned"),
		diagramArg(),
		mcp.WithString("expr", mcp.Required(), mcp.Description(`Boolean expression, e.g. type == "event" && succs == 0`)),
		mcp.WithString("jq", mcp.Description("jq program applied to the list of matches")),
	)
}

func lintTool() mcp.Tool {
	return mcp.NewTool("flowline.lint",
		mcp.WithDescription("Check every item of a diagram against named CEL rules over item and diagram"),
		diagramArg(),
		mcp.WithObject("rules", mcp.Required(), mcp.Description("Rule name to CEL expression")),
	)
}

func exportTool() mcp.Tool {
	return mcp.NewTool("flowline.export",
		mcp.WithDescription("Export a process with its nested processes as a process stream"),
		diagramArg(),
		mcp.WithString("jq", mcp.Description("jq program applied to the stream")),
	)
}

// withController opens diagram on a fresh controller and runs fn while
// holding the server lock.
func (s *FlowServer) withController(ctx context.Context, diagram store.OID, fn func(*controller.Controller) (any, error)) (*mcp.CallToolResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	c := controller.New(s.store,
		controller.WithBridge(s.bridge),
		controller.WithLogger(s.logger),
		controller.WithOrtho(s.ortho),
		controller.WithSceneOptions(scene.WithStrictSyntax(s.strict)),
	)
	c.Scene().SetReadOnly(s.readOnly)
	if err := c.Open(ctx, diagram); err != nil {
		return toolError(err), nil
	}
	defer c.Close()
	s.captureSession(ctx, diagram)

	v, err := fn(c)
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(v)
}
