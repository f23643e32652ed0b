package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rochus-keller/FlowLine2/internal/controller"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// DiagramInfo lists one diagram.
type DiagramInfo struct {
	ID     store.OID `json:"id"`
	Type   string    `json:"type"`
	Title  string    `json:"title"`
	Parent store.OID `json:"parent"`
	Items  int       `json:"items"`
}

// ObjectInfo names an object in tool results.
type ObjectInfo struct {
	ID    store.OID `json:"id"`
	Type  string    `json:"type"`
	Title string    `json:"title"`
}

func (s *FlowServer) describe(ids []store.OID) []ObjectInfo {
	out := make([]ObjectInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, ObjectInfo{
			ID:    id,
			Type:  model.TypeName(s.store.Type(id)),
			Title: model.FormatTitle(s.store, id, true),
		})
	}
	return out
}

func (s *FlowServer) handleDiagrams(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	out := []DiagramInfo{}
	for _, d := range topology.Diagrams(s.store) {
		n := 0
		for _, c := range s.store.Children(d) {
			if s.store.Type(c) == model.TypeDiagItem {
				n++
			}
		}
		out = append(out, DiagramInfo{
			ID:     d,
			Type:   model.TypeName(s.store.Type(d)),
			Title:  model.FormatTitle(s.store, d, true),
			Parent: s.store.Parent(d),
			Items:  n,
		})
	}
	return marshalResult(out)
}

func (s *FlowServer) handleSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := requireOID(req, "diagram")
	if res != nil {
		return res, nil
	}
	return s.withController(ctx, d, func(c *controller.Controller) (any, error) {
		return c.Scene().Snapshot(), nil
	})
}

func (s *FlowServer) handleHiddenLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := requireOID(req, "diagram")
	if res != nil {
		return res, nil
	}
	show := boolArg(req, "show", false)
	return s.withController(ctx, d, func(c *controller.Controller) (any, error) {
		links, err := c.HiddenLinks()
		if err != nil || !show {
			return s.describe(links), err
		}
		shown, err := c.ShowHiddenLinks(ctx, links)
		return s.describe(shown), err
	})
}

func (s *FlowServer) handleShortestPath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := requireOID(req, "diagram")
	if res != nil {
		return res, nil
	}
	from, res := requireOID(req, "from")
	if res != nil {
		return res, nil
	}
	to, res := requireOID(req, "to")
	if res != nil {
		return res, nil
	}
	relayout := boolArg(req, "layout", false)
	return s.withController(ctx, d, func(c *controller.Controller) (any, error) {
		for _, o := range []store.OID{from, to} {
			if !c.Scene().Contains(o) {
				return nil, schema.NewErrorf(schema.ErrCodeNotFound, "object %d is not shown", o).WithObject(uint64(o))
			}
		}
		c.Scene().SelectObjects([]store.OID{from, to}, true)
		path, err := c.ShowShortestPath(ctx, relayout)
		return s.describe(path), err
	})
}

func (s *FlowServer) handleExtend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := requireOID(req, "diagram")
	if res != nil {
		return res, nil
	}
	from, err := oidList(req, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	levels := extractInt(req.GetArguments(), "levels", 1)
	var succ, pred bool
	switch dir := req.GetString("direction", "succ"); dir {
	case "succ":
		succ = true
	case "pred":
		pred = true
	case "both":
		succ, pred = true, true
	default:
		return mcp.NewToolResultError(fmt.Sprintf("direction must be succ, pred or both, not %q", dir)), nil
	}
	relayout := boolArg(req, "layout", false)
	return s.withController(ctx, d, func(c *controller.Controller) (any, error) {
		c.Scene().SelectObjects(from, true)
		added, err := c.ExtendDiagram(ctx, levels, succ, pred, relayout)
		return s.describe(added), err
	})
}

func (s *FlowServer) handleLayout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := requireOID(req, "diagram")
	if res != nil {
		return res, nil
	}
	ortho := boolArg(req, "ortho", s.ortho)
	return s.withController(ctx, d, func(c *controller.Controller) (any, error) {
		if err := c.LayoutDiagram(ctx, ortho); err != nil {
			return nil, err
		}
		return c.Scene().Snapshot(), nil
	})
}

func (s *FlowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := requireOID(req, "diagram")
	if res != nil {
		return res, nil
	}
	expression, err := req.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError("expr is required"), nil
	}
	program := req.GetString("jq", "")
	return s.withController(ctx, d, func(c *controller.Controller) (any, error) {
		hits, err := c.SelectWhere(ctx, expression)
		if err != nil {
			return nil, err
		}
		out := make([]ObjectInfo, 0, len(hits))
		for _, id := range hits {
			orig := model.ItemOf(s.store, id).Origin()
			info := s.describe([]store.OID{orig})[0]
			if orig == id {
				info.Type = model.ItemOf(s.store, id).Kind().String()
			}
			out = append(out, info)
		}
		return s.transform(ctx, program, out)
	})
}

func (s *FlowServer) handleLint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := requireOID(req, "diagram")
	if res != nil {
		return res, nil
	}
	raw := mcp.ParseStringMap(req, "rules", nil)
	if len(raw) == 0 {
		return mcp.NewToolResultError("rules is required"), nil
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	rules := make([]controller.Rule, 0, len(names))
	for _, name := range names {
		expr, ok := raw[name].(string)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("rule %q must be a string", name)), nil
		}
		rules = append(rules, controller.Rule{Name: name, Expr: expr})
	}
	return s.withController(ctx, d, func(c *controller.Controller) (any, error) {
		v, err := c.Lint(ctx, rules)
		if v == nil {
			v = []controller.Violation{}
		}
		return v, err
	})
}

func (s *FlowServer) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := requireOID(req, "diagram")
	if res != nil {
		return res, nil
	}
	program := req.GetString("jq", "")
	return s.withController(ctx, d, func(c *controller.Controller) (any, error) {
		st, err := c.ExportProcess(d)
		if err != nil {
			return nil, err
		}
		return s.transform(ctx, program, st)
	})
}

// transform runs a jq program over the JSON form of v. An empty program
// returns v; a program yielding several values returns them as a list.
func (s *FlowServer) transform(ctx context.Context, program string, v any) (any, error) {
	if program == "" {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out, err := s.jq.EvaluateAll(ctx, program, doc)
	if err != nil {
		return nil, err
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

// --- Helpers ---

// requireOID reads a required object id argument.
func requireOID(req mcp.CallToolRequest, key string) (store.OID, *mcp.CallToolResult) {
	args := req.GetArguments()
	if _, ok := args[key]; !ok {
		return store.Nil, mcp.NewToolResultError(key + " is required")
	}
	n := extractInt(args, key, 0)
	if n <= 0 {
		return store.Nil, mcp.NewToolResultError(key + " must be a positive object id")
	}
	return store.OID(n), nil
}

func oidList(req mcp.CallToolRequest, key string) ([]store.OID, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of object ids", key)
	}
	out := make([]store.OID, 0, len(list))
	for i := range list {
		n := extractInt(map[string]any{"v": list[i]}, "v", 0)
		if n <= 0 {
			return nil, fmt.Errorf("%s[%d] is not an object id", key, i)
		}
		out = append(out, store.OID(n))
	}
	return out, nil
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	switch v := req.GetArguments()[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	}
	return defaultVal
}

// extractInt reads an integer from an argument map.
func extractInt(args map[string]any, key string, defaultVal int) int {
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case int64:
		return int(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n)
		}
	}
	return defaultVal
}

// captureSession marks the calling client as watching diagram.
func (s *FlowServer) captureSession(ctx context.Context, diagram store.OID) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Watch(session.SessionID(), uint64(diagram))
	}
}

// toolError reports err to the client with its error code.
func toolError(err error) *mcp.CallToolResult {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", fe.Code, fe.Message))
	}
	return mcp.NewToolResultError(err.Error())
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
