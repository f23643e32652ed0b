package expressions

import (
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// ItemEnv returns the variables describing diagram item id:
//
//	item, origin   object ids
//	type           lower-case type of the origin ("function", "note", ...)
//	kind           "plain", "note" or "frame"
//	text, ident    text and display ident of the origin
//	alias          the origin lives outside the item's diagram
//	process        the origin is a function with a diagram of its own
//	conn           connector logic ("XOR"), empty for other types
//	x, y           item position
//	preds, succs   number of predecessors and successors of the origin
//	pinned         the item is pinned to another one
func ItemEnv(s store.Store, id store.OID) map[string]any {
	it := model.ItemOf(s, id)
	orig := it.Origin()
	pos := it.Pos()
	kind := it.Kind()

	typ := model.TypeName(s.Type(orig))
	if kind != model.KindPlain {
		typ = kind.String()
	}
	conn := ""
	if s.Type(orig) == model.TypeConnector {
		conn = model.FormatConnType(model.GetConnType(s, orig), false)
	}
	var in, out int
	if topology.IsSchedObj(s.Type(orig)) {
		in = len(topology.Predecessors(s, orig))
		out = len(topology.Successors(s, orig))
	}
	return map[string]any{
		"item":    int64(id),
		"origin":  int64(orig),
		"type":    typ,
		"kind":    kind.String(),
		"text":    store.String(s, orig, model.AttrText),
		"ident":   model.FormatID(s, orig, false),
		"alias":   kind == model.KindPlain && s.Parent(orig) != it.Diagram(),
		"process": s.Type(orig) == model.TypeFunction && store.Int(s, orig, model.AttrElemCount) > 0,
		"conn":    conn,
		"x":       pos[0],
		"y":       pos[1],
		"preds":   in,
		"succs":   out,
		"pinned":  it.PinnedTo() != store.Nil,
	}
}

// Truthy interprets an evaluation result as a predicate outcome.
func Truthy(expression string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"expression %q yields %T, not a boolean", expression, v).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}
