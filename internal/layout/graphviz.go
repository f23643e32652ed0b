package layout

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// pointsPerInch converts scene units, which graphviz reads as points, to
// the inches its size attributes take.
const pointsPerInch = 72.0

// Graphviz lays out graphs with a graphviz engine, dot by default.
type Graphviz struct {
	engine graphviz.Layout
	logger *slog.Logger
}

// GraphvizOption configures a Graphviz bridge.
type GraphvizOption func(*Graphviz)

// WithEngine selects the graphviz layout engine by name.
func WithEngine(name string) GraphvizOption {
	return func(g *Graphviz) {
		if name != "" {
			g.engine = graphviz.Layout(name)
		}
	}
}

func WithLogger(l *slog.Logger) GraphvizOption {
	return func(g *Graphviz) { g.logger = l }
}

func NewGraphviz(opts ...GraphvizOption) *Graphviz {
	g := &Graphviz{engine: graphviz.DOT, logger: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// attrSetter is implemented by cgraph graphs, nodes and edges.
type attrSetter interface {
	SafeSet(name, value, def string) error
}

func setAttrs(obj attrSetter, kv ...string) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if err := obj.SafeSet(kv[i], kv[i+1], ""); err != nil {
			return err
		}
	}
	return nil
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func inches(v float64) string { return num(v / pointsPerInch) }

// Layout runs the engine over in and maps the attributed result back to
// scene coordinates.
func (g *Graphviz) Layout(ctx context.Context, in Input) (*Result, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	defer gv.Close()
	gv.SetLayout(g.engine)

	graph, err := gv.Graph()
	if err != nil {
		return nil, unavailable(err)
	}
	defer graph.Close()

	if err := build(graph, in); err != nil {
		return nil, failed("build graph", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return nil, failed("run "+string(g.engine), err)
	}
	res, err := readResult(buf.Bytes(), in.Ortho)
	if err != nil {
		return nil, failed("read layout", err)
	}
	g.logger.DebugContext(ctx, "layout done", "engine", string(g.engine),
		"nodes", len(res.Positions), "edges", len(res.EdgePolylines), "clusters", len(res.ClusterBounds))
	return res, nil
}

func unavailable(err error) error {
	return schema.NewError(schema.ErrCodeLayoutUnavailable, "graphviz is not available").
		WithDetails(map[string]any{"diagnostics": err.Error()}).WithCause(err)
}

func failed(step string, err error) error {
	return schema.NewErrorf(schema.ErrCodeLayoutFailed, "layout: %s", step).
		WithDetails(map[string]any{"diagnostics": err.Error()}).WithCause(err)
}

func build(graph *cgraph.Graph, in Input) error {
	splines := "polyline"
	if in.Ortho {
		splines = "ortho"
	}
	ranksep := model.BoxHeight
	if in.Direction == model.LeftToRight {
		graph.SetRankDir(cgraph.LRRank)
		ranksep = model.BoxWidth
	} else {
		graph.SetRankDir(cgraph.TBRank)
	}
	if in.Title != "" {
		graph.SetLabel(in.Title)
	}
	if err := setAttrs(graph,
		"splines", splines,
		"dpi", "72",
		"nodesep", inches(model.BoxHeight*0.5),
		"ranksep", inches(ranksep*0.5),
	); err != nil {
		return err
	}

	subs := make(map[string]*cgraph.Graph, len(in.Clusters))
	for _, c := range in.Clusters {
		sub, err := graph.CreateSubGraphByName(clusterName(c.ID))
		if err != nil {
			return err
		}
		if err := setAttrs(sub, "margin", num(c.Margin)); err != nil {
			return err
		}
		subs[c.ID] = sub
	}

	nodes := make(map[string]*cgraph.Node, len(in.Nodes))
	for _, n := range in.Nodes {
		owner := graph
		if sub := subs[n.Cluster]; sub != nil {
			owner = sub
		}
		gn, err := owner.CreateNodeByName(n.ID)
		if err != nil {
			return err
		}
		gn.SetShape(cgraph.BoxShape)
		gn.SetLabel("")
		w, h := n.Width, n.Height
		if w <= 0 {
			w = model.BoxWidth
		}
		if h <= 0 {
			h = model.BoxHeight
		}
		gn.SetWidth(w / pointsPerInch)
		gn.SetHeight(h / pointsPerInch)
		if err := setAttrs(gn, "fixedsize", strconv.FormatBool(n.FixedSize)); err != nil {
			return err
		}
		nodes[n.ID] = gn
	}

	for _, e := range in.Edges {
		from, to := nodes[e.From], nodes[e.To]
		if from == nil || to == nil {
			continue
		}
		ge, err := graph.CreateEdgeByName(e.ID, from, to)
		if err != nil {
			return err
		}
		ge.SetLabel("")
		if err := setAttrs(ge, "id", e.ID); err != nil {
			return err
		}
		if !e.Constraint {
			if err := setAttrs(ge, "constraint", "false"); err != nil {
				return err
			}
		}
	}
	return nil
}

func clusterName(id string) string { return "cluster_" + id }

// readResult reparses the attributed dot output with cgraph and reads the
// positions back. Graphviz puts the origin at the bottom left with y
// growing upwards, so y is negated.
func readResult(out []byte, ortho bool) (*Result, error) {
	graph, err := graphviz.ParseBytes(out)
	if err != nil {
		return nil, err
	}
	defer graph.Close()

	res := newResult()
	node, err := graph.FirstNode()
	for ; err == nil && node != nil; node, err = graph.NextNode(node) {
		name, err := node.Name()
		if err != nil {
			return nil, err
		}
		if pos := node.GetStr("pos"); pos != "" {
			p, err := parsePoint(pos)
			if err != nil {
				return nil, err
			}
			res.Positions[name] = p
		}
		if err := readEdges(graph, node, ortho, res); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	sub, err := graph.FirstSubGraph()
	for ; err == nil && sub != nil; sub, err = sub.NextSubGraph() {
		name, err := sub.Name()
		if err != nil {
			return nil, err
		}
		id, ok := strings.CutPrefix(name, "cluster_")
		bb := sub.GetStr("bb")
		if !ok || bb == "" {
			continue
		}
		b, err := parseBox(bb)
		if err != nil {
			return nil, err
		}
		res.ClusterBounds[id] = b
	}
	return res, err
}

func readEdges(graph *cgraph.Graph, node *cgraph.Node, ortho bool, res *Result) error {
	e, err := graph.FirstOut(node)
	for ; err == nil && e != nil; e, err = graph.NextOut(e) {
		id, pos := e.GetStr("id"), e.GetStr("pos")
		if id == "" || pos == "" {
			continue
		}
		pts, err := parseSpline(pos, ortho)
		if err != nil {
			return err
		}
		res.EdgePolylines[id] = pts
	}
	return err
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "expected %d coordinates in %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parsePoint(s string) (orb.Point, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{v[0], -v[1]}, nil
}

// parseBox reads "llx,lly,urx,ury".
func parseBox(s string) (orb.Bound, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return orb.Bound{}, err
	}
	return orb.Bound{Min: orb.Point{v[0], -v[3]}, Max: orb.Point{v[2], -v[1]}}, nil
}

// parseSpline reads an edge pos attribute, a list of 3n+1 B-spline control
// points optionally preceded by "s," and "e," arrow points. Polylines keep
// every third control point between the ends; orthogonal routes keep the
// first as well.
func parseSpline(s string, ortho bool) ([]orb.Point, error) {
	var ctrl []string
	for _, f := range strings.Fields(s) {
		if strings.HasPrefix(f, "e,") || strings.HasPrefix(f, "s,") {
			continue
		}
		ctrl = append(ctrl, f)
	}
	start := 3
	if ortho {
		start = 0
	}
	var pts []orb.Point
	for i := start; i < len(ctrl)-1; i += 3 {
		p, err := parsePoint(ctrl[i])
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, nil
}
