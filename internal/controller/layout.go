package controller

import (
	"context"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/layout"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// Cluster margins in points, wider when the frame shows a title.
const (
	clusterMargin       = 16
	titledClusterMargin = 32
)

func errNoBridge() error {
	return schema.NewError(schema.ErrCodeLayoutUnavailable, "no layout engine is configured")
}

func itemKey(id store.OID) string { return strconv.FormatUint(uint64(id), 10) }

// layoutPlan is the graph handed to the engine together with the items
// its results are written back to.
type layoutPlan struct {
	in       layout.Input
	clusters map[string]store.OID
	nodes    map[string]store.OID
	flows    map[string]store.OID
}

// planLayout describes diagram d as a layout graph:
//   - a frame becomes a cluster unless nothing but notes is pinned to it
//   - plain items become nodes, inside the cluster of the frame they are
//     pinned to, directly or through the plain item they are pinned to
//   - connectors are half height squares
//   - notes are only laid out when pinned, keep their size and get an edge
//     to their pin target
//   - items pinned to a frame that is no cluster stay where they are
//   - flows become edges when both ends are nodes
func planLayout(s store.Store, d store.OID, ortho bool) *layoutPlan {
	p := &layoutPlan{
		in: layout.Input{
			Title:     model.FormatTitle(s, d, true),
			Direction: model.GetDirection(s, d),
			Ortho:     ortho,
		},
		clusters: make(map[string]store.OID),
		nodes:    make(map[string]store.OID),
		flows:    make(map[string]store.OID),
	}
	var items []model.DiagItem
	for _, id := range s.Children(d) {
		if s.Type(id) == model.TypeDiagItem {
			items = append(items, model.ItemOf(s, id))
		}
	}

	// frame item -> cluster id, "" when the frame is no cluster
	frames := make(map[store.OID]string)
	for _, it := range items {
		if it.Kind() != model.KindFrame {
			continue
		}
		onlyNotes := true
		for _, pid := range it.Pinneds() {
			if model.ItemOf(s, pid).Kind() != model.KindNote {
				onlyNotes = false
				break
			}
		}
		if onlyNotes {
			frames[it.ID] = ""
			continue
		}
		key := itemKey(it.ID)
		margin := float64(clusterMargin)
		if s.Has(it.ID, model.AttrText) {
			margin = titledClusterMargin
		}
		p.in.Clusters = append(p.in.Clusters, layout.Cluster{ID: key, Margin: margin})
		p.clusters[key] = it.ID
		frames[it.ID] = key
	}

	// origin -> node id
	byOrigin := make(map[store.OID]string)
	for _, it := range items {
		orig := it.Origin()
		if it.Kind() == model.KindFrame || s.Type(orig) == model.TypeConFlow {
			continue
		}
		cluster, inGraph := "", true
		pin := model.ItemOf(s, it.PinnedTo())
		if !pin.IsNull() {
			switch pin.Kind() {
			case model.KindFrame:
				cluster = frames[pin.ID]
				inGraph = cluster != ""
			case model.KindPlain:
				if outer := model.ItemOf(s, pin.PinnedTo()); !outer.IsNull() && outer.Kind() == model.KindFrame {
					cluster = frames[outer.ID]
					inGraph = cluster != ""
				}
			}
		}
		if !inGraph || (it.Kind() == model.KindNote && pin.IsNull()) {
			continue
		}
		n := layout.Node{ID: itemKey(it.ID), Cluster: cluster, FixedSize: true}
		switch {
		case s.Type(orig) == model.TypeConnector:
			n.Width, n.Height = model.BoxHeight*0.5, model.BoxHeight*0.5
		case it.Kind() == model.KindNote:
			n.Width, n.Height = it.Size()
		default:
			n.Width, n.Height = model.BoxWidth, model.BoxHeight
		}
		p.in.Nodes = append(p.in.Nodes, n)
		p.nodes[n.ID] = it.ID
		byOrigin[orig] = n.ID
	}

	for _, it := range items {
		if link := it.Origin(); s.Type(link) == model.TypeConFlow {
			from := byOrigin[store.Ref(s, link, model.AttrPred)]
			to := byOrigin[store.Ref(s, link, model.AttrSucc)]
			// stale flows stay until the diagram is loaded again
			if from != "" && to != "" {
				key := itemKey(it.ID)
				p.in.Edges = append(p.in.Edges, layout.Edge{ID: key, From: from, To: to, Constraint: true})
				p.flows[key] = it.ID
			}
		}
		if it.Kind() != model.KindNote {
			continue
		}
		pin := model.ItemOf(s, it.PinnedTo())
		if pin.IsNull() {
			continue
		}
		from, to := byOrigin[it.Origin()], byOrigin[pin.Origin()]
		if from != "" && to != "" {
			p.in.Edges = append(p.in.Edges, layout.Edge{
				ID: itemKey(it.ID) + "-" + itemKey(pin.ID), From: from, To: to, Constraint: true,
			})
		}
	}
	return p
}

// apply writes res back rastered: frame bounds, node positions (centres
// for plain items, top left corners for notes) and flow routes.
func (p *layoutPlan) apply(s store.Store, res *layout.Result) error {
	for key, id := range p.clusters {
		b, ok := res.ClusterBounds[key]
		if !ok {
			continue
		}
		it := model.ItemOf(s, id)
		lo, hi := model.Rastered(b.Min), model.Rastered(b.Max)
		if err := it.SetPos(lo); err != nil {
			return err
		}
		if err := it.SetSize(hi[0]-lo[0], hi[1]-lo[1]); err != nil {
			return err
		}
	}
	for key, id := range p.nodes {
		pos, ok := res.Positions[key]
		if !ok {
			continue
		}
		it := model.ItemOf(s, id)
		if it.Kind() != model.KindPlain {
			w, h := it.Size()
			pos = orb.Point{pos[0] - w/2, pos[1] - h/2}
		}
		if err := it.SetPos(model.Rastered(pos)); err != nil {
			return err
		}
	}
	for key, id := range p.flows {
		route := res.EdgePolylines[key]
		for i := range route {
			route[i] = model.Rastered(route[i])
		}
		if err := model.ItemOf(s, id).SetNodeList(route); err != nil {
			return err
		}
	}
	return nil
}

// LayoutDiagram lays the open diagram out with the configured engine.
// The scene is detached while positions are written and shown again
// afterwards; on failure every write is rolled back. The selection
// survives.
func (c *Controller) LayoutDiagram(ctx context.Context, ortho bool) error {
	d, err := c.writable()
	if err != nil {
		return err
	}
	if c.bridge == nil {
		return errNoBridge()
	}
	sel := c.sc.MultiSelection(true, true, false)
	err = c.layout(c.ctx(ctx), d, ortho)
	c.sc.SelectObjects(sel, true)
	return err
}

func (c *Controller) layout(ctx context.Context, d store.OID, ortho bool) error {
	if c.bridge == nil {
		return errNoBridge()
	}
	plan := planLayout(c.s, d, ortho)
	c.sc.Close()
	reopen := func() error { return c.sc.SetDiagram(ctx, d) }

	res, err := c.bridge.Layout(ctx, plan.in)
	if err == nil {
		err = plan.apply(c.s, res)
	}
	if err != nil {
		c.s.Rollback()
		c.logger.WarnContext(ctx, "layout failed", "error", err)
		if rerr := reopen(); rerr != nil {
			c.logger.ErrorContext(ctx, "reopen diagram", "error", rerr)
		}
		return err
	}
	if err := c.s.Commit(ctx); err != nil {
		c.s.Rollback()
		_ = reopen()
		return err
	}
	c.logger.DebugContext(ctx, "diagram laid out", "nodes", len(plan.in.Nodes),
		"edges", len(plan.in.Edges), "clusters", len(plan.in.Clusters))
	return reopen()
}
