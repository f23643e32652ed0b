package controller

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// selectedNodes returns the origins of the selection a function could
// hold: flow nodes and control flows.
func (c *Controller) selectedNodes() []store.OID {
	var out []store.OID
	for _, id := range c.sc.MultiSelection(true, true, true) {
		orig := model.ItemOf(c.s, id).Origin()
		if model.IsValidAggregate(model.TypeFunction, c.s.Type(orig)) {
			out = append(out, orig)
		}
	}
	return out
}

// place shows objs and the flows between them and the diagram in two
// commits and optionally lays the diagram out.
func (c *Controller) place(ctx context.Context, d store.OID, objs []store.OID, relayout bool) ([]store.OID, error) {
	done, err := topology.AddItemsToDiagram(c.s, d, objs, orb.Point{})
	if err != nil {
		return nil, c.fail(err)
	}
	if err := c.commit(ctx); err != nil {
		return nil, err
	}
	if _, err := topology.AddItemLinksToDiagram(c.s, d, done); err != nil {
		return nil, c.fail(err)
	}
	if err := c.commit(ctx); err != nil {
		return nil, err
	}
	if relayout {
		if err := c.layout(ctx, d, c.ortho); err != nil {
			return done, err
		}
	}
	return done, nil
}

// ExtendDiagram adds the nodes reachable within levels flows from the
// selected nodes, or from every node shown when nothing is selected.
// It returns the nodes added and selects them.
func (c *Controller) ExtendDiagram(ctx context.Context, levels int, succ, pred, relayout bool) ([]store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return nil, err
	}
	if levels < 1 || levels > topology.MaxLevels {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "levels must be between 1 and %d", topology.MaxLevels).
			WithDetails(map[string]any{"levels": levels})
	}
	if relayout && c.bridge == nil {
		return nil, errNoBridge()
	}
	ctx = c.ctx(ctx)
	start := c.selectedNodes()
	if len(start) == 0 {
		start = topology.ItemOrigObjs(c.s, d, true, false)
	}
	objs := topology.FindExtended(c.s, start, levels, succ, pred)
	done, err := c.place(ctx, d, objs, relayout)
	c.sc.SelectObjects(done, true)
	c.logger.DebugContext(ctx, "diagram extended", "levels", levels, "added", len(done))
	return done, err
}

// ShowShortestPath adds the nodes on a shortest flow path between the two
// selected nodes, in either direction, and selects the whole path. An
// empty result means the nodes are not connected.
func (c *Controller) ShowShortestPath(ctx context.Context, relayout bool) ([]store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return nil, err
	}
	sel := c.sc.MultiSelection(true, false, false)
	if len(sel) != 2 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "select exactly two elements, not %d", len(sel))
	}
	if relayout && c.bridge == nil {
		return nil, errNoBridge()
	}
	ctx = c.ctx(ctx)
	start := model.ItemOf(c.s, sel[0]).Origin()
	goal := model.ItemOf(c.s, sel[1]).Origin()
	path := topology.FindShortestPath(c.s, start, goal)
	if len(path) == 0 {
		return nil, nil
	}
	_, err = c.place(ctx, d, path, relayout)
	c.sc.SelectObjects(path, true)
	return path, err
}

// HiddenLinks lists the flows between shown nodes that the diagram does
// not show, limited to those touching the selection when there is one.
func (c *Controller) HiddenLinks() ([]store.OID, error) {
	d, err := c.diagram()
	if err != nil {
		return nil, err
	}
	return topology.FindHiddenLinks(c.s, d, c.selectedNodes()), nil
}

// ShowHiddenLinks shows the given flows. Flows already shown or missing
// an end on the diagram are skipped.
func (c *Controller) ShowHiddenLinks(ctx context.Context, links []store.OID) ([]store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return nil, err
	}
	shown := topology.ItemOrigins(c.s, d)
	var done []store.OID
	for _, link := range links {
		if c.s.Type(link) != model.TypeConFlow {
			continue
		}
		_, isShown := shown[link]
		_, hasPred := shown[store.Ref(c.s, link, model.AttrPred)]
		_, hasSucc := shown[store.Ref(c.s, link, model.AttrSucc)]
		if isShown || !hasPred || !hasSucc {
			continue
		}
		if _, err := model.CreateItem(c.s, d, link, orb.Point{}); err != nil {
			return nil, c.fail(err)
		}
		shown[link] = struct{}{}
		done = append(done, link)
	}
	if len(done) == 0 {
		return nil, nil
	}
	return done, c.commit(c.ctx(ctx))
}

// HiddenSchedObjs lists the nodes the diagram owns but does not show.
func (c *Controller) HiddenSchedObjs() ([]store.OID, error) {
	d, err := c.diagram()
	if err != nil {
		return nil, err
	}
	return topology.FindHiddenSchedObjs(c.s, d), nil
}

// ShowHiddenSchedObjs shows the given hidden nodes stacked from the last
// press point, followed by their flows to what is already shown.
func (c *Controller) ShowHiddenSchedObjs(ctx context.Context, objs []store.OID) ([]store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return nil, err
	}
	hidden := make(map[store.OID]bool)
	for _, o := range topology.FindHiddenSchedObjs(c.s, d) {
		hidden[o] = true
	}
	var pick []store.OID
	for _, o := range objs {
		if hidden[o] {
			pick = append(pick, o)
			hidden[o] = false
		}
	}
	if len(pick) == 0 {
		return nil, nil
	}
	ctx = c.ctx(ctx)
	done, err := topology.AddItemsToDiagram(c.s, d, pick, c.sc.StartPos(true))
	if err != nil {
		return nil, c.fail(err)
	}
	if err := c.commit(ctx); err != nil {
		return nil, err
	}
	if _, err := topology.AddItemLinksToDiagram(c.s, d, done); err != nil {
		return nil, c.fail(err)
	}
	return done, c.commit(ctx)
}
