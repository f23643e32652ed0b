package scene

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/rochus-keller/FlowLine2/internal/model"
)

const (
	handleRadius = model.Radius * 0.75
	// segments are picked within half their 5 unit pick pen
	segmentPick    = 2.5
	minNoteWidth   = model.BoxWidth * 0.25
	minFrameWidth  = model.BoxWidth * 0.25
	minFrameHeight = model.BoxHeight * 0.25
	moveThreshold  = 5.0
)

// Shape returns the outline of the node in scene coordinates. Notes and
// frames are anchored at their top-left corner, every other node at its
// centre.
func (n *Node) Shape() orb.Ring {
	x, y := n.Pos[0], n.Pos[1]
	switch n.Type {
	case NodeEvent:
		w, h, in := model.BoxWidth/2, model.BoxHeight/2, model.BoxInset
		return orb.Ring{
			{x - w, y}, {x - w + in, y - h}, {x + w - in, y - h},
			{x + w, y}, {x + w - in, y + h}, {x - w + in, y + h}, {x - w, y},
		}
	case NodeConnector:
		rad := model.CircleDiameter / 2
		l := 0.83 * rad / 2
		return orb.Ring{
			{x - rad, y - l}, {x - l, y - rad}, {x + l, y - rad}, {x + rad, y - l},
			{x + rad, y + l}, {x + l, y + rad}, {x - l, y + rad}, {x - rad, y + l}, {x - rad, y - l},
		}
	default:
		return n.Bounds().ToRing()
	}
}

// Bounds is the rectangle the node covers.
func (n *Node) Bounds() orb.Bound {
	switch n.Type {
	case NodeNote, NodeFrame:
		return model.Rect(n.Pos, n.Width, n.Height)
	case NodeConnector:
		return model.CenteredBox(n.Pos, model.CircleDiameter, model.CircleDiameter)
	case NodeHandle:
		return model.CenteredBox(n.Pos, 2*handleRadius, 2*handleRadius)
	default:
		return model.CenteredBox(n.Pos, model.BoxWidth, model.BoxHeight)
	}
}

// Contains reports whether p hits the node.
func (n *Node) Contains(p orb.Point) bool {
	switch n.Type {
	case NodeEvent:
		return planar.RingContains(n.Shape(), p)
	case NodeConnector:
		return planar.Distance(n.Pos, p) <= model.BoxHeight*0.25
	default:
		return n.Bounds().Contains(p)
	}
}

// z orders the layers: frames at the bottom, then flows, then nodes.
func (n *Node) z() int {
	if n.Type == NodeFrame {
		return -2
	}
	return 0
}

// Line returns the two end points of s.
func (g *Graph) Line(s *Segment) (a, b orb.Point, ok bool) {
	from, to := g.nodes[s.Start], g.nodes[s.End]
	if from == nil || to == nil {
		return a, b, false
	}
	return from.Pos, to.Pos, true
}

func (g *Graph) segmentBounds(s *Segment) orb.Bound {
	a, b, ok := g.Line(s)
	if !ok {
		return orb.Bound{}
	}
	return orb.MultiPoint{a, b}.Bound()
}

// ElementAt returns the topmost node or segment under p. Exactly one of the
// results is non-nil when something is hit.
func (g *Graph) ElementAt(p orb.Point) (*Node, *Segment) {
	var (
		bestNode *Node
		bestSeg  *Segment
		bestZ    = -3
		bestID   ElemID
	)
	better := func(z int, id ElemID) bool {
		return z > bestZ || (z == bestZ && id > bestID)
	}
	for _, n := range g.nodes {
		if n.Contains(p) && better(n.z(), n.ID) {
			bestNode, bestSeg, bestZ, bestID = n, nil, n.z(), n.ID
		}
	}
	for _, s := range g.segs {
		a, b, ok := g.Line(s)
		if ok && planar.DistanceFromSegment(a, b, p) <= segmentPick && better(-1, s.ID) {
			bestNode, bestSeg, bestZ, bestID = nil, s, -1, s.ID
		}
	}
	return bestNode, bestSeg
}

// ElementsAt lists everything under p, topmost first.
func (g *Graph) ElementsAt(p orb.Point) (nodes []*Node, segs []*Segment) {
	for _, n := range g.Nodes() {
		if n.Contains(p) {
			nodes = append(nodes, n)
		}
	}
	for _, s := range g.Segments() {
		if a, b, ok := g.Line(s); ok && planar.DistanceFromSegment(a, b, p) <= segmentPick {
			segs = append(segs, s)
		}
	}
	return nodes, segs
}

// ItemsBounds is the union of the bounds of all nodes and segments.
func (g *Graph) ItemsBounds() orb.Bound {
	var (
		b     orb.Bound
		first = true
	)
	grow := func(r orb.Bound) {
		if first {
			b, first = r, false
			return
		}
		b = b.Union(r)
	}
	for _, n := range g.nodes {
		grow(n.Bounds())
	}
	for _, s := range g.segs {
		if _, _, ok := g.Line(s); ok {
			grow(g.segmentBounds(s))
		}
	}
	return b
}

// canAddHandle reports whether only handles, frames and flows lie under
// the pointer, so a further handle can be dropped there.
func canAddHandle(nodes []*Node) bool {
	for _, n := range nodes {
		if n.Type != NodeHandle && n.Type != NodeFrame {
			return false
		}
	}
	return true
}

func within(outer, inner orb.Bound) bool {
	return outer.Contains(inner.Min) && outer.Contains(inner.Max)
}
