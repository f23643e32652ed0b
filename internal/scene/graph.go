package scene

import (
	"slices"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

// ElemID identifies a node or segment inside one Graph. Nodes and segments
// share the id space, and a higher id stacks above a lower one.
type ElemID uint32

// NodeType is the visual kind of a node.
type NodeType uint8

const (
	NodeFunction NodeType = iota + 1
	NodeEvent
	NodeConnector
	NodeNote
	NodeFrame
	NodeHandle
)

func (t NodeType) String() string {
	switch t {
	case NodeFunction:
		return "function"
	case NodeEvent:
		return "event"
	case NodeConnector:
		return "connector"
	case NodeNote:
		return "note"
	case NodeFrame:
		return "frame"
	case NodeHandle:
		return "handle"
	default:
		return "unknown"
	}
}

// Node mirrors one diagram item, or is a handle of a routed flow. Handles
// carry no object ids; the last segment of their chain does.
type Node struct {
	ID   ElemID
	Type NodeType
	Item store.OID
	Orig store.OID
	Pos  orb.Point

	Width  float64
	Height float64

	Text    string
	Ident   string
	Title   string
	Alias   bool
	Process bool
	Code    model.ConnType

	PinnedTo ElemID
	Selected bool

	pinneds []ElemID
	links   []ElemID
}

// Links lists the segments touching the node.
func (n *Node) Links() []ElemID { return slices.Clone(n.links) }

// Pinneds lists the nodes pinned to this one.
func (n *Node) Pinneds() []ElemID { return slices.Clone(n.pinneds) }

// Segment is one straight piece of a flow. A flow routed through k handles
// is a chain of k+1 segments.
type Segment struct {
	ID    ElemID
	Item  store.OID
	Orig  store.OID
	Start ElemID
	End   ElemID

	Title    string
	Selected bool
}

// Graph is the arena owning the nodes and segments of one scene.
type Graph struct {
	next  ElemID
	nodes map[ElemID]*Node
	segs  map[ElemID]*Segment

	// onRemove sees every element leaving the arena.
	onRemove func(id ElemID, item, orig store.OID)
}

func newGraph() *Graph {
	return &Graph{
		nodes: make(map[ElemID]*Node),
		segs:  make(map[ElemID]*Segment),
	}
}

func (g *Graph) Node(id ElemID) *Node { return g.nodes[id] }

func (g *Graph) Segment(id ElemID) *Segment { return g.segs[id] }

// Nodes returns all nodes in stacking order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *Node) int { return int(a.ID) - int(b.ID) })
	return out
}

// Segments returns all segments in stacking order.
func (g *Graph) Segments() []*Segment {
	out := make([]*Segment, 0, len(g.segs))
	for _, s := range g.segs {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Segment) int { return int(a.ID) - int(b.ID) })
	return out
}

func (g *Graph) Len() int { return len(g.nodes) + len(g.segs) }

func (g *Graph) newID() ElemID {
	g.next++
	return g.next
}

func (g *Graph) addNode(t NodeType, item, orig store.OID, pos orb.Point) *Node {
	n := &Node{ID: g.newID(), Type: t, Item: item, Orig: orig, Pos: pos}
	g.nodes[n.ID] = n
	return n
}

func (g *Graph) addSegment(from, to *Node, item, orig store.OID) *Segment {
	s := &Segment{ID: g.newID(), Item: item, Orig: orig}
	g.segs[s.ID] = s
	g.attach(s, from, true)
	g.attach(s, to, false)
	return s
}

// attach makes n the start or end of s, releasing the previous endpoint.
func (g *Graph) attach(s *Segment, n *Node, start bool) {
	end := &s.End
	if start {
		end = &s.Start
	}
	if old := g.nodes[*end]; old != nil {
		g.detach(old, s)
	}
	*end = n.ID
	n.links = append(n.links, s.ID)
}

// detach clears whichever endpoint of s is n.
func (g *Graph) detach(n *Node, s *Segment) {
	switch n.ID {
	case s.Start:
		s.Start = 0
	case s.End:
		s.End = 0
	default:
		return
	}
	if i := slices.Index(n.links, s.ID); i >= 0 {
		n.links = slices.Delete(n.links, i, i+1)
	}
}

// FirstIn returns the first segment ending at n.
func (g *Graph) FirstIn(n *Node) *Segment {
	for _, id := range n.links {
		if s := g.segs[id]; s != nil && s.End == n.ID {
			return s
		}
	}
	return nil
}

// FirstOut returns the first segment starting at n.
func (g *Graph) FirstOut(n *Node) *Segment {
	for _, id := range n.links {
		if s := g.segs[id]; s != nil && s.Start == n.ID {
			return s
		}
	}
	return nil
}

func (g *Graph) isHandle(id ElemID) bool {
	n := g.nodes[id]
	return n != nil && n.Type == NodeHandle
}

// FirstSegment walks back through handles to the segment leaving a real node.
func (g *Graph) FirstSegment(s *Segment) *Segment {
	for guard := len(g.segs); s != nil && g.isHandle(s.Start) && guard > 0; guard-- {
		prev := g.FirstIn(g.nodes[s.Start])
		if prev == nil {
			break
		}
		s = prev
	}
	return s
}

// LastSegment walks forward through handles to the segment entering a real
// node. That segment carries the persisted ids of the flow.
func (g *Graph) LastSegment(s *Segment) *Segment {
	for guard := len(g.segs); s != nil && g.isHandle(s.End) && guard > 0; guard-- {
		next := g.FirstOut(g.nodes[s.End])
		if next == nil {
			break
		}
		s = next
	}
	return s
}

// LastSegmentOf returns the persisted segment of the chain through handle h.
func (g *Graph) LastSegmentOf(h *Node) *Segment {
	if out := g.FirstOut(h); out != nil {
		return g.LastSegment(out)
	}
	return nil
}

// Chain returns the segments of the flow containing s, first to last.
func (g *Graph) Chain(s *Segment) []*Segment {
	var out []*Segment
	cur := g.FirstSegment(s)
	for guard := len(g.segs); cur != nil && guard > 0; guard-- {
		out = append(out, cur)
		if !g.isHandle(cur.End) {
			break
		}
		cur = g.FirstOut(g.nodes[cur.End])
	}
	return out
}

// Handles returns the handle nodes of the flow containing s in order.
func (g *Graph) Handles(s *Segment) []*Node {
	var out []*Node
	for _, seg := range g.Chain(s) {
		if g.isHandle(seg.End) {
			out = append(out, g.nodes[seg.End])
		}
	}
	return out
}

// NodeList returns the handle positions of the flow containing s, which is
// what the flow's diagram item persists.
func (g *Graph) NodeList(s *Segment) []orb.Point {
	var pts []orb.Point
	for _, h := range g.Handles(s) {
		pts = append(pts, h.Pos)
	}
	return pts
}

// Ends returns the real nodes a flow chain connects.
func (g *Graph) Ends(s *Segment) (start, end *Node) {
	chain := g.Chain(s)
	if len(chain) == 0 {
		return nil, nil
	}
	return g.nodes[chain[0].Start], g.nodes[chain[len(chain)-1].End]
}

func (g *Graph) deleteSegment(s *Segment) {
	if n := g.nodes[s.Start]; n != nil {
		g.detach(n, s)
	}
	if n := g.nodes[s.End]; n != nil {
		g.detach(n, s)
	}
	delete(g.segs, s.ID)
	if g.onRemove != nil {
		g.onRemove(s.ID, s.Item, s.Orig)
	}
}

// deleteNode removes n after nulling the endpoints of its segments and
// dropping its pin relations.
func (g *Graph) deleteNode(n *Node) {
	for _, id := range slices.Clone(n.links) {
		if s := g.segs[id]; s != nil {
			g.detach(n, s)
		}
	}
	g.setPinnedTo(n, 0)
	for _, id := range n.pinneds {
		if p := g.nodes[id]; p != nil {
			p.PinnedTo = 0
		}
	}
	n.pinneds = nil
	delete(g.nodes, n.ID)
	if g.onRemove != nil {
		g.onRemove(n.ID, n.Item, n.Orig)
	}
}

// DeleteChain removes the whole flow containing the segment or handle id,
// handles included.
func (g *Graph) DeleteChain(id ElemID) {
	var s *Segment
	if n := g.nodes[id]; n != nil {
		if n.Type != NodeHandle {
			return
		}
		if s = g.FirstIn(n); s == nil {
			s = g.FirstOut(n)
		}
		if s == nil {
			g.deleteNode(n)
			return
		}
	} else if s = g.segs[id]; s == nil {
		return
	}
	s = g.FirstSegment(s)
	for s != nil {
		end := g.nodes[s.End]
		var next *Segment
		if end != nil && end.Type == NodeHandle {
			next = g.FirstOut(end)
		}
		g.deleteSegment(s)
		if end != nil && end.Type == NodeHandle {
			g.deleteNode(end)
		}
		s = next
	}
}

// RemoveNode deletes every flow touching n and then n itself.
func (g *Graph) RemoveNode(n *Node) {
	for len(n.links) > 0 {
		before := len(n.links)
		g.DeleteChain(n.links[0])
		if len(n.links) == before {
			// a dangling segment that no chain walk reaches
			if s := g.segs[n.links[0]]; s != nil {
				g.deleteSegment(s)
			} else {
				n.links = n.links[1:]
			}
		}
	}
	g.deleteNode(n)
}

// insertHandle splits s at pos: the new handle starts s and a fresh
// segment runs from the old start to the handle.
func (g *Graph) insertHandle(s *Segment, pos orb.Point) *Node {
	start := g.nodes[s.Start]
	h := g.addNode(NodeHandle, store.Nil, store.Nil, pos)
	g.attach(s, h, true)
	g.addSegment(start, h, store.Nil, store.Nil)
	return h
}

// removeHandle splices the two segments around h into one and returns the
// persisted segment of the chain.
func (g *Graph) removeHandle(h *Node) *Segment {
	prev, next := g.FirstIn(h), g.FirstOut(h)
	if prev == nil || next == nil {
		g.DeleteChain(h.ID)
		return nil
	}
	last := g.LastSegment(next)
	start := g.nodes[prev.Start]
	g.deleteSegment(prev)
	if start != nil {
		g.attach(next, start, true)
	}
	g.deleteNode(h)
	return last
}

func (g *Graph) setPinnedTo(n *Node, target ElemID) {
	if old := g.nodes[n.PinnedTo]; old != nil {
		if i := slices.Index(old.pinneds, n.ID); i >= 0 {
			old.pinneds = slices.Delete(old.pinneds, i, i+1)
		}
	}
	n.PinnedTo = 0
	if t := g.nodes[target]; t != nil && target != n.ID {
		n.PinnedTo = target
		t.pinneds = append(t.pinneds, n.ID)
	}
}
