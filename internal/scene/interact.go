package scene

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

// Modifier is the keyboard modifier state of a pointer event. Gestures
// require an exact match, so Ctrl+Shift is neither Ctrl nor Shift.
type Modifier uint8

const (
	ModNone  Modifier = 0
	ModShift Modifier = 1
	ModCtrl  Modifier = 2
)

// SuccessorKind is what a link drawn into empty space should end on.
type SuccessorKind uint8

const (
	SuccNone SuccessorKind = iota
	SuccFunction
	SuccEvent
	SuccAnd
	SuccOr
	SuccXor
	SuccStart
	SuccFinish
	SuccHandle
)

func (k SuccessorKind) String() string {
	switch k {
	case SuccFunction:
		return "function"
	case SuccEvent:
		return "event"
	case SuccAnd:
		return "and"
	case SuccOr:
		return "or"
	case SuccXor:
		return "xor"
	case SuccStart:
		return "start"
	case SuccFinish:
		return "finish"
	case SuccHandle:
		return "handle"
	default:
		return "none"
	}
}

// SuccessorChooser picks one of offers, or SuccNone to cancel.
type SuccessorChooser func(offers []SuccessorKind) SuccessorKind

// Listener receives the edits the scene cannot perform itself.
type Listener interface {
	// LinkRequested asks for a flow from pred to succ routed through path.
	LinkRequested(pred, succ store.OID, path []orb.Point)
	// SuccessorLinkRequested asks for a new node of kind at pos, linked
	// from pred through path.
	SuccessorLinkRequested(pred store.OID, kind SuccessorKind, pos orb.Point, path []orb.Point)
	// DropRequested asks for refs to be placed at pos.
	DropRequested(refs []store.OID, pos orb.Point)
}

// Press handles a left button press at pos.
func (sc *Scene) Press(pos orb.Point, mods Modifier) error {
	sc.startPos, sc.lastPos, sc.pointer = pos, pos, pos
	switch sc.modes.cur {
	case ModeAddingLink:
		return sc.pressAddingLink(pos, mods)
	case ModeIdle:
	default:
		// a press without the release of the previous gesture
		if err := sc.modes.transition(ModeIdle); err != nil {
			return err
		}
	}

	n, seg := sc.g.ElementAt(pos)
	if n == nil && seg == nil {
		sc.ClearSelection()
		return nil
	}
	if mods == ModShift {
		sc.toggle(n, seg)
		if !sc.readOnly {
			return sc.modes.transition(ModePrepareMove)
		}
		return nil
	}
	if !sc.isSelected(n, seg) {
		sc.ClearSelection()
		sc.setSelected(n, seg, true)
	}
	if sc.readOnly {
		return nil
	}
	sc.startItem, sc.lastHit = 0, 0
	if n != nil {
		sc.startItem, sc.lastHit = n.ID, n.ID
	}
	switch {
	case n != nil && mods == ModCtrl && sc.canStartLink(n):
		sc.rubberEnd = pos
		return sc.modes.transition(ModeAddingLink)
	case n != nil && mods == ModCtrl && canScale(n):
		return sc.modes.transition(ModeScaling)
	case mods == ModNone:
		return sc.modes.transition(ModePrepareMove)
	}
	return nil
}

func (sc *Scene) pressAddingLink(pos orb.Point, mods Modifier) error {
	nodes, _ := sc.g.ElementsAt(pos)
	var to *Node
	if top, _ := sc.g.ElementAt(pos); top != nil && top.Type != NodeFrame {
		to = top
	}
	if mods == ModNone && (canAddHandle(nodes) || to == nil) {
		sc.addHandle()
		return nil
	}
	kind := SuccNone
	if mods == ModCtrl {
		offers := []SuccessorKind{SuccFunction, SuccEvent, SuccAnd, SuccOr, SuccXor, SuccStart, SuccFinish}
		if canAddHandle(nodes) {
			offers = append(offers, SuccHandle)
		}
		if sc.chooser != nil {
			kind = sc.chooser(offers)
		}
		if kind == SuccHandle {
			sc.addHandle()
			return nil
		}
	}
	if to != nil && to.Type == NodeHandle {
		to = nil
	}
	start := sc.g.nodes[sc.startItem]
	if start == nil || (to == nil && kind == SuccNone) || (to != nil && to.ID == start.ID) || !sc.canEndLink(to) {
		return nil
	}
	path := sc.rubberPath()
	succ := store.Nil
	if to != nil {
		succ = to.Orig
	}
	pred := start.Orig
	sc.discardRubber()
	if err := sc.modes.transition(ModeIdle); err != nil {
		return err
	}
	if sc.listener == nil {
		return nil
	}
	if kind == SuccNone {
		sc.listener.LinkRequested(pred, succ, path)
	} else {
		sc.listener.SuccessorLinkRequested(pred, kind, model.Rastered(sc.startPos), path)
	}
	return nil
}

// addHandle drops a handle at the rastered press point and extends the
// rubber band chain to it.
func (sc *Scene) addHandle() {
	if sc.readOnly {
		return
	}
	from := sc.g.nodes[sc.lastHit]
	if from == nil {
		return
	}
	h := sc.g.addNode(NodeHandle, store.Nil, store.Nil, model.Rastered(sc.startPos))
	sc.g.addSegment(from, h, store.Nil, store.Nil)
	sc.lastHit = h.ID
}

// rubberPath returns the handle positions placed so far.
func (sc *Scene) rubberPath() []orb.Point {
	h := sc.g.nodes[sc.lastHit]
	if h == nil || h.Type != NodeHandle {
		return nil
	}
	if in := sc.g.FirstIn(h); in != nil {
		return sc.g.NodeList(in)
	}
	return nil
}

// discardRubber removes the temporary chain of the link being drawn.
func (sc *Scene) discardRubber() {
	if h := sc.g.nodes[sc.lastHit]; h != nil && h.Type == NodeHandle {
		sc.g.DeleteChain(h.ID)
	}
	sc.startItem, sc.lastHit = 0, 0
}

// Move handles pointer motion with the button held, or the free motion of
// the rubber band while a link is drawn.
func (sc *Scene) Move(pos orb.Point) {
	prev := sc.pointer
	sc.pointer = pos
	switch sc.modes.cur {
	case ModeAddingLink:
		sc.rubberEnd = pos
	case ModeMoving:
		sc.lastPos = pos
		sc.ghost = model.Rastered(model.Sub(sc.lastPos, sc.startPos))
	case ModeScaling:
		if n := sc.g.nodes[sc.lastHit]; n != nil {
			d := model.Sub(pos, prev)
			sc.adjustSize(n, d[0], d[1])
		}
	case ModePrepareMove:
		if model.ManhattanLength(model.Sub(pos, sc.startPos)) > moveThreshold {
			sc.lastPos = pos
			sc.ghost = model.Rastered(model.Sub(sc.lastPos, sc.startPos))
			_ = sc.modes.transition(ModeMoving)
		}
	}
}

// Ghost is the rastered offset of the selection outline while moving.
func (sc *Scene) Ghost() (orb.Point, bool) {
	return sc.ghost, sc.modes.cur == ModeMoving
}

// Rubber returns the line from the last link point to the pointer while a
// link is drawn.
func (sc *Scene) Rubber() (from, to orb.Point, ok bool) {
	n := sc.g.nodes[sc.lastHit]
	if sc.modes.cur != ModeAddingLink || n == nil {
		return from, to, false
	}
	return n.Pos, sc.rubberEnd, true
}

// Release ends a move or scale gesture and commits its result.
func (sc *Scene) Release(ctx context.Context, pos orb.Point) error {
	sc.pointer = pos
	ctx = sc.ctx(ctx)
	switch sc.modes.cur {
	case ModeAddingLink:
		return nil
	case ModeMoving:
		err := sc.moveSelection(ctx, model.Sub(sc.lastPos, sc.startPos))
		sc.enlargeRect()
		if terr := sc.modes.transition(ModeIdle); err == nil {
			err = terr
		}
		sc.flush()
		return err
	case ModeScaling:
		var err error
		if n := sc.g.nodes[sc.lastHit]; n != nil && canScale(n) && sc.diagram != store.Nil {
			if err = model.ItemOf(sc.s, n.Item).SetSize(n.Width, n.Height); err == nil {
				err = sc.s.Commit(ctx)
			} else {
				sc.s.Rollback()
			}
		}
		sc.startItem, sc.lastHit = 0, 0
		if terr := sc.modes.transition(ModeIdle); err == nil {
			err = terr
		}
		return err
	case ModeIdle:
		return nil
	default:
		return sc.modes.transition(ModeIdle)
	}
}

// Escape aborts the link being drawn and discards its handles.
func (sc *Scene) Escape() {
	if sc.modes.cur != ModeAddingLink {
		return
	}
	sc.discardRubber()
	_ = sc.modes.transition(ModeIdle)
}

// CanStartLink reports whether StartLink at pos would begin a link.
func (sc *Scene) CanStartLink(pos orb.Point) bool {
	if sc.readOnly || sc.modes.cur != ModeIdle {
		return false
	}
	n, _ := sc.g.ElementAt(pos)
	return n != nil && sc.canStartLink(n)
}

// StartLink begins drawing a link from the node at pos without a press.
func (sc *Scene) StartLink(pos orb.Point) bool {
	if sc.readOnly || sc.modes.cur != ModeIdle {
		return false
	}
	sc.startPos, sc.pointer = pos, pos
	n, seg := sc.g.ElementAt(pos)
	if n == nil && seg == nil {
		return false
	}
	if !sc.isSelected(n, seg) {
		sc.ClearSelection()
		sc.setSelected(n, seg, true)
	}
	if n == nil || !sc.canStartLink(n) {
		return false
	}
	sc.startItem, sc.lastHit = n.ID, n.ID
	sc.rubberEnd = pos
	return sc.modes.transition(ModeAddingLink) == nil
}

// Drop forwards object references dropped on the scene.
func (sc *Scene) Drop(refs []store.OID, pos orb.Point) {
	if sc.listener != nil && len(refs) > 0 {
		sc.listener.DropRequested(refs, pos)
	}
}

// StartPos is the last press point, optionally rastered.
func (sc *Scene) StartPos(rastered bool) orb.Point {
	if rastered {
		return model.Rastered(sc.startPos)
	}
	return sc.startPos
}

func canScale(n *Node) bool { return n.Type == NodeNote || n.Type == NodeFrame }

func (sc *Scene) linkable(n *Node, outgoing bool) bool {
	switch n.Type {
	case NodeConnector:
		return true
	case NodeFunction, NodeEvent:
		if !sc.strict || len(n.links) == 0 {
			return true
		}
		if len(n.links) >= 2 {
			return false
		}
		s := sc.g.segs[n.links[0]]
		if outgoing {
			return s == nil || s.Start != n.ID
		}
		return s == nil || s.End != n.ID
	}
	return false
}

func (sc *Scene) canStartLink(n *Node) bool { return sc.linkable(n, true) }

// canEndLink accepts nil, a link ending on a node yet to be created.
func (sc *Scene) canEndLink(n *Node) bool { return n == nil || sc.linkable(n, false) }

func (sc *Scene) adjustSize(n *Node, dx, dy float64) {
	switch n.Type {
	case NodeNote:
		sc.setNoteWidth(n, n.Width+dx)
	case NodeFrame:
		setFrameSize(n, n.Width+dx, n.Height+dy)
	}
}

// moveSelection moves every selected node and handle by off, rastered, and
// commits once.
func (sc *Scene) moveSelection(ctx context.Context, off orb.Point) error {
	sc.commitLock = true
	sc.moved = make(map[ElemID]bool)
	defer func() {
		sc.commitLock = false
		sc.moved = nil
	}()
	for _, n := range sc.g.Nodes() {
		if !n.Selected || sc.moved[n.ID] {
			continue
		}
		if err := sc.rasteredMoveBy(n, off); err != nil {
			sc.s.Rollback()
			return err
		}
	}
	if sc.diagram == store.Nil {
		return nil
	}
	return sc.s.Commit(ctx)
}

func (sc *Scene) rasteredMoveBy(n *Node, off orb.Point) error {
	old := n.Pos
	n.Pos = model.Rastered(model.Add(old, off))
	sc.moved[n.ID] = true
	if sc.diagram == store.Nil {
		return nil
	}
	if n.Type == NodeHandle {
		last := sc.g.LastSegmentOf(n)
		if last == nil || last.Item == store.Nil {
			return nil
		}
		return model.ItemOf(sc.s, last.Item).SetNodeList(sc.g.NodeList(last))
	}
	if err := model.ItemOf(sc.s, n.Item).SetPos(n.Pos); err != nil {
		return err
	}
	return sc.movePinned(n.pinneds, model.Sub(n.Pos, old))
}

// movePinned moves the pinned nodes by diff together with the handles of
// their outgoing flows, transitively through their own pinned nodes.
func (sc *Scene) movePinned(pinned []ElemID, diff orb.Point) error {
	if diff == (orb.Point{}) {
		return nil
	}
	if sc.moved == nil {
		sc.moved = make(map[ElemID]bool)
		defer func() { sc.moved = nil }()
	}
	for _, id := range pinned {
		p := sc.g.nodes[id]
		if p == nil || p.Type == NodeHandle || sc.moved[id] {
			continue
		}
		sc.moved[id] = true
		p.Pos = model.Rastered(model.Add(p.Pos, diff))
		if err := model.ItemOf(sc.s, p.Item).SetPos(p.Pos); err != nil {
			return err
		}
		for _, sid := range p.links {
			s := sc.g.segs[sid]
			if s == nil || s.Start != p.ID {
				continue
			}
			last := sc.g.LastSegment(s)
			if last == s {
				continue
			}
			for _, h := range sc.g.Handles(s) {
				if sc.moved[h.ID] {
					continue
				}
				sc.moved[h.ID] = true
				h.Pos = model.Add(h.Pos, diff)
			}
			if last.Item != store.Nil {
				if err := model.ItemOf(sc.s, last.Item).SetNodeList(sc.g.NodeList(last)); err != nil {
					return err
				}
			}
		}
		if err := sc.movePinned(p.pinneds, diff); err != nil {
			return err
		}
	}
	return nil
}
