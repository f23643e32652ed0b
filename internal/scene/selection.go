package scene

import (
	"context"
	"slices"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// Toward selects the part of the scene on one side of the last press.
type Toward uint8

const (
	Rightward Toward = iota
	Leftward
	Upward
	Downward
)

func (sc *Scene) isSelected(n *Node, s *Segment) bool {
	if n != nil {
		return n.Selected
	}
	return s != nil && s.Selected
}

func (sc *Scene) setSelected(n *Node, s *Segment, on bool) {
	if n != nil {
		n.Selected = on
	} else if s != nil {
		s.Selected = on
	}
}

func (sc *Scene) toggle(n *Node, s *Segment) {
	sc.setSelected(n, s, !sc.isSelected(n, s))
}

func (sc *Scene) ClearSelection() {
	for _, n := range sc.g.nodes {
		n.Selected = false
	}
	for _, s := range sc.g.segs {
		s.Selected = false
	}
}

// Select adds the elements ids to the selection.
func (sc *Scene) Select(ids ...ElemID) {
	for _, id := range ids {
		sc.setSelected(sc.g.nodes[id], sc.g.segs[id], true)
	}
}

// Selection lists the selected elements in stacking order.
func (sc *Scene) Selection() []ElemID {
	var out []ElemID
	for _, n := range sc.g.Nodes() {
		if n.Selected {
			out = append(out, n.ID)
		}
	}
	for _, s := range sc.g.Segments() {
		if s.Selected {
			out = append(out, s.ID)
		}
	}
	slices.Sort(out)
	return out
}

// SelectObject selects the node or the whole flow shown for an item or
// origin id and returns whether it is shown.
func (sc *Scene) SelectObject(id store.OID, clearSel bool) bool {
	r, ok := sc.cache[id]
	if !ok {
		return false
	}
	if clearSel {
		sc.ClearSelection()
	}
	if n := sc.g.nodes[r.node]; n != nil {
		n.Selected = true
	}
	if s := sc.g.segs[r.seg]; s != nil {
		for _, c := range sc.g.Chain(s) {
			c.Selected = true
		}
	}
	return true
}

// SelectObjects selects every shown id, clearing the old selection first
// when clearSel is set.
func (sc *Scene) SelectObjects(ids []store.OID, clearSel bool) {
	if clearSel {
		sc.ClearSelection()
	}
	for _, id := range ids {
		sc.SelectObject(id, false)
	}
}

// SelectArea replaces the selection with the elements intersecting r, or
// with those entirely inside r when fully is set.
func (sc *Scene) SelectArea(r orb.Bound, fully bool) {
	hit := func(b orb.Bound) bool {
		if fully {
			return within(r, b)
		}
		return r.Intersects(b)
	}
	for _, n := range sc.g.nodes {
		n.Selected = hit(n.Bounds())
	}
	for _, s := range sc.g.segs {
		_, _, ok := sc.g.Line(s)
		s.Selected = ok && hit(sc.g.segmentBounds(s))
	}
}

func (sc *Scene) SelectAll() {
	for _, n := range sc.g.nodes {
		n.Selected = true
	}
	for _, s := range sc.g.segs {
		s.Selected = true
	}
}

// SelectToward selects everything entirely on one side of the last press.
func (sc *Scene) SelectToward(dir Toward) {
	r := sc.rect.Union(sc.ItemsBounds())
	p := sc.startPos
	switch dir {
	case Rightward:
		r.Min[0] = p[0]
	case Leftward:
		r.Max[0] = p[0]
	case Upward:
		r.Max[1] = p[1]
	case Downward:
		r.Min[1] = p[1]
	}
	sc.SelectArea(r, true)
}

// MultiSelection returns the diagram items behind the selection: those of
// selected nodes, and the flow items of selected segments and handles.
func (sc *Scene) MultiSelection(elems, links, handles bool) []store.OID {
	var out []store.OID
	add := func(id store.OID) {
		if id != store.Nil && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, id := range sc.Selection() {
		if n := sc.g.nodes[id]; n != nil {
			switch {
			case n.Type == NodeHandle && handles:
				if last := sc.g.LastSegmentOf(n); last != nil {
					add(last.Item)
				}
			case n.Type != NodeHandle && elems:
				add(n.Item)
			}
		} else if s := sc.g.segs[id]; s != nil && links {
			add(sc.g.LastSegment(s).Item)
		}
	}
	return out
}

// SingleSelection returns the item of the only selected element, or Nil.
func (sc *Scene) SingleSelection() store.OID {
	if sel := sc.Selection(); len(sel) != 1 || sc.diagram == store.Nil {
		return store.Nil
	}
	if items := sc.MultiSelection(true, true, true); len(items) > 0 {
		return items[0]
	}
	return store.Nil
}

func (sc *Scene) writable() error {
	if sc.readOnly || sc.diagram == store.Nil {
		return schema.NewError(schema.ErrCodeReadOnly, "the diagram is read only")
	}
	return nil
}

// InsertHandle splits the first selected flow segment at the last press
// point.
func (sc *Scene) InsertHandle(ctx context.Context) (bool, error) {
	for _, id := range sc.Selection() {
		if s := sc.g.segs[id]; s != nil {
			return true, sc.InsertHandleAt(ctx, s.ID, model.Rastered(sc.startPos))
		}
	}
	return false, nil
}

// InsertHandleAt splits segment seg with a handle at pos, persists the
// polyline of the flow and selects the handle.
func (sc *Scene) InsertHandleAt(ctx context.Context, seg ElemID, pos orb.Point) error {
	if err := sc.writable(); err != nil {
		return err
	}
	s := sc.g.segs[seg]
	if s == nil || sc.g.nodes[s.Start] == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no flow segment %d", seg)
	}
	h := sc.g.insertHandle(s, pos)
	if err := sc.persistNodeList(sc.g.LastSegment(s)); err != nil {
		return err
	}
	sc.ClearSelection()
	h.Selected = true
	return sc.s.Commit(sc.ctx(ctx))
}

// RemoveHandle splices the segments around handle h and persists the
// shortened polyline.
func (sc *Scene) RemoveHandle(ctx context.Context, h ElemID) error {
	if err := sc.writable(); err != nil {
		return err
	}
	n := sc.g.nodes[h]
	if n == nil || n.Type != NodeHandle {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no handle %d", h)
	}
	if err := sc.persistNodeList(sc.g.removeHandle(n)); err != nil {
		return err
	}
	return sc.s.Commit(sc.ctx(ctx))
}

func (sc *Scene) persistNodeList(last *Segment) error {
	if last == nil || last.Item == store.Nil {
		return nil
	}
	if err := model.ItemOf(sc.s, last.Item).SetNodeList(sc.g.NodeList(last)); err != nil {
		sc.s.Rollback()
		return err
	}
	return nil
}

// RemoveSelectedItems removes the selection from the diagram without
// touching the objects shown. Selected handles are dissolved unless their
// flow goes too; flows touching removed nodes go with them.
func (sc *Scene) RemoveSelectedItems(ctx context.Context) error {
	if err := sc.writable(); err != nil {
		return err
	}
	var (
		items   []store.OID
		handles []*Node
	)
	add := func(id store.OID) {
		if id != store.Nil && !slices.Contains(items, id) {
			items = append(items, id)
		}
	}
	for _, id := range sc.Selection() {
		if s := sc.g.segs[id]; s != nil {
			add(sc.g.LastSegment(s).Item)
			continue
		}
		n := sc.g.nodes[id]
		if n.Type == NodeHandle {
			handles = append(handles, n)
			continue
		}
		add(n.Item)
		for _, l := range n.links {
			if s := sc.g.segs[l]; s != nil {
				add(sc.g.LastSegment(s).Item)
			}
		}
	}
	for _, h := range handles {
		last := sc.g.LastSegmentOf(h)
		if last == nil || slices.Contains(items, last.Item) {
			continue
		}
		if err := sc.persistNodeList(sc.g.removeHandle(h)); err != nil {
			return err
		}
	}
	for _, id := range items {
		if !sc.s.Exists(id) {
			continue
		}
		if err := model.Erase(sc.s, id); err != nil {
			sc.s.Rollback()
			return err
		}
	}
	return sc.s.Commit(sc.ctx(ctx))
}

// SetItemText sets the text of the object a node shows.
func (sc *Scene) SetItemText(ctx context.Context, id store.OID, text string) error {
	if err := sc.writable(); err != nil {
		return err
	}
	n := sc.NodeFor(id)
	if n == nil || n.Type == NodeHandle || !sc.s.Exists(n.Orig) {
		return schema.NewErrorf(schema.ErrCodeNotFound, "object %d is not shown", id).WithObject(uint64(id))
	}
	if err := sc.s.Set(n.Orig, model.AttrText, text); err != nil {
		return err
	}
	if err := sc.s.Set(n.Orig, model.AttrModifiedOn, model.Now()); err != nil {
		sc.s.Rollback()
		return err
	}
	return sc.s.Commit(sc.ctx(ctx))
}
