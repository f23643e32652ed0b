package model

import (
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/store"
)

// Now is the clock used for CreatedOn and ModifiedOn stamps.
var Now = func() time.Time { return time.Now().UTC() }

// DiagItem is a view on a diagram item object: the placement of an origin
// object (or of itself, for notes and frames) on one diagram.
type DiagItem struct {
	s  store.Store
	ID store.OID
}

// ItemOf wraps id.
func ItemOf(s store.Store, id store.OID) DiagItem {
	return DiagItem{s: s, ID: id}
}

// IsNull reports whether the item does not refer to an existing diagram item.
func (d DiagItem) IsNull() bool {
	return d.ID == store.Nil || d.s.Type(d.ID) != TypeDiagItem
}

// Diagram is the diagram holding the item.
func (d DiagItem) Diagram() store.OID { return d.s.Parent(d.ID) }

func (d DiagItem) Pos() orb.Point {
	return orb.Point{store.Float(d.s, d.ID, AttrPosX), store.Float(d.s, d.ID, AttrPosY)}
}

func (d DiagItem) SetPos(p orb.Point) error {
	if err := d.s.Set(d.ID, AttrPosX, p[0]); err != nil {
		return err
	}
	if err := d.s.Set(d.ID, AttrPosY, p[1]); err != nil {
		return err
	}
	return d.touch()
}

func (d DiagItem) NodeList() []orb.Point { return store.PointList(d.s, d.ID, AttrNodeList) }

func (d DiagItem) HasNodeList() bool { return d.s.Has(d.ID, AttrNodeList) }

// SetNodeList stores the intermediate points of a flow; an empty list
// clears the attribute.
func (d DiagItem) SetNodeList(pts []orb.Point) error {
	var v any
	if len(pts) > 0 {
		v = pts
	}
	if err := d.s.Set(d.ID, AttrNodeList, v); err != nil {
		return err
	}
	return d.touch()
}

func (d DiagItem) Origin() store.OID { return store.Ref(d.s, d.ID, AttrOrigObject) }

func (d DiagItem) SetOrigin(o store.OID) error {
	if err := d.s.Set(d.ID, AttrOrigObject, refOrNil(o)); err != nil {
		return err
	}
	return d.touch()
}

func (d DiagItem) PinnedTo() store.OID { return store.Ref(d.s, d.ID, AttrPinnedTo) }

func (d DiagItem) SetPinnedTo(o store.OID) error {
	if err := d.s.Set(d.ID, AttrPinnedTo, refOrNil(o)); err != nil {
		return err
	}
	return d.touch()
}

// Pinneds lists the diagram items pinned to this one.
func (d DiagItem) Pinneds() []store.OID {
	var out []store.OID
	for _, id := range d.s.Seek(IndexPinnedTo, d.ID) {
		if d.s.Type(id) == TypeDiagItem {
			out = append(out, id)
		}
	}
	return out
}

func (d DiagItem) Kind() Kind { return Kind(store.Int(d.s, d.ID, AttrKind)) }

func (d DiagItem) Size() (w, h float64) {
	return store.Float(d.s, d.ID, AttrWidth), store.Float(d.s, d.ID, AttrHeight)
}

func (d DiagItem) SetSize(w, h float64) error {
	if err := d.s.Set(d.ID, AttrWidth, w); err != nil {
		return err
	}
	if err := d.s.Set(d.ID, AttrHeight, h); err != nil {
		return err
	}
	return d.touch()
}

// Text is the item's own text, used by notes and frames.
func (d DiagItem) Text() string { return store.String(d.s, d.ID, AttrText) }

// BoundingRect approximates the area the item covers: the polyline bounds
// of a routed flow, the sized rectangle of a note or frame, and a standard
// box around the position otherwise.
func (d DiagItem) BoundingRect() orb.Bound {
	switch {
	case d.HasNodeList():
		return orb.MultiPoint(d.NodeList()).Bound()
	case d.Kind() != KindPlain:
		w, h := d.Size()
		return Rect(d.Pos(), w, h)
	default:
		return CenteredBox(d.Pos(), BoxWidth, BoxHeight)
	}
}

func (d DiagItem) touch() error { return d.s.Set(d.ID, AttrModifiedOn, Now()) }

func refOrNil(o store.OID) any {
	if o == store.Nil {
		return nil
	}
	return o
}

// CreateItem places orig on diagram. A zero pos leaves the position unset,
// which is what flows use. An origin already on diagram is not placed a
// second time: its item is returned unchanged.
func CreateItem(s store.Store, diagram, orig store.OID, pos orb.Point) (DiagItem, error) {
	item, _, err := PlaceItem(s, diagram, orig, pos)
	return item, err
}

// PlaceItem is CreateItem reporting whether a new item was created.
func PlaceItem(s store.Store, diagram, orig store.OID, pos orb.Point) (item DiagItem, placed bool, err error) {
	if shown := shownBy(s, diagram, orig); shown != store.Nil {
		slog.Debug("origin already on diagram", "diagram", diagram, "origin", orig, "item", shown)
		return ItemOf(s, shown), false, nil
	}
	id, err := s.Create(TypeDiagItem, diagram, store.Nil)
	if err != nil {
		return DiagItem{}, false, err
	}
	item = ItemOf(s, id)
	if err := s.Set(id, AttrCreatedOn, Now()); err != nil {
		return item, false, err
	}
	if err := item.SetOrigin(orig); err != nil {
		return item, false, err
	}
	if pos != (orb.Point{}) {
		if err := item.SetPos(pos); err != nil {
			return item, false, err
		}
	}
	return item, true, nil
}

// shownBy returns the item of diagram showing orig, or Nil.
func shownBy(s store.Store, diagram, orig store.OID) store.OID {
	for _, it := range s.Seek(IndexOrigObject, orig) {
		if it != orig && s.Type(it) == TypeDiagItem && s.Parent(it) == diagram {
			return it
		}
	}
	return store.Nil
}

// CreateKind adds a note or frame to diagram. Annotations are their own
// origin so that they never look like orphans.
func CreateKind(s store.Store, diagram store.OID, k Kind, pos orb.Point) (DiagItem, error) {
	id, err := s.Create(TypeDiagItem, diagram, store.Nil)
	if err != nil {
		return DiagItem{}, err
	}
	item := ItemOf(s, id)
	if err := s.Set(id, AttrCreatedOn, Now()); err != nil {
		return item, err
	}
	if err := s.Set(id, AttrKind, int64(k)); err != nil {
		return item, err
	}
	switch k {
	case KindNote:
		if err := s.Set(id, AttrWidth, BoxWidth); err != nil {
			return item, err
		}
	case KindFrame:
		if err := item.SetSize(BoxWidth, BoxHeight); err != nil {
			return item, err
		}
	}
	if err := item.SetOrigin(id); err != nil {
		return item, err
	}
	if pos != (orb.Point{}) {
		if err := item.SetPos(pos); err != nil {
			return item, err
		}
	}
	return item, nil
}

// CreateLink creates a control flow object below pred and places it on
// diagram.
func CreateLink(s store.Store, diagram, pred, succ store.OID) (DiagItem, error) {
	link, err := CreateObject(s, TypeConFlow, pred, store.Nil)
	if err != nil {
		return DiagItem{}, err
	}
	if err := SetFlowEnds(s, link, pred, succ); err != nil {
		return DiagItem{}, err
	}
	return CreateItem(s, diagram, link, orb.Point{})
}
