package model

import (
	"fmt"

	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// IsDiagNode reports whether objects of type t are drawn as diagram nodes.
func IsDiagNode(t store.TypeID) bool {
	return t == TypeFunction || t == TypeEvent || t == TypeConnector
}

// IsDiagram reports whether objects of type t can hold diagram items.
func IsDiagram(t store.TypeID) bool {
	return t == TypeFunction || t == TypeFuncDomain || t == TypeDiagram
}

// CanHaveText reports whether CreateObject gives t a default text.
func CanHaveText(t store.TypeID) bool {
	return t != TypeConFlow && t != TypeDiagItem && t != TypeConnector
}

// IsValidAggregate reports whether a child of type child may live below a
// parent of type parent.
func IsValidAggregate(parent, child store.TypeID) bool {
	switch parent {
	case TypeFunction, TypeDiagram:
		return child == TypeFunction || child == TypeEvent || child == TypeConnector || child == TypeConFlow
	case TypeFuncDomain:
		return child == TypeFuncDomain || IsValidAggregate(TypeFunction, child)
	case TypeFolder, store.TypeRoot:
		return child == TypeFolder || child == TypeDiagram ||
			(parent == store.TypeRoot && (child == TypeFuncDomain || child == TypeSystemElement))
	case TypeSystemElement:
		return child == TypeSystemElement
	}
	return false
}

// CanConvert reports whether obj may change its type to toType.
// A function can only become a domain while nothing references it.
func CanConvert(s store.Store, obj store.OID, toType store.TypeID) bool {
	allowed := false
	switch s.Type(obj) {
	case TypeFunction:
		switch toType {
		case TypeEvent:
			allowed = true
		case TypeFuncDomain:
			allowed = len(s.Seek(IndexOrigObject, obj)) == 0 &&
				len(s.Seek(IndexPred, obj)) == 0 &&
				len(s.Seek(IndexSucc, obj)) == 0
		}
	case TypeEvent, TypeFuncDomain:
		allowed = toType == TypeFunction
	}
	return allowed && IsValidAggregate(s.Type(s.Parent(obj)), toType)
}

func checkAggregate(s store.Store, parent store.OID, typ store.TypeID) error {
	pt := s.Type(parent)
	switch {
	case pt == 0:
		return schema.NewErrorf(schema.ErrCodeNotFound, "parent %d not found", parent).WithObject(uint64(parent))
	case typ == TypeConFlow && IsDiagNode(pt):
		return nil
	case typ == TypeAllocation && pt == TypeFunction:
		return nil
	case IsValidAggregate(pt, typ):
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidAggregate, "%s cannot hold %s",
		PrettyTypeName(pt), PrettyTypeName(typ)).WithObject(uint64(parent))
}

// CreateObject creates a content object of type typ below parent, with a
// default text, a creation stamp and the next ident of its type.
func CreateObject(s store.Store, typ store.TypeID, parent, before store.OID) (store.OID, error) {
	if err := checkAggregate(s, parent, typ); err != nil {
		return store.Nil, err
	}
	o, err := s.Create(typ, parent, before)
	if err != nil {
		return store.Nil, err
	}
	if CanHaveText(typ) {
		if err := s.Set(o, AttrText, PrettyTypeName(typ)); err != nil {
			return o, err
		}
	}
	if err := s.Set(o, AttrCreatedOn, Now()); err != nil {
		return o, err
	}
	if id := NextIdent(s, typ); id != "" {
		if err := s.Set(o, AttrIdent, id); err != nil {
			return o, err
		}
	}
	if IsDiagNode(typ) {
		if err := addCounter(s, parent, AttrElemCount, 1); err != nil {
			return o, err
		}
	}
	return o, nil
}

// NextIdent draws the next ident for type t, e.g. "F007". Types without a
// prefix get "".
func NextIdent(s store.Store, t store.TypeID) string {
	prefix := identPrefix(t)
	if prefix == "" {
		return ""
	}
	slot := attrCounterBase + store.AttrID(t)
	n := store.Int(s, s.Root(), slot) + 1
	_ = s.Set(s.Root(), slot, n)
	return fmt.Sprintf("%s%03d", prefix, n)
}

func addCounter(s store.Store, id store.OID, attr store.AttrID, delta int64) error {
	n := store.Int(s, id, attr) + delta
	if n < 0 {
		n = 0
	}
	return s.Set(id, attr, n)
}

// RetypeObject changes the type of o. The ident of the old type is kept
// aside so that converting back restores it.
func RetypeObject(s store.Store, o store.OID, typ store.TypeID) error {
	old := s.Type(o)
	if old == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "object %d not found", o).WithObject(uint64(o))
	}
	if old == typ {
		return nil
	}
	if err := s.Set(o, attrSavedIdentBase+store.AttrID(old), s.Get(o, AttrIdent)); err != nil {
		return err
	}
	id := store.String(s, o, attrSavedIdentBase+store.AttrID(typ))
	if id == "" {
		id = NextIdent(s, typ)
	}
	var v any
	if id != "" {
		v = id
	}
	if err := s.Set(o, AttrIdent, v); err != nil {
		return err
	}
	if err := s.Set(o, AttrModifiedOn, Now()); err != nil {
		return err
	}
	if err := s.SetType(o, typ); err != nil {
		return err
	}
	switch {
	case IsDiagNode(typ) && !IsDiagNode(old):
		return addCounter(s, s.Parent(o), AttrElemCount, 1)
	case !IsDiagNode(typ) && IsDiagNode(old):
		return addCounter(s, s.Parent(o), AttrElemCount, -1)
	}
	return nil
}

// MoveTo aggregates o below newParent, keeping element counts and the
// start/finish designations of both containers consistent.
func MoveTo(s store.Store, o, newParent, before store.OID) error {
	typ := s.Type(o)
	if err := checkAggregate(s, newParent, typ); err != nil {
		return err
	}
	if IsDiagNode(typ) {
		p := s.Parent(o)
		if store.Ref(s, p, AttrStart) == o || store.Ref(s, p, AttrFinish) == o {
			if err := s.Set(o, AttrConnType, nil); err != nil {
				return err
			}
		}
		if err := releaseFromContainer(s, o); err != nil {
			return err
		}
		if err := addCounter(s, newParent, AttrElemCount, 1); err != nil {
			return err
		}
	}
	return s.Aggregate(o, newParent, before)
}

// releaseFromContainer decrements the parent's element count and clears
// its start/finish references to o.
func releaseFromContainer(s store.Store, o store.OID) error {
	p := s.Parent(o)
	if err := addCounter(s, p, AttrElemCount, -1); err != nil {
		return err
	}
	if store.Ref(s, p, AttrStart) == o {
		if err := s.Set(p, AttrStart, nil); err != nil {
			return err
		}
	}
	if store.Ref(s, p, AttrFinish) == o {
		if err := s.Set(p, AttrFinish, nil); err != nil {
			return err
		}
	}
	return nil
}

// SetFlowEnds sets predecessor and successor of a control flow. Both ends
// must be functions, events or connectors.
func SetFlowEnds(s store.Store, link, pred, succ store.OID) error {
	if s.Type(link) != TypeConFlow {
		return schema.NewErrorf(schema.ErrCodeValidation, "object %d is not a control flow", link).WithObject(uint64(link))
	}
	for _, end := range []store.OID{pred, succ} {
		if !IsDiagNode(s.Type(end)) {
			return schema.NewErrorf(schema.ErrCodeValidation, "flow end %d must be a function, event or connector", end).
				WithObject(uint64(end))
		}
	}
	if err := s.Set(link, AttrPred, pred); err != nil {
		return err
	}
	if err := s.Set(link, AttrSucc, succ); err != nil {
		return err
	}
	return s.Set(link, AttrModifiedOn, Now())
}

// SetConnType assigns a connector its logic. A container has at most one
// start and one finish connector; taking over either role demotes the
// previous holder to unspecified.
func SetConnType(s store.Store, conn store.OID, t ConnType) error {
	if s.Type(conn) != TypeConnector {
		return schema.NewErrorf(schema.ErrCodeValidation, "object %d is not a connector", conn).WithObject(uint64(conn))
	}
	p := s.Parent(conn)
	oldStart := store.Ref(s, p, AttrStart)
	oldFinish := store.Ref(s, p, AttrFinish)
	if oldStart == conn {
		if err := s.Set(p, AttrStart, nil); err != nil {
			return err
		}
	}
	if oldFinish == conn {
		if err := s.Set(p, AttrFinish, nil); err != nil {
			return err
		}
	}
	var v any
	if t != ConnUnspecified {
		v = int64(t)
	}
	if err := s.Set(conn, AttrConnType, v); err != nil {
		return err
	}
	demote := func(attr store.AttrID, old store.OID) error {
		if err := s.Set(p, attr, conn); err != nil {
			return err
		}
		if old != store.Nil && old != conn && s.Exists(old) {
			return s.Set(old, AttrConnType, nil)
		}
		return nil
	}
	switch t {
	case ConnStart:
		if err := demote(AttrStart, oldStart); err != nil {
			return err
		}
	case ConnFinish:
		if err := demote(AttrFinish, oldFinish); err != nil {
			return err
		}
	}
	return s.Set(conn, AttrModifiedOn, Now())
}

// GetConnType reads the logic of a connector.
func GetConnType(s store.Store, conn store.OID) ConnType {
	return ConnType(store.Int(s, conn, AttrConnType))
}

// SetDirection stores the preferred flow direction of a diagram.
func SetDirection(s store.Store, diagram store.OID, d Direction) error {
	if err := s.Set(diagram, AttrDirection, int64(d)); err != nil {
		return err
	}
	return s.Set(diagram, AttrModifiedOn, Now())
}

// GetDirection reads the preferred flow direction of a diagram.
func GetDirection(s store.Store, diagram store.OID) Direction {
	return Direction(store.Int(s, diagram, AttrDirection))
}

// Erase deletes o together with everything that depends on it: flows into
// it, the diagram items depicting it or its children, and annotations
// pinned to a deleted item. Plain items pinned to a deleted item are only
// unpinned. The caller commits.
func Erase(s store.Store, o store.OID) error {
	if !s.Exists(o) {
		return nil
	}
	typ := s.Type(o)
	switch {
	case IsDiagNode(typ):
		if err := eraseLinksRecursive(s, o); err != nil {
			return err
		}
		if err := releaseFromContainer(s, o); err != nil {
			return err
		}
		if err := eraseDiagItems(s, o); err != nil {
			return err
		}
	case IsDiagram(typ):
		if err := eraseLinksRecursive(s, o); err != nil {
			return err
		}
	case typ == TypeConFlow:
		if err := eraseDiagItems(s, o); err != nil {
			return err
		}
	case typ == TypeDiagItem:
		if err := erasePinnedItems(s, o); err != nil {
			return err
		}
	}
	if !s.Exists(o) {
		return nil
	}
	return s.Erase(o)
}

func erasePinnedItems(s store.Store, item store.OID) error {
	for _, p := range ItemOf(s, item).Pinneds() {
		if p == item {
			continue
		}
		pi := ItemOf(s, p)
		if pi.Kind() == KindPlain {
			if err := pi.SetPinnedTo(store.Nil); err != nil {
				return err
			}
			continue
		}
		if err := Erase(s, p); err != nil {
			return err
		}
	}
	return nil
}

func eraseDiagItems(s store.Store, orig store.OID) error {
	for _, it := range s.Seek(IndexOrigObject, orig) {
		if it == orig || s.Type(it) != TypeDiagItem {
			continue
		}
		if err := Erase(s, it); err != nil {
			return err
		}
	}
	return nil
}

// eraseLinksRecursive removes the flows ending in orig or in one of its
// descendants, and the diagram items of orig's descendants. Flows starting
// there are children of their predecessor and go with the subtree.
func eraseLinksRecursive(s store.Store, orig store.OID) error {
	for _, link := range s.Seek(IndexSucc, orig) {
		if !s.Exists(link) || s.Type(link) != TypeConFlow {
			continue
		}
		if err := eraseDiagItems(s, link); err != nil {
			return err
		}
		if err := s.Erase(link); err != nil {
			return err
		}
	}
	for _, sub := range s.Children(orig) {
		if !s.Exists(sub) {
			continue
		}
		t := s.Type(sub)
		if IsDiagNode(t) || t == TypeConFlow {
			if err := eraseDiagItems(s, sub); err != nil {
				return err
			}
		}
		if err := eraseLinksRecursive(s, sub); err != nil {
			return err
		}
	}
	return nil
}

// FormatConnType names a connector logic, optionally followed by the type
// name ("XOR Connector").
func FormatConnType(t ConnType, withTypeName bool) string {
	var name string
	switch t {
	case ConnUnspecified:
		name = "Unspecified"
	case ConnAnd:
		name = "AND"
	case ConnOr:
		name = "OR"
	case ConnXor:
		name = "XOR"
	case ConnStart:
		name = "Start"
	case ConnFinish:
		name = "Finish"
	default:
		name = "<unknown>"
	}
	if withTypeName {
		name += " " + PrettyTypeName(TypeConnector)
	}
	return name
}

// FormatDirection names a flow direction.
func FormatDirection(d Direction) string {
	switch d {
	case TopToBottom:
		return "Top to Bottom"
	case LeftToRight:
		return "Left to Right"
	default:
		return "<unknown>"
	}
}

// FormatID returns the custom ident, the internal ident, or with useOID
// the object id as "#n".
func FormatID(s store.Store, o store.OID, useOID bool) string {
	if o == store.Nil {
		return "<null>"
	}
	id := store.String(s, o, AttrAltIdent)
	if id == "" {
		id = store.String(s, o, AttrIdent)
	}
	if id == "" && useOID {
		id = fmt.Sprintf("#%d", o)
	}
	return id
}

// FormatTitle returns "<id> <text>", or just the text when there is no id
// or showID is false. Objects without text show their type.
func FormatTitle(s store.Store, o store.OID, showID bool) string {
	if o == store.Nil {
		return "<null>"
	}
	id := FormatID(s, o, false)
	name := store.String(s, o, AttrText)
	if name == "" {
		if s.Type(o) == TypeConnector {
			name = FormatConnType(GetConnType(s, o), true)
		} else {
			name = PrettyTypeName(s.Type(o))
		}
	}
	if id == "" || !showID {
		return name
	}
	return id + " " + name
}
