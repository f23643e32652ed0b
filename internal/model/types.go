// Package model holds the EPC object vocabulary shared by the scene, the
// controller and the algorithms: object types, attribute slots, indexes,
// drawing constants and the rules that keep the object graph consistent.
package model

import "github.com/rochus-keller/FlowLine2/internal/store"

// Object types.
const (
	TypeDiagItem      store.TypeID = 300
	TypeFunction      store.TypeID = 301
	TypeEvent         store.TypeID = 302
	TypeConnector     store.TypeID = 303
	TypeConFlow       store.TypeID = 304
	TypeFuncDomain    store.TypeID = 305
	TypeDiagram       store.TypeID = 306
	TypeAllocation    store.TypeID = 307
	TypeSystemElement store.TypeID = 308
	TypeFolder        store.TypeID = 309
)

// Attributes common to all content objects.
const (
	AttrText       store.AttrID = 1
	AttrIdent      store.AttrID = 2
	AttrAltIdent   store.AttrID = 3
	AttrCreatedOn  store.AttrID = 4
	AttrModifiedOn store.AttrID = 5
)

// Domain attributes.
const (
	AttrPosX       store.AttrID = 301
	AttrPosY       store.AttrID = 302
	AttrNodeList   store.AttrID = 303
	AttrOrigObject store.AttrID = 304
	AttrWidth      store.AttrID = 305
	AttrHeight     store.AttrID = 306
	AttrElemCount  store.AttrID = 307
	AttrStart      store.AttrID = 308
	AttrFinish     store.AttrID = 309
	AttrConnType   store.AttrID = 311
	AttrPred       store.AttrID = 312
	AttrSucc       store.AttrID = 313
	AttrShowIds    store.AttrID = 314
	AttrMarkAlias  store.AttrID = 315
	AttrDirection  store.AttrID = 316
	AttrKind       store.AttrID = 317
	AttrPinnedTo   store.AttrID = 318
	AttrFunc       store.AttrID = 319
	AttrElem       store.AttrID = 320
	AttrAutoOpen   store.AttrID = 321
)

// Per-type slots on the root holding ident counters, and per-type slots on
// an object remembering the ident it had while it was of that type.
const (
	attrCounterBase    store.AttrID = 1000
	attrSavedIdentBase store.AttrID = 2000
)

// Indexes.
const (
	IndexIdent      store.IndexID = 1
	IndexAltIdent   store.IndexID = 2
	IndexOrigObject store.IndexID = 3
	IndexPred       store.IndexID = 4
	IndexSucc       store.IndexID = 5
	IndexPinnedTo   store.IndexID = 6
	IndexFunc       store.IndexID = 7
	IndexElem       store.IndexID = 8
)

// StoreOptions declares the indexes the domain relies on.
func StoreOptions() []store.Option {
	return []store.Option{
		store.WithIndex(IndexIdent, AttrIdent),
		store.WithIndex(IndexAltIdent, AttrAltIdent),
		store.WithIndex(IndexOrigObject, AttrOrigObject),
		store.WithIndex(IndexPred, AttrPred),
		store.WithIndex(IndexSucc, AttrSucc),
		store.WithIndex(IndexPinnedTo, AttrPinnedTo),
		store.WithIndex(IndexFunc, AttrFunc),
		store.WithIndex(IndexElem, AttrElem),
	}
}

// Kind distinguishes plain diagram items from annotations.
type Kind uint8

const (
	KindPlain Kind = iota
	KindNote
	KindFrame
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindNote:
		return "note"
	case KindFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// ConnType is the logic of a connector.
type ConnType uint8

const (
	ConnUnspecified ConnType = iota
	ConnAnd
	ConnOr
	ConnXor
	ConnStart
	ConnFinish
)

// Direction is the preferred flow direction of a diagram.
type Direction uint8

const (
	TopToBottom Direction = iota
	LeftToRight
)

// PrettyTypeName returns the display name of a type.
func PrettyTypeName(t store.TypeID) string {
	switch t {
	case TypeFunction:
		return "Function"
	case TypeDiagItem:
		return "EPK Diagram Element"
	case TypeDiagram:
		return "EPK Diagram"
	case TypeEvent:
		return "Event"
	case TypeConnector:
		return "Connector"
	case TypeConFlow:
		return "Control Flow"
	case TypeFuncDomain:
		return "Function Domain"
	case TypeFolder:
		return "Folder"
	case store.TypeRoot:
		return "Folder Tree"
	case TypeAllocation:
		return "Allocation"
	case TypeSystemElement:
		return "System Element"
	default:
		return "<unknown type>"
	}
}

// TypeByName resolves the lower-case names used by the CLI and tool
// surfaces ("function", "event", "connector", ...).
func TypeByName(name string) (store.TypeID, bool) {
	t, ok := typeNames[name]
	return t, ok
}

// TypeName is the inverse of TypeByName; unknown types yield "".
func TypeName(t store.TypeID) string {
	for name, id := range typeNames {
		if id == t {
			return name
		}
	}
	return ""
}

var typeNames = map[string]store.TypeID{
	"function":       TypeFunction,
	"event":          TypeEvent,
	"connector":      TypeConnector,
	"flow":           TypeConFlow,
	"domain":         TypeFuncDomain,
	"diagram":        TypeDiagram,
	"allocation":     TypeAllocation,
	"system_element": TypeSystemElement,
	"folder":         TypeFolder,
}

func identPrefix(t store.TypeID) string {
	switch t {
	case TypeFunction:
		return "F"
	case TypeEvent:
		return "E"
	case TypeFuncDomain:
		return "FD"
	case TypeAllocation:
		return "R"
	case TypeSystemElement:
		return "A"
	default:
		return ""
	}
}
