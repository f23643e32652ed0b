package store

import (
	"time"

	"github.com/paulmach/orb"
)

// OID identifies an object in the repository. Zero is the null reference.
type OID uint64

// TypeID classifies an object.
type TypeID uint32

// AttrID names an attribute slot on an object.
type AttrID uint32

// IndexID names a value index declared when the store is opened.
type IndexID uint32

// Nil is the null object reference.
const Nil OID = 0

// TypeRoot is the type of the repository root object.
const TypeRoot TypeID = 1

// UpdateKind classifies a change notification.
type UpdateKind int

const (
	ValueChanged UpdateKind = iota + 1
	TypeChanged
	ObjectErased
	Aggregated
	Deaggregated
)

func (k UpdateKind) String() string {
	switch k {
	case ValueChanged:
		return "value_changed"
	case TypeChanged:
		return "type_changed"
	case ObjectErased:
		return "object_erased"
	case Aggregated:
		return "aggregated"
	case Deaggregated:
		return "deaggregated"
	default:
		return "unknown"
	}
}

// UpdateInfo is delivered to observers after a successful commit.
// Name holds the attribute id for ValueChanged and the new type id for
// TypeChanged; it is zero otherwise.
type UpdateInfo struct {
	Kind   UpdateKind
	ID     OID
	Parent OID
	Name   uint32
}

// Observer receives change notifications synchronously, in commit order.
type Observer func(UpdateInfo)

// Record is the flat form of one object used by persisters.
type Record struct {
	ID     OID
	Type   TypeID
	Parent OID
	Order  int
	Attrs  map[AttrID]any
}

// Snapshot is the full repository content returned by Persister.Load.
type Snapshot struct {
	RepoID  string
	NextID  OID
	Objects []Record
}

// ChangeSet is the net effect of one transaction.
type ChangeSet struct {
	RepoID  string
	NextID  OID
	Upserts []Record
	Deletes []OID
}

// Empty reports whether the change set carries no object changes.
func (c *ChangeSet) Empty() bool {
	return len(c.Upserts) == 0 && len(c.Deletes) == 0
}

// Points is the attribute representation of a polyline.
type Points = []orb.Point

// Timestamps are stored in UTC.
func normalTime(t time.Time) time.Time { return t.UTC() }
