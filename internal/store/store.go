package store

import (
	"context"

	"github.com/google/uuid"
)

// Store is the object repository contract. Objects carry a type, an ordered
// list of children and a set of typed attributes. Mutations accumulate in a
// transaction that Commit persists and announces to observers, or that
// Rollback reverts.
//
// Attribute values are nil, float64, int64, string, bool, OID, []orb.Point or
// time.Time. Smaller integer and float kinds are widened on Set.
type Store interface {
	RepoID() uuid.UUID
	Root() OID

	Exists(id OID) bool
	Type(id OID) TypeID
	Parent(id OID) OID
	Children(id OID) []OID

	Get(id OID, attr AttrID) any
	Has(id OID, attr AttrID) bool
	// Set writes a value; nil clears the attribute.
	Set(id OID, attr AttrID, v any) error

	// Create adds a new object under parent, before the given sibling or at
	// the end when before is Nil.
	Create(typ TypeID, parent, before OID) (OID, error)
	// Erase removes the object and its whole aggregate subtree.
	Erase(id OID) error
	SetType(id OID, typ TypeID) error
	// Aggregate moves an object under another parent.
	Aggregate(id, parent, before OID) error

	// Seek returns the objects whose indexed attribute equals key, in
	// ascending id order.
	Seek(idx IndexID, key any) []OID

	Commit(ctx context.Context) error
	Rollback()

	// AddObserver registers fn and returns a function that removes it.
	AddObserver(fn Observer) (remove func())
}

// Persister stores repository content durably.
type Persister interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, cs *ChangeSet) error
}
