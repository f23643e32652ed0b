package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

type object struct {
	typ      TypeID
	parent   OID
	children []OID
	attrs    map[AttrID]any
}

func (o *object) clone() *object {
	c := &object{typ: o.typ, parent: o.parent, children: slices.Clone(o.children), attrs: make(map[AttrID]any, len(o.attrs))}
	for k, v := range o.attrs {
		c.attrs[k] = cloneValue(v)
	}
	return c
}

type undoKind int

const (
	undoSet undoKind = iota
	undoCreate
	undoErase
	undoType
	undoMove
)

type undoEntry struct {
	kind    undoKind
	id      OID
	attr    AttrID
	old     any
	had     bool
	oldType TypeID
	parent  OID
	pos     int
	erased  map[OID]*object
}

// MemStore keeps the whole repository in memory. Writes are recorded in an
// undo log until Commit; an optional Persister receives the net changes of
// each commit before observers are notified.
//
// Observers run on the committing goroutine without the store lock held, so
// they may read and write the store. A Commit issued from inside an observer
// does not recurse: its notifications are appended to the delivery in
// progress.
type MemStore struct {
	mu     sync.Mutex
	repoID uuid.UUID
	root   OID
	nextID OID

	objects   map[OID]*object
	indexAttr map[IndexID]AttrID
	attrIndex map[AttrID][]IndexID
	indexes   map[IndexID]map[any]map[OID]struct{}

	undo    []undoEntry
	pending []UpdateInfo
	dirty   map[OID]struct{}
	deleted map[OID]struct{}

	observers   map[int]Observer
	nextObs     int
	queue       []UpdateInfo
	dispatching bool

	persister Persister
	logger    *slog.Logger
}

// Option configures a MemStore.
type Option func(*MemStore)

// WithIndex maintains an index from the values of attr to the objects holding them.
func WithIndex(idx IndexID, attr AttrID) Option {
	return func(s *MemStore) {
		s.indexAttr[idx] = attr
		s.attrIndex[attr] = append(s.attrIndex[attr], idx)
		s.indexes[idx] = make(map[any]map[OID]struct{})
	}
}

// WithRepoID fixes the repository identity of a fresh store.
func WithRepoID(id uuid.UUID) Option {
	return func(s *MemStore) { s.repoID = id }
}

// WithLogger sets the logger used for commit diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *MemStore) { s.logger = l }
}

func newMemStore(opts []Option) *MemStore {
	s := &MemStore{
		repoID:    uuid.New(),
		objects:   make(map[OID]*object),
		indexAttr: make(map[IndexID]AttrID),
		attrIndex: make(map[AttrID][]IndexID),
		indexes:   make(map[IndexID]map[any]map[OID]struct{}),
		dirty:     make(map[OID]struct{}),
		deleted:   make(map[OID]struct{}),
		observers: make(map[int]Observer),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// New returns an empty, non-persistent store holding only the root object.
func New(opts ...Option) *MemStore {
	s := newMemStore(opts)
	s.initRoot()
	return s
}

// Open loads the repository from p and keeps it in sync on every commit.
// An empty repository is initialised with a root object and a new uuid.
func Open(ctx context.Context, p Persister, opts ...Option) (*MemStore, error) {
	s := newMemStore(opts)
	snap, err := p.Load(ctx)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load repository").WithCause(err)
	}
	if len(snap.Objects) == 0 {
		s.initRoot()
		s.persister = p
		cs := s.changeSetLocked()
		if err := p.Save(ctx, cs); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "initialise repository").WithCause(err)
		}
		s.dirty = make(map[OID]struct{})
		return s, nil
	}
	if err := s.restore(snap); err != nil {
		return nil, err
	}
	s.persister = p
	return s, nil
}

func (s *MemStore) initRoot() {
	s.root = 1
	s.nextID = 2
	s.objects[s.root] = &object{typ: TypeRoot, attrs: make(map[AttrID]any)}
	s.dirty[s.root] = struct{}{}
}

func (s *MemStore) restore(snap *Snapshot) error {
	id, err := uuid.Parse(snap.RepoID)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "invalid repository id %q", snap.RepoID).WithCause(err)
	}
	s.repoID = id
	s.nextID = snap.NextID
	order := make(map[OID]int, len(snap.Objects))
	for _, r := range snap.Objects {
		attrs := make(map[AttrID]any, len(r.Attrs))
		for k, v := range r.Attrs {
			attrs[k] = v
		}
		s.objects[r.ID] = &object{typ: r.Type, parent: r.Parent, attrs: attrs}
		order[r.ID] = r.Order
		if r.Type == TypeRoot {
			s.root = r.ID
		}
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
	if s.root == Nil {
		return schema.NewError(schema.ErrCodeStore, "repository has no root object")
	}
	for id, o := range s.objects {
		if id == s.root {
			continue
		}
		if p := s.objects[o.parent]; p != nil {
			p.children = append(p.children, id)
		}
		for attr, v := range o.attrs {
			s.index(id, attr, v)
		}
	}
	for _, o := range s.objects {
		slices.SortFunc(o.children, func(a, b OID) int { return order[a] - order[b] })
	}
	return nil
}

// RepoID returns the repository identity.
func (s *MemStore) RepoID() uuid.UUID { return s.repoID }

// Root returns the root object id.
func (s *MemStore) Root() OID { return s.root }

func (s *MemStore) Exists(id OID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[id]
	return ok
}

func (s *MemStore) Type(id OID) TypeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.objects[id]; o != nil {
		return o.typ
	}
	return 0
}

func (s *MemStore) Parent(id OID) OID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.objects[id]; o != nil {
		return o.parent
	}
	return Nil
}

func (s *MemStore) Children(id OID) []OID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.objects[id]; o != nil {
		return slices.Clone(o.children)
	}
	return nil
}

func (s *MemStore) Get(id OID, attr AttrID) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.objects[id]; o != nil {
		return cloneValue(o.attrs[attr])
	}
	return nil
}

func (s *MemStore) Has(id OID, attr AttrID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.objects[id]; o != nil {
		_, ok := o.attrs[attr]
		return ok
	}
	return false
}

func (s *MemStore) Set(id OID, attr AttrID, v any) error {
	nv, err := normalize(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.objects[id]
	if o == nil {
		return notFound(id)
	}
	old, had := o.attrs[attr]
	if (had && valuesEqual(old, nv)) || (!had && nv == nil) {
		return nil
	}
	s.undo = append(s.undo, undoEntry{kind: undoSet, id: id, attr: attr, old: old, had: had})
	s.setRaw(id, o, attr, nv)
	s.dirty[id] = struct{}{}
	s.pending = append(s.pending, UpdateInfo{Kind: ValueChanged, ID: id, Parent: o.parent, Name: uint32(attr)})
	return nil
}

func (s *MemStore) Create(typ TypeID, parent, before OID) (OID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.objects[parent]
	if p == nil {
		return Nil, notFound(parent)
	}
	pos := len(p.children)
	if before != Nil {
		pos = slices.Index(p.children, before)
		if pos < 0 {
			return Nil, schema.NewErrorf(schema.ErrCodeValidation, "object %d is not a child of %d", before, parent)
		}
	}
	id := s.nextID
	s.nextID++
	s.objects[id] = &object{typ: typ, parent: parent, attrs: make(map[AttrID]any)}
	p.children = slices.Insert(p.children, pos, id)
	s.undo = append(s.undo, undoEntry{kind: undoCreate, id: id})
	s.dirty[id] = struct{}{}
	s.markChildrenDirty(p)
	s.pending = append(s.pending, UpdateInfo{Kind: Aggregated, ID: id, Parent: parent})
	return id, nil
}

func (s *MemStore) Erase(id OID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.objects[id]
	if o == nil {
		return notFound(id)
	}
	if id == s.root {
		return schema.NewError(schema.ErrCodeValidation, "the root object cannot be erased")
	}
	var subtree []OID
	s.collect(id, &subtree)
	erased := make(map[OID]*object, len(subtree))
	for _, d := range subtree {
		erased[d] = s.objects[d].clone()
	}
	p := s.objects[o.parent]
	pos := slices.Index(p.children, id)
	p.children = slices.Delete(p.children, pos, pos+1)
	s.markChildrenDirty(p)
	for _, d := range subtree {
		do := s.objects[d]
		for attr, v := range do.attrs {
			s.unindex(d, attr, v)
		}
		delete(s.objects, d)
		delete(s.dirty, d)
		s.deleted[d] = struct{}{}
		s.pending = append(s.pending, UpdateInfo{Kind: ObjectErased, ID: d, Parent: do.parent})
	}
	s.undo = append(s.undo, undoEntry{kind: undoErase, id: id, parent: o.parent, pos: pos, erased: erased})
	return nil
}

// collect appends the subtree of id in post-order.
func (s *MemStore) collect(id OID, out *[]OID) {
	for _, c := range s.objects[id].children {
		s.collect(c, out)
	}
	*out = append(*out, id)
}

func (s *MemStore) SetType(id OID, typ TypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.objects[id]
	if o == nil {
		return notFound(id)
	}
	if o.typ == typ {
		return nil
	}
	s.undo = append(s.undo, undoEntry{kind: undoType, id: id, oldType: o.typ})
	o.typ = typ
	s.dirty[id] = struct{}{}
	s.pending = append(s.pending, UpdateInfo{Kind: TypeChanged, ID: id, Parent: o.parent, Name: uint32(typ)})
	return nil
}

func (s *MemStore) Aggregate(id, parent, before OID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.objects[id]
	if o == nil {
		return notFound(id)
	}
	np := s.objects[parent]
	if np == nil {
		return notFound(parent)
	}
	if id == s.root {
		return schema.NewError(schema.ErrCodeValidation, "the root object cannot be moved")
	}
	for a := parent; a != Nil; a = s.objects[a].parent {
		if a == id {
			return schema.NewErrorf(schema.ErrCodeValidation, "object %d cannot be aggregated below itself", id)
		}
	}
	op := s.objects[o.parent]
	oldPos := slices.Index(op.children, id)
	op.children = slices.Delete(op.children, oldPos, oldPos+1)
	pos := len(np.children)
	if before != Nil {
		pos = slices.Index(np.children, before)
		if pos < 0 {
			op.children = slices.Insert(op.children, oldPos, id)
			return schema.NewErrorf(schema.ErrCodeValidation, "object %d is not a child of %d", before, parent)
		}
	}
	np.children = slices.Insert(np.children, pos, id)
	s.undo = append(s.undo, undoEntry{kind: undoMove, id: id, parent: o.parent, pos: oldPos})
	oldParent := o.parent
	o.parent = parent
	s.dirty[id] = struct{}{}
	s.markChildrenDirty(op)
	s.markChildrenDirty(np)
	s.pending = append(s.pending,
		UpdateInfo{Kind: Deaggregated, ID: id, Parent: oldParent},
		UpdateInfo{Kind: Aggregated, ID: id, Parent: parent})
	return nil
}

func (s *MemStore) Seek(idx IndexID, key any) []OID {
	k, err := normalize(key)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.indexes[idx][k]
	out := make([]OID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Commit persists the transaction and then delivers its notifications.
// When the persister fails the transaction stays open and a STORE_ERROR is
// returned; the caller decides whether to roll back.
func (s *MemStore) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.persister != nil && (len(s.dirty) > 0 || len(s.deleted) > 0) {
		cs := s.changeSetLocked()
		if err := s.persister.Save(ctx, cs); err != nil {
			s.mu.Unlock()
			s.logger.ErrorContext(ctx, "commit failed", "error", err)
			return schema.NewError(schema.ErrCodeStore, "persist transaction").WithCause(err)
		}
	}
	s.undo = nil
	s.dirty = make(map[OID]struct{})
	s.deleted = make(map[OID]struct{})
	s.queue = append(s.queue, s.pending...)
	s.pending = nil
	if s.dispatching {
		s.mu.Unlock()
		return nil
	}
	s.dispatching = true
	for len(s.queue) > 0 {
		n := s.queue[0]
		s.queue = s.queue[1:]
		obs := s.observerList()
		s.mu.Unlock()
		for _, fn := range obs {
			fn(n)
		}
		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
	return nil
}

// Rollback reverts every write since the last commit.
func (s *MemStore) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.revert(s.undo[i])
	}
	s.undo = nil
	s.pending = nil
	s.dirty = make(map[OID]struct{})
	s.deleted = make(map[OID]struct{})
}

func (s *MemStore) revert(e undoEntry) {
	switch e.kind {
	case undoSet:
		if o := s.objects[e.id]; o != nil {
			var v any
			if e.had {
				v = e.old
			}
			s.setRaw(e.id, o, e.attr, v)
		}
	case undoCreate:
		o := s.objects[e.id]
		if o == nil {
			return
		}
		if p := s.objects[o.parent]; p != nil {
			if i := slices.Index(p.children, e.id); i >= 0 {
				p.children = slices.Delete(p.children, i, i+1)
			}
		}
		for attr, v := range o.attrs {
			s.unindex(e.id, attr, v)
		}
		delete(s.objects, e.id)
	case undoErase:
		for id, o := range e.erased {
			s.objects[id] = o
			for attr, v := range o.attrs {
				s.index(id, attr, v)
			}
		}
		p := s.objects[e.parent]
		p.children = slices.Insert(p.children, e.pos, e.id)
	case undoType:
		s.objects[e.id].typ = e.oldType
	case undoMove:
		o := s.objects[e.id]
		cur := s.objects[o.parent]
		if i := slices.Index(cur.children, e.id); i >= 0 {
			cur.children = slices.Delete(cur.children, i, i+1)
		}
		p := s.objects[e.parent]
		p.children = slices.Insert(p.children, e.pos, e.id)
		o.parent = e.parent
	}
}

func (s *MemStore) AddObserver(fn Observer) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *MemStore) observerList() []Observer {
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Observer, len(ids))
	for i, id := range ids {
		out[i] = s.observers[id]
	}
	return out
}

func (s *MemStore) setRaw(id OID, o *object, attr AttrID, v any) {
	if old, ok := o.attrs[attr]; ok {
		s.unindex(id, attr, old)
	}
	if v == nil {
		delete(o.attrs, attr)
		return
	}
	o.attrs[attr] = v
	s.index(id, attr, v)
}

func (s *MemStore) index(id OID, attr AttrID, v any) {
	key, ok := indexKey(v)
	if !ok {
		return
	}
	for _, idx := range s.attrIndex[attr] {
		m := s.indexes[idx]
		set := m[key]
		if set == nil {
			set = make(map[OID]struct{})
			m[key] = set
		}
		set[id] = struct{}{}
	}
}

func (s *MemStore) unindex(id OID, attr AttrID, v any) {
	key, ok := indexKey(v)
	if !ok {
		return
	}
	for _, idx := range s.attrIndex[attr] {
		m := s.indexes[idx]
		if set := m[key]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(m, key)
			}
		}
	}
}

func (s *MemStore) markChildrenDirty(p *object) {
	for _, c := range p.children {
		s.dirty[c] = struct{}{}
	}
}

func (s *MemStore) changeSetLocked() *ChangeSet {
	cs := &ChangeSet{RepoID: s.repoID.String(), NextID: s.nextID}
	for id := range s.dirty {
		o := s.objects[id]
		if o == nil {
			continue
		}
		r := Record{ID: id, Type: o.typ, Parent: o.parent, Attrs: make(map[AttrID]any, len(o.attrs))}
		if p := s.objects[o.parent]; p != nil {
			r.Order = slices.Index(p.children, id)
		}
		for k, v := range o.attrs {
			r.Attrs[k] = cloneValue(v)
		}
		cs.Upserts = append(cs.Upserts, r)
	}
	for id := range s.deleted {
		cs.Deletes = append(cs.Deletes, id)
	}
	slices.SortFunc(cs.Upserts, func(a, b Record) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	slices.Sort(cs.Deletes)
	return cs
}

func notFound(id OID) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "object %d not found", id).WithObject(uint64(id))
}
