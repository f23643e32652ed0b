package store

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

const (
	tFolder TypeID = 10
	tNode   TypeID = 11
	tOther  TypeID = 12

	aName AttrID = 1
	aRef  AttrID = 2
	aPath AttrID = 3

	iName IndexID = 1
	iRef  IndexID = 2
)

func newMem(t *testing.T) *MemStore {
	t.Helper()
	return New(WithIndex(iName, aName), WithIndex(iRef, aRef))
}

type recorder struct {
	got []UpdateInfo
}

func (r *recorder) observe(u UpdateInfo) { r.got = append(r.got, u) }

func (r *recorder) kinds() []UpdateKind {
	out := make([]UpdateKind, len(r.got))
	for i, u := range r.got {
		out[i] = u.Kind
	}
	return out
}

func TestCreateAndChildrenOrder(t *testing.T) {
	s := newMem(t)
	a, err := s.Create(tNode, s.Root(), Nil)
	require.NoError(t, err)
	c, err := s.Create(tNode, s.Root(), Nil)
	require.NoError(t, err)
	b, err := s.Create(tNode, s.Root(), c)
	require.NoError(t, err)

	assert.Equal(t, []OID{a, b, c}, s.Children(s.Root()))
	assert.Equal(t, s.Root(), s.Parent(b))
	assert.Equal(t, tNode, s.Type(b))

	_, err = s.Create(tNode, 999, Nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	_, err = s.Create(tNode, a, c)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestSetNormalizesValues(t *testing.T) {
	s := newMem(t)
	id, _ := s.Create(tNode, s.Root(), Nil)

	require.NoError(t, s.Set(id, aName, 3))
	assert.Equal(t, int64(3), s.Get(id, aName))
	require.NoError(t, s.Set(id, aName, float32(1.5)))
	assert.Equal(t, 1.5, s.Get(id, aName))

	pts := []orb.Point{{1, 2}, {3, 4}}
	require.NoError(t, s.Set(id, aPath, pts))
	pts[0] = orb.Point{9, 9}
	assert.Equal(t, []orb.Point{{1, 2}, {3, 4}}, PointList(s, id, aPath))

	err := s.Set(id, aName, struct{}{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	require.NoError(t, s.Set(id, aName, nil))
	assert.False(t, s.Has(id, aName))
}

func TestIndexSeek(t *testing.T) {
	s := newMem(t)
	target, _ := s.Create(tNode, s.Root(), Nil)
	x, _ := s.Create(tNode, s.Root(), Nil)
	y, _ := s.Create(tNode, s.Root(), Nil)
	require.NoError(t, s.Set(y, aRef, target))
	require.NoError(t, s.Set(x, aRef, target))
	require.NoError(t, s.Set(x, aName, "F001"))

	assert.Equal(t, []OID{x, y}, s.Seek(iRef, target))
	assert.Equal(t, []OID{x}, s.Seek(iName, "F001"))

	require.NoError(t, s.Set(x, aRef, nil))
	assert.Equal(t, []OID{y}, s.Seek(iRef, target))

	require.NoError(t, s.Erase(y))
	assert.Empty(t, s.Seek(iRef, target))
}

func TestEraseSubtree(t *testing.T) {
	s := newMem(t)
	f, _ := s.Create(tFolder, s.Root(), Nil)
	n1, _ := s.Create(tNode, f, Nil)
	n2, _ := s.Create(tNode, n1, Nil)
	require.NoError(t, s.Commit(context.Background()))

	rec := &recorder{}
	s.AddObserver(rec.observe)
	require.NoError(t, s.Erase(f))
	require.NoError(t, s.Commit(context.Background()))

	assert.False(t, s.Exists(f))
	assert.False(t, s.Exists(n1))
	assert.False(t, s.Exists(n2))
	require.Len(t, rec.got, 3)
	assert.Equal(t, n2, rec.got[0].ID)
	assert.Equal(t, f, rec.got[2].ID)
	assert.Equal(t, []UpdateKind{ObjectErased, ObjectErased, ObjectErased}, rec.kinds())

	err := s.Erase(s.Root())
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestNotificationsDeliveredOnCommitOnly(t *testing.T) {
	s := newMem(t)
	rec := &recorder{}
	remove := s.AddObserver(rec.observe)

	id, _ := s.Create(tNode, s.Root(), Nil)
	require.NoError(t, s.Set(id, aName, "a"))
	require.NoError(t, s.Set(id, aName, "a"))
	require.NoError(t, s.SetType(id, tOther))
	assert.Empty(t, rec.got)

	require.NoError(t, s.Commit(context.Background()))
	assert.Equal(t, []UpdateKind{Aggregated, ValueChanged, TypeChanged}, rec.kinds())
	assert.Equal(t, uint32(aName), rec.got[1].Name)
	assert.Equal(t, uint32(tOther), rec.got[2].Name)

	remove()
	require.NoError(t, s.Set(id, aName, "b"))
	require.NoError(t, s.Commit(context.Background()))
	assert.Len(t, rec.got, 3)
}

func TestNestedCommitIsDeferred(t *testing.T) {
	s := newMem(t)
	id, _ := s.Create(tNode, s.Root(), Nil)
	require.NoError(t, s.Commit(context.Background()))

	var order []string
	s.AddObserver(func(u UpdateInfo) {
		if u.Kind == ValueChanged && AttrID(u.Name) == aName {
			order = append(order, "name:"+String(s, u.ID, aName))
			if String(s, u.ID, aName) == "first" {
				require.NoError(t, s.Set(u.ID, aName, "second"))
				require.NoError(t, s.Commit(context.Background()))
				order = append(order, "nested commit returned")
			}
		}
	})

	require.NoError(t, s.Set(id, aName, "first"))
	require.NoError(t, s.Commit(context.Background()))
	assert.Equal(t, []string{"name:first", "nested commit returned", "name:second"}, order)
}

func TestRollbackRestoresEverything(t *testing.T) {
	s := newMem(t)
	f, _ := s.Create(tFolder, s.Root(), Nil)
	n, _ := s.Create(tNode, f, Nil)
	g, _ := s.Create(tFolder, s.Root(), Nil)
	require.NoError(t, s.Set(n, aName, "keep"))
	require.NoError(t, s.Set(n, aRef, g))
	require.NoError(t, s.Commit(context.Background()))

	rec := &recorder{}
	s.AddObserver(rec.observe)

	require.NoError(t, s.Set(n, aName, "changed"))
	require.NoError(t, s.SetType(n, tOther))
	require.NoError(t, s.Aggregate(n, g, Nil))
	extra, _ := s.Create(tNode, g, Nil)
	require.NoError(t, s.Erase(f))
	s.Rollback()

	assert.True(t, s.Exists(f))
	assert.False(t, s.Exists(extra))
	assert.Equal(t, f, s.Parent(n))
	assert.Equal(t, []OID{n}, s.Children(f))
	assert.Empty(t, s.Children(g))
	assert.Equal(t, tNode, s.Type(n))
	assert.Equal(t, "keep", String(s, n, aName))
	assert.Equal(t, []OID{n}, s.Seek(iRef, g))
	assert.Equal(t, []OID{n}, s.Seek(iName, "keep"))

	require.NoError(t, s.Commit(context.Background()))
	assert.Empty(t, rec.got)
}

func TestAggregateRejectsCycles(t *testing.T) {
	s := newMem(t)
	a, _ := s.Create(tFolder, s.Root(), Nil)
	b, _ := s.Create(tFolder, a, Nil)

	err := s.Aggregate(a, b, Nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Equal(t, []OID{b}, s.Children(a))

	rec := &recorder{}
	s.AddObserver(rec.observe)
	require.NoError(t, s.Aggregate(b, s.Root(), a))
	require.NoError(t, s.Commit(context.Background()))
	assert.Equal(t, []OID{b, a}, s.Children(s.Root()))
	assert.Equal(t, []UpdateKind{Deaggregated, Aggregated}, rec.kinds())
	assert.Equal(t, a, rec.got[0].Parent)
}

func TestTypedReaders(t *testing.T) {
	s := newMem(t)
	id, _ := s.Create(tNode, s.Root(), Nil)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(id, 20, 7))
	require.NoError(t, s.Set(id, 21, 2.5))
	require.NoError(t, s.Set(id, 22, true))
	require.NoError(t, s.Set(id, 23, now))

	assert.Equal(t, 7.0, Float(s, id, 20))
	assert.Equal(t, int64(2), Int(s, id, 21))
	assert.True(t, Bool(s, id, 22, false))
	assert.True(t, Bool(s, id, 99, true))
	assert.True(t, now.Equal(Time(s, id, 23)))
	assert.Equal(t, Nil, Ref(s, id, 20))
}
