package model

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rochus-keller/FlowLine2/internal/store"
)

func TestRastered(t *testing.T) {
	assert.Equal(t, orb.Point{12.5, 7.5}, Rastered(orb.Point{10, 5}))
	assert.Equal(t, orb.Point{0, 0}, Rastered(orb.Point{6, 3.7}))
	assert.Equal(t, orb.Point{-12.5, -7.5}, Rastered(orb.Point{-8, -6}))
	assert.Equal(t, orb.Point{125, 75}, ToCellPos(orb.Point{130, 149}))
	assert.Equal(t, orb.Point{-125, 0}, ToCellPos(orb.Point{-1, 10}))
}

func TestCreateKindDefaults(t *testing.T) {
	s := newStore(t)
	d := newDiagram(t, s)

	note, err := CreateKind(s, d, KindNote, orb.Point{25, 15})
	require.NoError(t, err)
	w, h := note.Size()
	assert.Equal(t, BoxWidth, w)
	assert.Equal(t, 0.0, h)
	assert.Equal(t, note.ID, note.Origin())
	assert.Equal(t, KindNote, note.Kind())

	frame, err := CreateKind(s, d, KindFrame, orb.Point{0, 0})
	require.NoError(t, err)
	w, h = frame.Size()
	assert.Equal(t, BoxWidth, w)
	assert.Equal(t, BoxHeight, h)
	assert.False(t, s.Has(frame.ID, AttrPosX))
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 60}}, frame.BoundingRect())
}

func TestItemGeometry(t *testing.T) {
	s := newStore(t)
	d := newDiagram(t, s)
	_, it := place(t, s, d, TypeFunction, orb.Point{100, 100})

	assert.Equal(t, orb.Point{100, 100}, it.Pos())
	assert.Equal(t, orb.Bound{Min: orb.Point{50, 70}, Max: orb.Point{150, 130}}, it.BoundingRect())

	require.NoError(t, it.SetNodeList([]orb.Point{{0, 0}, {20, 40}}))
	assert.True(t, it.HasNodeList())
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{20, 40}}, it.BoundingRect())
	require.NoError(t, it.SetNodeList(nil))
	assert.False(t, it.HasNodeList())
	assert.False(t, it.IsNull())
	assert.True(t, ItemOf(s, d).IsNull())
}

func TestPinneds(t *testing.T) {
	s := newStore(t)
	d := newDiagram(t, s)
	_, it := place(t, s, d, TypeFunction, orb.Point{100, 100})
	n1, _ := CreateKind(s, d, KindNote, orb.Point{0, 0})
	n2, _ := CreateKind(s, d, KindNote, orb.Point{0, 0})
	require.NoError(t, n1.SetPinnedTo(it.ID))
	require.NoError(t, n2.SetPinnedTo(it.ID))

	assert.Equal(t, []store.OID{n1.ID, n2.ID}, it.Pinneds())
	require.NoError(t, n1.SetPinnedTo(store.Nil))
	assert.Equal(t, []store.OID{n2.ID}, it.Pinneds())
}

func TestPlaceItemRejectsDuplicates(t *testing.T) {
	s := newStore(t)
	d := newDiagram(t, s)
	f, first := place(t, s, d, TypeFunction, orb.Point{100, 100})

	again, placed, err := PlaceItem(s, d, f, orb.Point{300, 300})
	require.NoError(t, err)
	assert.False(t, placed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, orb.Point{100, 100}, again.Pos())

	other := newDiagram(t, s)
	_, placed, err = PlaceItem(s, other, f, orb.Point{300, 300})
	require.NoError(t, err)
	assert.True(t, placed)
}
