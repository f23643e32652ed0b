package model

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/rochus-keller/FlowLine2/internal/store"
)

func newStore(t *testing.T) *store.MemStore {
	t.Helper()
	return store.New(StoreOptions()...)
}

func newDiagram(t *testing.T, s store.Store) store.OID {
	t.Helper()
	d, err := CreateObject(s, TypeDiagram, s.Root(), store.Nil)
	require.NoError(t, err)
	return d
}

func place(t *testing.T, s store.Store, diagram store.OID, typ store.TypeID, pos orb.Point) (store.OID, DiagItem) {
	t.Helper()
	o, err := CreateObject(s, typ, diagram, store.Nil)
	require.NoError(t, err)
	it, err := CreateItem(s, diagram, o, pos)
	require.NoError(t, err)
	return o, it
}
