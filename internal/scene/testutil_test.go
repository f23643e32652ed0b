package scene

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

type linkReq struct {
	pred, succ store.OID
	path       []orb.Point
}

type succReq struct {
	pred store.OID
	kind SuccessorKind
	pos  orb.Point
	path []orb.Point
}

type recorder struct {
	links []linkReq
	succs []succReq
	drops [][]store.OID
}

func (r *recorder) LinkRequested(pred, succ store.OID, path []orb.Point) {
	r.links = append(r.links, linkReq{pred, succ, path})
}

func (r *recorder) SuccessorLinkRequested(pred store.OID, kind SuccessorKind, pos orb.Point, path []orb.Point) {
	r.succs = append(r.succs, succReq{pred, kind, pos, path})
}

func (r *recorder) DropRequested(refs []store.OID, pos orb.Point) {
	r.drops = append(r.drops, refs)
}

type fixture struct {
	s   *store.MemStore
	d   store.OID
	rec *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(model.StoreOptions()...)
	d, err := model.CreateObject(s, model.TypeDiagram, s.Root(), store.Nil)
	require.NoError(t, err)
	require.NoError(t, s.Commit(context.Background()))
	return &fixture{s: s, d: d, rec: &recorder{}}
}

func (f *fixture) open(t *testing.T, opts ...Option) *Scene {
	t.Helper()
	require.NoError(t, f.s.Commit(context.Background()))
	sc := New(f.s, append([]Option{WithListener(f.rec)}, opts...)...)
	require.NoError(t, sc.SetDiagram(context.Background(), f.d))
	return sc
}

func (f *fixture) commit(t *testing.T) {
	t.Helper()
	require.NoError(t, f.s.Commit(context.Background()))
}

// place creates an object of typ on the diagram and an item showing it.
func (f *fixture) place(t *testing.T, typ store.TypeID, pos orb.Point) (store.OID, model.DiagItem) {
	t.Helper()
	o, err := model.CreateObject(f.s, typ, f.d, store.Nil)
	require.NoError(t, err)
	it, err := model.CreateItem(f.s, f.d, o, pos)
	require.NoError(t, err)
	return o, it
}

func (f *fixture) link(t *testing.T, pred, succ store.OID, path ...orb.Point) model.DiagItem {
	t.Helper()
	it, err := model.CreateLink(f.s, f.d, pred, succ)
	require.NoError(t, err)
	if len(path) > 0 {
		require.NoError(t, it.SetNodeList(path))
	}
	return it
}

func (f *fixture) kind(t *testing.T, k model.Kind, pos orb.Point) model.DiagItem {
	t.Helper()
	it, err := model.CreateKind(f.s, f.d, k, pos)
	require.NoError(t, err)
	return it
}

func countType(g *Graph, t NodeType) int {
	n := 0
	for _, node := range g.Nodes() {
		if node.Type == t {
			n++
		}
	}
	return n
}
