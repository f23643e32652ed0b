package topology

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

type fixture struct {
	t       *testing.T
	s       *store.MemStore
	diagram store.OID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(model.StoreOptions()...)
	d, err := model.CreateObject(s, model.TypeDiagram, s.Root(), store.Nil)
	require.NoError(t, err)
	return &fixture{t: t, s: s, diagram: d}
}

func (f *fixture) node(typ store.TypeID) store.OID {
	f.t.Helper()
	o, err := model.CreateObject(f.s, typ, f.diagram, store.Nil)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) flow(pred, succ store.OID) store.OID {
	f.t.Helper()
	link, err := model.CreateObject(f.s, model.TypeConFlow, pred, store.Nil)
	require.NoError(f.t, err)
	require.NoError(f.t, model.SetFlowEnds(f.s, link, pred, succ))
	return link
}

func (f *fixture) place(o store.OID, pos orb.Point) store.OID {
	f.t.Helper()
	it, err := model.CreateItem(f.s, f.diagram, o, pos)
	require.NoError(f.t, err)
	return it.ID
}

func TestFindHiddenLinks_ScenarioA(t *testing.T) {
	f := newFixture(t)
	f1 := f.node(model.TypeFunction)
	f2 := f.node(model.TypeFunction)
	f3 := f.node(model.TypeFunction)
	l12 := f.flow(f1, f2)
	l23 := f.flow(f2, f3)
	f.place(f1, orb.Point{100, 100})
	f.place(f3, orb.Point{100, 300})

	assert.Empty(t, FindHiddenLinks(f.s, f.diagram, []store.OID{f1, f3}))

	f.place(f2, orb.Point{100, 200})
	assert.ElementsMatch(t, []store.OID{l12, l23}, FindHiddenLinks(f.s, f.diagram, []store.OID{f1, f3}))
	assert.ElementsMatch(t, []store.OID{l12, l23}, FindHiddenLinks(f.s, f.diagram, nil))

	links, err := AddItemLinksToDiagram(f.s, f.diagram, nil)
	require.NoError(t, err)
	assert.Len(t, links, 2)
	assert.Empty(t, FindHiddenLinks(f.s, f.diagram, nil))
}

func TestFindShortestPath_ScenarioB(t *testing.T) {
	f := newFixture(t)
	f1 := f.node(model.TypeFunction)
	f2 := f.node(model.TypeFunction)
	f3 := f.node(model.TypeFunction)
	f.flow(f1, f2)
	f.flow(f2, f3)

	assert.Equal(t, []store.OID{f1, f2, f3}, FindShortestPath(f.s, f1, f3))

	g := newFixture(t)
	g1 := g.node(model.TypeFunction)
	g2 := g.node(model.TypeFunction)
	g3 := g.node(model.TypeFunction)
	g.flow(g3, g2)
	g.flow(g2, g1)

	assert.Equal(t, []store.OID{g1, g2, g3}, FindShortestPath(g.s, g1, g3))
}

func TestFindShortestPath_PrefersShorterRoute(t *testing.T) {
	f := newFixture(t)
	a := f.node(model.TypeEvent)
	b := f.node(model.TypeFunction)
	c := f.node(model.TypeConnector)
	d := f.node(model.TypeFunction)
	goal := f.node(model.TypeEvent)
	f.flow(a, b)
	f.flow(b, c)
	f.flow(c, d)
	f.flow(d, goal)
	f.flow(a, c)
	f.flow(d, a)

	assert.Equal(t, []store.OID{a, c, d, goal}, FindShortestPath(f.s, a, goal))

	lonely := f.node(model.TypeFunction)
	assert.Empty(t, FindShortestPath(f.s, a, lonely))
	assert.Equal(t, []store.OID{a}, FindShortestPath(f.s, a, a))
}

func TestFindExtended(t *testing.T) {
	f := newFixture(t)
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	c := f.node(model.TypeFunction)
	d := f.node(model.TypeEvent)
	p := f.node(model.TypeEvent)
	f.flow(a, b)
	f.flow(b, c)
	f.flow(c, d)
	f.flow(p, a)
	f.flow(c, a)

	assert.Equal(t, []store.OID{b}, FindExtended(f.s, []store.OID{a}, 1, true, false))
	assert.Equal(t, []store.OID{b, c, d}, FindExtended(f.s, []store.OID{a}, 3, true, false))
	assert.Equal(t, []store.OID{b, c, d}, FindExtended(f.s, []store.OID{a}, 1000, true, false))
	assert.Equal(t, []store.OID{b, p, c}, FindExtended(f.s, []store.OID{a}, 1, true, true))
	assert.Equal(t, []store.OID{b}, FindExtended(f.s, []store.OID{a}, 0, true, false))
}

func TestAddItemsToDiagram(t *testing.T) {
	f := newFixture(t)
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	link := f.flow(a, b)
	f.place(a, orb.Point{0, 0})
	folder, err := model.CreateObject(f.s, model.TypeFolder, f.s.Root(), store.Nil)
	require.NoError(t, err)

	done, err := AddItemsToDiagram(f.s, f.diagram, []store.OID{a, b, b, link, folder}, orb.Point{100, 100})
	require.NoError(t, err)
	assert.Equal(t, []store.OID{b}, done)

	item := FindItemInDiagram(f.s, f.diagram, b)
	require.NotEqual(t, store.Nil, item)
	assert.Equal(t, orb.Point{100, 100}, model.ItemOf(f.s, item).Pos())
	assert.NotEqual(t, store.Nil, FindItemInDiagram(f.s, f.diagram, link))
	assert.Equal(t, store.Nil, FindItemInDiagram(f.s, f.diagram, folder))
	assert.Len(t, ItemOrigins(f.s, f.diagram), 3)
}

func TestAliasesAndHiddenObjects(t *testing.T) {
	f := newFixture(t)
	own := f.node(model.TypeFunction)
	hidden := f.node(model.TypeEvent)
	other, err := model.CreateObject(f.s, model.TypeDiagram, f.s.Root(), store.Nil)
	require.NoError(t, err)
	foreign, err := model.CreateObject(f.s, model.TypeFunction, other, store.Nil)
	require.NoError(t, err)

	f.place(own, orb.Point{0, 0})
	aliasItem := f.place(foreign, orb.Point{0, 100})

	assert.Equal(t, []store.OID{aliasItem}, FindAllAliases(f.s, f.diagram))
	assert.Equal(t, []store.OID{hidden}, FindHiddenSchedObjs(f.s, f.diagram))
	assert.Equal(t, []store.OID{f.diagram, own, other, foreign}, Diagrams(f.s))
}

func TestFindOrphans(t *testing.T) {
	f := newFixture(t)
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	c := f.node(model.TypeEvent)
	f.place(a, orb.Point{0, 0})
	f.place(b, orb.Point{0, 100})
	dup := f.place(b, orb.Point{0, 200})
	ok := f.place(f.flow(a, b), orb.Point{})
	dangling := f.place(f.flow(a, c), orb.Point{})
	missing := f.place(store.OID(9999), orb.Point{})
	note, err := model.CreateKind(f.s, f.diagram, model.KindNote, orb.Point{10, 10})
	require.NoError(t, err)

	orphans := FindOrphans(f.s, f.diagram)
	assert.ElementsMatch(t, []store.OID{dup, dangling, missing}, orphans)
	assert.NotContains(t, orphans, ok)
	assert.NotContains(t, orphans, note.ID)
}
