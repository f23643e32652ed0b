package controller

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rochus-keller/FlowLine2/internal/layout"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/scene"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

type fixture struct {
	t *testing.T
	s *store.MemStore
	d store.OID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(model.StoreOptions()...)
	d, err := model.CreateObject(s, model.TypeDiagram, s.Root(), store.Nil)
	require.NoError(t, err)
	require.NoError(t, s.Commit(context.Background()))
	return &fixture{t: t, s: s, d: d}
}

func (f *fixture) open(opts ...Option) *Controller {
	f.t.Helper()
	c := New(f.s, opts...)
	require.NoError(f.t, c.Open(context.Background(), f.d))
	return c
}

func (f *fixture) commit() {
	f.t.Helper()
	require.NoError(f.t, f.s.Commit(context.Background()))
}

// node creates an object of typ in the diagram without showing it.
func (f *fixture) node(typ store.TypeID) store.OID {
	f.t.Helper()
	o, err := model.CreateObject(f.s, typ, f.d, store.Nil)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) show(o store.OID, pos orb.Point) store.OID {
	f.t.Helper()
	it, err := model.CreateItem(f.s, f.d, o, pos)
	require.NoError(f.t, err)
	return it.ID
}

func (f *fixture) flow(pred, succ store.OID) store.OID {
	f.t.Helper()
	link, err := model.CreateObject(f.s, model.TypeConFlow, pred, store.Nil)
	require.NoError(f.t, err)
	require.NoError(f.t, model.SetFlowEnds(f.s, link, pred, succ))
	return link
}

func origins(s store.Store, items []store.OID) []store.OID {
	out := make([]store.OID, 0, len(items))
	for _, id := range items {
		out = append(out, model.ItemOf(s, id).Origin())
	}
	return out
}

func TestEditsRequireWritableDiagram(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := New(f.s)
	_, err := c.AddItem(ctx, model.TypeFunction, model.ConnUnspecified, orb.Point{100, 100})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	ro := f.open(WithSceneOptions(scene.WithReadOnly(true)))
	_, err = ro.AddItem(ctx, model.TypeFunction, model.ConnUnspecified, orb.Point{100, 100})
	assert.True(t, schema.IsCode(err, schema.ErrCodeReadOnly))
	_, err = ro.DeleteItems(ctx)
	assert.True(t, schema.IsCode(err, schema.ErrCodeReadOnly))
	assert.True(t, schema.IsCode(ro.LayoutDiagram(ctx, false), schema.ErrCodeReadOnly))
	_, err = ro.ImportProcess(ctx, store.Nil, []byte("{}"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeReadOnly))
	assert.Empty(t, topology.ItemOrigObjs(f.s, f.d, true, false))
}

func TestAddItemAndLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.open()

	fi, err := c.AddItem(ctx, model.TypeFunction, model.ConnUnspecified, orb.Point{100, 100})
	require.NoError(t, err)
	ci, err := c.AddItem(ctx, model.TypeConnector, model.ConnOr, orb.Point{100, 250})
	require.NoError(t, err)
	assert.Equal(t, ci, c.Scene().SingleSelection())

	fn := model.ItemOf(f.s, fi).Origin()
	conn := model.ItemOf(f.s, ci).Origin()
	assert.Equal(t, model.TypeFunction, f.s.Type(fn))
	assert.Equal(t, f.d, f.s.Parent(fn))
	assert.Equal(t, model.ConnOr, model.GetConnType(f.s, conn))

	li, err := c.CreateLink(ctx, fn, conn, []orb.Point{{150, 175}})
	require.NoError(t, err)
	assert.Equal(t, []store.OID{conn}, topology.Successors(f.s, fn))
	assert.Equal(t, []orb.Point{{150, 175}}, model.ItemOf(f.s, li).NodeList())
	assert.NotNil(t, c.Scene().SegmentFor(li))

	_, err = c.AddItem(ctx, model.TypeConFlow, model.ConnUnspecified, orb.Point{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCreateSuccessorLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fn := f.node(model.TypeFunction)
	f.show(fn, orb.Point{100, 100})
	f.commit()
	c := f.open()

	item, err := c.CreateSuccessorLink(ctx, fn, scene.SuccXor, orb.Point{100, 250}, nil)
	require.NoError(t, err)
	conn := model.ItemOf(f.s, item).Origin()
	assert.Equal(t, model.TypeConnector, f.s.Type(conn))
	assert.Equal(t, model.ConnXor, model.GetConnType(f.s, conn))
	assert.Equal(t, []store.OID{conn}, topology.Successors(f.s, fn))
	assert.Equal(t, item, c.Scene().SingleSelection())

	ev, err := c.CreateSuccessorLink(ctx, conn, scene.SuccEvent, orb.Point{100, 400}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TypeEvent, f.s.Type(model.ItemOf(f.s, ev).Origin()))

	_, err = c.CreateSuccessorLink(ctx, fn, scene.SuccHandle, orb.Point{}, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestListenerCreatesLinks(t *testing.T) {
	f := newFixture(t)
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	f.show(a, orb.Point{100, 100})
	f.show(b, orb.Point{100, 300})
	f.commit()
	c := f.open()

	c.LinkRequested(a, b, nil)
	assert.Equal(t, []store.OID{b}, topology.Successors(f.s, a))

	c.SuccessorLinkRequested(b, scene.SuccFunction, orb.Point{100, 500}, nil)
	succ := topology.Successors(f.s, b)
	require.Len(t, succ, 1)
	assert.Equal(t, model.TypeFunction, f.s.Type(succ[0]))
}

func TestPinAndUnpin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.open()

	fi, err := c.AddItem(ctx, model.TypeFunction, model.ConnUnspecified, orb.Point{200, 200})
	require.NoError(t, err)
	note, err := c.AddNote(ctx, orb.Point{400, 100})
	require.NoError(t, err)
	assert.Equal(t, fi, model.ItemOf(f.s, note).PinnedTo(), "a note added next to a selected item is pinned to it")

	frame, err := c.AddFrame(ctx, orb.Point{50, 50})
	require.NoError(t, err)

	c.Scene().SelectObjects([]store.OID{fi, frame}, true)
	require.NoError(t, c.PinItems(ctx))
	assert.Equal(t, frame, model.ItemOf(f.s, fi).PinnedTo())

	c.Scene().SelectObjects([]store.OID{note, frame}, true)
	require.NoError(t, c.PinItems(ctx))
	assert.Equal(t, frame, model.ItemOf(f.s, note).PinnedTo())

	// a note with both a frame and a plain item is ambiguous
	c.Scene().SelectObjects([]store.OID{note, fi, frame}, true)
	assert.True(t, schema.IsCode(c.PinItems(ctx), schema.ErrCodeValidation))

	c.Scene().SelectObjects([]store.OID{note, fi}, true)
	assert.True(t, schema.IsCode(c.Unpin(ctx), schema.ErrCodeValidation))

	c.Scene().SelectObjects([]store.OID{note}, true)
	require.NoError(t, c.Unpin(ctx))
	assert.Equal(t, store.Nil, model.ItemOf(f.s, note).PinnedTo())
	assert.Equal(t, frame, model.ItemOf(f.s, fi).PinnedTo())

	c.Scene().SelectObjects([]store.OID{fi, frame}, true)
	require.NoError(t, c.Unpin(ctx))
	assert.Equal(t, store.Nil, model.ItemOf(f.s, fi).PinnedTo())
}

func TestDeleteItemsErasesObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	link := f.flow(a, b)
	ai := f.show(a, orb.Point{100, 100})
	f.show(b, orb.Point{100, 300})
	f.show(link, orb.Point{})
	f.commit()
	c := f.open()

	c.Scene().SelectObject(ai, true)
	n, err := c.DeleteItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.s.Exists(a))
	assert.False(t, f.s.Exists(link))
	assert.True(t, f.s.Exists(b))
	assert.Nil(t, c.Scene().NodeFor(a))
	assert.Equal(t, []store.OID{b}, topology.ItemOrigObjs(f.s, f.d, true, true))

	n, err = c.DeleteItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveItemsKeepsObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.node(model.TypeFunction)
	ai := f.show(a, orb.Point{100, 100})
	f.commit()
	c := f.open()

	c.Scene().SelectObject(ai, true)
	require.NoError(t, c.RemoveItems(ctx))
	assert.True(t, f.s.Exists(a))
	assert.False(t, f.s.Exists(ai))
	assert.Equal(t, []store.OID{a}, topology.FindHiddenSchedObjs(f.s, f.d))
}

func TestToggleFuncEventAndConnType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.open()

	fi, err := c.AddItem(ctx, model.TypeFunction, model.ConnUnspecified, orb.Point{100, 100})
	require.NoError(t, err)
	fn := model.ItemOf(f.s, fi).Origin()
	require.NoError(t, c.ToggleFuncEvent(ctx))
	assert.Equal(t, model.TypeEvent, f.s.Type(fn))
	require.NoError(t, c.ToggleFuncEvent(ctx))
	assert.Equal(t, model.TypeFunction, f.s.Type(fn))

	assert.True(t, schema.IsCode(c.SetConnType(ctx, model.ConnAnd), schema.ErrCodeValidation))

	ci, err := c.AddItem(ctx, model.TypeConnector, model.ConnAnd, orb.Point{100, 300})
	require.NoError(t, err)
	require.NoError(t, c.SetConnType(ctx, model.ConnXor))
	assert.Equal(t, model.ConnXor, model.GetConnType(f.s, model.ItemOf(f.s, ci).Origin()))
	assert.True(t, schema.IsCode(c.ToggleFuncEvent(ctx), schema.ErrCodeValidation))

	c.Scene().ClearSelection()
	assert.True(t, schema.IsCode(c.ToggleFuncEvent(ctx), schema.ErrCodeValidation))

	require.NoError(t, c.SetDirection(ctx, model.LeftToRight))
	assert.Equal(t, model.LeftToRight, model.GetDirection(f.s, f.d))
}

func TestCopyPasteToOtherDiagram(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	link := f.flow(a, b)
	ai := f.show(a, orb.Point{100, 100})
	bi := f.show(b, orb.Point{100, 300})
	f.show(link, orb.Point{})
	other, err := model.CreateObject(f.s, model.TypeDiagram, f.s.Root(), store.Nil)
	require.NoError(t, err)
	f.commit()
	c := f.open()

	_, err = c.Copy()
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	c.Scene().SelectObjects([]store.OID{ai, bi}, true)
	doc, err := c.Copy()
	require.NoError(t, err)

	// everything is on this diagram already
	items, err := c.Paste(ctx, doc, orb.Point{400, 400})
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, c.Open(ctx, other))
	items, err = c.Paste(ctx, doc, orb.Point{400, 400})
	require.NoError(t, err)
	assert.ElementsMatch(t, []store.OID{a, b, link}, origins(f.s, items))
	assert.Len(t, c.Scene().MultiSelection(true, false, false), 2)

	_, err = c.Paste(ctx, []byte("not json"), orb.Point{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeMalformedStream))
}

func TestPasteRefs(t *testing.T) {
	f := newFixture(t)
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	link := f.flow(a, b)
	f.show(a, orb.Point{100, 100})
	f.commit()
	c := f.open()

	c.DropRequested([]store.OID{b}, orb.Point{300, 300})
	assert.NotEqual(t, store.Nil, topology.FindItemInDiagram(f.s, f.d, b))
	assert.NotEqual(t, store.Nil, topology.FindItemInDiagram(f.s, f.d, link))
}

func TestExtendDiagram(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f1 := f.node(model.TypeFunction)
	e1 := f.node(model.TypeEvent)
	f2 := f.node(model.TypeFunction)
	f.flow(f1, e1)
	f.flow(e1, f2)
	i1 := f.show(f1, orb.Point{100, 100})
	f.commit()
	c := f.open()

	_, err := c.ExtendDiagram(ctx, 0, true, false, false)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	_, err = c.ExtendDiagram(ctx, 1, true, false, true)
	assert.True(t, schema.IsCode(err, schema.ErrCodeLayoutUnavailable))

	c.Scene().SelectObject(i1, true)
	added, err := c.ExtendDiagram(ctx, 1, true, false, false)
	require.NoError(t, err)
	assert.Equal(t, []store.OID{e1}, added)
	assert.Empty(t, topology.FindHiddenLinks(f.s, f.d, nil))
	assert.Equal(t, []store.OID{e1}, origins(f.s, c.Scene().MultiSelection(true, false, false)))

	// nothing selected extends from every node shown
	c.Scene().ClearSelection()
	added, err = c.ExtendDiagram(ctx, 5, true, true, false)
	require.NoError(t, err)
	assert.Equal(t, []store.OID{f2}, added)
	assert.Empty(t, topology.FindHiddenSchedObjs(f.s, f.d))
}

func TestShowShortestPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f1 := f.node(model.TypeFunction)
	e1 := f.node(model.TypeEvent)
	f2 := f.node(model.TypeFunction)
	f.flow(f1, e1)
	f.flow(e1, f2)
	i1 := f.show(f1, orb.Point{100, 100})
	i2 := f.show(f2, orb.Point{100, 500})
	f.commit()
	c := f.open()

	c.Scene().SelectObject(i1, true)
	_, err := c.ShowShortestPath(ctx, false)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	c.Scene().SelectObjects([]store.OID{i1, i2}, true)
	path, err := c.ShowShortestPath(ctx, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []store.OID{f1, e1, f2}, path)
	assert.Equal(t, e1, path[1])
	assert.Empty(t, topology.FindHiddenSchedObjs(f.s, f.d))
	assert.Empty(t, topology.FindHiddenLinks(f.s, f.d, nil))
	assert.Len(t, c.Scene().MultiSelection(true, false, false), 3)
}

func TestShortestPathUnconnected(t *testing.T) {
	f := newFixture(t)
	i1 := f.show(f.node(model.TypeFunction), orb.Point{100, 100})
	i2 := f.show(f.node(model.TypeEvent), orb.Point{100, 300})
	f.commit()
	c := f.open()

	c.Scene().SelectObjects([]store.OID{i1, i2}, true)
	path, err := c.ShowShortestPath(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestHiddenLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	link := f.flow(a, b)
	f.show(a, orb.Point{100, 100})
	f.show(b, orb.Point{100, 300})
	f.commit()
	c := f.open()

	hidden, err := c.HiddenLinks()
	require.NoError(t, err)
	assert.Equal(t, []store.OID{link}, hidden)

	shown, err := c.ShowHiddenLinks(ctx, append(hidden, a))
	require.NoError(t, err)
	assert.Equal(t, []store.OID{link}, shown)

	hidden, err = c.HiddenLinks()
	require.NoError(t, err)
	assert.Empty(t, hidden)

	shown, err = c.ShowHiddenLinks(ctx, []store.OID{link})
	require.NoError(t, err)
	assert.Empty(t, shown)
}

func TestShowHiddenSchedObjs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	link := f.flow(a, b)
	f.show(a, orb.Point{100, 100})
	f.commit()
	c := f.open()

	hidden, err := c.HiddenSchedObjs()
	require.NoError(t, err)
	assert.Equal(t, []store.OID{b}, hidden)

	done, err := c.ShowHiddenSchedObjs(ctx, []store.OID{b, a})
	require.NoError(t, err)
	assert.Equal(t, []store.OID{b}, done)
	assert.NotEqual(t, store.Nil, topology.FindItemInDiagram(f.s, f.d, link))
}

func TestRemoveAllAliases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := model.CreateObject(f.s, model.TypeDiagram, f.s.Root(), store.Nil)
	require.NoError(t, err)
	foreign, err := model.CreateObject(f.s, model.TypeFunction, other, store.Nil)
	require.NoError(t, err)
	own := f.node(model.TypeEvent)
	alias := f.show(foreign, orb.Point{100, 100})
	f.show(own, orb.Point{100, 300})
	f.commit()
	c := f.open()

	n, err := c.RemoveAllAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.s.Exists(alias))
	assert.True(t, f.s.Exists(foreign))
	assert.Equal(t, []store.OID{own}, topology.ItemOrigObjs(f.s, f.d, true, false))
}

// layoutFixture shows a function pinned to a frame, an event with a note
// pinned to it and the flow between the two.
type layoutFixture struct {
	*fixture
	fn, ev, link            store.OID
	fi, ei, li, note, frame store.OID
}

func newLayoutFixture(t *testing.T) *layoutFixture {
	f := &layoutFixture{fixture: newFixture(t)}
	f.fn = f.node(model.TypeFunction)
	f.ev = f.node(model.TypeEvent)
	f.link = f.flow(f.fn, f.ev)
	f.fi = f.show(f.fn, orb.Point{100, 100})
	f.ei = f.show(f.ev, orb.Point{100, 300})
	f.li = f.show(f.link, orb.Point{})
	note, err := model.CreateKind(f.s, f.d, model.KindNote, orb.Point{300, 300})
	require.NoError(t, err)
	require.NoError(t, note.SetPinnedTo(f.ei))
	frame, err := model.CreateKind(f.s, f.d, model.KindFrame, orb.Point{20, 20})
	require.NoError(t, err)
	require.NoError(t, model.ItemOf(f.s, f.fi).SetPinnedTo(frame.ID))
	f.note, f.frame = note.ID, frame.ID
	f.commit()
	return f
}

func TestPlanLayout(t *testing.T) {
	f := newLayoutFixture(t)
	require.NoError(t, model.SetDirection(f.s, f.d, model.LeftToRight))
	f.commit()

	p := planLayout(f.s, f.d, true)
	assert.True(t, p.in.Ortho)
	assert.Equal(t, model.LeftToRight, p.in.Direction)
	assert.Equal(t, []layout.Cluster{{ID: itemKey(f.frame), Margin: clusterMargin}}, p.in.Clusters)

	nodes := make(map[string]layout.Node)
	for _, n := range p.in.Nodes {
		nodes[n.ID] = n
	}
	require.Len(t, nodes, 3)
	assert.Equal(t, itemKey(f.frame), nodes[itemKey(f.fi)].Cluster)
	assert.Empty(t, nodes[itemKey(f.ei)].Cluster)
	assert.Equal(t, float64(model.BoxWidth), nodes[itemKey(f.ei)].Width)
	w, _ := model.ItemOf(f.s, f.note).Size()
	assert.Equal(t, w, nodes[itemKey(f.note)].Width)

	assert.ElementsMatch(t, []layout.Edge{
		{ID: itemKey(f.li), From: itemKey(f.fi), To: itemKey(f.ei), Constraint: true},
		{ID: itemKey(f.note) + "-" + itemKey(f.ei), From: itemKey(f.note), To: itemKey(f.ei), Constraint: true},
	}, p.in.Edges)
	assert.Equal(t, map[string]store.OID{itemKey(f.li): f.li}, p.flows)
}

func TestPlanLayoutSkipsLooseAnnotations(t *testing.T) {
	f := newFixture(t)
	f.show(f.node(model.TypeConnector), orb.Point{100, 100})
	_, err := model.CreateKind(f.s, f.d, model.KindNote, orb.Point{300, 100})
	require.NoError(t, err)
	frame, err := model.CreateKind(f.s, f.d, model.KindFrame, orb.Point{20, 20})
	require.NoError(t, err)
	require.NoError(t, f.s.Set(frame.ID, model.AttrText, "Billing"))
	f.commit()

	p := planLayout(f.s, f.d, false)
	assert.Empty(t, p.in.Clusters, "a frame holding nothing is no cluster")
	require.Len(t, p.in.Nodes, 1)
	assert.Equal(t, model.BoxHeight*0.5, p.in.Nodes[0].Width)
	assert.Empty(t, p.in.Edges)
}

func TestLayoutDiagramWritesBack(t *testing.T) {
	f := newLayoutFixture(t)
	ctx := context.Background()
	var calls int
	bridge := layout.BridgeFunc(func(_ context.Context, in layout.Input) (*layout.Result, error) {
		calls++
		return &layout.Result{
			Positions: map[string]orb.Point{
				itemKey(f.fi):   {80, 60},
				itemKey(f.ei):   {80, 260},
				itemKey(f.note): {300, 260},
			},
			EdgePolylines: map[string][]orb.Point{itemKey(f.li): {{80, 160}}},
			ClusterBounds: map[string]orb.Bound{
				itemKey(f.frame): {Min: orb.Point{14, 14}, Max: orb.Point{146, 106}},
			},
		}, nil
	})
	c := f.open(WithBridge(bridge))
	c.Scene().SelectObject(f.ei, true)
	nw, nh := model.ItemOf(f.s, f.note).Size()

	require.NoError(t, c.LayoutDiagram(ctx, false))
	assert.Equal(t, 1, calls)
	// engine coordinates land on the raster
	assert.Equal(t, orb.Point{75, 60}, model.ItemOf(f.s, f.fi).Pos())
	assert.Equal(t, orb.Point{75, 262.5}, model.ItemOf(f.s, f.ei).Pos())
	assert.Equal(t, model.Rastered(orb.Point{300 - nw/2, 260 - nh/2}), model.ItemOf(f.s, f.note).Pos())
	assert.Equal(t, []orb.Point{{75, 157.5}}, model.ItemOf(f.s, f.li).NodeList())

	frame := model.ItemOf(f.s, f.frame)
	assert.Equal(t, orb.Point{12.5, 15}, frame.Pos())
	w, h := frame.Size()
	assert.Equal(t, 137.5, w)
	assert.Equal(t, 90.0, h)

	assert.Equal(t, f.d, c.Scene().Diagram())
	assert.Equal(t, orb.Point{75, 262.5}, c.Scene().NodeFor(f.ei).Pos)
	assert.Equal(t, f.ei, c.Scene().SingleSelection())
}

func TestLayoutDiagramRollsBack(t *testing.T) {
	f := newLayoutFixture(t)
	ctx := context.Background()

	c := f.open()
	assert.True(t, schema.IsCode(c.LayoutDiagram(ctx, false), schema.ErrCodeLayoutUnavailable))

	failing := layout.BridgeFunc(func(context.Context, layout.Input) (*layout.Result, error) {
		return nil, schema.NewError(schema.ErrCodeLayoutFailed, "dot exited").WithCause(errors.New("boom"))
	})
	c = f.open(WithBridge(failing))
	err := c.LayoutDiagram(ctx, false)
	assert.True(t, schema.IsCode(err, schema.ErrCodeLayoutFailed))
	assert.Equal(t, orb.Point{100, 100}, model.ItemOf(f.s, f.fi).Pos())
	assert.Equal(t, f.d, c.Scene().Diagram())
	assert.NotNil(t, c.Scene().NodeFor(f.fn))
}

func TestSelectWhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeFunction)
	e := f.node(model.TypeEvent)
	require.NoError(t, f.s.Set(a, model.AttrText, "Check order"))
	f.flow(a, e)
	ai := f.show(a, orb.Point{100, 100})
	bi := f.show(b, orb.Point{300, 100})
	f.show(e, orb.Point{100, 300})
	f.commit()
	c := f.open()

	hits, err := c.SelectWhere(ctx, `type == "function"`)
	require.NoError(t, err)
	assert.ElementsMatch(t, []store.OID{ai, bi}, hits)
	assert.ElementsMatch(t, hits, c.Scene().MultiSelection(true, false, false))

	hits, err = c.SelectWhere(ctx, `succs > 0 && text contains "order"`)
	require.NoError(t, err)
	assert.Equal(t, []store.OID{ai}, hits)

	_, err = c.SelectWhere(ctx, `x + 1`)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestLint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeFunction)
	require.NoError(t, f.s.Set(a, model.AttrText, "Check order"))
	ai := f.show(a, orb.Point{100, 100})
	bi := f.show(b, orb.Point{300, 100})
	f.commit()
	c := f.open()

	rules := []Rule{
		{Name: "named", Expr: `item.type != "function" || item.text != ""`},
		{Name: "connected", Expr: `item.preds + item.succs > 0`},
	}
	got, err := c.Lint(ctx, rules)
	require.NoError(t, err)

	byRule := make(map[string][]store.OID)
	for _, v := range got {
		byRule[v.Rule] = append(byRule[v.Rule], v.Item)
	}
	assert.Equal(t, []store.OID{bi}, byRule["named"])
	assert.ElementsMatch(t, []store.OID{ai, bi}, byRule["connected"])

	_, err = c.Lint(ctx, []Rule{{Name: "broken", Expr: `item.type ==`}})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestExportImportProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	f.flow(a, b)
	f.show(a, orb.Point{100, 100})
	f.show(b, orb.Point{100, 300})
	f.commit()
	c := f.open()

	st, err := c.ExportProcess(store.Nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, st.Encode(&buf))

	proc, err := c.ImportProcess(ctx, store.Nil, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, model.TypeFunction, f.s.Type(proc))
	assert.Equal(t, f.d, f.s.Parent(proc))
	assert.NotEqual(t, store.Nil, topology.FindItemInDiagram(f.s, f.d, proc))
	assert.NotNil(t, c.Scene().NodeFor(proc))
	assert.Len(t, topology.ItemOrigObjs(f.s, proc, true, false), 2)

	_, err = c.ImportProcess(ctx, store.Nil, []byte(`{"format":"nope"}`))
	assert.True(t, schema.IsCode(err, schema.ErrCodeMalformedStream))
}

// assertOneItemPerOrigin fails when two items of diagram show the same
// object.
func assertOneItemPerOrigin(t *testing.T, s store.Store, diagram store.OID) {
	t.Helper()
	seen := make(map[store.OID]store.OID)
	for _, id := range s.Children(diagram) {
		if s.Type(id) != model.TypeDiagItem {
			continue
		}
		orig := model.ItemOf(s, id).Origin()
		if prev, ok := seen[orig]; ok {
			t.Errorf("items %d and %d both show %d", prev, id, orig)
		}
		seen[orig] = id
	}
}

func TestCommandsKeepOneItemPerOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.node(model.TypeFunction)
	b := f.node(model.TypeEvent)
	link := f.flow(a, b)
	f.show(a, orb.Point{100, 100})
	f.commit()
	c := f.open()

	c.DropRequested([]store.OID{a, b, b}, orb.Point{300, 300})
	c.DropRequested([]store.OID{a, b}, orb.Point{500, 300})
	_, err := c.ShowHiddenLinks(ctx, []store.OID{link, link})
	require.NoError(t, err)

	st, err := c.ExportProcess(store.Nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, st.Encode(&buf))
	proc, err := c.ImportProcess(ctx, store.Nil, buf.Bytes())
	require.NoError(t, err)
	_, err = c.ExtendDiagram(ctx, 2, true, true, false)
	require.NoError(t, err)

	assertOneItemPerOrigin(t, f.s, f.d)
	assertOneItemPerOrigin(t, f.s, proc)
	assert.Equal(t, orb.Point{100, 100}, model.ItemOf(f.s, topology.FindItemInDiagram(f.s, f.d, a)).Pos())
}

func TestCreateItemKeepsExistingItem(t *testing.T) {
	f := newFixture(t)
	a := f.node(model.TypeFunction)
	first := f.show(a, orb.Point{100, 100})
	f.commit()
	c := f.open()

	again, err := model.CreateItem(f.s, f.d, a, orb.Point{300, 300})
	require.NoError(t, err)
	f.commit()
	assert.Equal(t, first, again.ID)
	assert.Equal(t, orb.Point{100, 100}, again.Pos())
	assert.Len(t, c.Scene().Graph().Nodes(), 1)
	assertOneItemPerOrigin(t, f.s, f.d)
}
