package transfer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// process builds a process with a function, an event and an XOR connector
// linked in a row.
func (f *fixture) process() (d, proc, fn, ev, conn store.OID) {
	f.t.Helper()
	d = f.diagram()
	proc, err := model.CreateObject(f.s, model.TypeFunction, d, store.Nil)
	require.NoError(f.t, err)
	require.NoError(f.t, f.s.Set(proc, model.AttrText, "Handle order"))
	fn, _ = f.place(proc, model.TypeFunction, orb.Point{100, 100})
	require.NoError(f.t, f.s.Set(fn, model.AttrText, "Check order"))
	ev, _ = f.place(proc, model.TypeEvent, orb.Point{100, 250})
	conn, _ = f.place(proc, model.TypeConnector, orb.Point{100, 400})
	require.NoError(f.t, model.SetConnType(f.s, conn, model.ConnXor))
	l1, err := model.CreateLink(f.s, proc, fn, ev)
	require.NoError(f.t, err)
	require.NoError(f.t, l1.SetNodeList([]orb.Point{{200, 175}}))
	_, err = model.CreateLink(f.s, proc, ev, conn)
	require.NoError(f.t, err)
	f.commit()
	return d, proc, fn, ev, conn
}

func TestExportProcess(t *testing.T) {
	f := newFixture(t)
	_, proc, fn, ev, _ := f.process()

	st, err := ExportProcess(f.s, proc)
	require.NoError(t, err)
	assert.Equal(t, StreamFormat, st.Format)
	assert.Equal(t, TagProc, st.Proc.Tag)
	assert.Equal(t, "Handle order", st.Proc.Text)
	assert.Nil(t, st.Proc.PosX)
	require.Len(t, st.Proc.Items, 3)
	assert.Equal(t, []string{TagFunc, TagEvent, TagConn},
		[]string{st.Proc.Items[0].Tag, st.Proc.Items[1].Tag, st.Proc.Items[2].Tag})
	assert.Equal(t, 100.0, *st.Proc.Items[1].PosX)
	assert.Equal(t, 250.0, *st.Proc.Items[1].PosY)
	require.NotNil(t, st.Proc.Items[2].ConnType)
	assert.Equal(t, 2, *st.Proc.Items[2].ConnType)
	require.Len(t, st.Proc.Flows, 2)
	assert.Equal(t, Flow{From: uint64(fn), To: uint64(ev), NodeList: []orb.Point{{200, 175}}}, st.Proc.Flows[0])

	_, err = ExportProcess(f.s, ev)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	_, err = ExportProcess(f.s, 9999)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	d, proc, fn, _, _ := f.process()

	st, err := ExportProcess(f.s, proc)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, st.Encode(&buf))

	got, err := ImportProcess(f.s, d, buf.Bytes(), nil)
	require.NoError(t, err)
	f.commit()

	assert.Equal(t, model.TypeFunction, f.s.Type(got))
	assert.Equal(t, d, f.s.Parent(got))
	assert.Equal(t, "Handle order", store.String(f.s, got, model.AttrText))
	assert.Equal(t, store.String(f.s, proc, model.AttrIdent), store.String(f.s, got, model.AttrAltIdent))
	assert.Equal(t, int64(3), store.Int(f.s, got, model.AttrElemCount))

	nodes := topology.ItemOrigObjs(f.s, got, true, false)
	require.Len(t, nodes, 3)
	newFn, newEv, newConn := nodes[0], nodes[1], nodes[2]
	assert.Equal(t, "Check order", store.String(f.s, newFn, model.AttrText))
	assert.Equal(t, store.String(f.s, fn, model.AttrIdent), store.String(f.s, newFn, model.AttrAltIdent))
	assert.NotEqual(t, fn, newFn)
	assert.Equal(t, model.TypeEvent, f.s.Type(newEv))
	assert.Equal(t, model.ConnXor, model.GetConnType(f.s, newConn))
	evItem := topology.FindItemInDiagram(f.s, got, newEv)
	assert.Equal(t, orb.Point{100, 250}, model.ItemOf(f.s, evItem).Pos())

	assert.Equal(t, []store.OID{newEv}, topology.Successors(f.s, newFn))
	assert.Equal(t, []store.OID{newConn}, topology.Successors(f.s, newEv))
	links := topology.ItemOrigObjs(f.s, got, false, true)
	require.Len(t, links, 2)
	linkItem := topology.FindItemInDiagram(f.s, got, links[0])
	assert.Equal(t, []orb.Point{{200, 175}}, model.ItemOf(f.s, linkItem).NodeList())
	assert.Empty(t, topology.FindOrphans(f.s, got))
}

func TestImportLegacyConnectorCodes(t *testing.T) {
	assert.Equal(t, model.ConnStart, connFromCode(10))
	assert.Equal(t, model.ConnFinish, connFromCode(11))
	assert.Equal(t, model.ConnAnd, connFromCode(0))
	assert.Equal(t, model.ConnUnspecified, connFromCode(42))
}

const headerJSON = `"format": "FlowLineStream", "version": "0.1", "created": "2026-10-16T09:30:00Z"`

func TestImportProcessRejects(t *testing.T) {
	f := newFixture(t)
	d := f.diagram()
	ev, _ := f.place(d, model.TypeEvent, orb.Point{100, 100})
	f.commit()
	before := len(f.s.Children(d))

	tests := []struct {
		name string
		doc  string
	}{
		{"wrong version", `{"format": "FlowLineStream", "version": "2", "created": "2026-10-16T09:30:00Z", "proc": {"tag": "proc"}}`},
		{"not a process", `{` + headerJSON + `, "proc": {"tag": "evt"}}`},
		{"unknown tag", `{` + headerJSON + `, "proc": {"tag": "proc", "items": [{"tag": "oln"}]}}`},
		{"bad flow", `{` + headerJSON + `, "proc": {"tag": "proc", "flows": [{"from": 0, "to": 1}]}}`},
		{"event with items", `{` + headerJSON + `, "proc": {"tag": "proc", "items": [
			{"tag": "func", "oid": 5},
			{"tag": "evt", "oid": 6, "items": [{"tag": "func"}]}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportProcess(f.s, d, []byte(tt.doc), nil)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeMalformedStream), "%v", err)
			assert.Len(t, f.s.Children(d), before)
		})
	}

	doc := `{` + headerJSON + `, "proc": {"tag": "proc"}}`
	_, err := ImportProcess(f.s, ev, []byte(doc), nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidAggregate))
	_, err = ImportProcess(f.s, 9999, []byte(doc), nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestImportSkipsFlowsWithUnknownEnds(t *testing.T) {
	f := newFixture(t)
	d := f.diagram()
	f.commit()

	doc := `{` + headerJSON + `, "proc": {"tag": "proc", "text": "P",
		"items": [
			{"tag": "func", "oid": 5, "id": "X1", "posx": 10, "posy": 20},
			{"tag": "conn", "oid": 6, "id": "K1", "ctyp": 10},
			{"tag": "note", "text": "later", "posx": 0, "posy": 0, "w": 120}
		],
		"flows": [{"from": 5, "to": 6}, {"from": 5, "to": 77}]}}`
	got, err := ImportProcess(f.s, d, []byte(strings.TrimSpace(doc)), nil)
	require.NoError(t, err)

	nodes := topology.ItemOrigObjs(f.s, got, true, false)
	require.Len(t, nodes, 2)
	assert.Equal(t, "X1", store.String(f.s, nodes[0], model.AttrAltIdent))
	// connectors draw no ident of their own
	assert.Equal(t, "K1", store.String(f.s, nodes[1], model.AttrIdent))
	assert.Equal(t, model.ConnStart, model.GetConnType(f.s, nodes[1]))
	assert.Equal(t, nodes[1], store.Ref(f.s, got, model.AttrStart))
	assert.Len(t, topology.ItemOrigObjs(f.s, got, false, true), 1)
}
