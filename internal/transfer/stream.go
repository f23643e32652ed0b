package transfer

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

const (
	StreamFormat  = "FlowLineStream"
	StreamVersion = "0.1"
)

// Frame tags.
const (
	TagProc  = "proc"
	TagFunc  = "func"
	TagEvent = "evt"
	TagConn  = "conn"
	TagNote  = "note"
	TagFrame = "fram"
)

// Stream is an exported process: a header and the process frame.
type Stream struct {
	Format  string    `json:"format"`
	Version string    `json:"version"`
	Created time.Time `json:"created"`
	Proc    Frame     `json:"proc"`
}

// Frame is one exported object together with the placement it had on the
// diagram of its container. A process frame nests the frames of the
// objects on its diagram and the flows between them; flows refer to the
// exported OID of their ends.
type Frame struct {
	Tag      string   `json:"tag"`
	OID      uint64   `json:"oid,omitempty"`
	Text     string   `json:"text,omitempty"`
	Ident    string   `json:"id,omitempty"`
	ConnType *int     `json:"ctyp,omitempty"`
	PosX     *float64 `json:"posx,omitempty"`
	PosY     *float64 `json:"posy,omitempty"`
	Width    *float64 `json:"w,omitempty"`
	Height   *float64 `json:"h,omitempty"`
	Items    []Frame  `json:"items,omitempty"`
	Flows    []Flow   `json:"flows,omitempty"`
}

// Flow is an exported control flow with its routing points.
type Flow struct {
	From     uint64      `json:"from"`
	To       uint64      `json:"to"`
	NodeList []orb.Point `json:"nlst,omitempty"`
}

// Connector logic codes on the wire. They keep the numbering of the first
// FlowLine generation so that older streams still import.
var connCodes = map[model.ConnType]int{
	model.ConnAnd:    0,
	model.ConnOr:     1,
	model.ConnXor:    2,
	model.ConnStart:  10,
	model.ConnFinish: 11,
}

func connFromCode(code int) model.ConnType {
	for t, c := range connCodes {
		if c == code {
			return t
		}
	}
	return model.ConnUnspecified
}

// ExportProcess writes the process proc, its diagram content and the
// diagrams of nested processes. Notes and frames are not exported.
func ExportProcess(s store.Store, proc store.OID) (*Stream, error) {
	switch t := s.Type(proc); {
	case t == 0:
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "object %d not found", proc).WithObject(uint64(proc))
	case t != model.TypeFunction && t != model.TypeDiagram:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s cannot be exported as a process",
			model.PrettyTypeName(t)).WithObject(uint64(proc))
	}
	w := exporter{s: s, active: make(map[store.OID]bool)}
	f := Frame{Tag: TagProc}
	w.fill(&f, proc, store.Nil)
	return &Stream{Format: StreamFormat, Version: StreamVersion, Created: model.Now(), Proc: f}, nil
}

type exporter struct {
	s      store.Store
	active map[store.OID]bool
}

func (w exporter) frame(orig, item store.OID) (Frame, bool) {
	var tag string
	switch w.s.Type(orig) {
	case model.TypeFunction:
		tag = TagFunc
		if store.Int(w.s, orig, model.AttrElemCount) > 0 {
			tag = TagProc
		}
	case model.TypeEvent:
		tag = TagEvent
	case model.TypeConnector:
		tag = TagConn
	default:
		return Frame{}, false
	}
	f := Frame{Tag: tag}
	w.fill(&f, orig, item)
	return f, true
}

func (w exporter) fill(f *Frame, orig, item store.OID) {
	s := w.s
	f.OID = uint64(orig)
	f.Text = store.String(s, orig, model.AttrText)
	f.Ident = store.String(s, orig, model.AttrIdent)
	if s.Has(orig, model.AttrConnType) {
		if code, ok := connCodes[model.GetConnType(s, orig)]; ok {
			f.ConnType = &code
		}
	}
	if item != store.Nil {
		f.PosX = optFloat(s, item, model.AttrPosX)
		f.PosY = optFloat(s, item, model.AttrPosY)
		f.Width = optFloat(s, item, model.AttrWidth)
		f.Height = optFloat(s, item, model.AttrHeight)
	}
	// an alias of an enclosing process would nest it into itself
	if w.active[orig] {
		return
	}
	w.active[orig] = true
	defer delete(w.active, orig)

	var flows []store.OID
	for _, sub := range s.Children(orig) {
		if s.Type(sub) != model.TypeDiagItem {
			continue
		}
		o := model.ItemOf(s, sub).Origin()
		if s.Type(o) == model.TypeConFlow {
			flows = append(flows, sub)
			continue
		}
		if sf, ok := w.frame(o, sub); ok {
			f.Items = append(f.Items, sf)
		}
	}
	for _, sub := range flows {
		it := model.ItemOf(s, sub)
		link := it.Origin()
		f.Flows = append(f.Flows, Flow{
			From:     uint64(store.Ref(s, link, model.AttrPred)),
			To:       uint64(store.Ref(s, link, model.AttrSucc)),
			NodeList: it.NodeList(),
		})
	}
}

// Encode writes the stream as indented JSON.
func (st *Stream) Encode(out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// DecodeStream validates and decodes a process stream.
func DecodeStream(data []byte) (*Stream, error) {
	var st Stream
	if err := decode(data, streamSchema, &st); err != nil {
		return nil, err
	}
	if st.Proc.Tag != TagProc {
		return nil, malformed("stream does not start with a process", nil)
	}
	return &st, nil
}

// ImportProcess reads a process stream and recreates the process below
// parent: a new function holding the streamed objects, their items on its
// diagram and the flows between them. Object ids are remapped; an
// imported ident becomes the alternative ident when the new object already
// drew one of its own. The caller commits; any failure rolls the store
// back and reports MALFORMED_STREAM.
func ImportProcess(s store.Store, parent store.OID, data []byte, logger *slog.Logger) (store.OID, error) {
	pt := s.Type(parent)
	if pt == 0 {
		return store.Nil, schema.NewErrorf(schema.ErrCodeNotFound, "parent %d not found", parent).WithObject(uint64(parent))
	}
	if !model.IsValidAggregate(pt, model.TypeFunction) {
		return store.Nil, schema.NewErrorf(schema.ErrCodeInvalidAggregate, "%s cannot hold a process",
			model.PrettyTypeName(pt)).WithObject(uint64(parent))
	}
	st, err := DecodeStream(data)
	if err != nil {
		return store.Nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := importer{s: s, logger: logger}
	proc, err := r.read(parent, &st.Proc, false)
	if err != nil {
		s.Rollback()
		return store.Nil, malformed("import process", err)
	}
	return proc, nil
}

type importer struct {
	s      store.Store
	logger *slog.Logger
}

func (r importer) create(parent store.OID, tag string) (orig store.OID, item model.DiagItem, err error) {
	var typ store.TypeID
	switch tag {
	case TagProc, TagFunc:
		typ = model.TypeFunction
	case TagEvent:
		typ = model.TypeEvent
	case TagConn:
		typ = model.TypeConnector
	case TagNote, TagFrame:
		k := model.KindNote
		if tag == TagFrame {
			k = model.KindFrame
		}
		item, err = model.CreateKind(r.s, parent, k, orb.Point{})
		return item.ID, item, err
	default:
		return store.Nil, item, schema.NewErrorf(schema.ErrCodeValidation, "unknown frame %q", tag)
	}
	orig, err = model.CreateObject(r.s, typ, parent, store.Nil)
	return orig, item, err
}

// read creates the object of f below parent. Nested frames are also
// placed on parent's diagram.
func (r importer) read(parent store.OID, f *Frame, placed bool) (store.OID, error) {
	s := r.s
	orig, item, err := r.create(parent, f.Tag)
	if err != nil {
		return store.Nil, err
	}
	if placed && item.IsNull() {
		if item, err = model.CreateItem(s, parent, orig, orb.Point{}); err != nil {
			return store.Nil, err
		}
	}
	if f.Text != "" {
		if err := s.Set(orig, model.AttrText, f.Text); err != nil {
			return store.Nil, err
		}
	}
	if f.Ident != "" {
		attr := model.AttrIdent
		if s.Has(orig, model.AttrIdent) {
			attr = model.AttrAltIdent
		}
		if err := s.Set(orig, attr, f.Ident); err != nil {
			return store.Nil, err
		}
	}
	if f.ConnType != nil && s.Type(orig) == model.TypeConnector {
		if err := model.SetConnType(s, orig, connFromCode(*f.ConnType)); err != nil {
			return store.Nil, err
		}
	}
	if !item.IsNull() {
		for attr, v := range map[store.AttrID]*float64{
			model.AttrPosX: f.PosX, model.AttrPosY: f.PosY,
			model.AttrWidth: f.Width, model.AttrHeight: f.Height,
		} {
			if v == nil {
				continue
			}
			if err := s.Set(item.ID, attr, *v); err != nil {
				return store.Nil, err
			}
		}
	}
	if len(f.Items) == 0 && len(f.Flows) == 0 {
		return orig, nil
	}
	if s.Type(orig) != model.TypeFunction {
		return store.Nil, schema.NewErrorf(schema.ErrCodeValidation, "frame %q cannot hold items", f.Tag)
	}

	subs := make(map[uint64]store.OID, len(f.Items))
	for i := range f.Items {
		sub, err := r.read(orig, &f.Items[i], true)
		if err != nil {
			return store.Nil, err
		}
		if f.Items[i].OID != 0 {
			subs[f.Items[i].OID] = sub
		}
	}
	for _, fl := range f.Flows {
		from, to := subs[fl.From], subs[fl.To]
		if from == store.Nil || to == store.Nil {
			r.logger.Debug("skipping flow with unknown end", "from", fl.From, "to", fl.To)
			continue
		}
		link, err := model.CreateLink(s, orig, from, to)
		if err != nil {
			return store.Nil, err
		}
		if err := link.SetNodeList(fl.NodeList); err != nil {
			return store.Nil, err
		}
	}
	return orig, nil
}
