// Package transfer moves diagram content in and out of a repository: the
// clipboard document used for copy and paste within one repository, and
// the process stream that exports a process with its diagram to another.
// Incoming documents are validated against embedded JSON Schemas first.
package transfer

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// Clipboard holds copied diagram items. Plain items and links refer to
// their origins by object id, so a clipboard only pastes into the
// repository it was taken from.
type Clipboard struct {
	Repo  uuid.UUID  `json:"repo"`
	Items []ClipItem `json:"items"`
	Links []ClipLink `json:"links,omitempty"`
}

// ClipItem is a copied node, note or frame. Obj is set for plain items only.
type ClipItem struct {
	X    float64    `json:"x"`
	Y    float64    `json:"y"`
	W    *float64   `json:"w,omitempty"`
	H    *float64   `json:"h,omitempty"`
	Kind model.Kind `json:"kind"`
	Text string     `json:"text,omitempty"`
	Obj  store.OID  `json:"obj,omitempty"`
}

// ClipLink is a copied control flow with its routing points.
type ClipLink struct {
	Obj  store.OID   `json:"obj"`
	Path []orb.Point `json:"path,omitempty"`
}

func optFloat(s store.Store, id store.OID, attr store.AttrID) *float64 {
	if !s.Has(id, attr) {
		return nil
	}
	v := store.Float(s, id, attr)
	return &v
}

// WriteItems copies the given diagram items. Nodes and annotations are
// written before links so that pasting recreates link ends first. The
// origins of the copied plain items and links are returned.
func WriteItems(s store.Store, items []store.OID) (*Clipboard, []store.OID) {
	clip := &Clipboard{Repo: s.RepoID(), Items: []ClipItem{}}
	var origs []store.OID
	for _, id := range items {
		it := model.ItemOf(s, id)
		if it.IsNull() || s.Type(it.Origin()) == model.TypeConFlow {
			continue
		}
		ci := ClipItem{
			X:    store.Float(s, id, model.AttrPosX),
			Y:    store.Float(s, id, model.AttrPosY),
			W:    optFloat(s, id, model.AttrWidth),
			H:    optFloat(s, id, model.AttrHeight),
			Kind: it.Kind(),
			Text: it.Text(),
		}
		if ci.Kind == model.KindPlain {
			ci.Obj = it.Origin()
			origs = append(origs, ci.Obj)
		}
		clip.Items = append(clip.Items, ci)
	}
	for _, id := range items {
		it := model.ItemOf(s, id)
		if it.IsNull() || s.Type(it.Origin()) != model.TypeConFlow {
			continue
		}
		clip.Links = append(clip.Links, ClipLink{Obj: it.Origin(), Path: it.NodeList()})
		origs = append(origs, it.Origin())
	}
	return clip, origs
}

// Marshal encodes the clipboard as JSON.
func (c *Clipboard) Marshal() ([]byte, error) { return json.Marshal(c) }

// DecodeClipboard validates and decodes a clipboard document.
func DecodeClipboard(data []byte) (*Clipboard, error) {
	var c Clipboard
	if err := decode(data, clipboardSchema, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ReadItems pastes clip onto diagram and returns the items created.
// Plain items are only created for origins that still exist and are not
// yet on the diagram; notes and frames are always recreated as their own
// origins. Links are created when the flow is not yet shown and both of
// its ends are. Finally the hidden links of the pasted nodes are added.
// The caller commits; on failure the store is rolled back.
func ReadItems(s store.Store, diagram store.OID, clip *Clipboard) ([]store.OID, error) {
	if clip.Repo != s.RepoID() {
		return nil, schema.NewErrorf(schema.ErrCodeForeignRepository,
			"clipboard belongs to repository %s", clip.Repo).
			WithDetails(map[string]any{"repo": clip.Repo.String()})
	}
	res, err := readItems(s, diagram, clip)
	if err != nil {
		s.Rollback()
		return nil, err
	}
	return res, nil
}

func readItems(s store.Store, diagram store.OID, clip *Clipboard) ([]store.OID, error) {
	existing := topology.ItemOrigins(s, diagram)
	var res, done []store.OID
	for _, ci := range clip.Items {
		pos := orb.Point{ci.X, ci.Y}
		if ci.Kind != model.KindPlain {
			item, err := model.CreateKind(s, diagram, ci.Kind, orb.Point{})
			if err != nil {
				return nil, err
			}
			if err := item.SetPos(pos); err != nil {
				return nil, err
			}
			for attr, v := range map[store.AttrID]*float64{model.AttrWidth: ci.W, model.AttrHeight: ci.H} {
				if v == nil {
					continue
				}
				if err := s.Set(item.ID, attr, *v); err != nil {
					return nil, err
				}
			}
			if ci.Text != "" {
				if err := s.Set(item.ID, model.AttrText, ci.Text); err != nil {
					return nil, err
				}
			}
			res = append(res, item.ID)
			continue
		}
		if !s.Exists(ci.Obj) || !topology.IsSchedObj(s.Type(ci.Obj)) {
			continue
		}
		if _, ok := existing[ci.Obj]; ok {
			continue
		}
		item, err := model.CreateItem(s, diagram, ci.Obj, orb.Point{})
		if err != nil {
			return nil, err
		}
		if err := item.SetPos(pos); err != nil {
			return nil, err
		}
		existing[ci.Obj] = struct{}{}
		done = append(done, ci.Obj)
		res = append(res, item.ID)
	}
	for _, cl := range clip.Links {
		if s.Type(cl.Obj) != model.TypeConFlow {
			continue
		}
		if _, ok := existing[cl.Obj]; ok {
			continue
		}
		_, hasPred := existing[store.Ref(s, cl.Obj, model.AttrPred)]
		_, hasSucc := existing[store.Ref(s, cl.Obj, model.AttrSucc)]
		if !hasPred || !hasSucc {
			continue
		}
		item, err := model.CreateItem(s, diagram, cl.Obj, orb.Point{})
		if err != nil {
			return nil, err
		}
		if err := item.SetNodeList(cl.Path); err != nil {
			return nil, err
		}
		existing[cl.Obj] = struct{}{}
		res = append(res, item.ID)
	}
	if len(done) == 0 {
		return res, nil
	}
	for _, link := range topology.FindHiddenLinks(s, diagram, done) {
		item, err := model.CreateItem(s, diagram, link, orb.Point{})
		if err != nil {
			return nil, err
		}
		res = append(res, item.ID)
	}
	return res, nil
}

// AdjustTo shifts pasted items so that the top left corner of the nodes'
// bounding box lands on to. Link routes move by the same offset. Every
// resulting coordinate is rastered.
func AdjustTo(s store.Store, items []store.OID, to orb.Point) error {
	var bound orb.Bound
	first := true
	for _, id := range items {
		it := model.ItemOf(s, id)
		if s.Type(it.Origin()) == model.TypeConFlow {
			continue
		}
		r := it.BoundingRect()
		if first {
			bound, first = r, false
		} else {
			bound = bound.Union(r)
		}
	}
	if first {
		return nil
	}
	off := model.Sub(to, bound.Min)
	for _, id := range items {
		it := model.ItemOf(s, id)
		if s.Type(it.Origin()) == model.TypeConFlow {
			if !it.HasNodeList() {
				continue
			}
			pts := it.NodeList()
			for i := range pts {
				pts[i] = model.Rastered(model.Add(pts[i], off))
			}
			if err := it.SetNodeList(pts); err != nil {
				return err
			}
			continue
		}
		if err := it.SetPos(model.Rastered(model.Add(it.Pos(), off))); err != nil {
			return err
		}
	}
	return nil
}
