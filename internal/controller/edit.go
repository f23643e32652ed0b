package controller

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
	"github.com/rochus-keller/FlowLine2/internal/transfer"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// DeleteItems erases the objects behind the selection from the
// repository, with everything that depends on them, in one commit.
func (c *Controller) DeleteItems(ctx context.Context) (int, error) {
	if _, err := c.writable(); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range c.sc.MultiSelection(true, true, true) {
		orig := model.ItemOf(c.s, id).Origin()
		if !c.s.Exists(orig) {
			// already gone with an earlier one
			continue
		}
		if err := model.Erase(c.s, orig); err != nil {
			return 0, c.fail(err)
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, c.commit(c.ctx(ctx))
}

// RemoveItems removes the selected items from the diagram only.
func (c *Controller) RemoveItems(ctx context.Context) error {
	if _, err := c.writable(); err != nil {
		return err
	}
	return c.sc.RemoveSelectedItems(c.ctx(ctx))
}

// InsertHandle splits the selected flow segment at the last press point.
func (c *Controller) InsertHandle(ctx context.Context) error {
	if _, err := c.writable(); err != nil {
		return err
	}
	ok, err := c.sc.InsertHandle(c.ctx(ctx))
	if err != nil {
		return err
	}
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, "no flow segment is selected")
	}
	return nil
}

// SetItemText changes the text of the object shown by item.
func (c *Controller) SetItemText(ctx context.Context, item store.OID, text string) error {
	if _, err := c.writable(); err != nil {
		return err
	}
	return c.sc.SetItemText(c.ctx(ctx), item, text)
}

// RemoveAllAliases removes every item showing a node of another container.
func (c *Controller) RemoveAllAliases(ctx context.Context) (int, error) {
	d, err := c.writable()
	if err != nil {
		return 0, err
	}
	aliases := topology.FindAllAliases(c.s, d)
	for _, id := range aliases {
		if !c.s.Exists(id) {
			continue
		}
		if err := model.Erase(c.s, id); err != nil {
			return 0, c.fail(err)
		}
	}
	if len(aliases) == 0 {
		return 0, nil
	}
	return len(aliases), c.commit(c.ctx(ctx))
}

type kindGroups struct {
	notes, frames, plains []model.DiagItem
}

func (c *Controller) selectedByKind() kindGroups {
	var g kindGroups
	for _, id := range c.sc.MultiSelection(true, false, false) {
		it := model.ItemOf(c.s, id)
		switch it.Kind() {
		case model.KindNote:
			g.notes = append(g.notes, it)
		case model.KindFrame:
			g.frames = append(g.frames, it)
		case model.KindPlain:
			g.plains = append(g.plains, it)
		}
	}
	return g
}

// PinItems anchors the selected items. Notes go to the one frame or the
// one plain item selected with them; plain items go to the one frame
// selected with them when no notes are.
func (c *Controller) PinItems(ctx context.Context) error {
	if _, err := c.writable(); err != nil {
		return err
	}
	g := c.selectedByKind()
	pinNotes := len(g.notes) > 0 && (len(g.frames) == 1) != (len(g.plains) == 1)
	pinPlains := len(g.plains) > 0 && len(g.frames) == 1 && len(g.notes) == 0

	var items []model.DiagItem
	var target model.DiagItem
	switch {
	case pinNotes:
		items = g.notes
		if len(g.frames) == 1 {
			target = g.frames[0]
		} else {
			target = g.plains[0]
		}
	case pinPlains:
		items, target = g.plains, g.frames[0]
	default:
		return schema.NewError(schema.ErrCodeValidation, "the selection cannot be pinned")
	}
	for _, it := range items {
		if err := it.SetPinnedTo(target.ID); err != nil {
			return c.fail(err)
		}
	}
	return c.commit(c.ctx(ctx))
}

// Unpin releases the selected notes, or the selected plain items. Notes
// and plain items selected together are refused.
func (c *Controller) Unpin(ctx context.Context) error {
	if _, err := c.writable(); err != nil {
		return err
	}
	g := c.selectedByKind()
	var items []model.DiagItem
	switch {
	case len(g.notes) > 0 && len(g.plains) == 0:
		items = g.notes
	case len(g.plains) > 0 && len(g.notes) == 0:
		items = g.plains
	default:
		return schema.NewError(schema.ErrCodeValidation, "the selection cannot be unpinned")
	}
	for _, it := range items {
		if err := it.SetPinnedTo(store.Nil); err != nil {
			return c.fail(err)
		}
	}
	return c.commit(c.ctx(ctx))
}

// singleOrigin returns the object behind the only selected element.
func (c *Controller) singleOrigin() (store.OID, error) {
	item := c.sc.SingleSelection()
	if item == store.Nil {
		return store.Nil, schema.NewError(schema.ErrCodeValidation, "select exactly one element")
	}
	return model.ItemOf(c.s, item).Origin(), nil
}

// ToggleFuncEvent turns the selected function into an event or the
// selected event into a function.
func (c *Controller) ToggleFuncEvent(ctx context.Context) error {
	if _, err := c.writable(); err != nil {
		return err
	}
	o, err := c.singleOrigin()
	if err != nil {
		return err
	}
	var to store.TypeID
	switch c.s.Type(o) {
	case model.TypeFunction:
		to = model.TypeEvent
	case model.TypeEvent:
		to = model.TypeFunction
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "%s is neither function nor event",
			model.PrettyTypeName(c.s.Type(o))).WithObject(uint64(o))
	}
	if !model.CanConvert(c.s, o, to) {
		return schema.NewErrorf(schema.ErrCodeConflict, "cannot convert to %s", model.PrettyTypeName(to)).WithObject(uint64(o))
	}
	if err := model.RetypeObject(c.s, o, to); err != nil {
		return c.fail(err)
	}
	return c.commit(c.ctx(ctx))
}

// SetConnType changes the logic of the selected connector.
func (c *Controller) SetConnType(ctx context.Context, t model.ConnType) error {
	if _, err := c.writable(); err != nil {
		return err
	}
	o, err := c.singleOrigin()
	if err != nil {
		return err
	}
	if c.s.Type(o) != model.TypeConnector {
		return schema.NewError(schema.ErrCodeValidation, "no connector is selected").WithObject(uint64(o))
	}
	if model.GetConnType(c.s, o) == t {
		return nil
	}
	if err := model.SetConnType(c.s, o, t); err != nil {
		return c.fail(err)
	}
	return c.commit(c.ctx(ctx))
}

// SetDirection stores the flow direction used by the next layout.
func (c *Controller) SetDirection(ctx context.Context, dir model.Direction) error {
	d, err := c.writable()
	if err != nil {
		return err
	}
	if model.GetDirection(c.s, d) == dir && c.s.Has(d, model.AttrDirection) {
		return nil
	}
	if err := model.SetDirection(c.s, d, dir); err != nil {
		return c.fail(err)
	}
	return c.commit(c.ctx(ctx))
}

// Copy writes the selected items to a clipboard document.
func (c *Controller) Copy() ([]byte, error) {
	if _, err := c.diagram(); err != nil {
		return nil, err
	}
	sel := c.sc.MultiSelection(true, true, true)
	if len(sel) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "nothing is selected")
	}
	clip, _ := transfer.WriteItems(c.s, sel)
	return clip.Marshal()
}

// Cut copies the selected items and removes them from the diagram.
func (c *Controller) Cut(ctx context.Context) ([]byte, error) {
	if _, err := c.writable(); err != nil {
		return nil, err
	}
	doc, err := c.Copy()
	if err != nil {
		return nil, err
	}
	if err := c.sc.RemoveSelectedItems(c.ctx(ctx)); err != nil {
		return nil, err
	}
	return doc, nil
}

// Paste recreates the items of a clipboard document on the open diagram
// with their top left corner at where, and selects them.
func (c *Controller) Paste(ctx context.Context, doc []byte, where orb.Point) ([]store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return nil, err
	}
	clip, err := transfer.DecodeClipboard(doc)
	if err != nil {
		return nil, err
	}
	items, err := transfer.ReadItems(c.s, d, clip)
	if err != nil {
		return nil, err
	}
	if err := transfer.AdjustTo(c.s, items, model.Rastered(where)); err != nil {
		return nil, c.fail(err)
	}
	if err := c.commit(c.ctx(ctx)); err != nil {
		return nil, err
	}
	c.sc.SelectObjects(items, true)
	return items, nil
}

// PasteRefs places the given objects on the open diagram, stacked from
// where, followed by the flows connecting them to what is already shown.
// It returns the objects placed.
func (c *Controller) PasteRefs(ctx context.Context, objs []store.OID, where orb.Point) ([]store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return nil, err
	}
	ctx = c.ctx(ctx)
	done, err := topology.AddItemsToDiagram(c.s, d, objs, model.Rastered(where))
	if err != nil {
		return nil, c.fail(err)
	}
	if err := c.commit(ctx); err != nil {
		return nil, err
	}
	if _, err := topology.AddItemLinksToDiagram(c.s, d, done); err != nil {
		return nil, c.fail(err)
	}
	if err := c.commit(ctx); err != nil {
		return nil, err
	}
	return done, nil
}
