// Package controller turns editing commands into store mutations. It owns a
// Scene showing one diagram, receives the link and drop requests the scene
// raises, and runs the graph algorithms of the topology package and the
// automatic layout against the open diagram. Every mutating command ends
// in exactly one commit per logical step; the scene follows through the
// store's change notifications.
package controller

import (
	"context"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/expressions"
	"github.com/rochus-keller/FlowLine2/internal/layout"
	"github.com/rochus-keller/FlowLine2/internal/logging"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/scene"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// Controller executes diagram commands. It is not safe for concurrent use.
type Controller struct {
	s      store.Store
	sc     *scene.Scene
	bridge layout.Bridge
	logger *slog.Logger
	ortho  bool

	sceneOpts []scene.Option
	query     *expressions.ExprEngine
	rules     *expressions.CELEngine
}

// Option configures a Controller.
type Option func(*Controller)

// WithBridge sets the layout engine. Without one, layout commands fail
// with LAYOUT_UNAVAILABLE.
func WithBridge(b layout.Bridge) Option { return func(c *Controller) { c.bridge = b } }

func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithOrtho makes layouts triggered by other commands route flows
// orthogonally.
func WithOrtho(on bool) Option { return func(c *Controller) { c.ortho = on } }

// WithSceneOptions passes options through to the scene.
func WithSceneOptions(opts ...scene.Option) Option {
	return func(c *Controller) { c.sceneOpts = append(c.sceneOpts, opts...) }
}

// New returns a controller over s with no diagram open.
func New(s store.Store, opts ...Option) *Controller {
	c := &Controller{s: s, logger: slog.Default(), query: expressions.NewExprEngine()}
	for _, o := range opts {
		o(c)
	}
	sopts := append([]scene.Option{scene.WithLogger(c.logger)}, c.sceneOpts...)
	c.sc = scene.New(s, append(sopts, scene.WithListener(c))...)
	c.sc.OnModeChange("", scene.ModeAddingLink, c.logMode)
	c.sc.OnModeChange(scene.ModeAddingLink, scene.ModeIdle, c.logMode)
	return c
}

func (c *Controller) logMode(from, to scene.Mode) {
	c.logger.Debug("interaction mode changed", "diagram", c.sc.Diagram(), "from", from, "to", to)
}

func (c *Controller) Scene() *scene.Scene { return c.sc }

func (c *Controller) Store() store.Store { return c.s }

// Open shows diagram. Nil closes the current one.
func (c *Controller) Open(ctx context.Context, diagram store.OID) error {
	return c.sc.SetDiagram(c.ctx(ctx), diagram)
}

func (c *Controller) Close() { c.sc.Close() }

func (c *Controller) ctx(ctx context.Context) context.Context {
	ctx = logging.WithRepoID(ctx, c.s.RepoID().String())
	if d := c.sc.Diagram(); d != store.Nil {
		ctx = logging.WithDiagramID(ctx, uint64(d))
	}
	return ctx
}

func (c *Controller) diagram() (store.OID, error) {
	d := c.sc.Diagram()
	if d == store.Nil {
		return store.Nil, schema.NewError(schema.ErrCodeValidation, "no diagram is open")
	}
	return d, nil
}

// writable returns the open diagram unless the editor is read only.
func (c *Controller) writable() (store.OID, error) {
	if c.sc.ReadOnly() {
		return store.Nil, schema.NewError(schema.ErrCodeReadOnly, "the diagram is read only")
	}
	return c.diagram()
}

// commit commits the store, rolling back when that fails.
func (c *Controller) commit(ctx context.Context) error {
	if err := c.s.Commit(ctx); err != nil {
		c.s.Rollback()
		return err
	}
	return nil
}

// fail rolls back the pending changes and returns err.
func (c *Controller) fail(err error) error {
	c.s.Rollback()
	return err
}

// AddItem creates an object of typ on the open diagram and places it at
// pos. Connectors get the logic conn. The new item is selected.
func (c *Controller) AddItem(ctx context.Context, typ store.TypeID, conn model.ConnType, pos orb.Point) (store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return store.Nil, err
	}
	if typ != model.TypeFunction && typ != model.TypeEvent && typ != model.TypeConnector {
		return store.Nil, schema.NewErrorf(schema.ErrCodeValidation, "cannot add a %s to a diagram", model.PrettyTypeName(typ))
	}
	ctx = c.ctx(ctx)
	obj, err := model.CreateObject(c.s, typ, d, store.Nil)
	if err != nil {
		return store.Nil, c.fail(err)
	}
	if typ == model.TypeConnector && conn != model.ConnUnspecified {
		if err := model.SetConnType(c.s, obj, conn); err != nil {
			return store.Nil, c.fail(err)
		}
	}
	item, err := model.CreateItem(c.s, d, obj, pos)
	if err != nil {
		return store.Nil, c.fail(err)
	}
	if err := c.commit(ctx); err != nil {
		return store.Nil, err
	}
	c.sc.SelectObject(item.ID, true)
	return item.ID, nil
}

// AddNote creates a note at pos. With a single plain item selected the
// note is pinned to it.
func (c *Controller) AddNote(ctx context.Context, pos orb.Point) (store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return store.Nil, err
	}
	sel := c.sc.MultiSelection(true, false, false)
	item, err := model.CreateKind(c.s, d, model.KindNote, pos)
	if err != nil {
		return store.Nil, c.fail(err)
	}
	if len(sel) == 1 && model.ItemOf(c.s, sel[0]).Kind() == model.KindPlain {
		if err := item.SetPinnedTo(sel[0]); err != nil {
			return store.Nil, c.fail(err)
		}
	}
	if err := c.commit(c.ctx(ctx)); err != nil {
		return store.Nil, err
	}
	c.sc.SelectObject(item.ID, true)
	return item.ID, nil
}

// AddFrame creates a frame at pos.
func (c *Controller) AddFrame(ctx context.Context, pos orb.Point) (store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return store.Nil, err
	}
	item, err := model.CreateKind(c.s, d, model.KindFrame, pos)
	if err != nil {
		return store.Nil, c.fail(err)
	}
	if err := c.commit(c.ctx(ctx)); err != nil {
		return store.Nil, err
	}
	c.sc.SelectObject(item.ID, true)
	return item.ID, nil
}

// CreateLink creates a control flow from pred to succ, shows it on the
// open diagram and routes it through path.
func (c *Controller) CreateLink(ctx context.Context, pred, succ store.OID, path []orb.Point) (store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return store.Nil, err
	}
	item, err := model.CreateLink(c.s, d, pred, succ)
	if err != nil {
		return store.Nil, c.fail(err)
	}
	if err := item.SetNodeList(path); err != nil {
		return store.Nil, c.fail(err)
	}
	if err := c.commit(c.ctx(ctx)); err != nil {
		return store.Nil, err
	}
	return item.ID, nil
}

var successorTypes = map[scene.SuccessorKind]struct {
	typ  store.TypeID
	conn model.ConnType
}{
	scene.SuccFunction: {model.TypeFunction, model.ConnUnspecified},
	scene.SuccEvent:    {model.TypeEvent, model.ConnUnspecified},
	scene.SuccAnd:      {model.TypeConnector, model.ConnAnd},
	scene.SuccOr:       {model.TypeConnector, model.ConnOr},
	scene.SuccXor:      {model.TypeConnector, model.ConnXor},
	scene.SuccStart:    {model.TypeConnector, model.ConnStart},
	scene.SuccFinish:   {model.TypeConnector, model.ConnFinish},
}

// CreateSuccessorLink creates a node of kind at pos and a control flow
// from pred to it routed through path. The new node is selected.
func (c *Controller) CreateSuccessorLink(ctx context.Context, pred store.OID, kind scene.SuccessorKind, pos orb.Point, path []orb.Point) (store.OID, error) {
	d, err := c.writable()
	if err != nil {
		return store.Nil, err
	}
	st, ok := successorTypes[kind]
	if !ok {
		return store.Nil, schema.NewErrorf(schema.ErrCodeValidation, "%s is not a successor type", kind)
	}
	succ, err := model.CreateObject(c.s, st.typ, d, store.Nil)
	if err != nil {
		return store.Nil, c.fail(err)
	}
	if st.conn != model.ConnUnspecified {
		if err := model.SetConnType(c.s, succ, st.conn); err != nil {
			return store.Nil, c.fail(err)
		}
	}
	item, err := model.CreateItem(c.s, d, succ, pos)
	if err != nil {
		return store.Nil, c.fail(err)
	}
	link, err := model.CreateLink(c.s, d, pred, succ)
	if err != nil {
		return store.Nil, c.fail(err)
	}
	if err := link.SetNodeList(path); err != nil {
		return store.Nil, c.fail(err)
	}
	if err := c.commit(c.ctx(ctx)); err != nil {
		return store.Nil, err
	}
	c.sc.SelectObject(item.ID, true)
	return item.ID, nil
}

// LinkRequested implements scene.Listener.
func (c *Controller) LinkRequested(pred, succ store.OID, path []orb.Point) {
	ctx := c.ctx(context.Background())
	if _, err := c.CreateLink(ctx, pred, succ, path); err != nil {
		c.logger.ErrorContext(ctx, "create link", "pred", pred, "succ", succ, "error", err)
	}
}

// SuccessorLinkRequested implements scene.Listener.
func (c *Controller) SuccessorLinkRequested(pred store.OID, kind scene.SuccessorKind, pos orb.Point, path []orb.Point) {
	ctx := c.ctx(context.Background())
	if _, err := c.CreateSuccessorLink(ctx, pred, kind, pos, path); err != nil {
		c.logger.ErrorContext(ctx, "create successor", "pred", pred, "kind", kind.String(), "error", err)
	}
}

// DropRequested implements scene.Listener.
func (c *Controller) DropRequested(refs []store.OID, pos orb.Point) {
	ctx := c.ctx(context.Background())
	if _, err := c.PasteRefs(ctx, refs, pos); err != nil {
		c.logger.ErrorContext(ctx, "drop", "refs", len(refs), "error", err)
	}
}

var _ scene.Listener = (*Controller)(nil)
