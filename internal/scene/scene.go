// Package scene keeps the live graph of one open diagram in step with the
// store and implements the pointer interaction that edits it.
//
// A Scene is single threaded: all calls, including the store notifications
// it receives, must come from the goroutine that commits the store.
package scene

import (
	"context"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/logging"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// ref points a cache key at a node or at the persisted segment of a flow.
type ref struct {
	node ElemID
	seg  ElemID
}

// defaultRect is the initial scene rectangle, one screen.
var defaultRect = orb.Bound{Max: orb.Point{1920, 1080}}

// Scene owns the graph of one diagram.
type Scene struct {
	s        store.Store
	logger   *slog.Logger
	listener Listener
	chooser  SuccessorChooser
	metrics  TextMetrics
	strict   bool
	readOnly bool

	diagram   store.OID
	g         *Graph
	cache     map[store.OID]ref
	unobserve func()
	loading   bool
	orphans   []store.OID
	waiting   map[store.OID]struct{}

	modes      *modeMachine
	startPos   orb.Point
	lastPos    orb.Point
	pointer    orb.Point
	startItem  ElemID
	lastHit    ElemID
	rubberEnd  orb.Point
	ghost      orb.Point
	commitLock bool
	moved      map[ElemID]bool

	inbox    []store.UpdateInfo
	applying bool
	wrote    bool
	rect     orb.Bound
}

// Option configures a Scene.
type Option func(*Scene)

func WithListener(l Listener) Option { return func(sc *Scene) { sc.listener = l } }

func WithChooser(c SuccessorChooser) Option { return func(sc *Scene) { sc.chooser = c } }

func WithTextMetrics(m TextMetrics) Option { return func(sc *Scene) { sc.metrics = m } }

// WithStrictSyntax limits functions and events to one incoming and one
// outgoing flow.
func WithStrictSyntax(on bool) Option { return func(sc *Scene) { sc.strict = on } }

func WithReadOnly(on bool) Option { return func(sc *Scene) { sc.readOnly = on } }

func WithLogger(l *slog.Logger) Option { return func(sc *Scene) { sc.logger = l } }

// New returns an empty scene over s.
func New(s store.Store, opts ...Option) *Scene {
	sc := &Scene{
		s:       s,
		logger:  slog.Default(),
		metrics: DefaultMetrics,
		modes:   newModeMachine(),
		rect:    defaultRect,
	}
	for _, o := range opts {
		o(sc)
	}
	sc.reset()
	return sc
}

func (sc *Scene) reset() {
	sc.g = newGraph()
	sc.g.onRemove = sc.uncache
	sc.cache = make(map[store.OID]ref)
	sc.waiting = make(map[store.OID]struct{})
	sc.orphans = nil
	sc.inbox = nil
	sc.startItem, sc.lastHit = 0, 0
	sc.modes.reset()
}

func (sc *Scene) Store() store.Store { return sc.s }

func (sc *Scene) Diagram() store.OID { return sc.diagram }

func (sc *Scene) Graph() *Graph { return sc.g }

func (sc *Scene) Mode() Mode { return sc.modes.cur }

func (sc *Scene) ReadOnly() bool { return sc.readOnly }

func (sc *Scene) SetReadOnly(on bool) { sc.readOnly = on }

func (sc *Scene) StrictSyntax() bool { return sc.strict }

func (sc *Scene) SetStrictSyntax(on bool) { sc.strict = on }

// OnModeChange registers a hook run after the interaction moves from one
// mode to another. An empty from matches every source mode.
func (sc *Scene) OnModeChange(from, to Mode, hook TransitionHook) {
	sc.modes.onAfter(from, to, hook)
}

func (sc *Scene) ctx(ctx context.Context) context.Context {
	return logging.WithDiagramID(ctx, uint64(sc.diagram))
}

// SetDiagram replaces the shown diagram. Items that cannot be shown are
// erased in one commit. Nil detaches the scene.
func (sc *Scene) SetDiagram(ctx context.Context, diagram store.OID) error {
	if diagram == sc.diagram {
		return nil
	}
	sc.detach()
	sc.diagram = store.Nil
	if diagram == store.Nil {
		return nil
	}
	if !model.IsDiagram(sc.s.Type(diagram)) {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no diagram %d", diagram).WithObject(uint64(diagram))
	}
	sc.diagram = diagram
	ctx = sc.ctx(ctx)

	sc.loading = true
	items := sc.s.Children(diagram)
	for _, id := range items {
		if sc.s.Type(id) == model.TypeDiagItem {
			sc.fetchItem(id, false, true)
		}
	}
	for _, id := range items {
		if sc.s.Type(id) == model.TypeDiagItem {
			sc.fetchItem(id, true, false)
		}
	}
	sc.loading = false
	clear(sc.waiting)

	if len(sc.orphans) > 0 || sc.wrote {
		for _, o := range sc.orphans {
			logging.LogWith(ctx, sc.logger).DebugContext(ctx, "erasing orphan item", "item", o)
			if err := model.Erase(sc.s, o); err != nil {
				sc.s.Rollback()
				sc.orphans = nil
				return err
			}
		}
		sc.orphans = nil
		sc.wrote = false
		if err := sc.s.Commit(ctx); err != nil {
			return err
		}
	}
	sc.unobserve = sc.s.AddObserver(sc.onStoreChange)
	sc.FitRect(false)
	return nil
}

// Close detaches the scene from its diagram and the store.
func (sc *Scene) Close() { sc.detach(); sc.diagram = store.Nil }

func (sc *Scene) detach() {
	if sc.unobserve != nil {
		sc.unobserve()
		sc.unobserve = nil
	}
	sc.reset()
}

func (sc *Scene) uncache(id ElemID, item, orig store.OID) {
	for _, key := range []store.OID{item, orig} {
		if key == store.Nil {
			continue
		}
		if r, ok := sc.cache[key]; ok && (r.node == id || r.seg == id) {
			delete(sc.cache, key)
		}
	}
}

// NodeFor returns the node of an item or origin id.
func (sc *Scene) NodeFor(id store.OID) *Node {
	if r, ok := sc.cache[id]; ok && r.node != 0 {
		return sc.g.nodes[r.node]
	}
	return nil
}

// SegmentFor returns the persisted segment of a flow item or flow object.
func (sc *Scene) SegmentFor(id store.OID) *Segment {
	if r, ok := sc.cache[id]; ok && r.seg != 0 {
		return sc.g.segs[r.seg]
	}
	return nil
}

// Contains reports whether id is an item or origin shown by the scene.
func (sc *Scene) Contains(id store.OID) bool {
	_, ok := sc.cache[id]
	return ok
}

func nodeTypeFor(t store.TypeID, k model.Kind) (NodeType, bool) {
	switch {
	case t == model.TypeFunction:
		return NodeFunction, true
	case t == model.TypeEvent:
		return NodeEvent, true
	case t == model.TypeConnector:
		return NodeConnector, true
	case t == model.TypeDiagItem && k == model.KindNote:
		return NodeNote, true
	case t == model.TypeDiagItem && k == model.KindFrame:
		return NodeFrame, true
	}
	return 0, false
}

// fetchItem builds the graph elements of one item: its node in the
// vertices pass, its flow chain and pin in the links pass.
func (sc *Scene) fetchItem(id store.OID, links, vertices bool) {
	item := model.ItemOf(sc.s, id)
	orig := item.Origin()
	if orig == store.Nil || !sc.s.Exists(orig) {
		if vertices {
			sc.orphans = append(sc.orphans, id)
		}
		return
	}
	t := sc.s.Type(orig)
	if vertices && t != model.TypeConFlow {
		nt, ok := nodeTypeFor(t, item.Kind())
		switch {
		case !ok:
			sc.orphans = append(sc.orphans, id)
			return
		case sc.Contains(orig):
			sc.duplicate(id, orig)
			return
		}
		n := sc.g.addNode(nt, id, orig, item.Pos())
		sc.fetchAttributes(n)
		sc.cache[id] = ref{node: n.ID}
		sc.cache[orig] = ref{node: n.ID}
		if !sc.loading {
			sc.retryWaiting()
		}
	}
	if links && t == model.TypeConFlow {
		if sc.Contains(orig) {
			sc.duplicate(id, orig)
			return
		}
		start := sc.NodeFor(store.Ref(sc.s, orig, model.AttrPred))
		end := sc.NodeFor(store.Ref(sc.s, orig, model.AttrSucc))
		if start == nil || end == nil {
			if sc.loading {
				sc.orphans = append(sc.orphans, id)
			} else {
				sc.waiting[id] = struct{}{}
			}
			return
		}
		delete(sc.waiting, id)
		title := model.FormatTitle(sc.s, orig, true)
		from := start
		for _, p := range item.NodeList() {
			h := sc.g.addNode(NodeHandle, store.Nil, store.Nil, p)
			sc.g.addSegment(from, h, store.Nil, store.Nil).Title = title
			from = h
		}
		last := sc.g.addSegment(from, end, id, orig)
		last.Title = title
		sc.cache[id] = ref{seg: last.ID}
		sc.cache[orig] = ref{seg: last.ID}
	}
	if links {
		sc.installPin(id)
	}
}

// duplicate handles a second item for an origin already shown. During a
// load it is purged with the orphans; otherwise it is only reported.
func (sc *Scene) duplicate(id, orig store.OID) {
	if sc.loading {
		sc.orphans = append(sc.orphans, id)
	}
	sc.logger.Debug("origin already in diagram", "diagram", sc.diagram, "item", id,
		"origin", orig, "title", model.FormatTitle(sc.s, orig, true))
}

// retryWaiting builds the flows that arrived before their end nodes.
func (sc *Scene) retryWaiting() {
	for id := range sc.waiting {
		if sc.s.Type(id) != model.TypeDiagItem || sc.s.Parent(id) != sc.diagram {
			delete(sc.waiting, id)
			continue
		}
		orig := model.ItemOf(sc.s, id).Origin()
		if sc.NodeFor(store.Ref(sc.s, orig, model.AttrPred)) != nil &&
			sc.NodeFor(store.Ref(sc.s, orig, model.AttrSucc)) != nil {
			sc.fetchItem(id, true, false)
		}
	}
}

// fetchAttributes copies the display attributes of the node's origin.
func (sc *Scene) fetchAttributes(n *Node) {
	orig := n.Orig
	n.Text = store.String(sc.s, orig, model.AttrText)
	n.Ident = model.FormatID(sc.s, orig, false)
	n.Title = model.FormatTitle(sc.s, orig, true)
	switch n.Type {
	case NodeFunction:
		n.Process = store.Int(sc.s, orig, model.AttrElemCount) > 0
		n.Alias = sc.s.Parent(orig) != sc.diagram
	case NodeEvent:
		n.Alias = sc.s.Parent(orig) != sc.diagram
	case NodeConnector:
		n.Code = model.GetConnType(sc.s, orig)
		n.Alias = sc.s.Parent(orig) != sc.diagram
	case NodeNote:
		sc.setNoteWidth(n, store.Float(sc.s, orig, model.AttrWidth))
		if store.Float(sc.s, orig, model.AttrHeight) != n.Height {
			if err := sc.s.Set(orig, model.AttrHeight, n.Height); err == nil {
				sc.wrote = true
			}
		}
	case NodeFrame:
		setFrameSize(n, store.Float(sc.s, orig, model.AttrWidth), store.Float(sc.s, orig, model.AttrHeight))
	}
}

func (sc *Scene) setNoteWidth(n *Node, w float64) {
	n.Width = max(w, minNoteWidth)
	text := n.Text
	if text == "" {
		text = "Empty"
	}
	n.Height = sc.metrics.TextHeight(text, n.Width-2*model.TextMargin) + 2*model.TextMargin
}

func setFrameSize(n *Node, w, h float64) {
	n.Width = max(w, minFrameWidth)
	n.Height = max(h, minFrameHeight)
}

// installPin resolves the pinned-to reference of an item.
func (sc *Scene) installPin(id store.OID) {
	n := sc.NodeFor(id)
	if n == nil || n.Item != id {
		return
	}
	to := model.ItemOf(sc.s, id).PinnedTo()
	if to == store.Nil {
		if n.PinnedTo != 0 {
			sc.g.setPinnedTo(n, 0)
		}
		return
	}
	if cur := sc.g.nodes[n.PinnedTo]; cur != nil && cur.Item == to {
		return
	}
	target := sc.NodeFor(to)
	if target == nil || target.Item != to {
		sc.logger.Debug("cannot find pinning target", "item", id, "target", to)
		return
	}
	sc.g.setPinnedTo(n, target.ID)
}

// ShowIds reports whether node labels carry idents. It defaults to true.
func (sc *Scene) ShowIds() bool {
	if sc.diagram == store.Nil {
		return false
	}
	return store.Bool(sc.s, sc.diagram, model.AttrShowIds, true)
}

func (sc *Scene) SetShowIds(ctx context.Context, on bool) error {
	return sc.setDiagramFlag(ctx, model.AttrShowIds, on)
}

// MarkAlias reports whether nodes owned elsewhere are marked. It defaults
// to true on every diagram kind except plain diagrams.
func (sc *Scene) MarkAlias() bool {
	if sc.diagram == store.Nil {
		return false
	}
	return store.Bool(sc.s, sc.diagram, model.AttrMarkAlias, sc.s.Type(sc.diagram) != model.TypeDiagram)
}

func (sc *Scene) SetMarkAlias(ctx context.Context, on bool) error {
	return sc.setDiagramFlag(ctx, model.AttrMarkAlias, on)
}

func (sc *Scene) setDiagramFlag(ctx context.Context, attr store.AttrID, on bool) error {
	if sc.diagram == store.Nil || sc.readOnly {
		return nil
	}
	if err := sc.s.Set(sc.diagram, attr, on); err != nil {
		return err
	}
	return sc.s.Commit(sc.ctx(ctx))
}

// Rect is the scene rectangle.
func (sc *Scene) Rect() orb.Bound { return sc.rect }

// ItemsBounds is the union of the bounds of everything shown.
func (sc *Scene) ItemsBounds() orb.Bound { return sc.g.ItemsBounds() }

// FitRect fits the scene rectangle to the items with half a box of margin.
// Unless force is set the rectangle keeps its size when it is larger, and
// the items are centred in it.
func (sc *Scene) FitRect(force bool) orb.Bound {
	r := sc.ItemsBounds()
	r.Min = model.Sub(r.Min, orb.Point{model.BoxWidth / 2, model.BoxHeight / 2})
	r.Max = model.Add(r.Max, orb.Point{model.BoxWidth / 2, model.BoxHeight / 2})
	if !force {
		if d := (sc.rect.Max[0] - sc.rect.Min[0]) - (r.Max[0] - r.Min[0]); d > 0 {
			r.Min[0] -= d / 2
			r.Max[0] += d / 2
		}
		if d := (sc.rect.Max[1] - sc.rect.Min[1]) - (r.Max[1] - r.Min[1]); d > 0 {
			r.Min[1] -= d / 2
			r.Max[1] += d / 2
		}
	}
	sc.rect = r
	return r
}

// enlargeRect grows the scene rectangle by a screen on every side the
// items overflow.
func (sc *Scene) enlargeRect() {
	br := sc.ItemsBounds()
	w, h := defaultRect.Max[0], defaultRect.Max[1]
	if br.Min[1] < sc.rect.Min[1] {
		sc.rect.Min[1] -= h
	}
	if br.Max[1] > sc.rect.Max[1] {
		sc.rect.Max[1] += h
	}
	if br.Min[0] < sc.rect.Min[0] {
		sc.rect.Min[0] -= w
	}
	if br.Max[0] > sc.rect.Max[0] {
		sc.rect.Max[0] += w
	}
}
