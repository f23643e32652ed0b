package scene

import (
	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

// NodeView describes one shown node.
type NodeView struct {
	Item     store.OID `json:"item"`
	Origin   store.OID `json:"origin"`
	Type     string    `json:"type"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Width    float64   `json:"width,omitempty"`
	Height   float64   `json:"height,omitempty"`
	Text     string    `json:"text,omitempty"`
	Ident    string    `json:"ident,omitempty"`
	Alias    bool      `json:"alias,omitempty"`
	Process  bool      `json:"process,omitempty"`
	Conn     string    `json:"conn,omitempty"`
	PinnedTo store.OID `json:"pinned_to,omitempty"`
	Selected bool      `json:"selected,omitempty"`
}

// FlowView describes one shown flow with its routing points.
type FlowView struct {
	Item     store.OID   `json:"item"`
	Origin   store.OID   `json:"origin"`
	Pred     store.OID   `json:"pred"`
	Succ     store.OID   `json:"succ"`
	Points   []orb.Point `json:"points,omitempty"`
	Selected bool        `json:"selected,omitempty"`
}

// Snapshot is a plain description of the scene.
type Snapshot struct {
	Diagram   store.OID  `json:"diagram"`
	Title     string     `json:"title"`
	Mode      Mode       `json:"mode"`
	ShowIds   bool       `json:"show_ids"`
	MarkAlias bool       `json:"mark_alias"`
	Nodes     []NodeView `json:"nodes"`
	Flows     []FlowView `json:"flows"`
}

// Snapshot describes the shown nodes and persisted flows. Transient chains
// of a link being drawn are left out.
func (sc *Scene) Snapshot() Snapshot {
	snap := Snapshot{
		Diagram:   sc.diagram,
		Mode:      sc.modes.cur,
		ShowIds:   sc.ShowIds(),
		MarkAlias: sc.MarkAlias(),
		Nodes:     []NodeView{},
		Flows:     []FlowView{},
	}
	if sc.diagram != store.Nil {
		snap.Title = model.FormatTitle(sc.s, sc.diagram, snap.ShowIds)
	}
	for _, n := range sc.g.Nodes() {
		if n.Type == NodeHandle {
			continue
		}
		v := NodeView{
			Item: n.Item, Origin: n.Orig, Type: n.Type.String(),
			X: n.Pos[0], Y: n.Pos[1],
			Text: n.Text, Ident: n.Ident,
			Alias: n.Alias, Process: n.Process, Selected: n.Selected,
		}
		if n.Type == NodeNote || n.Type == NodeFrame {
			v.Width, v.Height = n.Width, n.Height
		}
		if n.Type == NodeConnector {
			v.Conn = model.FormatConnType(n.Code, false)
		}
		if t := sc.g.nodes[n.PinnedTo]; t != nil {
			v.PinnedTo = t.Item
		}
		snap.Nodes = append(snap.Nodes, v)
	}
	for _, s := range sc.g.Segments() {
		if s.Item == store.Nil {
			continue
		}
		v := FlowView{Item: s.Item, Origin: s.Orig, Points: sc.g.NodeList(s)}
		if from, to := sc.g.Ends(s); from != nil && to != nil {
			v.Pred, v.Succ = from.Orig, to.Orig
		}
		for _, c := range sc.g.Chain(s) {
			v.Selected = v.Selected || c.Selected
		}
		snap.Flows = append(snap.Flows, v)
	}
	return snap
}
