// Package layout computes automatic diagram layouts. A Bridge turns an
// abstract graph of sized boxes, edges and clusters into positions in scene
// coordinates; Graphviz implements it with the dot engine.
package layout

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
)

// Bridge lays out a graph.
type Bridge interface {
	Layout(ctx context.Context, in Input) (*Result, error)
}

// Node is a box to place. Width and Height are in scene units.
type Node struct {
	ID        string
	Width     float64
	Height    float64
	FixedSize bool
	// Cluster names the cluster the node belongs to, if any.
	Cluster string
}

// Edge connects two nodes. Edges without Constraint do not influence the
// ranking.
type Edge struct {
	ID         string
	From       string
	To         string
	Constraint bool
}

// Cluster groups nodes inside a frame. Margin is the space between the
// nodes and the cluster border.
type Cluster struct {
	ID     string
	Margin float64
}

// Input describes the graph handed to a Bridge.
type Input struct {
	Title     string
	Nodes     []Node
	Edges     []Edge
	Clusters  []Cluster
	Direction model.Direction
	Ortho     bool
}

// Result holds positions in scene coordinates, y growing downwards.
// Positions are node centres. EdgePolylines hold the intermediate routing
// points of each edge without its end points.
type Result struct {
	Positions     map[string]orb.Point
	EdgePolylines map[string][]orb.Point
	ClusterBounds map[string]orb.Bound
}

func newResult() *Result {
	return &Result{
		Positions:     make(map[string]orb.Point),
		EdgePolylines: make(map[string][]orb.Point),
		ClusterBounds: make(map[string]orb.Bound),
	}
}

// BridgeFunc adapts a function to the Bridge interface.
type BridgeFunc func(ctx context.Context, in Input) (*Result, error)

func (f BridgeFunc) Layout(ctx context.Context, in Input) (*Result, error) { return f(ctx, in) }
