// Package topology implements the algorithms that work on the persisted
// flow graph rather than on a loaded scene: hidden link discovery, path
// search, transitive extension and bulk placement of objects on diagrams.
package topology

import (
	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

// IsSchedObj reports whether objects of type t are placeable flow nodes.
func IsSchedObj(t store.TypeID) bool {
	return model.IsValidAggregate(model.TypeFunction, t) && t != model.TypeConFlow
}

// ItemOrigins returns the set of origins placed on diagram.
func ItemOrigins(s store.Store, diagram store.OID) map[store.OID]struct{} {
	set := make(map[store.OID]struct{})
	for _, sub := range s.Children(diagram) {
		if s.Type(sub) == model.TypeDiagItem {
			set[store.Ref(s, sub, model.AttrOrigObject)] = struct{}{}
		}
	}
	return set
}

// ItemOrigObjs lists the origins of the diagram's items in item order,
// filtered to flow nodes and/or control flows.
func ItemOrigObjs(s store.Store, diagram store.OID, schedObjs, links bool) []store.OID {
	var out []store.OID
	for _, sub := range s.Children(diagram) {
		if s.Type(sub) != model.TypeDiagItem {
			continue
		}
		o := store.Ref(s, sub, model.AttrOrigObject)
		t := s.Type(o)
		switch {
		case schedObjs && IsSchedObj(t):
			out = append(out, o)
		case links && t == model.TypeConFlow:
			out = append(out, o)
		}
	}
	return out
}

// FindItemInDiagram returns the item placing orig on diagram, or Nil.
func FindItemInDiagram(s store.Store, diagram, orig store.OID) store.OID {
	if diagram == store.Nil || orig == store.Nil {
		return store.Nil
	}
	for _, it := range s.Seek(model.IndexOrigObject, orig) {
		if s.Type(it) == model.TypeDiagItem && s.Parent(it) == diagram {
			return it
		}
	}
	return store.Nil
}

// FindHiddenLinks returns the control flows touching start whose other end
// is already placed on diagram while the flow itself is not. An empty start
// uses every node shown on the diagram.
func FindHiddenLinks(s store.Store, diagram store.OID, start []store.OID) []store.OID {
	if len(start) == 0 {
		start = ItemOrigObjs(s, diagram, true, false)
	}
	existing := ItemOrigins(s, diagram)
	var res []store.OID
	consider := func(link store.OID, other store.AttrID) {
		if s.Type(link) != model.TypeConFlow {
			return
		}
		if _, shown := existing[link]; shown {
			return
		}
		if _, ok := existing[store.Ref(s, link, other)]; !ok {
			return
		}
		res = append(res, link)
		existing[link] = struct{}{}
	}
	for _, o := range start {
		for _, link := range s.Seek(model.IndexPred, o) {
			consider(link, model.AttrSucc)
		}
		for _, link := range s.Seek(model.IndexSucc, o) {
			consider(link, model.AttrPred)
		}
	}
	return res
}

// Successors lists the successors of o over all flows starting at o.
func Successors(s store.Store, o store.OID) []store.OID {
	var out []store.OID
	for _, link := range s.Seek(model.IndexPred, o) {
		if succ := store.Ref(s, link, model.AttrSucc); succ != store.Nil {
			out = append(out, succ)
		}
	}
	return out
}

// Predecessors lists the predecessors of o over all flows ending at o.
func Predecessors(s store.Store, o store.OID) []store.OID {
	var out []store.OID
	for _, link := range s.Seek(model.IndexSucc, o) {
		if pred := store.Ref(s, link, model.AttrPred); pred != store.Nil {
			out = append(out, pred)
		}
	}
	return out
}

// MaxLevels bounds FindExtended.
const MaxLevels = 255

// FindExtended expands start level by level along successor and/or
// predecessor edges. Each object is reported once, in discovery order;
// members of start are never reported. levels is clamped to 1..MaxLevels.
// The result may contain objects already placed on a diagram.
func FindExtended(s store.Store, start []store.OID, levels int, toSucc, toPred bool) []store.OID {
	levels = max(1, min(levels, MaxLevels))
	seen := make(map[store.OID]bool, len(start))
	for _, o := range start {
		seen[o] = true
	}
	var res []store.OID
	frontier := start
	for ; levels > 0 && len(frontier) > 0; levels-- {
		var next []store.OID
		visit := func(objs []store.OID) {
			for _, n := range objs {
				if !seen[n] {
					seen[n] = true
					next = append(next, n)
				}
			}
		}
		for _, o := range frontier {
			if toSucc {
				visit(Successors(s, o))
			}
			if toPred {
				visit(Predecessors(s, o))
			}
		}
		res = append(res, next...)
		frontier = next
	}
	return res
}

type hop struct {
	from store.OID
	dist int
}

// FindShortestPath searches start to goal over the flows whose
// predecessors live in the containers of start and goal. When goal is not
// reachable from start the search is repeated from goal to start. The
// result runs from start to goal in both cases and is empty when neither
// direction connects them.
func FindShortestPath(s store.Store, start, goal store.OID) []store.OID {
	if start == store.Nil || goal == store.Nil {
		return nil
	}
	if start == goal {
		return []store.OID{start}
	}
	adj := adjacency(s, s.Parent(start), s.Parent(goal))
	if path := search(adj, start, goal); path != nil {
		return path
	}
	path := search(adj, goal, start)
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func adjacency(s store.Store, containers ...store.OID) map[store.OID][]store.OID {
	adj := make(map[store.OID][]store.OID)
	done := make(map[store.OID]bool)
	for _, c := range containers {
		if c == store.Nil || done[c] {
			continue
		}
		done[c] = true
		for _, n := range s.Children(c) {
			for _, link := range s.Children(n) {
				if s.Type(link) != model.TypeConFlow {
					continue
				}
				pred := store.Ref(s, link, model.AttrPred)
				succ := store.Ref(s, link, model.AttrSucc)
				if pred != store.Nil && succ != store.Nil {
					adj[pred] = append(adj[pred], succ)
				}
			}
		}
	}
	return adj
}

// search is a depth-first walk that relaxes a node again whenever a
// shorter route to it turns up.
func search(adj map[store.OID][]store.OID, start, goal store.OID) []store.OID {
	visited := map[store.OID]hop{start: {}}
	var walk func(cur store.OID, dist int)
	walk = func(cur store.OID, dist int) {
		dist++
		for _, next := range adj[cur] {
			v, ok := visited[next]
			if ok && v.dist <= dist {
				continue
			}
			visited[next] = hop{from: cur, dist: dist}
			if next != goal {
				walk(next, dist)
			}
		}
	}
	walk(start, 0)
	if _, ok := visited[goal]; !ok {
		return nil
	}
	path := []store.OID{goal}
	for cur := goal; cur != start; {
		cur = visited[cur].from
		path = append([]store.OID{cur}, path...)
	}
	return path
}

// AddItemsToDiagram places every flow node or control flow of objs that
// is not yet on diagram. Nodes are stacked from where in raster steps.
// It returns the nodes placed.
func AddItemsToDiagram(s store.Store, diagram store.OID, objs []store.OID, where orb.Point) ([]store.OID, error) {
	existing := ItemOrigins(s, diagram)
	var done []store.OID
	for _, o := range objs {
		if _, ok := existing[o]; ok {
			continue
		}
		t := s.Type(o)
		switch {
		case IsSchedObj(t):
			if _, err := model.CreateItem(s, diagram, o, where); err != nil {
				return done, err
			}
			where = model.Add(where, orb.Point{model.RasterX, model.RasterY})
			done = append(done, o)
		case t == model.TypeConFlow:
			if _, err := model.CreateItem(s, diagram, o, orb.Point{}); err != nil {
				return done, err
			}
		default:
			continue
		}
		existing[o] = struct{}{}
	}
	return done, nil
}

// AddItemLinksToDiagram places the hidden links of objs and returns them.
func AddItemLinksToDiagram(s store.Store, diagram store.OID, objs []store.OID) ([]store.OID, error) {
	links := FindHiddenLinks(s, diagram, objs)
	for _, link := range links {
		if _, err := model.CreateItem(s, diagram, link, orb.Point{}); err != nil {
			return nil, err
		}
	}
	return links, nil
}

// FindAllAliases returns the items showing a node that lives in another
// container than diagram.
func FindAllAliases(s store.Store, diagram store.OID) []store.OID {
	var out []store.OID
	for _, sub := range s.Children(diagram) {
		if s.Type(sub) != model.TypeDiagItem {
			continue
		}
		o := store.Ref(s, sub, model.AttrOrigObject)
		if IsSchedObj(s.Type(o)) && s.Parent(o) != diagram {
			out = append(out, sub)
		}
	}
	return out
}

// FindHiddenSchedObjs returns the nodes owned by diagram that it does not
// show, in child order.
func FindHiddenSchedObjs(s store.Store, diagram store.OID) []store.OID {
	shown := ItemOrigins(s, diagram)
	var out []store.OID
	for _, sub := range s.Children(diagram) {
		if !IsSchedObj(s.Type(sub)) {
			continue
		}
		if _, ok := shown[sub]; !ok {
			out = append(out, sub)
		}
	}
	return out
}

// FindOrphans returns the items of diagram that cannot be shown: a missing
// or unplaceable origin, a second item for an already placed origin, or a
// flow whose ends are not both on the diagram.
func FindOrphans(s store.Store, diagram store.OID) []store.OID {
	var orphans []store.OID
	placed := make(map[store.OID]bool)
	var flows []store.OID
	for _, sub := range s.Children(diagram) {
		if s.Type(sub) != model.TypeDiagItem {
			continue
		}
		item := model.ItemOf(s, sub)
		o := item.Origin()
		t := s.Type(o)
		switch {
		case item.Kind() != model.KindPlain && o == sub:
			placed[o] = true
		case item.Kind() != model.KindPlain:
			orphans = append(orphans, sub)
		case t == model.TypeConFlow:
			if placed[o] {
				orphans = append(orphans, sub)
				continue
			}
			placed[o] = true
			flows = append(flows, sub)
		case IsSchedObj(t):
			if placed[o] {
				orphans = append(orphans, sub)
				continue
			}
			placed[o] = true
		default:
			orphans = append(orphans, sub)
		}
	}
	for _, sub := range flows {
		link := model.ItemOf(s, sub).Origin()
		if !placed[store.Ref(s, link, model.AttrPred)] || !placed[store.Ref(s, link, model.AttrSucc)] {
			orphans = append(orphans, sub)
		}
	}
	return orphans
}

// Diagrams walks the repository and returns every object able to hold
// diagram items, in depth-first order.
func Diagrams(s store.Store) []store.OID {
	var out []store.OID
	var walk func(store.OID)
	walk = func(o store.OID) {
		for _, c := range s.Children(o) {
			t := s.Type(c)
			if model.IsDiagram(t) {
				out = append(out, c)
			}
			if t != model.TypeDiagItem && t != model.TypeConFlow {
				walk(c)
			}
		}
	}
	walk(s.Root())
	return out
}
