package scene

import (
	"context"
	"slices"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

// onStoreChange queues a notification. Notifications arriving while one is
// applied wait for it to finish, so no handler runs against half-updated
// graph state.
func (sc *Scene) onStoreChange(info store.UpdateInfo) {
	sc.inbox = append(sc.inbox, info)
	if sc.applying {
		return
	}
	sc.applying = true
	for len(sc.inbox) > 0 {
		n := sc.inbox[0]
		sc.inbox = sc.inbox[1:]
		if sc.diagram != store.Nil {
			sc.apply(n)
		}
	}
	sc.applying = false
	sc.flush()
}

// flush commits attribute writes the scene made while applying changes,
// such as recomputed note heights, unless a group move holds the lock.
func (sc *Scene) flush() {
	if !sc.wrote || sc.commitLock || sc.diagram == store.Nil {
		return
	}
	sc.wrote = false
	ctx := sc.ctx(context.Background())
	if err := sc.s.Commit(ctx); err != nil {
		sc.logger.ErrorContext(ctx, "commit scene feedback", "error", err)
	}
}

func (sc *Scene) apply(info store.UpdateInfo) {
	switch info.Kind {
	case store.TypeChanged:
		sc.applyTypeChange(info)
	case store.ValueChanged:
		sc.applyValueChange(info)
	case store.ObjectErased:
		if info.ID == sc.diagram {
			sc.logger.Debug("diagram erased", "diagram", sc.diagram)
			sc.Close()
			return
		}
		if seg := sc.SegmentFor(info.ID); seg != nil {
			sc.g.DeleteChain(seg.ID)
		} else if n := sc.NodeFor(info.ID); n != nil {
			sc.g.RemoveNode(n)
		}
		delete(sc.waiting, info.ID)
	case store.Aggregated:
		if info.Parent != sc.diagram || !sc.s.Exists(info.ID) {
			return
		}
		if sc.s.Type(info.ID) == model.TypeDiagItem {
			sc.fetchItem(info.ID, true, true)
			sc.enlargeRect()
			return
		}
		if n := sc.NodeFor(info.ID); n != nil && n.Orig == info.ID {
			n.Alias = false
		}
	case store.Deaggregated:
		if info.Parent != sc.diagram {
			return
		}
		if seg := sc.SegmentFor(info.ID); seg != nil && seg.Item == info.ID {
			sc.g.DeleteChain(seg.ID)
			return
		}
		if n := sc.NodeFor(info.ID); n != nil {
			switch {
			case n.Item == info.ID:
				sc.g.RemoveNode(n)
			case n.Orig == info.ID:
				n.Alias = true
			}
		}
	}
}

func (sc *Scene) applyTypeChange(info store.UpdateInfo) {
	n := sc.NodeFor(info.ID)
	if n == nil || n.Orig != info.ID {
		return
	}
	switch t := store.TypeID(info.Name); {
	case t == model.TypeFunction:
		n.Type = NodeFunction
	case t == model.TypeEvent:
		n.Type = NodeEvent
	case !model.IsDiagNode(t):
		sc.g.RemoveNode(n)
		return
	}
	sc.fetchAttributes(n)
}

func (sc *Scene) applyValueChange(info store.UpdateInfo) {
	attr := store.AttrID(info.Name)
	switch attr {
	case model.AttrText, model.AttrIdent, model.AttrAltIdent:
		if n := sc.NodeFor(info.ID); n != nil && n.Orig == info.ID {
			sc.fetchAttributes(n)
		} else if seg := sc.SegmentFor(info.ID); seg != nil && seg.Orig == info.ID {
			title := model.FormatTitle(sc.s, info.ID, true)
			for _, s := range sc.g.Chain(seg) {
				s.Title = title
			}
		}
	case model.AttrElemCount:
		if n := sc.NodeFor(info.ID); n != nil && n.Type == NodeFunction {
			n.Process = store.Int(sc.s, info.ID, model.AttrElemCount) > 0
		}
	case model.AttrConnType:
		if n := sc.NodeFor(info.ID); n != nil && n.Type == NodeConnector {
			n.Code = model.GetConnType(sc.s, info.ID)
			n.Title = model.FormatTitle(sc.s, info.ID, true)
		}
	case model.AttrPinnedTo:
		sc.installPin(info.ID)
	case model.AttrWidth, model.AttrHeight:
		if n := sc.NodeFor(info.ID); n != nil && n.Item == info.ID && (n.Type == NodeNote || n.Type == NodeFrame) {
			sc.fetchAttributes(n)
		}
	case model.AttrPosX, model.AttrPosY:
		if n := sc.NodeFor(info.ID); n != nil && n.Item == info.ID {
			n.Pos = model.ItemOf(sc.s, info.ID).Pos()
		}
	case model.AttrNodeList:
		sc.syncNodeList(info.ID)
	}
}

// syncNodeList rebuilds a flow chain whose persisted polyline no longer
// matches its handles. The scene's own writes always match.
func (sc *Scene) syncNodeList(id store.OID) {
	seg := sc.SegmentFor(id)
	if seg == nil || seg.Item != id {
		return
	}
	stored := model.ItemOf(sc.s, id).NodeList()
	if slices.Equal(stored, sc.g.NodeList(seg)) {
		return
	}
	sc.g.DeleteChain(seg.ID)
	sc.fetchItem(id, true, false)
}
