// Package streaming fans committed repository changes out to subscribers.
package streaming

import (
	"context"

	"github.com/rochus-keller/FlowLine2/internal/store"
)

// ChangeEvent is one committed store change.
type ChangeEvent struct {
	Seq    uint64 `json:"seq"`
	Repo   string `json:"repo"`
	Kind   string `json:"kind"`
	Object uint64 `json:"object"`
	Parent uint64 `json:"parent,omitempty"`
	// Name is the attribute of a value change or the new type of a type
	// change.
	Name uint32 `json:"name,omitempty"`
}

// ChangeFilter selects events. Diagram matches events on the diagram
// itself and on its direct children; Kinds are store.UpdateKind names.
type ChangeFilter struct {
	Diagram uint64   `json:"diagram,omitempty"`
	Kinds   []string `json:"kinds,omitempty"`
}

// Hub provides pub/sub for change events.
type Hub interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(ctx context.Context, filter ChangeFilter) (<-chan ChangeEvent, func(), error)
}

// EventFrom converts a store notification.
func EventFrom(repo string, info store.UpdateInfo) ChangeEvent {
	return ChangeEvent{
		Repo:   repo,
		Kind:   info.Kind.String(),
		Object: uint64(info.ID),
		Parent: uint64(info.Parent),
		Name:   info.Name,
	}
}
