package streaming

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rochus-keller/FlowLine2/internal/store"
)

const defaultChannelBuffer = 64

type subscriber struct {
	ch     chan ChangeEvent
	filter ChangeFilter
	once   sync.Once
}

// ChangeHub is an in-memory Hub. Attach it to a store to republish every
// committed change.
type ChangeHub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	seq     atomic.Uint64
	events  atomic.Uint64
	dropped atomic.Uint64
	logger  *slog.Logger
}

func NewChangeHub(logger *slog.Logger) *ChangeHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeHub{subs: make(map[uint64]*subscriber), logger: logger}
}

// Attach registers the hub as an observer of s and returns the function
// that detaches it.
func (h *ChangeHub) Attach(s store.Store) (detach func()) {
	repo := s.RepoID().String()
	return s.AddObserver(func(info store.UpdateInfo) {
		if err := h.Publish(context.Background(), EventFrom(repo, info)); err != nil {
			h.logger.Warn("publish change", "error", err)
		}
	})
}

// Publish numbers the event and sends it to every matching subscriber.
// A subscriber whose channel is full misses the event.
func (h *ChangeHub) Publish(ctx context.Context, event ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event.Seq = h.events.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe returns a channel of the events passing filter and a cancel
// function that closes it.
func (h *ChangeHub) Subscribe(ctx context.Context, filter ChangeFilter) (<-chan ChangeEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	id := h.seq.Add(1)
	sub := &subscriber{ch: make(chan ChangeEvent, defaultChannelBuffer), filter: filter}

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
	return sub.ch, cancel, nil
}

// Dropped counts events lost to full subscriber channels.
func (h *ChangeHub) Dropped() uint64 { return h.dropped.Load() }

func matchFilter(f ChangeFilter, e ChangeEvent) bool {
	if f.Diagram != 0 && f.Diagram != e.Object && f.Diagram != e.Parent {
		return false
	}
	return len(f.Kinds) == 0 || slices.Contains(f.Kinds, e.Kind)
}

var _ Hub = (*ChangeHub)(nil)
