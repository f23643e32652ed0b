package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rochus-keller/FlowLine2/internal/store"
)

func receive(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return ChangeEvent{}
}

func assertEmpty(t *testing.T, ch <-chan ChangeEvent) {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewChangeHub(nil)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, ChangeFilter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, ChangeEvent{Kind: "aggregated", Object: 7, Parent: 3}))
	require.NoError(t, hub.Publish(ctx, ChangeEvent{Kind: "object_erased", Object: 7, Parent: 3}))

	got := receive(t, ch)
	assert.Equal(t, ChangeEvent{Seq: 1, Kind: "aggregated", Object: 7, Parent: 3}, got)
	assert.Equal(t, uint64(2), receive(t, ch).Seq)
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter ChangeFilter
		event  ChangeEvent
		want   bool
	}{
		{"empty", ChangeFilter{}, ChangeEvent{Kind: "aggregated", Object: 1}, true},
		{"diagram itself", ChangeFilter{Diagram: 5}, ChangeEvent{Kind: "value_changed", Object: 5, Parent: 1}, true},
		{"child of diagram", ChangeFilter{Diagram: 5}, ChangeEvent{Kind: "aggregated", Object: 9, Parent: 5}, true},
		{"other diagram", ChangeFilter{Diagram: 5}, ChangeEvent{Kind: "aggregated", Object: 9, Parent: 6}, false},
		{"kind listed", ChangeFilter{Kinds: []string{"object_erased", "aggregated"}}, ChangeEvent{Kind: "aggregated"}, true},
		{"kind not listed", ChangeFilter{Kinds: []string{"object_erased"}}, ChangeEvent{Kind: "aggregated"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matchFilter(tc.filter, tc.event))
		})
	}
}

func TestAttachRepublishesCommits(t *testing.T) {
	s := store.New()
	hub := NewChangeHub(nil)
	detach := hub.Attach(s)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, ChangeFilter{Kinds: []string{"aggregated"}})
	require.NoError(t, err)
	defer cancel()

	id, err := s.Create(1, s.Root(), store.Nil)
	require.NoError(t, err)
	assertEmpty(t, ch)
	require.NoError(t, s.Commit(ctx))

	got := receive(t, ch)
	assert.Equal(t, uint64(id), got.Object)
	assert.Equal(t, uint64(s.Root()), got.Parent)
	assert.Equal(t, s.RepoID().String(), got.Repo)

	detach()
	_, err = s.Create(1, s.Root(), store.Nil)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx))
	assertEmpty(t, ch)
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewChangeHub(nil)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, ChangeFilter{})
	require.NoError(t, err)
	cancel()
	cancel()

	require.NoError(t, hub.Publish(ctx, ChangeEvent{Kind: "aggregated"}))
	_, ok := <-ch
	assert.False(t, ok)

	hub.mu.RLock()
	assert.Empty(t, hub.subs)
	hub.mu.RUnlock()
}

func TestBackpressure(t *testing.T) {
	hub := NewChangeHub(nil)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, ChangeFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, ChangeEvent{Kind: "value_changed"}))
	}
	assert.Len(t, ch, defaultChannelBuffer)
	assert.Equal(t, uint64(10), hub.Dropped())
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewChangeHub(nil)
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.Publish(ctx, ChangeEvent{Kind: "value_changed"})
			}
		}()
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, ChangeFilter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}
	wg.Wait()
}

func TestCancelledContext(t *testing.T) {
	hub := NewChangeHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Publish(ctx, ChangeEvent{}), context.Canceled)
	_, _, err := hub.Subscribe(ctx, ChangeFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
