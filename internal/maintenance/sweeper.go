// Package maintenance runs periodic repository upkeep.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rochus-keller/FlowLine2/internal/logging"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
)

// Vacuumer compacts the persistent database.
type Vacuumer interface {
	Vacuum(ctx context.Context) error
}

// Report summarizes one sweep.
type Report struct {
	At       time.Time   `json:"at"`
	Diagrams int         `json:"diagrams"`
	Erased   []store.OID `json:"erased"`
	Vacuumed bool        `json:"vacuumed"`
}

// Sweeper erases orphaned diagram items on a cron schedule.
type Sweeper struct {
	s        store.Store
	schedule cron.Schedule
	vacuum   Vacuumer
	lock     sync.Locker
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	next    time.Time
	running bool
}

type Option func(*Sweeper)

// WithVacuum vacuums v after every sweep that erased something.
func WithVacuum(v Vacuumer) Option { return func(sw *Sweeper) { sw.vacuum = v } }

// WithLock serializes sweeps with other writers of the store.
func WithLock(l sync.Locker) Option { return func(sw *Sweeper) { sw.lock = l } }

func WithLogger(l *slog.Logger) Option { return func(sw *Sweeper) { sw.logger = l } }

// WithPollInterval sets how often the loop checks whether a sweep is due.
func WithPollInterval(d time.Duration) Option { return func(sw *Sweeper) { sw.interval = d } }

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five field cron expression or a descriptor such
// as "@daily".
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched, nil
}

func NewSweeper(s store.Store, schedule string, opts ...Option) (*Sweeper, error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	sw := &Sweeper{
		s:        s,
		schedule: sched,
		lock:     &sync.Mutex{},
		logger:   slog.Default(),
		interval: time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(sw)
	}
	return sw, nil
}

// NextRun is the next time the schedule fires after from.
func (sw *Sweeper) NextRun(from time.Time) time.Time { return sw.schedule.Next(from) }

// Start launches the background loop.
func (sw *Sweeper) Start(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.done != nil {
		return fmt.Errorf("sweeper already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel
	sw.done = make(chan struct{})
	sw.next = sw.NextRun(sw.now())
	go sw.loop(loopCtx, sw.done)
	sw.logger.Info("sweeper started", "next_run", sw.next)
	return nil
}

func (sw *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

func (sw *Sweeper) tick(ctx context.Context) {
	now := sw.now()
	sw.mu.Lock()
	due := !sw.next.After(now)
	if due {
		sw.next = sw.NextRun(now)
	}
	sw.mu.Unlock()
	if !due {
		return
	}
	if _, err := sw.Sweep(ctx); err != nil {
		sw.logger.ErrorContext(ctx, "sweep failed", "error", err)
	}
}

// Sweep erases the orphans of every diagram in one commit. Concurrent
// calls return an empty report.
func (sw *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return &Report{At: sw.now()}, nil
	}
	sw.running = true
	sw.mu.Unlock()
	defer func() {
		sw.mu.Lock()
		sw.running = false
		sw.mu.Unlock()
	}()

	ctx = logging.WithRepoID(ctx, sw.s.RepoID().String())
	rep, err := sw.sweep(ctx)
	if err != nil {
		return nil, err
	}
	if len(rep.Erased) > 0 && sw.vacuum != nil {
		if err := sw.vacuum.Vacuum(ctx); err != nil {
			sw.logger.WarnContext(ctx, "vacuum failed", "error", err)
		} else {
			rep.Vacuumed = true
		}
	}
	sw.logger.InfoContext(ctx, "sweep finished", "diagrams", rep.Diagrams, "erased", len(rep.Erased))
	return rep, nil
}

func (sw *Sweeper) sweep(ctx context.Context) (*Report, error) {
	sw.lock.Lock()
	defer sw.lock.Unlock()

	rep := &Report{At: sw.now(), Erased: []store.OID{}}
	diagrams := topology.Diagrams(sw.s)
	rep.Diagrams = len(diagrams)
	for _, d := range diagrams {
		for _, item := range topology.FindOrphans(sw.s, d) {
			if !sw.s.Exists(item) {
				continue
			}
			if err := model.Erase(sw.s, item); err != nil {
				sw.s.Rollback()
				return nil, err
			}
			rep.Erased = append(rep.Erased, item)
		}
	}
	if len(rep.Erased) == 0 {
		return rep, nil
	}
	if err := sw.s.Commit(ctx); err != nil {
		sw.s.Rollback()
		return nil, err
	}
	return rep, nil
}

// Stop ends the loop and waits for it.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	cancel, done := sw.cancel, sw.done
	sw.cancel, sw.done = nil, nil
	sw.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	sw.logger.Info("sweeper stopped")
}
