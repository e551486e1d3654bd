// Package scheduler runs one tick thread per active run. A thread fires its
// TickFunc on a fixed interval until it is stopped; a paused thread keeps its
// ticker but drops every fire.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/extracto/pkg/core"
)

var (
	ErrThreadExists = errors.New("tick thread already exists")
	ErrNoThread     = errors.New("no tick thread")
)

// TickFunc is invoked once per fire for the thread's owner.
type TickFunc func(ctx context.Context, owner core.Owner) error

// ThreadInfo is a point-in-time view of a thread.
type ThreadInfo struct {
	Owner   core.Owner `json:"owner"`
	Paused  bool       `json:"paused"`
	Fired   uint64     `json:"fired"`
	Skipped uint64     `json:"skipped"`
	Failed  uint64     `json:"failed"`
}

type thread struct {
	owner  core.Owner
	fn     TickFunc
	paused atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}

	fired   atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

func (t *thread) info() ThreadInfo {
	return ThreadInfo{
		Owner:   t.owner,
		Paused:  t.paused.Load(),
		Fired:   t.fired.Load(),
		Skipped: t.skipped.Load(),
		Failed:  t.failed.Load(),
	}
}

// Manager owns the tick threads.
type Manager struct {
	mu       sync.Mutex
	threads  map[core.Owner]*thread
	interval time.Duration
	logger   *slog.Logger

	// newTicker is swapped in tests for a manually driven channel.
	newTicker func(time.Duration) (<-chan time.Time, func())
}

// NewManager returns a Manager firing every interval.
func NewManager(interval time.Duration, logger *slog.Logger) *Manager {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		threads:  make(map[core.Owner]*thread),
		interval: interval,
		logger:   logger,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Interval returns the fire interval shared by all threads.
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// Start creates and launches the thread for owner.
func (m *Manager) Start(owner core.Owner, fn TickFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[owner]; ok {
		return fmt.Errorf("%w: %s", ErrThreadExists, owner.Short())
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &thread{
		owner:  owner,
		fn:     fn,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.threads[owner] = t

	ticks, stopTicker := m.newTicker(m.interval)
	go m.loop(ctx, t, ticks, stopTicker)

	m.logger.Debug("Tick thread started", "owner", owner.Short(), "interval", m.interval)
	return nil
}

// loop runs fires inline; a ticker drops fires while the receiver is busy, so
// a slow tick never queues a backlog.
func (m *Manager) loop(ctx context.Context, t *thread, ticks <-chan time.Time, stopTicker func()) {
	defer close(t.done)
	defer stopTicker()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if t.paused.Load() {
				t.skipped.Add(1)
				continue
			}
			t.fired.Add(1)
			if err := t.fn(ctx, t.owner); err != nil {
				t.failed.Add(1)
				m.logger.Warn("Tick failed", "owner", t.owner.Short(), "error", err)
			}
		}
	}
}

func (m *Manager) get(owner core.Owner) (*thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoThread, owner.Short())
	}
	return t, nil
}

// Pause makes the thread skip fires until resumed.
func (m *Manager) Pause(owner core.Owner) error {
	t, err := m.get(owner)
	if err != nil {
		return err
	}
	t.paused.Store(true)
	return nil
}

func (m *Manager) Resume(owner core.Owner) error {
	t, err := m.get(owner)
	if err != nil {
		return err
	}
	t.paused.Store(false)
	return nil
}

// Stop cancels and forgets the thread. It does not wait for an in-flight
// fire to return, so it is safe to call while holding a lock the TickFunc
// also takes.
func (m *Manager) Stop(owner core.Owner) error {
	m.mu.Lock()
	t, ok := m.threads[owner]
	delete(m.threads, owner)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoThread, owner.Short())
	}
	t.cancel()
	m.logger.Debug("Tick thread stopped", "owner", owner.Short(), "fired", t.fired.Load())
	return nil
}

// StopAll cancels every thread and waits for their loops to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	threads := m.threads
	m.threads = make(map[core.Owner]*thread)
	m.mu.Unlock()

	for _, t := range threads {
		t.cancel()
	}
	for _, t := range threads {
		<-t.done
	}
}

// Info reports on a single thread.
func (m *Manager) Info(owner core.Owner) (ThreadInfo, error) {
	t, err := m.get(owner)
	if err != nil {
		return ThreadInfo{}, err
	}
	return t.info(), nil
}

// Threads lists all threads ordered by owner.
func (m *Manager) Threads() []ThreadInfo {
	m.mu.Lock()
	out := make([]ThreadInfo, 0, len(m.threads))
	for _, t := range m.threads {
		out = append(out, t.info())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Owner.String() < out[j].Owner.String()
	})
	return out
}

// Len returns the number of live threads.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.threads)
}
