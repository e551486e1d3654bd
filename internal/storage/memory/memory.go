// Package memory keeps players, runs and tick history in maps and writes a
// JSON and CSV export for every finished run.
package memory

import (
	"fmt"
	"sync"

	"github.com/OCAP2/extracto/internal/config"
	"github.com/OCAP2/extracto/internal/storage"
	"github.com/OCAP2/extracto/pkg/core"
)

// Backend stores game state in memory.
type Backend struct {
	cfg config.MemoryConfig

	mu        sync.RWMutex
	players   map[core.Owner]core.Player
	runs      map[core.Owner]core.Run
	history   map[string][]core.TickRecord // keyed by owner hex
	summaries []core.RunSummary

	lastExportPath string
}

// New creates a new memory backend. An empty OutputDir disables exports.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		players: make(map[core.Owner]core.Player),
		runs:    make(map[core.Owner]core.Run),
		history: make(map[string][]core.TickRecord),
	}
}

func (b *Backend) Init() error {
	return nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) LoadPlayer(owner core.Owner) (core.Player, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.players[owner]
	if !ok {
		return core.Player{}, fmt.Errorf("player %s: %w", owner.Short(), storage.ErrNotFound)
	}
	return p, nil
}

func (b *Backend) LoadRun(owner core.Owner) (core.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.runs[owner]
	if !ok {
		return core.Run{}, fmt.Errorf("run %s: %w", owner.Short(), storage.ErrNotFound)
	}
	return r, nil
}

func (b *Backend) Commit(p *core.Player, r *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p != nil {
		b.players[p.Owner] = *p
	}
	if r != nil {
		b.runs[r.Owner] = *r
	}
	return nil
}

func (b *Backend) RecordTick(rec *core.TickRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[rec.Owner] = append(b.history[rec.Owner], *rec)
	return nil
}

// History returns a copy of the ticks recorded for owner's current run.
func (b *Backend) History(owner core.Owner) []core.TickRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.TickRecord(nil), b.history[owner.String()]...)
}

// Summaries returns every run summary stored so far.
func (b *Backend) Summaries() []core.RunSummary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.RunSummary(nil), b.summaries...)
}

// EndRun stores the summary, exports the run's history and clears it.
func (b *Backend) EndRun(s *core.RunSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.summaries = append(b.summaries, *s)
	ticks := b.history[s.Owner]
	delete(b.history, s.Owner)

	if b.cfg.OutputDir == "" {
		return nil
	}
	path, err := b.export(*s, ticks)
	if err != nil {
		return err
	}
	b.lastExportPath = path
	return nil
}

// LastExportPath returns the JSON export of the last finished run.
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
