// Package gormstorage implements storage.Backend on top of any GORM dialect.
// Players and runs are written synchronously inside one transaction; tick
// history is queued and flushed in batches by a background writer.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/extracto/internal/database"
	"github.com/OCAP2/extracto/internal/model"
	"github.com/OCAP2/extracto/internal/model/convert"
	"github.com/OCAP2/extracto/internal/queue"
	"github.com/OCAP2/extracto/internal/storage"
	"github.com/OCAP2/extracto/pkg/core"
	"github.com/rs/zerolog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultFlushInterval = 2 * time.Second
	historyLimit         = 100_000
	flushBatch           = 1000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        zerolog.Logger
	FlushInterval time.Duration
}

// Backend implements storage.Backend with GORM.
type Backend struct {
	deps    Dependencies
	history *queue.Queue[model.TickHistory]

	flushMu       sync.Mutex
	lastFlushNano atomic.Int64

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps:    deps,
		history: queue.NewBounded[model.TickHistory](historyLimit),
	}
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema and starts the history writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database")
	}
	if err := database.Migrate(b.deps.DB, b.deps.Logger); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the writer and flushes whatever history is left.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return b.Flush()
}

func (b *Backend) LoadPlayer(owner core.Owner) (core.Player, error) {
	var row model.Player
	err := b.deps.DB.Where("owner = ?", owner.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Player{}, fmt.Errorf("player %s: %w", owner.Short(), storage.ErrNotFound)
	}
	if err != nil {
		return core.Player{}, fmt.Errorf("load player %s: %w", owner.Short(), err)
	}
	return convert.PlayerToCore(row)
}

func (b *Backend) LoadRun(owner core.Owner) (core.Run, error) {
	var row model.Run
	err := b.deps.DB.Where("owner = ?", owner.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Run{}, fmt.Errorf("run %s: %w", owner.Short(), storage.ErrNotFound)
	}
	if err != nil {
		return core.Run{}, fmt.Errorf("load run %s: %w", owner.Short(), err)
	}
	return convert.RunToCore(row)
}

// Commit upserts the given records in one transaction.
func (b *Backend) Commit(p *core.Player, r *core.Run) error {
	var runRow *model.Run
	if r != nil {
		row, err := convert.RunToModel(*r)
		if err != nil {
			return err
		}
		runRow = &row
	}

	return b.deps.DB.Transaction(func(tx *gorm.DB) error {
		if p != nil {
			row := convert.PlayerToModel(*p)
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "owner"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "runs_finished", "best_score", "in_run", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("upsert player: %w", err)
			}
		}
		if runRow != nil {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "owner"}},
				DoUpdates: clause.AssignmentColumns([]string{"score", "experience", "occupants", "layout", "snapshot", "updated_at"}),
			}).Create(runRow).Error; err != nil {
				return fmt.Errorf("upsert run: %w", err)
			}
		}
		return nil
	})
}

// RecordTick queues the row for the next flush.
func (b *Backend) RecordTick(rec *core.TickRecord) error {
	b.history.Push(convert.TickToModel(*rec))
	return nil
}

// EndRun flushes pending history so the run's ticks land before its
// summary, then writes the summary.
func (b *Backend) EndRun(s *core.RunSummary) error {
	if err := b.Flush(); err != nil {
		b.deps.Logger.Warn().Err(err).Msg("History flush before run summary failed")
	}
	row := convert.SummaryToModel(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}
	return nil
}

// Flush writes all queued history in batches. A failed batch is put back at
// the head of the queue.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	start := time.Now()
	defer func() { b.lastFlushNano.Store(int64(time.Since(start))) }()

	for {
		items := b.history.Drain(flushBatch)
		if len(items) == 0 {
			return nil
		}
		if err := b.deps.DB.Create(&items).Error; err != nil {
			b.history.Requeue(items...)
			return fmt.Errorf("write tick history: %w", err)
		}
	}
}

// PendingWrites returns the number of queued history rows.
func (b *Backend) PendingWrites() int {
	return b.history.Len()
}

func (b *Backend) LastFlushDuration() time.Duration {
	return time.Duration(b.lastFlushNano.Load())
}

// TickHistory returns the stored ticks of owner, oldest first.
func (b *Backend) TickHistory(owner core.Owner) ([]core.TickRecord, error) {
	var rows []model.TickHistory
	if err := b.deps.DB.Where("owner = ?", owner.String()).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.TickRecord, len(rows))
	for i, row := range rows {
		out[i] = convert.TickToCore(row)
	}
	return out, nil
}

func (b *Backend) writerLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error().Err(err).Int("pending", b.history.Len()).Msg("Tick history flush failed")
			}
		}
	}
}
