package storage

import (
	"errors"
	"time"

	"github.com/OCAP2/extracto/pkg/core"
)

// ErrNotFound is returned by the Load methods when nothing is stored for
// the owner.
var ErrNotFound = errors.New("not found")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	LoadPlayer(owner core.Owner) (core.Player, error)
	LoadRun(owner core.Owner) (core.Run, error)

	// Commit stores the profile and the run together: either both are
	// written or neither is. A nil argument leaves that record untouched.
	Commit(p *core.Player, r *core.Run) error

	// RecordTick appends one row of history for the current run.
	RecordTick(rec *core.TickRecord) error

	// EndRun closes the history of the owner's run and stores the summary.
	EndRun(s *core.RunSummary) error
}

// Exporter is an optional interface for backends that write a file per
// finished run.
type Exporter interface {
	LastExportPath() string
}

// Buffered is an optional interface for backends that queue writes.
type Buffered interface {
	PendingWrites() int
	LastFlushDuration() time.Duration
}
