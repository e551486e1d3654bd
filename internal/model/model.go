package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels lists every struct that maps to a table.
var DatabaseModels = []interface{}{
	&Player{},
	&Run{},
	&TickHistory{},
	&RunSummary{},
	&Performance{},
}

// Player is the persisted profile. Owner is the hex identity.
type Player struct {
	Owner        string    `json:"owner" gorm:"primaryKey;size:64"`
	Name         string    `json:"name" gorm:"size:64"`
	RunsFinished uint32    `json:"runsFinished"`
	BestScore    uint64    `json:"bestScore"`
	InRun        bool      `json:"inRun"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (*Player) TableName() string {
	return "players"
}

// Run keeps the current battlefield twice: Layout is the fixed-width binary
// record and is authoritative on load; Snapshot is its JSON rendering for
// ad-hoc queries.
type Run struct {
	Owner      string         `json:"owner" gorm:"primaryKey;size:64"`
	Score      uint64         `json:"score" gorm:"index"`
	Experience uint16         `json:"experience"`
	Occupants  int            `json:"occupants"`
	Layout     []byte         `json:"-" gorm:"not null"`
	Snapshot   datatypes.JSON `json:"snapshot"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (*Run) TableName() string {
	return "runs"
}

// TickHistory is one committed tick.
type TickHistory struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement"`
	Owner      string    `json:"owner" gorm:"index:idx_tick_owner_time;size:64"`
	Time       time.Time `json:"time" gorm:"index:idx_tick_owner_time"`
	Seed       uint64    `json:"seed"`
	Score      uint64    `json:"score"`
	Experience uint16    `json:"experience"`
	Occupants  int       `json:"occupants"`
	Moves      int       `json:"moves"`
	Attacks    int       `json:"attacks"`
	Kills      int       `json:"kills"`
	Losses     int       `json:"losses"`
	Spawned    bool      `json:"spawned"`
}

func (*TickHistory) TableName() string {
	return "tick_history"
}

// RunSummary is written once per finished run.
type RunSummary struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement"`
	Owner        string    `json:"owner" gorm:"index;size:64"`
	Name         string    `json:"name" gorm:"size:64"`
	FinalScore   uint64    `json:"finalScore" gorm:"index"`
	BestScore    uint64    `json:"bestScore"`
	NewBest      bool      `json:"newBest"`
	RunsFinished uint32    `json:"runsFinished"`
	EndedAt      time.Time `json:"endedAt"`
}

func (*RunSummary) TableName() string {
	return "run_summaries"
}

// Performance is a periodic status sample written by the monitor.
type Performance struct {
	ID                  uint      `json:"id" gorm:"primarykey;autoIncrement"`
	Time                time.Time `json:"time"`
	ActiveRuns          int       `json:"activeRuns"`
	Threads             int       `json:"threads"`
	HistoryQueue        int       `json:"historyQueue"`
	LastFlushDurationMs float32   `json:"lastFlushDurationMs"`
}

func (*Performance) TableName() string {
	return "performance"
}
