// pkg/core/player.go
package core

import "time"

// Player is the profile that outlives individual runs.
type Player struct {
	Owner        Owner  `json:"owner"`
	Name         string `json:"name"`
	RunsFinished uint32 `json:"runsFinished"`
	BestScore    uint64 `json:"bestScore"`
	InRun        bool   `json:"inRun"`
}

// ScoreDelta describes how a finished run changed the player's record.
type ScoreDelta struct {
	FinalScore   uint64 `json:"finalScore"`
	PreviousBest uint64 `json:"previousBest"`
	BestScore    uint64 `json:"bestScore"`
	NewBest      bool   `json:"newBest"`
}

// TickRecord is one row of run history, written after every committed tick.
type TickRecord struct {
	Owner      string    `json:"owner" csv:"owner"`
	Seed       uint64    `json:"seed" csv:"seed"`
	Score      uint64    `json:"score" csv:"score"`
	Experience uint16    `json:"experience" csv:"experience"`
	Occupants  int       `json:"occupants" csv:"occupants"`
	Moves      int       `json:"moves" csv:"moves"`
	Attacks    int       `json:"attacks" csv:"attacks"`
	Kills      int       `json:"kills" csv:"kills"`
	Losses     int       `json:"losses" csv:"losses"`
	Spawned    bool      `json:"spawned" csv:"spawned"`
	Time       time.Time `json:"time" csv:"time"`
}

// RunSummary is emitted once when a run is finished.
type RunSummary struct {
	Owner        string    `json:"owner"`
	Name         string    `json:"name"`
	FinalScore   uint64    `json:"finalScore"`
	BestScore    uint64    `json:"bestScore"`
	NewBest      bool      `json:"newBest"`
	RunsFinished uint32    `json:"runsFinished"`
	EndedAt      time.Time `json:"endedAt"`
}
