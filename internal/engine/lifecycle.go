package engine

import (
	"fmt"
	"math"

	"github.com/OCAP2/extracto/pkg/core"
)

// StartRun builds the opening battlefield: friendly archetypes 0-2 in slots
// 0-2, hostile archetypes 3-6 in slots 3-6, and one card of each kind.
func StartRun(owner core.Owner) core.Run {
	run := core.Run{Owner: owner}
	for i := 0; i < core.SlotCount; i++ {
		// slot i always holds archetype i, which is in range
		c, _ := NewCombatant(uint16(i), uint8(i))
		run.Slots[i] = core.Occupy(c)
	}
	run.LastCombatantID = core.SlotCount - 1
	for i := 0; i < core.OfferCount; i++ {
		run.Cards[i] = core.UpgradeCard{ID: uint16(i), Kind: core.CardKind(i)}
	}
	run.LastCardID = core.OfferCount - 1
	return run
}

// FinishRun folds the run's score into the player's record and resets the
// run's counters. Slots and cards are left in place; the next StartRun
// overwrites them.
func FinishRun(run core.Run, player core.Player) (core.Run, core.Player, core.ScoreDelta, error) {
	if player.RunsFinished == math.MaxUint32 {
		return run, player, core.ScoreDelta{}, fmt.Errorf("runs finished: %w", ErrArithmeticOverflow)
	}

	delta := core.ScoreDelta{
		FinalScore:   run.Score,
		PreviousBest: player.BestScore,
		BestScore:    player.BestScore,
	}

	nextPlayer := player
	nextPlayer.RunsFinished++
	if run.Score > player.BestScore {
		nextPlayer.BestScore = run.Score
		delta.BestScore = run.Score
		delta.NewBest = true
	}
	nextPlayer.InRun = false

	nextRun := run
	nextRun.Score = 0
	nextRun.Experience = 0
	nextRun.LastCombatantID = 0
	nextRun.LastCardID = 0

	return nextRun, nextPlayer, delta, nil
}

// Increment adds one to the score outside of combat resolution.
func Increment(run core.Run) (core.Run, error) {
	score, err := addScore(run.Score, 1)
	if err != nil {
		return run, fmt.Errorf("increment: %w", err)
	}
	run.Score = score
	return run, nil
}

// Reset zeroes the score and nothing else.
func Reset(run core.Run) core.Run {
	run.Score = 0
	return run
}
