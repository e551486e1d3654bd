package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/OCAP2/extracto/internal/model"
	"github.com/OCAP2/extracto/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() core.Run {
	r := core.Run{Owner: core.OwnerFromName("alice"), Score: 420, Experience: 3, LastCombatantID: 9, LastCardID: 3}
	r.Slots[0] = core.Occupy(core.Combatant{ID: 1, Alignment: core.Friendly, Cooldown: 2, CooldownTimer: 1, MaxHealth: 20, Health: 15, AttackPower: 4})
	r.Slots[6] = core.Occupy(core.Combatant{ID: 9, Alignment: core.Hostile, Archetype: 5, Cooldown: 3, CooldownTimer: 3, MaxHealth: 8, Health: 8, AttackPower: 2})
	r.Cards = [core.OfferCount]core.UpgradeCard{{ID: 1, Kind: core.Vitality}, {ID: 2, Kind: core.Power}, {ID: 3, Kind: core.Haste}}
	return r
}

func TestRun_ModelRoundTrip(t *testing.T) {
	r := sampleRun()

	m, err := RunToModel(r)
	require.NoError(t, err)
	assert.Equal(t, r.Owner.String(), m.Owner)
	assert.Equal(t, 2, m.Occupants)
	assert.Equal(t, uint64(420), m.Score)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(m.Snapshot, &snap))
	assert.Equal(t, float64(420), snap["score"])

	back, err := RunToCore(m)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestRunToCore_BadLayout(t *testing.T) {
	_, err := RunToCore(model.Run{Owner: "x", Layout: []byte{1, 2, 3}})
	assert.Error(t, err)
}

func TestPlayer_ModelRoundTrip(t *testing.T) {
	p := core.Player{Owner: core.OwnerFromName("bob"), Name: "bob", RunsFinished: 4, BestScore: 900, InRun: true}

	back, err := PlayerToCore(PlayerToModel(p))
	require.NoError(t, err)
	assert.Equal(t, p, back)

	_, err = PlayerToCore(model.Player{Owner: "bob"})
	assert.Error(t, err, "name-form owner in a row is rejected")
}

func TestTick_ModelRoundTrip(t *testing.T) {
	rec := core.TickRecord{
		Owner: core.OwnerFromName("carol").String(), Seed: 7, Score: 10, Experience: 1,
		Occupants: 3, Moves: 1, Attacks: 2, Kills: 1, Spawned: true,
		Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, rec, TickToCore(TickToModel(rec)))
}

func TestSummaryToModel(t *testing.T) {
	s := core.RunSummary{Owner: "o", Name: "n", FinalScore: 5, BestScore: 9, NewBest: false, RunsFinished: 2}
	m := SummaryToModel(s)
	assert.Equal(t, "o", m.Owner)
	assert.Equal(t, uint64(5), m.FinalScore)
	assert.Equal(t, uint32(2), m.RunsFinished)
}
