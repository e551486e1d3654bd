package engine

import (
	"fmt"

	"github.com/OCAP2/extracto/pkg/core"
)

// Archetype indices. 0-2 fight for the player, 3-6 are spawned as enemies.
const (
	Guard  uint8 = 0
	Ranged uint8 = 1
	Melee  uint8 = 2

	FirstHostileArchetype = 3
	HostileArchetypes     = 4
	Archetypes            = FirstHostileArchetype + HostileArchetypes

	CardKinds = 3
)

// Per-archetype base stats.
var (
	CooldownByArchetype    = [Archetypes]uint8{5, 4, 6, 4, 6, 8, 10}
	MaxHealthByArchetype   = [Archetypes]uint8{5, 7, 10, 5, 5, 10, 20}
	AttackPowerByArchetype = [Archetypes]uint8{2, 1, 3, 1, 1, 2, 5}
)

// CardCostByKind is the experience price of each card kind.
var CardCostByKind = [CardKinds]uint16{1, 2, 3}

// AlignmentOf returns the side an archetype fights for.
func AlignmentOf(archetype uint8) core.Alignment {
	if archetype >= FirstHostileArchetype {
		return core.Hostile
	}
	return core.Friendly
}

// NewCombatant builds a fresh combatant from the archetype tables with a full
// cooldown timer and idle visual state.
func NewCombatant(id uint16, archetype uint8) (core.Combatant, error) {
	if archetype >= Archetypes {
		return core.Combatant{}, fmt.Errorf("%w: %d", ErrUnknownArchetype, archetype)
	}
	return core.Combatant{
		ID:            id,
		Alignment:     AlignmentOf(archetype),
		Archetype:     archetype,
		Cooldown:      CooldownByArchetype[archetype],
		CooldownTimer: CooldownByArchetype[archetype],
		MaxHealth:     MaxHealthByArchetype[archetype],
		Health:        MaxHealthByArchetype[archetype],
		AttackPower:   AttackPowerByArchetype[archetype],
		VisualState:   core.Idle,
	}, nil
}

// CardCost returns the price of a card kind. Unknown kinds are free; they
// cannot be drawn and are rejected before their cost matters.
func CardCost(kind core.CardKind) uint16 {
	if int(kind) >= CardKinds {
		return 0
	}
	return CardCostByKind[kind]
}
