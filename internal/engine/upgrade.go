package engine

import (
	"fmt"

	"github.com/OCAP2/extracto/pkg/core"
)

// Upgrade effect sizes and the flat score bonus for playing a card.
const (
	VitalityBonus = 10
	PowerBonus    = 1
	UpgradeScore  = 100
)

// ApplyUpgrade plays the card at offer on the combatant at slot and refills
// the offer with a card drawn from seed.
//
// The effect always applies; experience is only deducted when the run can
// afford the card's cost. A Haste card that would take a cooldown to zero is
// spent without changing the cooldown.
func ApplyUpgrade(run core.Run, seed uint64, offer, slot int) (core.Run, error) {
	if offer < 0 || offer >= core.OfferCount {
		return run, fmt.Errorf("%w: %d", ErrInvalidCardOffer, offer)
	}
	if slot < 0 || slot >= core.SlotCount || !run.Slots[slot].Occupied {
		return run, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}

	next := run
	card := run.Cards[offer]
	target := run.Slots[slot].Combatant

	var err error
	switch card.Kind {
	case core.Vitality:
		if target.MaxHealth, err = addU8(target.MaxHealth, VitalityBonus); err != nil {
			return run, fmt.Errorf("vitality max health: %w", err)
		}
		if target.Health, err = addU8(target.Health, VitalityBonus); err != nil {
			return run, fmt.Errorf("vitality health: %w", err)
		}
	case core.Power:
		if target.AttackPower, err = addU8(target.AttackPower, PowerBonus); err != nil {
			return run, fmt.Errorf("power: %w", err)
		}
	case core.Haste:
		if target.Cooldown > 1 {
			target.Cooldown--
		}
	}
	next.Slots[slot] = core.Occupy(target)

	cardID, err := addU16(run.LastCardID, 1)
	if err != nil {
		return run, fmt.Errorf("card id: %w", err)
	}
	next.LastCardID = cardID

	if cost := CardCost(card.Kind); next.Experience >= cost {
		next.Experience -= cost
	}

	next.Cards[offer] = core.UpgradeCard{ID: cardID, Kind: DrawCard(seed)}

	if next.Score, err = addScore(run.Score, UpgradeScore); err != nil {
		return run, fmt.Errorf("upgrade score: %w", err)
	}
	return next, nil
}
