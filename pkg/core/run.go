// pkg/core/run.go
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SlotCount is the number of battlefield positions, 0 being the friendly base
// and 6 the hostile spawn edge.
const SlotCount = 7

// OfferCount is the number of upgrade cards offered at once.
const OfferCount = 3

// Alignment marks which side a combatant fights for.
type Alignment uint8

const (
	Friendly Alignment = 0
	Hostile  Alignment = 1
)

func (a Alignment) String() string {
	switch a {
	case Friendly:
		return "friendly"
	case Hostile:
		return "hostile"
	default:
		return fmt.Sprintf("alignment(%d)", uint8(a))
	}
}

// VisualState is observable only and never affects resolution.
type VisualState uint8

const (
	Idle      VisualState = 0
	Attacking VisualState = 1
	Moving    VisualState = 2
)

func (v VisualState) String() string {
	switch v {
	case Idle:
		return "idle"
	case Attacking:
		return "attacking"
	case Moving:
		return "moving"
	default:
		return fmt.Sprintf("visual(%d)", uint8(v))
	}
}

// CardKind selects the effect of an upgrade card.
type CardKind uint8

const (
	Vitality CardKind = 0
	Power    CardKind = 1
	Haste    CardKind = 2
)

func (k CardKind) String() string {
	switch k {
	case Vitality:
		return "vitality"
	case Power:
		return "power"
	case Haste:
		return "haste"
	default:
		return fmt.Sprintf("card(%d)", uint8(k))
	}
}

// Owner is the opaque identity a run and a player profile belong to.
type Owner [32]byte

// OwnerFromName derives a stable identity from a display name.
func OwnerFromName(name string) Owner {
	return Owner(sha256.Sum256([]byte(name)))
}

// ParseOwner accepts either a 64 character hex identity or a plain name.
func ParseOwner(s string) (Owner, error) {
	if s == "" {
		return Owner{}, fmt.Errorf("empty owner")
	}
	if len(s) == hex.EncodedLen(len(Owner{})) {
		var o Owner
		if _, err := hex.Decode(o[:], []byte(s)); err == nil {
			return o, nil
		}
	}
	return OwnerFromName(s), nil
}

func (o Owner) String() string {
	return hex.EncodeToString(o[:])
}

// Short returns the first eight hex characters, for logs.
func (o Owner) Short() string {
	return o.String()[:8]
}

func (o Owner) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Owner) UnmarshalText(text []byte) error {
	parsed, err := ParseOwner(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// IsZero reports whether the identity is unset.
func (o Owner) IsZero() bool {
	return o == Owner{}
}

// Combatant is a single battlefield occupant.
type Combatant struct {
	ID            uint16      `json:"id"`
	Alignment     Alignment   `json:"alignment"`
	Archetype     uint8       `json:"archetype"`
	Cooldown      uint8       `json:"cooldown"`
	CooldownTimer uint8       `json:"cooldownTimer"`
	MaxHealth     uint8       `json:"maxHealth"`
	Health        uint8       `json:"health"`
	AttackPower   uint8       `json:"attackPower"`
	VisualState   VisualState `json:"visualState"`
}

// Slot is one battlefield position. An unoccupied slot carries a zero
// Combatant that must be ignored.
type Slot struct {
	Occupied  bool      `json:"occupied"`
	Combatant Combatant `json:"combatant"`
}

// Occupy returns a slot holding c.
func Occupy(c Combatant) Slot {
	return Slot{Occupied: true, Combatant: c}
}

// UpgradeCard is one drawable upgrade offer.
type UpgradeCard struct {
	ID   uint16   `json:"id"`
	Kind CardKind `json:"kind"`
}

// Run is the battlefield state of one play-through. It is a plain value:
// copying a Run copies every slot and card.
type Run struct {
	Owner           Owner                   `json:"owner"`
	Score           uint64                  `json:"score"`
	Experience      uint16                  `json:"experience"`
	Slots           [SlotCount]Slot         `json:"slots"`
	LastCombatantID uint16                  `json:"lastCombatantId"`
	Cards           [OfferCount]UpgradeCard `json:"cards"`
	LastCardID      uint16                  `json:"lastCardId"`
}

// Occupants returns the number of occupied slots.
func (r *Run) Occupants() int {
	n := 0
	for _, s := range r.Slots {
		if s.Occupied {
			n++
		}
	}
	return n
}
