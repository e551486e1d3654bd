// Package codec reads and writes the fixed binary record layout of a run.
//
// Field order and widths follow the persisted account record: owner, score,
// experience, seven presence-flagged combatant slots, last combatant id,
// three cards, last card id. Integers are little-endian. Empty slots are
// zero padded so every field sits at a fixed offset.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/OCAP2/extracto/pkg/core"
)

const (
	OwnerSize     = 32
	CombatantSize = 10
	SlotSize      = 1 + CombatantSize
	CardSize      = 3

	// RunSize is the encoded length of a run record.
	RunSize = OwnerSize + 8 + 2 + core.SlotCount*SlotSize + 2 + core.OfferCount*CardSize + 2
)

// ErrBadLength is returned when a record is not exactly RunSize bytes.
var ErrBadLength = errors.New("bad run record length")

// ErrBadPresenceFlag is returned for a slot flag other than 0 or 1.
var ErrBadPresenceFlag = errors.New("bad slot presence flag")

var le = binary.LittleEndian

// EncodeRun writes run into a new RunSize byte record.
func EncodeRun(run *core.Run) []byte {
	buf := make([]byte, 0, RunSize)
	buf = append(buf, run.Owner[:]...)
	buf = le.AppendUint64(buf, run.Score)
	buf = le.AppendUint16(buf, run.Experience)
	for _, slot := range run.Slots {
		if !slot.Occupied {
			buf = append(buf, make([]byte, SlotSize)...)
			continue
		}
		c := slot.Combatant
		buf = append(buf, 1)
		buf = le.AppendUint16(buf, c.ID)
		buf = append(buf,
			uint8(c.Alignment),
			c.Archetype,
			c.Cooldown,
			c.CooldownTimer,
			c.MaxHealth,
			c.Health,
			c.AttackPower,
			uint8(c.VisualState),
		)
	}
	buf = le.AppendUint16(buf, run.LastCombatantID)
	for _, card := range run.Cards {
		buf = le.AppendUint16(buf, card.ID)
		buf = append(buf, uint8(card.Kind))
	}
	buf = le.AppendUint16(buf, run.LastCardID)
	return buf
}

// DecodeRun parses a record produced by EncodeRun.
func DecodeRun(data []byte) (core.Run, error) {
	var run core.Run
	if len(data) != RunSize {
		return run, fmt.Errorf("%w: got %d, want %d", ErrBadLength, len(data), RunSize)
	}

	off := copy(run.Owner[:], data[:OwnerSize])
	run.Score = le.Uint64(data[off:])
	off += 8
	run.Experience = le.Uint16(data[off:])
	off += 2

	for i := range run.Slots {
		rec := data[off : off+SlotSize]
		off += SlotSize
		switch rec[0] {
		case 0:
			continue
		case 1:
		default:
			return core.Run{}, fmt.Errorf("%w: slot %d has %d", ErrBadPresenceFlag, i, rec[0])
		}
		run.Slots[i] = core.Occupy(core.Combatant{
			ID:            le.Uint16(rec[1:]),
			Alignment:     core.Alignment(rec[3]),
			Archetype:     rec[4],
			Cooldown:      rec[5],
			CooldownTimer: rec[6],
			MaxHealth:     rec[7],
			Health:        rec[8],
			AttackPower:   rec[9],
			VisualState:   core.VisualState(rec[10]),
		})
	}

	run.LastCombatantID = le.Uint16(data[off:])
	off += 2
	for i := range run.Cards {
		run.Cards[i] = core.UpgradeCard{
			ID:   le.Uint16(data[off:]),
			Kind: core.CardKind(data[off+2]),
		}
		off += CardSize
	}
	run.LastCardID = le.Uint16(data[off:])
	return run, nil
}
