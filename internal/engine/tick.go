package engine

import (
	"fmt"

	"github.com/OCAP2/extracto/pkg/core"
)

// Slots the ranged archetype sweeps on every activation.
const (
	rangedFirstSlot = 4
	rangedLastSlot  = core.SlotCount - 1
	spawnSlot       = core.SlotCount - 1
)

// EventKind classifies what happened to a slot during a tick.
type EventKind uint8

const (
	EventMove EventKind = iota
	EventAttack
	EventKill
	EventLoss
	EventSpawn
)

func (k EventKind) String() string {
	switch k {
	case EventMove:
		return "move"
	case EventAttack:
		return "attack"
	case EventKill:
		return "kill"
	case EventLoss:
		return "loss"
	case EventSpawn:
		return "spawn"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is one observable step of a tick. From is the acting slot and To the
// affected slot; for spawns both are the spawn slot.
type Event struct {
	Kind     EventKind
	From     int
	To       int
	ActorID  uint16
	TargetID uint16
	Damage   uint8
}

// Outcome summarises a committed tick.
type Outcome struct {
	Seed    uint64
	Events  []Event
	Moves   int
	Attacks int
	Kills   int // hostiles killed by friendlies
	Losses  int // friendlies killed by hostiles
	Spawned bool
}

func (o *Outcome) add(e Event) {
	o.Events = append(o.Events, e)
	switch e.Kind {
	case EventMove:
		o.Moves++
	case EventAttack:
		o.Attacks++
	case EventKill:
		o.Kills++
	case EventLoss:
		o.Losses++
	case EventSpawn:
		o.Spawned = true
	}
}

// resolver walks a single working copy of the slots. Writes made while
// handling slot k are seen by k+1..6 in the same pass; lower indices are never
// revisited.
type resolver struct {
	slots      [core.SlotCount]core.Slot
	experience uint16
	out        Outcome
}

// AdvanceTick resolves one combat round. seed keys the enemy archetype drawn
// if the spawn slot is empty at the end of the pass. On error the input run is
// returned unchanged.
func AdvanceTick(run core.Run, seed uint64) (core.Run, Outcome, error) {
	score, err := addScore(run.Score, 1)
	if err != nil {
		return run, Outcome{}, fmt.Errorf("tick score: %w", err)
	}

	r := &resolver{
		slots:      run.Slots,
		experience: run.Experience,
		out:        Outcome{Seed: seed},
	}

	for k := 0; k < core.SlotCount; k++ {
		if err := r.step(k); err != nil {
			return run, Outcome{}, err
		}
	}

	next := run
	next.Score = score
	next.Experience = r.experience

	if !r.slots[spawnSlot].Occupied {
		id, err := addU16(run.LastCombatantID, 1)
		if err != nil {
			return run, Outcome{}, fmt.Errorf("spawn id: %w", err)
		}
		enemy, err := NewCombatant(id, EnemyArchetype(seed))
		if err != nil {
			return run, Outcome{}, err
		}
		r.slots[spawnSlot] = core.Occupy(enemy)
		next.LastCombatantID = id
		r.out.add(Event{Kind: EventSpawn, From: spawnSlot, To: spawnSlot, ActorID: id})
	}

	next.Slots = r.slots
	return next, r.out, nil
}

func (r *resolver) step(k int) error {
	if !r.slots[k].Occupied {
		return nil
	}

	actor := &r.slots[k].Combatant
	// an actor without a target keeps its previous visual state
	if !countdown(actor) {
		actor.VisualState = core.Idle
		return nil
	}

	switch actor.Alignment {
	case core.Hostile:
		r.hostile(k)
		return nil
	case core.Friendly:
		return r.friendly(k)
	}
	return nil
}

// countdown ticks the action timer and reports whether the combatant acts.
// A timer already at zero, which only a hand-built state can carry, acts at
// once rather than wrapping.
func countdown(c *core.Combatant) bool {
	if c.CooldownTimer <= 1 {
		c.CooldownTimer = c.Cooldown
		return true
	}
	c.CooldownTimer--
	return false
}

// hostile moves toward slot 0 or strikes a friendly directly in front.
func (r *resolver) hostile(k int) {
	if k == 0 {
		return
	}
	front := k - 1
	if !r.slots[front].Occupied {
		actor := r.slots[k].Combatant
		actor.VisualState = core.Moving
		r.slots[k] = core.Slot{}
		r.slots[front] = core.Occupy(actor)
		r.out.add(Event{Kind: EventMove, From: k, To: front, ActorID: actor.ID})
		return
	}
	if r.slots[front].Combatant.Alignment != core.Friendly {
		return
	}
	if r.strike(k, front) {
		r.out.add(Event{Kind: EventLoss, From: k, To: front, ActorID: r.slots[k].Combatant.ID})
	}
}

func (r *resolver) friendly(k int) error {
	switch r.slots[k].Combatant.Archetype {
	case Melee:
		if k+1 < core.SlotCount {
			return r.hit(k, k+1)
		}
	case Ranged:
		for target := rangedFirstSlot; target <= rangedLastSlot; target++ {
			if err := r.hit(k, target); err != nil {
				return err
			}
		}
	case Guard:
		return r.hit(k, spawnSlot)
	}
	return nil
}

// hit strikes target if it holds a hostile; a kill earns one experience.
func (r *resolver) hit(k, target int) error {
	if !r.slots[target].Occupied || r.slots[target].Combatant.Alignment != core.Hostile {
		return nil
	}
	victim := r.slots[target].Combatant.ID
	if !r.strike(k, target) {
		return nil
	}
	xp, err := addU16(r.experience, 1)
	if err != nil {
		return fmt.Errorf("kill experience: %w", err)
	}
	r.experience = xp
	r.out.add(Event{Kind: EventKill, From: k, To: target, ActorID: r.slots[k].Combatant.ID, TargetID: victim})
	return nil
}

// strike applies the attacker's full power to target and reports a kill.
// A killed occupant leaves its slot empty in the same pass.
func (r *resolver) strike(k, target int) bool {
	attacker := &r.slots[k].Combatant
	attacker.VisualState = core.Attacking

	victim := &r.slots[target].Combatant
	r.out.add(Event{
		Kind:     EventAttack,
		From:     k,
		To:       target,
		ActorID:  attacker.ID,
		TargetID: victim.ID,
		Damage:   attacker.AttackPower,
	})

	if attacker.AttackPower >= victim.Health {
		r.slots[target] = core.Slot{}
		return true
	}
	victim.Health -= attacker.AttackPower
	return false
}
