package engine

import "github.com/OCAP2/extracto/pkg/core"

// Next is a stateless xorshift64 step. The same seed always yields the same
// value; callers must feed it from a monotonically advancing counter.
func Next(seed uint64) uint64 {
	x := seed
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	return x
}

// EnemyArchetype picks a hostile archetype in 3..6.
func EnemyArchetype(seed uint64) uint8 {
	return uint8(FirstHostileArchetype + Next(seed)%HostileArchetypes)
}

// DrawCard picks a card kind in 0..2.
func DrawCard(seed uint64) core.CardKind {
	return core.CardKind(Next(seed) % CardKinds)
}
