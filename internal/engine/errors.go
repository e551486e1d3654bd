package engine

import "errors"

var (
	// ErrArithmeticOverflow is returned when a counter would leave its range.
	// The operation is aborted and the input state is returned untouched.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidSlot is returned when an upgrade targets an empty or
	// out-of-range slot.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrInvalidCardOffer is returned for an out-of-range card offer index.
	ErrInvalidCardOffer = errors.New("invalid card offer")

	// ErrUnknownArchetype is returned when a table lookup falls outside 0-6.
	ErrUnknownArchetype = errors.New("unknown archetype")
)
