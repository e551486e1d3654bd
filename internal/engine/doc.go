// Package engine holds the combat and progression rules of a run: the
// xorshift seed mixer, archetype tables, the tick resolver, the upgrade
// applier and the run lifecycle. Every operation takes a core.Run by value
// and returns the next value, so a failed operation never leaves a partial
// state behind.
//
// Nothing here is safe for concurrent use on the same run; the caller is
// expected to serialize ticks and upgrades per run.
package engine
