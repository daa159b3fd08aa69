package transform

import (
	"pykit/ir"
	"pykit/opcode"
)

// DCE deletes dead operations to a fixed point: an op is dead iff it
// has no uses and its opcode is in the pure set (spec.md §4.9).
// Side-effecting ops — stores, calls, terminators, print, exc_throw —
// are never eliminated.
func DCE(fn *ir.Function) {
	for changed := true; changed; {
		changed = false
		for _, op := range fn.Ops() {
			if !opcode.IsPure(op.Opcode()) || fn.Uses().HasUses(op) {
				continue
			}
			if ir.Delete(op) == nil {
				changed = true
			}
		}
	}
}
