// Package ssa constructs SSA form: it promotes alloca/load/store
// stack slots to virtual registers, inserts and prunes phi operations,
// and merges trivial block chains (spec.md §4.7).
package ssa

import (
	"pykit/ir"
)

// Run promotes every promotable stack slot of fn and simplifies the
// resulting block structure. It is the flagship middle-end transform:
// afterwards the function's locals are SSA registers joined by phis,
// and the dispensable alloca/load/store ops are gone.
func Run(fn *ir.Function) error {
	if err := Promote(fn); err != nil {
		return err
	}
	MergeBlocks(fn)
	return nil
}
