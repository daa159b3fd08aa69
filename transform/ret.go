// Package transform implements the canonical IR transformations:
// return normalization, dead-code elimination, function inlining, and
// local exception-throw resolution (spec.md §4.9).
package transform

import (
	"pykit/ir"
	"pykit/opcode"
	"pykit/types"
)

// NormalizeReturns rewrites fn so exactly one ret remains, in a single
// return block at the function tail. Every existing ret becomes a
// store to a return slot followed by a jump to that block, which loads
// the slot and returns. Void functions skip the slot. This is the
// precondition for DCE and inlining.
func NormalizeReturns(fn *ir.Function) {
	b := ir.NewBuilder(fn)
	retBlock := fn.AddBlock("pykit.return")
	restype := fn.Signature().RestType

	var slot *ir.Operation
	if !types.IsVoid(restype) {
		b.AtFront(fn.StartBlock(), func() {
			slot = b.Alloca(types.Pointer{Base: restype})
			b.Store(ir.NewUndef(restype), slot)
		})
	}

	for _, op := range fn.Ops() {
		if op.Opcode() != opcode.Ret || op.Block() == retBlock {
			continue
		}
		b.PositionAfter(op)
		if slot != nil && len(op.Args()) > 0 {
			b.Store(op.Args()[0].Value, slot)
		}
		b.Jump(retBlock)
		_ = ir.Delete(op)
	}

	b.AtEnd(retBlock, func() {
		if slot != nil {
			b.Ret(b.Load(slot))
		} else {
			b.Ret(nil)
		}
	})
}
