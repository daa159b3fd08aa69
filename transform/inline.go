package transform

import (
	"github.com/pkg/errors"

	"pykit/cfg"
	"pykit/ir"
	"pykit/opcode"
)

// Inline splices the callee of call into fn at the callsite: the
// callsite's block is split, the callee is deep-copied with fresh
// names minted through fn's temper, its blocks are wired between the
// split halves, its arguments are bound to the call's operands, and
// its (normalized) single return value replaces the call. A void
// callee simply has its call deleted.
//
// Generator-shaped callees (containing yieldval) are rejected unless
// the call's only uses are getiter/next inside one natural loop.
func Inline(fn *ir.Function, call *ir.Operation) error {
	if call.Opcode() != opcode.Call {
		return errors.Errorf("transform: cannot inline %s op %%%s", call.Opcode(), call.Name())
	}
	callee, ok := call.Args()[0].Value.(*ir.Function)
	if !ok {
		return errors.Errorf("transform: cannot inline external callee of %%%s", call.Name())
	}
	if err := assertInlinable(fn, call, callee); err != nil {
		return err
	}

	b := ir.NewBuilder(fn)
	b.PositionBefore(call)
	header, continuation := b.SplitBlock("inline.cont", false)

	copied := ir.CloneFunction(callee, callee.Name()+".inline")
	result := rewriteReturn(copied)

	callArgs := call.Args()[1].List
	for i, arg := range copied.Args() {
		ir.ReplaceUses(arg, callArgs[i])
	}

	blocks := fn.AdoptBlocks(copied, header)
	entry, exit := blocks[0], blocks[len(blocks)-1]
	b.AtEnd(header, func() { b.Jump(entry) })
	b.AtEnd(exit, func() { b.Jump(continuation) })

	if result != nil {
		ir.ReplaceUses(call, result)
	}
	return ir.Delete(call)
}

// rewriteReturn normalizes the copied callee's returns, then strips
// the single remaining ret so the exit block produces the return
// value as an ordinary operation. Returns nil for a void callee.
func rewriteReturn(copied *ir.Function) *ir.Operation {
	NormalizeReturns(copied)
	var ret *ir.Operation
	for _, op := range copied.Ops() {
		if op.Opcode() == opcode.Ret {
			ret = op
		}
	}
	var result *ir.Operation
	if len(ret.Args()) > 0 {
		result = ret.Args()[0].Value.(*ir.Operation)
	}
	_ = ir.Delete(ret)
	return result
}

// assertInlinable rejects generator-shaped callees outside the
// restricted consumption pattern: every use of the call must be a
// getiter or next inside a single natural loop of the caller.
func assertInlinable(fn *ir.Function, call *ir.Operation, callee *ir.Function) error {
	generator := false
	for _, op := range callee.Ops() {
		if op.Opcode() == opcode.YieldVal {
			generator = true
			break
		}
	}
	if !generator {
		return nil
	}

	uses := fn.Uses().Uses(call)
	if len(uses) == 0 || len(uses) > 2 {
		return errors.Errorf("transform: cannot inline generator %s with %d uses", callee.Name(), len(uses))
	}
	for _, u := range uses {
		if u.Opcode() != opcode.GetIter && u.Opcode() != opcode.Next {
			return errors.Errorf("transform: cannot inline generator %s used by %s", callee.Name(), u.Opcode())
		}
	}

	forest, err := cfg.FindNaturalLoops(fn, nil)
	if err != nil {
		return err
	}
	for _, loop := range cfg.FlatLoops(forest) {
		all := true
		for _, u := range uses {
			if !loop.Contains(u.Block()) {
				all = false
				break
			}
		}
		if all {
			return nil
		}
	}
	return errors.Errorf("transform: generator %s is not consumed inside one loop", callee.Name())
}
