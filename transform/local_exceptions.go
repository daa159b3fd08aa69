package transform

import (
	"pykit/ir"
	"pykit/opcode"
	"pykit/types"
)

// ExceptionModel decides whether a declared (caught) exception type
// matches a thrown one. The IR core carries no exception hierarchy of
// its own; the interpreter supplies the canonical implementation.
type ExceptionModel interface {
	ExcMatch(declared, thrown any) bool
}

// equalityModel is the fallback when no model is supplied: a handler
// matches on exact equality, and the root "Exception" type catches
// everything.
type equalityModel struct{}

func (equalityModel) ExcMatch(declared, thrown any) bool {
	return declared == thrown || declared == "Exception"
}

// ResolveLocalThrows rewrites each exc_throw of a constant exception
// whose handler is local — named by an exc_setup leader of the same
// block — into a jump to the handler block. Returns the number of
// throws rewritten.
func ResolveLocalThrows(fn *ir.Function, model ExceptionModel) int {
	if model == nil {
		model = equalityModel{}
	}
	rewritten := 0
	for _, op := range fn.Ops() {
		if op.Opcode() != opcode.ExcThrow {
			continue
		}
		exc, ok := op.Args()[0].Value.(*ir.Constant)
		if !ok {
			continue
		}
		handler := findHandler(op.Block().Leaders(), model, exc.Value())
		if handler == nil {
			continue
		}
		ir.ReplaceOp(op, opcode.Jump, types.Void, []ir.Arg{ir.ValArg(handler)})
		rewritten++
	}
	return rewritten
}

// findHandler walks the exc_setup leaders' handler blocks and returns
// the first whose exc_catch leader declares a matching exception type.
func findHandler(leaders []*ir.Operation, model ExceptionModel, thrown any) *ir.Block {
	for _, setup := range leaders {
		if setup.Opcode() != opcode.ExcSetup {
			continue
		}
		for _, hv := range setup.Args()[0].List {
			handler, ok := hv.(*ir.Block)
			if !ok {
				continue
			}
			for _, op := range handler.Leaders() {
				if op.Opcode() != opcode.ExcCatch {
					continue
				}
				for _, tv := range op.Args()[0].List {
					if c, ok := tv.(*ir.Constant); ok && model.ExcMatch(c.Value(), thrown) {
						return handler
					}
				}
			}
		}
	}
	return nil
}
