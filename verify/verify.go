// Package verify checks the structural invariants of pykit IR
// (spec.md §3), SSA dominance, and the low-level form contract. It is
// organized like a sanity checker: a verifier carries the function and
// block under inspection so every diagnostic is precise.
package verify

import (
	"fmt"
	"io"
	"strings"

	"pykit/cfg"
	"pykit/ir"
	"pykit/opcode"
	"pykit/types"
)

// Error is a verification failure. It names the function and, when
// known, the block and operation the invariant failed at (spec.md §7:
// verifier errors are precise).
type Error struct {
	Fn    *ir.Function
	Block *ir.Block
	Op    *ir.Operation
	Msg   string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("verify: ")
	if e.Fn != nil {
		fmt.Fprintf(&b, "function %s: ", e.Fn.Name())
	}
	if e.Block != nil {
		fmt.Fprintf(&b, "block %s: ", e.Block.Name())
	}
	if e.Op != nil {
		fmt.Fprintf(&b, "op %%%s: ", e.Op.Name())
	}
	b.WriteString(e.Msg)
	return b.String()
}

type verifier struct {
	fn     *ir.Function
	block  *ir.Block
	op     *ir.Operation
	errs   []error
	warnTo io.Writer
}

func (v *verifier) errorf(format string, args ...any) {
	v.errs = append(v.errs, &Error{
		Fn:    v.fn,
		Block: v.block,
		Op:    v.op,
		Msg:   fmt.Sprintf(format, args...),
	})
}

func (v *verifier) warnf(format string, args ...any) {
	if v.warnTo == nil {
		return
	}
	fmt.Fprintf(v.warnTo, "verify: warning: function %s: %s\n",
		v.fn.Name(), fmt.Sprintf(format, args...))
}

func (v *verifier) result() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs[0]
}

// Verify checks fn against the structural invariants of spec.md §3:
// name uniqueness, terminator placement, leader ordering, same-function
// argument references, phi shape, and def/use index consistency. It
// returns the first failure as a *Error, or nil.
func Verify(fn *ir.Function) error {
	v := &verifier{fn: fn}
	v.function()
	return v.result()
}

// VerifyModule verifies every function of m.
func VerifyModule(m *ir.Module) error {
	for _, f := range m.Functions() {
		if err := Verify(f); err != nil {
			return err
		}
	}
	return nil
}

func (v *verifier) function() {
	fn := v.fn
	g := cfg.Build(fn)

	blockNames := make(map[string]bool)
	resultNames := make(map[string]bool)
	attached := make(map[*ir.Operation]bool)
	for _, b := range fn.Blocks() {
		for _, op := range b.Ops() {
			attached[op] = true
		}
	}

	for _, b := range fn.Blocks() {
		v.block, v.op = b, nil
		if blockNames[b.Name()] {
			v.errorf("duplicate block name %q", b.Name())
		}
		blockNames[b.Name()] = true
		v.blockShape(b)

		for _, op := range b.Ops() {
			v.op = op
			if op.Name() != "" {
				if resultNames[op.Name()] {
					v.errorf("duplicate result name %q", op.Name())
				}
				resultNames[op.Name()] = true
			}
			v.args(op, attached)
			if op.Opcode() == opcode.Phi {
				v.phi(op, g)
			}
		}
	}
	v.block, v.op = nil, nil
	v.useIndex()
}

// blockShape checks invariants 2 and 3: exactly one terminator, at the
// end, and a contiguous, ordered leader prefix.
func (v *verifier) blockShape(b *ir.Block) {
	ops := b.Ops()
	if len(ops) == 0 {
		v.errorf("empty block")
		return
	}
	last := ops[len(ops)-1]
	if !opcode.IsTerminator(last.Opcode()) {
		v.errorf("block does not end with a terminator (got %s)", last.Opcode())
	}
	for _, op := range ops[:len(ops)-1] {
		if opcode.IsTerminator(op.Opcode()) {
			v.op = op
			v.errorf("terminator %s is not the last op of its block", op.Opcode())
			v.op = nil
		}
	}

	prevRank, inLeaders := -1, true
	for _, op := range ops {
		rank, leader := leaderRank(op.Opcode())
		switch {
		case !leader:
			inLeaders = false
		case !inLeaders:
			v.op = op
			v.errorf("leader %s appears after a non-leader op", op.Opcode())
			v.op = nil
		case rank < prevRank:
			v.op = op
			v.errorf("leader %s out of declared order", op.Opcode())
			v.op = nil
		default:
			prevRank = rank
		}
	}
}

// leaderRank returns the declared leader ordering: phi, then
// exc_setup, then exc_catch.
func leaderRank(op opcode.Opcode) (int, bool) {
	switch op {
	case opcode.Phi:
		return 0, true
	case opcode.ExcSetup:
		return 1, true
	case opcode.ExcCatch:
		return 2, true
	}
	return 0, false
}

// args checks invariant 4: operand Operations and Blocks must belong
// to the same function and still be attached.
func (v *verifier) args(op *ir.Operation, attached map[*ir.Operation]bool) {
	for _, arg := range op.Args() {
		vals := arg.List
		if !arg.IsList() {
			if arg.Value == nil {
				continue
			}
			vals = []ir.Value{arg.Value}
		}
		for _, val := range vals {
			switch x := val.(type) {
			case *ir.Operation:
				if !attached[x] {
					v.errorf("argument %%%s is not attached to this function", x.Name())
				}
			case *ir.FuncArg:
				if x.Parent() != v.fn {
					v.errorf("argument %%%s belongs to function %s", x.Name(), x.Parent().Name())
				}
			case *ir.Block:
				if x.Function() != v.fn {
					v.errorf("block operand %s belongs to another function", x.Name())
				}
			}
		}
	}
}

// phi checks invariant 5: two parallel lists of equal length whose
// block set equals the block's CFG predecessors.
func (v *verifier) phi(op *ir.Operation, g *cfg.Graph) {
	args := op.Args()
	if len(args) != 2 || !args[0].IsList() || !args[1].IsList() {
		v.errorf("phi must carry two parallel lists")
		return
	}
	blocks, values := args[0].List, args[1].List
	if len(blocks) != len(values) {
		v.errorf("phi lists have mismatched lengths %d and %d", len(blocks), len(values))
	}

	have := make(map[*ir.Block]bool)
	for _, bv := range blocks {
		blk, ok := bv.(*ir.Block)
		if !ok {
			v.errorf("phi predecessor %s is not a block", bv.Name())
			return
		}
		have[blk] = true
	}
	preds := g.PredSet(op.Block())
	if len(have) != len(preds) {
		v.errorf("phi names %d predecessors, CFG has %d", len(have), len(preds))
		return
	}
	for _, p := range preds {
		if !have[p] {
			v.errorf("phi is missing predecessor %s", p.Name())
		}
	}
}

// useIndex checks invariant 7 in both directions: every recorded use
// corresponds to an actual operand, and every operand has a recorded
// use.
func (v *verifier) useIndex() {
	fn := v.fn
	want := make(map[ir.Value]map[*ir.Operation]bool)
	for _, b := range fn.Blocks() {
		for _, op := range b.Ops() {
			for _, arg := range op.Args() {
				vals := arg.List
				if !arg.IsList() {
					if arg.Value == nil {
						continue
					}
					vals = []ir.Value{arg.Value}
				}
				for _, val := range vals {
					switch val.(type) {
					case *ir.Operation, *ir.FuncArg, *ir.Block:
						if want[val] == nil {
							want[val] = make(map[*ir.Operation]bool)
						}
						want[val][op] = true
					}
				}
			}
		}
	}

	for val, users := range want {
		got := fn.Uses().Uses(val)
		if len(got) != len(users) {
			v.errorf("use index for %s has %d entries, args imply %d", val.Name(), len(got), len(users))
			continue
		}
		for _, u := range got {
			if !users[u] {
				v.errorf("use index for %s records %%%s, which does not reference it", val.Name(), u.Name())
			}
		}
	}
	for _, val := range fn.Uses().TrackedValues() {
		if want[val] == nil {
			v.errorf("use index tracks %s, which no op references", val.Name())
		}
	}
}

// VerifySSA runs Verify and additionally checks the SSA dominance
// property: every non-phi use of an operation must occur in a block
// dominated by the defining block, or later in the defining block
// itself.
func VerifySSA(fn *ir.Function) error {
	if err := Verify(fn); err != nil {
		return err
	}
	v := &verifier{fn: fn}
	g := cfg.Build(fn)
	doms := cfg.ComputeDominators(g)

	pos := make(map[*ir.Operation]int)
	for _, b := range fn.Blocks() {
		for i, op := range b.Ops() {
			pos[op] = i
		}
	}

	for _, b := range fn.Blocks() {
		v.block = b
		for _, op := range b.Ops() {
			if op.Opcode() == opcode.Phi {
				continue
			}
			v.op = op
			for _, arg := range op.Args() {
				vals := arg.List
				if !arg.IsList() {
					if arg.Value == nil {
						continue
					}
					vals = []ir.Value{arg.Value}
				}
				for _, val := range vals {
					def, ok := val.(*ir.Operation)
					if !ok {
						continue
					}
					defBlock := def.Block()
					if defBlock == b {
						if pos[def] > pos[op] {
							v.errorf("use of %%%s precedes its definition", def.Name())
						}
					} else if !doms.Dominates(defBlock, b) {
						v.errorf("use of %%%s is not dominated by its defining block %s", def.Name(), defBlock.Name())
					}
				}
			}
		}
	}
	return v.result()
}

// VerifyLowLevel runs Verify and additionally enforces the lowered
// form of spec.md §3 invariant 6 and §6's back-end contract: no
// high-level opcodes and only low-level types.
func VerifyLowLevel(fn *ir.Function) error {
	if err := Verify(fn); err != nil {
		return err
	}
	v := &verifier{fn: fn}
	if !types.IsLowLevel(fn.Signature()) {
		v.errorf("signature %s is not a low-level type", fn.Signature())
	}
	for _, b := range fn.Blocks() {
		v.block = b
		for _, op := range b.Ops() {
			v.op = op
			if !opcode.IsLowLevel(op.Opcode()) {
				v.errorf("opcode %s is not permitted in low-level form", op.Opcode())
			}
			if !types.IsVoid(op.Type()) && !types.IsLowLevel(op.Type()) {
				v.errorf("result type %s is not a low-level type", op.Type())
			}
		}
	}
	return v.result()
}

// Warnings directs non-fatal diagnostics (currently none are emitted
// by the core checks; the SSA pass may report Undef back edges through
// this hook) to w while running Verify.
func Warnings(fn *ir.Function, w io.Writer) error {
	v := &verifier{fn: fn, warnTo: w}
	v.function()
	return v.result()
}
