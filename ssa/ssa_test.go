package ssa_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pykit/interp"
	"pykit/ir"
	"pykit/opcode"
	"pykit/ssa"
	"pykit/types"
	"pykit/verify"
)

// clampFunc builds `if (y > 5) y = 5 else y = 2; return y` over a
// stack slot for y (scenario A).
func clampFunc(t *testing.T) *ir.Function {
	t.Helper()
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32}}
	fn := ir.NewFunction("clamp", sig, []string{"y"})
	entry := fn.AddBlock("entry")

	b := ir.NewBuilder(fn)
	b.PositionAtEnd(entry)
	slot := b.Alloca(types.Pointer{Base: types.Int32})
	b.Store(fn.Arg(0), slot)
	cond := b.Gt(b.Load(slot), ir.NewConstant(types.Int32, int64(5)))
	thenB, elseB, join := b.IfElse(cond)

	b.AtFront(thenB, func() {
		b.Store(ir.NewConstant(types.Int32, int64(5)), slot)
	})
	b.AtFront(elseB, func() {
		b.Store(ir.NewConstant(types.Int32, int64(2)), slot)
	})
	b.AtEnd(join, func() {
		b.Ret(b.Load(slot))
	})
	return fn
}

// condStoreLoop builds scenario B:
//
//	i = 0
//	while (i < 10) { if (i > 5) y = i; i = i + 1 }
//	return y
func condStoreLoop(t *testing.T) *ir.Function {
	t.Helper()
	sig := types.Function{RestType: types.Int32}
	fn := ir.NewFunction("condstore", sig, nil)
	entry := fn.AddBlock("entry")
	cond := fn.AddBlock("loop.cond")
	body := fn.AddBlock("loop.body")
	store := fn.AddBlock("loop.store")
	latch := fn.AddBlock("loop.latch")
	exit := fn.AddBlock("loop.exit")

	zero := ir.NewConstant(types.Int32, int64(0))
	one := ir.NewConstant(types.Int32, int64(1))
	five := ir.NewConstant(types.Int32, int64(5))
	ten := ir.NewConstant(types.Int32, int64(10))

	b := ir.NewBuilder(fn)
	b.PositionAtEnd(entry)
	iSlot := b.Alloca(types.Pointer{Base: types.Int32})
	ySlot := b.Alloca(types.Pointer{Base: types.Int32})
	b.Store(zero, iSlot)
	b.Jump(cond)

	b.PositionAtEnd(cond)
	b.CBranch(b.Lt(b.Load(iSlot), ten), body, exit)

	b.PositionAtEnd(body)
	b.CBranch(b.Gt(b.Load(iSlot), five), store, latch)

	b.PositionAtEnd(store)
	b.Store(b.Load(iSlot), ySlot)
	b.Jump(latch)

	b.PositionAtEnd(latch)
	b.Store(b.Add(types.Int32, b.Load(iSlot), one), iSlot)
	b.Jump(cond)

	b.PositionAtEnd(exit)
	b.Ret(b.Load(ySlot))
	return fn
}

func countOps(fn *ir.Function, opc opcode.Opcode) int {
	n := 0
	for _, op := range fn.Ops() {
		if op.Opcode() == opc {
			n++
		}
	}
	return n
}

func TestFindAllocasRejectsEscapes(t *testing.T) {
	sig := types.Function{RestType: types.Int32}
	fn := ir.NewFunction("escape", sig, nil)
	entry := fn.AddBlock("entry")

	b := ir.NewBuilder(fn)
	b.PositionAtEnd(entry)
	kept := b.Alloca(types.Pointer{Base: types.Int32})
	escaped := b.Alloca(types.Pointer{Base: types.Int32})
	b.Store(ir.NewConstant(types.Int32, int64(1)), kept)
	// address flows into pointer arithmetic: not promotable
	b.Op(opcode.PtrAdd, types.Pointer{Base: types.Int32},
		ir.ValArg(escaped), ir.ValArg(ir.NewConstant(types.Int64, int64(1))))
	b.Ret(b.Load(kept))

	slots := ssa.FindAllocas(fn)
	require.Len(t, slots, 1)
	assert.Equal(t, kept, slots[0])
}

func TestPromoteIfThenElse(t *testing.T) {
	fn := clampFunc(t)
	require.NoError(t, ssa.Run(fn))
	require.NoError(t, verify.VerifySSA(fn))

	assert.Zero(t, countOps(fn, opcode.Alloca))
	assert.Zero(t, countOps(fn, opcode.Load))
	assert.Zero(t, countOps(fn, opcode.Store))
	require.Equal(t, 1, countOps(fn, opcode.Phi), "exactly one phi joins the two stores")

	// expected op sequence in the join block: [phi, ret]
	exit := fn.ExitBlock()
	ops := exit.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, opcode.Phi, ops[0].Opcode())
	assert.Equal(t, opcode.Ret, ops[1].Opcode())

	incoming := ops[0].Args()[1].List
	require.Len(t, incoming, 2)
	vals := map[int64]bool{}
	for _, v := range incoming {
		c, ok := v.(*ir.Constant)
		require.True(t, ok, "phi incoming values are the stored constants")
		vals[c.Value().(int64)] = true
	}
	assert.True(t, vals[5] && vals[2])
}

func TestPromotePreservesSemantics(t *testing.T) {
	for _, input := range []int64{0, 3, 5, 6, 11} {
		before := clampFunc(t)
		want, err := interp.Run(before, input)
		require.NoError(t, err)

		after := clampFunc(t)
		require.NoError(t, ssa.Run(after))
		got, err := interp.Run(after, input)
		require.NoError(t, err)

		assert.Equal(t, want, got, "clamp(%d)", input)
	}
}

func TestPromoteLoopWithConditionalStore(t *testing.T) {
	fn := condStoreLoop(t)

	want, err := interp.Run(fn)
	require.NoError(t, err)
	require.Equal(t, int64(9), want)

	require.NoError(t, ssa.Run(fn))
	require.NoError(t, verify.VerifySSA(fn))

	assert.Zero(t, countOps(fn, opcode.Alloca))
	assert.Equal(t, 3, countOps(fn, opcode.Phi),
		"i and y in the loop header, y at the conditional-store merge")

	got, err := interp.Run(fn)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUninitializedSlotFlowsUndef(t *testing.T) {
	sig := types.Function{RestType: types.Int32}
	fn := ir.NewFunction("uninit", sig, nil)
	entry := fn.AddBlock("entry")

	b := ir.NewBuilder(fn)
	b.PositionAtEnd(entry)
	slot := b.Alloca(types.Pointer{Base: types.Int32})
	b.Ret(b.Load(slot))

	require.NoError(t, ssa.Run(fn))

	ret := fn.ExitBlock().Terminator()
	require.Equal(t, opcode.Ret, ret.Opcode())
	_, isUndef := ret.Args()[0].Value.(*ir.Undef)
	assert.True(t, isUndef, "a load of an uninitialized slot becomes Undef, not an error")
}

func TestMergeBlocksCollapsesChains(t *testing.T) {
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32}}
	fn := ir.NewFunction("chain", sig, []string{"x"})
	a := fn.AddBlock("a")
	bb := fn.AddBlock("b")
	c := fn.AddBlock("c")

	b := ir.NewBuilder(fn)
	b.PositionAtEnd(a)
	b.Jump(bb)
	b.PositionAtEnd(bb)
	add := b.Add(types.Int32, fn.Arg(0), fn.Arg(0))
	b.Jump(c)
	b.PositionAtEnd(c)
	b.Ret(add)

	ssa.MergeBlocks(fn)
	require.NoError(t, verify.Verify(fn))

	require.Equal(t, 1, fn.NumBlocks())
	ops := fn.StartBlock().Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, opcode.Add, ops[0].Opcode())
	assert.Equal(t, opcode.Ret, ops[1].Opcode())
}
