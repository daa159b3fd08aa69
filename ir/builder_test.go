package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pykit/ir"
	"pykit/opcode"
	"pykit/types"
)

func newTestFunc(t *testing.T) (*ir.Function, *ir.Builder) {
	t.Helper()
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32}}
	fn := ir.NewFunction("f", sig, []string{"x"})
	entry := fn.AddBlock("entry")
	b := ir.NewBuilder(fn)
	b.PositionAtEnd(entry)
	return fn, b
}

func TestBuilderEmitRequiresPosition(t *testing.T) {
	fn := ir.NewFunction("g", types.Function{RestType: types.Void}, nil)
	b := ir.NewBuilder(fn)

	_, err := b.Emit(opcode.Ret, types.Void, nil, "")
	assert.ErrorIs(t, err, ir.ErrNotPositioned)

	assert.PanicsWithError(t, ir.ErrNotPositioned.Error(), func() { b.Ret(nil) })
}

func TestBuilderSchemaMismatch(t *testing.T) {
	_, b := newTestFunc(t)

	_, err := b.Emit(opcode.Add, types.Int32, nil, "")
	var mismatch *opcode.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, opcode.Add, mismatch.Op)
}

func TestBuilderEmitsInOrder(t *testing.T) {
	fn, b := newTestFunc(t)

	add := b.Add(types.Int32, fn.Arg(0), ir.NewConstant(types.Int32, int64(1)))
	b.Ret(add)

	ops := fn.StartBlock().Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, opcode.Add, ops[0].Opcode())
	assert.Equal(t, opcode.Ret, ops[1].Opcode())
}

func TestBuilderPositionAtBeginning(t *testing.T) {
	fn, b := newTestFunc(t)

	b.Ret(fn.Arg(0))
	b.PositionAtBeginning(fn.StartBlock())
	add := b.Add(types.Int32, fn.Arg(0), fn.Arg(0))

	assert.Equal(t, add, fn.StartBlock().Head())
}

func TestBuilderScopedPositioningRestores(t *testing.T) {
	fn, b := newTestFunc(t)
	other := fn.AddBlock("other")

	b.AtEnd(other, func() {
		b.Ret(fn.Arg(0))
	})
	assert.Equal(t, fn.StartBlock(), b.Block(), "position must be restored after the scope")

	assert.Panics(t, func() {
		b.AtEnd(other, func() { panic("boom") })
	})
	assert.Equal(t, fn.StartBlock(), b.Block(), "position must be restored even when the scope panics")
}

func TestSplitBlockMovesTrailingOps(t *testing.T) {
	fn, b := newTestFunc(t)

	add := b.Add(types.Int32, fn.Arg(0), fn.Arg(0))
	ret := b.Ret(add)

	b.PositionAfter(add)
	old, split := b.SplitBlock("tail", true)

	assert.Equal(t, fn.StartBlock(), old)
	require.NotNil(t, old.Terminator())
	assert.Equal(t, opcode.Jump, old.Terminator().Opcode())
	assert.Equal(t, split, old.Terminator().Args()[0].Value)

	require.Len(t, split.Ops(), 1)
	assert.Equal(t, ret, split.Head())
	assert.Equal(t, split, ret.Block())
}

func TestIfElseBuildsDiamond(t *testing.T) {
	fn, b := newTestFunc(t)

	cond := b.Gt(fn.Arg(0), ir.NewConstant(types.Int32, int64(0)))
	thenB, elseB, join := b.IfElse(cond)

	// builder sits in the then branch
	assert.Equal(t, thenB, b.Block())

	entryTerm := fn.StartBlock().Terminator()
	require.NotNil(t, entryTerm)
	assert.Equal(t, opcode.CBranch, entryTerm.Opcode())
	assert.Equal(t, thenB, entryTerm.Args()[1].Value)
	assert.Equal(t, elseB, entryTerm.Args()[2].Value)

	assert.Equal(t, join, thenB.Terminator().Args()[0].Value)
	assert.Equal(t, join, elseB.Terminator().Args()[0].Value)
}

func TestGenLoopShape(t *testing.T) {
	fn, b := newTestFunc(t)

	stop := ir.NewConstant(types.Int32, int64(10))
	cond, body, exit := b.GenLoop(nil, stop, nil)

	assert.Equal(t, body, b.Block(), "builder is left at the beginning of the body")

	// index slot lives in the entry block
	head := fn.StartBlock().Head()
	require.NotNil(t, head)
	assert.Equal(t, opcode.Alloca, head.Opcode())

	condTerm := cond.Terminator()
	require.NotNil(t, condTerm)
	require.Equal(t, opcode.CBranch, condTerm.Opcode())
	assert.Equal(t, body, condTerm.Args()[1].Value)
	assert.Equal(t, exit, condTerm.Args()[2].Value)

	// strict less-than compare drives the branch
	lt := condTerm.Args()[0].Value.(*ir.Operation)
	assert.Equal(t, opcode.Lt, lt.Opcode())

	assert.Equal(t, cond, body.Terminator().Args()[0].Value)
}
