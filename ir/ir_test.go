package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pykit/ir"
	"pykit/opcode"
	"pykit/types"
)

func addFunc() (*ir.Function, *ir.Block, *ir.Operation, *ir.Operation) {
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32, types.Int32}}
	fn := ir.NewFunction("add", sig, []string{"a", "b"})
	entry := fn.AddBlock("entry")

	addOp := ir.NewOperation(opcode.Add, types.Int32, []ir.Arg{
		ir.ValArg(fn.Arg(0)), ir.ValArg(fn.Arg(1)),
	}, "")
	entry.Append(addOp)

	retOp := ir.NewOperation(opcode.Ret, types.Void, []ir.Arg{ir.ValArg(addOp)}, "")
	entry.Append(retOp)

	return fn, entry, addOp, retOp
}

func TestAppendRegistersUses(t *testing.T) {
	fn, _, addOp, retOp := addFunc()

	assert.True(t, fn.Uses().HasUses(fn.Arg(0)))
	assert.True(t, fn.Uses().HasUses(fn.Arg(1)))
	assert.ElementsMatch(t, []*ir.Operation{addOp}, fn.Uses().Uses(fn.Arg(0)))
	assert.ElementsMatch(t, []*ir.Operation{retOp}, fn.Uses().Uses(addOp))
}

func TestDuplicateOperandCountsAsOneUse(t *testing.T) {
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32}}
	fn := ir.NewFunction("double", sig, []string{"x"})
	entry := fn.AddBlock("entry")

	op := ir.NewOperation(opcode.Add, types.Int32, []ir.Arg{
		ir.ValArg(fn.Arg(0)), ir.ValArg(fn.Arg(0)),
	}, "")
	entry.Append(op)

	uses := fn.Uses().Uses(fn.Arg(0))
	assert.Len(t, uses, 1)
}

func TestSetArgsUpdatesUseIndexBySymmetricDifference(t *testing.T) {
	fn, _, addOp, retOp := addFunc()

	newConst := ir.NewConstant(types.Int32, int64(7))
	retOp.SetArgs([]ir.Arg{ir.ValArg(newConst)})

	assert.False(t, fn.Uses().HasUses(addOp), "addOp should lose its use once retOp no longer references it")
}

func TestReplaceUsesRewritesAllUsers(t *testing.T) {
	fn, entry, addOp, retOp := addFunc()

	mulOp := ir.NewOperation(opcode.Mul, types.Int32, []ir.Arg{
		ir.ValArg(fn.Arg(0)), ir.ValArg(fn.Arg(1)),
	}, "")
	entry.InsertBefore(mulOp, addOp)

	ir.ReplaceUses(addOp, mulOp)

	assert.False(t, fn.Uses().HasUses(addOp))
	assert.ElementsMatch(t, []*ir.Operation{retOp}, fn.Uses().Uses(mulOp))

	for _, a := range retOp.Args() {
		assert.Equal(t, mulOp, a.Value)
	}
}

func TestDeleteRefusesWhileInUse(t *testing.T) {
	fn, _, addOp, _ := addFunc()
	_ = fn

	err := ir.Delete(addOp)
	assert.ErrorIs(t, err, ir.ErrInUse)
}

func TestDeleteSucceedsOnceUnused(t *testing.T) {
	fn, entry, addOp, retOp := addFunc()
	_ = fn

	newConst := ir.NewConstant(types.Int32, int64(1))
	retOp.SetArgs([]ir.Arg{ir.ValArg(newConst)})

	require.NoError(t, ir.Delete(addOp))
	assert.False(t, entry.Contains(addOp))
	assert.Equal(t, retOp, entry.Tail())
}

func TestReplaceWithRewritesAndDeletes(t *testing.T) {
	fn, entry, addOp, retOp := addFunc()

	mulOp := ir.NewOperation(opcode.Mul, types.Int32, []ir.Arg{
		ir.ValArg(fn.Arg(0)), ir.ValArg(fn.Arg(1)),
	}, "")
	entry.InsertBefore(mulOp, addOp)

	require.NoError(t, ir.ReplaceWith(addOp, mulOp))

	assert.False(t, entry.Contains(addOp))
	assert.Equal(t, mulOp, retOp.Args()[0].Value)
}

func TestCloneFunctionProducesFreshIdentities(t *testing.T) {
	fn, entry, addOp, retOp := addFunc()
	_ = entry

	clone := ir.CloneFunction(fn, "add_clone")

	assert.Equal(t, "add_clone", clone.Name())
	assert.Equal(t, fn.NumBlocks(), clone.NumBlocks())

	cloneOps := clone.Ops()
	require.Len(t, cloneOps, 2)
	assert.NotSame(t, addOp, cloneOps[0])
	assert.NotSame(t, retOp, cloneOps[1])
	assert.Equal(t, opcode.Add, cloneOps[0].Opcode())
	assert.Equal(t, opcode.Ret, cloneOps[1].Opcode())

	// the cloned ret must reference the cloned add, not the original.
	assert.Equal(t, cloneOps[0], cloneOps[1].Args()[0].Value)

	// cloned args are the clone's own FuncArgs.
	for _, a := range cloneOps[0].Args() {
		arg, ok := a.Value.(*ir.FuncArg)
		require.True(t, ok)
		assert.Same(t, clone, arg.Parent())
	}
}

func TestCloneFunctionHandlesCircularPhi(t *testing.T) {
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32}}
	fn := ir.NewFunction("loopy", sig, []string{"n"})
	header := fn.AddBlock("header")
	body := fn.AddBlock("body")

	phi := ir.NewOperation(opcode.Phi, types.Int32, nil, "")
	header.Append(phi)

	inc := ir.NewOperation(opcode.Add, types.Int32, []ir.Arg{
		ir.ValArg(phi), ir.ValArg(ir.NewConstant(types.Int32, int64(1))),
	}, "")
	body.Append(inc)

	phi.SetArgs([]ir.Arg{
		ir.ListArg([]ir.Value{header, body}),
		ir.ListArg([]ir.Value{fn.Arg(0), inc}),
	})

	clone := ir.CloneFunction(fn, "loopy_clone")
	clonedPhi := clone.StartBlock().Head()
	require.Equal(t, opcode.Phi, clonedPhi.Opcode())

	values := clonedPhi.Args()[1].List
	require.Len(t, values, 2)
	clonedInc := clone.Blocks()[1].Head()
	assert.Equal(t, clonedInc, values[1])
}

func TestModuleAddFunctionRejectsDuplicateName(t *testing.T) {
	m := ir.NewModule("m")
	sig := types.Function{RestType: types.Void}
	f1 := ir.NewFunction("f", sig, nil)
	f2 := ir.NewFunction("f", sig, nil)

	require.NoError(t, m.AddFunction(f1))
	assert.Error(t, m.AddFunction(f2))
}

func TestBlockLeadersAndTerminator(t *testing.T) {
	fn, entry, _, retOp := addFunc()
	_ = fn

	assert.Empty(t, entry.Leaders(), "no phi/exc_setup/exc_catch leaders in this block")
	assert.Equal(t, retOp, entry.Terminator())
}
