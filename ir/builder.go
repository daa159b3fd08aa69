package ir

import (
	"errors"

	"pykit/opcode"
	"pykit/types"
)

// ErrNotPositioned reports a Builder emit without a current block
// (spec.md §7).
var ErrNotPositioned = errors.New("ir: builder is not positioned at a block")

// Builder is a positioned emitter of operations. Its state is a
// (block, last-op) pair: every emitted operation is inserted
// immediately after the last-op anchor (or at the block's front when
// the anchor is nil), and the anchor then advances to the new
// operation.
//
// The convenience factories (Add, Jump, ...) panic with
// ErrNotPositioned or *opcode.SchemaMismatchError on misuse; a
// front-end that wants errors instead of panics uses Emit directly.
type Builder struct {
	fn     *Function
	block  *Block
	lastOp *Operation
}

// NewBuilder returns an unpositioned Builder over fn.
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

// Function returns the function the builder emits into.
func (b *Builder) Function() *Function { return b.fn }

// Block returns the block the builder is positioned at, or nil.
func (b *Builder) Block() *Block { return b.block }

// PositionAtBeginning places the anchor before the first operation of
// blk.
func (b *Builder) PositionAtBeginning(blk *Block) {
	b.block, b.lastOp = blk, nil
}

// PositionAtEnd places the anchor after the last operation of blk.
func (b *Builder) PositionAtEnd(blk *Block) {
	b.block, b.lastOp = blk, blk.tail
}

// PositionBefore places the anchor immediately before op.
func (b *Builder) PositionBefore(op *Operation) {
	b.block, b.lastOp = op.parent, op.prev
}

// PositionAfter places the anchor immediately after op.
func (b *Builder) PositionAfter(op *Operation) {
	b.block, b.lastOp = op.parent, op
}

// scoped runs body and restores the prior position afterwards, even
// when body panics (spec.md §5: scoped positioning follows stack
// discipline).
func (b *Builder) scoped(body func()) {
	savedBlock, savedLast := b.block, b.lastOp
	defer func() { b.block, b.lastOp = savedBlock, savedLast }()
	body()
}

// AtFront runs body with the builder positioned at the beginning of
// blk, then restores the previous position.
func (b *Builder) AtFront(blk *Block, body func()) {
	b.scoped(func() {
		b.PositionAtBeginning(blk)
		body()
	})
}

// AtEnd runs body with the builder positioned at the end of blk, then
// restores the previous position.
func (b *Builder) AtEnd(blk *Block, body func()) {
	b.scoped(func() {
		b.PositionAtEnd(blk)
		body()
	})
}

// Emit validates args against opc's schema and inserts a new
// operation at the current anchor. Void opcodes always produce a
// Void-typed operation regardless of typ.
func (b *Builder) Emit(opc opcode.Opcode, typ types.Type, args []Arg, result string) (*Operation, error) {
	if b.block == nil {
		return nil, ErrNotPositioned
	}
	if err := opcode.Validate(opc, len(args)); err != nil {
		return nil, err
	}
	if opcode.IsVoid(opc) {
		typ = types.Void
	}
	op := NewOperation(opc, typ, args, result)
	b.insert(op)
	return op, nil
}

func (b *Builder) insert(op *Operation) {
	switch {
	case b.lastOp != nil:
		b.block.InsertAfter(op, b.lastOp)
	case b.block.head != nil:
		b.block.InsertBefore(op, b.block.head)
	default:
		b.block.Append(op)
	}
	b.lastOp = op
}

func (b *Builder) mustEmit(opc opcode.Opcode, typ types.Type, args []Arg) *Operation {
	op, err := b.Emit(opc, typ, args, "")
	if err != nil {
		panic(err)
	}
	return op
}

// Op emits an operation of an arbitrary opcode; the escape hatch for
// opcodes without a dedicated factory (container and family ops).
func (b *Builder) Op(opc opcode.Opcode, typ types.Type, args ...Arg) *Operation {
	return b.mustEmit(opc, typ, args)
}

// Alloca emits a stack-slot allocation producing a pointer of type
// ptrTy.
func (b *Builder) Alloca(ptrTy types.Type) *Operation {
	return b.mustEmit(opcode.Alloca, ptrTy, nil)
}

// Load reads through ptr, producing the pointee type.
func (b *Builder) Load(ptr Value) *Operation {
	pt := types.ResolveTypedef(ptr.Type()).(types.Pointer)
	return b.mustEmit(opcode.Load, pt.Base, []Arg{ValArg(ptr)})
}

// Store writes val through ptr.
func (b *Builder) Store(val, ptr Value) *Operation {
	return b.mustEmit(opcode.Store, types.Void, []Arg{ValArg(val), ValArg(ptr)})
}

// Phi emits a phi with parallel predecessor-block and value lists.
func (b *Builder) Phi(typ types.Type, blocks, values []Value) *Operation {
	return b.mustEmit(opcode.Phi, typ, []Arg{ListArg(blocks), ListArg(values)})
}

// Jump emits an unconditional branch to target.
func (b *Builder) Jump(target *Block) *Operation {
	return b.mustEmit(opcode.Jump, types.Void, []Arg{ValArg(target)})
}

// CBranch emits a conditional branch on cond.
func (b *Builder) CBranch(cond Value, ifTrue, ifFalse *Block) *Operation {
	return b.mustEmit(opcode.CBranch, types.Void, []Arg{ValArg(cond), ValArg(ifTrue), ValArg(ifFalse)})
}

// Ret emits a return of val; pass nil for a void return.
func (b *Builder) Ret(val Value) *Operation {
	if val == nil {
		return b.mustEmit(opcode.Ret, types.Void, nil)
	}
	return b.mustEmit(opcode.Ret, types.Void, []Arg{ValArg(val)})
}

// ExcSetup declares the handler blocks in scope for the current block.
func (b *Builder) ExcSetup(handlers []Value) *Operation {
	return b.mustEmit(opcode.ExcSetup, types.Void, []Arg{ListArg(handlers)})
}

// ExcCatch declares the exception types a handler block catches.
func (b *Builder) ExcCatch(excTypes []Value) *Operation {
	return b.mustEmit(opcode.ExcCatch, types.Void, []Arg{ListArg(excTypes)})
}

// ExcThrow raises exc.
func (b *Builder) ExcThrow(exc Value) *Operation {
	return b.mustEmit(opcode.ExcThrow, types.Void, []Arg{ValArg(exc)})
}

// Binary arithmetic factories.

func (b *Builder) binop(opc opcode.Opcode, typ types.Type, x, y Value) *Operation {
	return b.mustEmit(opc, typ, []Arg{ValArg(x), ValArg(y)})
}

func (b *Builder) unop(opc opcode.Opcode, typ types.Type, x Value) *Operation {
	return b.mustEmit(opc, typ, []Arg{ValArg(x)})
}

func (b *Builder) Add(typ types.Type, x, y Value) *Operation { return b.binop(opcode.Add, typ, x, y) }
func (b *Builder) Sub(typ types.Type, x, y Value) *Operation { return b.binop(opcode.Sub, typ, x, y) }
func (b *Builder) Mul(typ types.Type, x, y Value) *Operation { return b.binop(opcode.Mul, typ, x, y) }
func (b *Builder) Div(typ types.Type, x, y Value) *Operation { return b.binop(opcode.Div, typ, x, y) }
func (b *Builder) Mod(typ types.Type, x, y Value) *Operation { return b.binop(opcode.Mod, typ, x, y) }

func (b *Builder) LShift(typ types.Type, x, y Value) *Operation {
	return b.binop(opcode.LShift, typ, x, y)
}
func (b *Builder) RShift(typ types.Type, x, y Value) *Operation {
	return b.binop(opcode.RShift, typ, x, y)
}
func (b *Builder) BitAnd(typ types.Type, x, y Value) *Operation {
	return b.binop(opcode.BitAnd, typ, x, y)
}
func (b *Builder) BitOr(typ types.Type, x, y Value) *Operation {
	return b.binop(opcode.BitOr, typ, x, y)
}
func (b *Builder) BitXor(typ types.Type, x, y Value) *Operation {
	return b.binop(opcode.BitXor, typ, x, y)
}

func (b *Builder) Invert(typ types.Type, x Value) *Operation { return b.unop(opcode.Invert, typ, x) }
func (b *Builder) Not(x Value) *Operation                    { return b.unop(opcode.Not, types.Bool, x) }
func (b *Builder) UAdd(typ types.Type, x Value) *Operation   { return b.unop(opcode.UAdd, typ, x) }
func (b *Builder) USub(typ types.Type, x Value) *Operation   { return b.unop(opcode.USub, typ, x) }

// Comparison factories; every comparison produces Bool.

func (b *Builder) Eq(x, y Value) *Operation    { return b.binop(opcode.Eq, types.Bool, x, y) }
func (b *Builder) NotEq(x, y Value) *Operation { return b.binop(opcode.NotEq, types.Bool, x, y) }
func (b *Builder) Lt(x, y Value) *Operation    { return b.binop(opcode.Lt, types.Bool, x, y) }
func (b *Builder) Lte(x, y Value) *Operation   { return b.binop(opcode.Lte, types.Bool, x, y) }
func (b *Builder) Gt(x, y Value) *Operation    { return b.binop(opcode.Gt, types.Bool, x, y) }
func (b *Builder) Gte(x, y Value) *Operation   { return b.binop(opcode.Gte, types.Bool, x, y) }
func (b *Builder) Is(x, y Value) *Operation    { return b.binop(opcode.Is, types.Bool, x, y) }

// Call emits a call of callee with the given argument list, producing
// restype.
func (b *Builder) Call(restype types.Type, callee Value, args []Value) *Operation {
	return b.mustEmit(opcode.Call, restype, []Arg{ValArg(callee), ListArg(args)})
}

// CallMath calls a named math intrinsic. The intrinsic name travels as
// a bytes constant operand, mirroring pykit's Sin/Cos/... constants.
func (b *Builder) CallMath(restype types.Type, fn opcode.MathFunction, args []Value) *Operation {
	name := NewConstant(types.Bytes, string(fn))
	return b.mustEmit(opcode.CallMath, restype, []Arg{ValArg(name), ListArg(args)})
}

// Convert emits a conversion of x to typ.
func (b *Builder) Convert(typ types.Type, x Value) *Operation {
	return b.unop(opcode.Convert, typ, x)
}

// Print emits a debug print of the given values.
func (b *Builder) Print(vals ...Value) *Operation {
	args := make([]Arg, len(vals))
	for i, v := range vals {
		args[i] = ValArg(v)
	}
	return b.mustEmit(opcode.Print, types.Void, args)
}

// SplitBlock splits the current block at the anchor: all trailing
// operations move to a new successor block inserted directly after the
// current one. If terminate is set and the anchor is not already a
// terminator, a jump to the new block is emitted first. Returns the
// (now possibly shorter) current block and the new block.
func (b *Builder) SplitBlock(name string, terminate bool) (*Block, *Block) {
	if b.block == nil {
		panic(ErrNotPositioned)
	}
	if name == "" {
		name = "block"
	}
	newblock := b.fn.InsertBlockAfter(b.block, name)

	mark := b.lastOp
	if terminate && (mark == nil || !opcode.IsTerminator(mark.opcode)) {
		mark = b.Jump(newblock)
	}

	var trailing []*Operation
	start := b.block.head
	if mark != nil {
		start = mark.next
	}
	for op := start; op != nil; op = op.next {
		trailing = append(trailing, op)
	}
	for _, op := range trailing {
		Unlink(op)
		op.parent = newblock
		op.prev = newblock.tail
		op.next = nil
		if newblock.tail != nil {
			newblock.tail.next = op
		} else {
			newblock.head = op
		}
		newblock.tail = op
	}
	return b.block, newblock
}

// If splits the current block into a two-way branch on cond: a then
// block and a join block. The then block is pre-terminated with a jump
// to the join; the builder is left positioned inside the then block,
// before its terminator.
func (b *Builder) If(cond Value) (thenBlock, joinBlock *Block) {
	cur, join := b.SplitBlock("if.join", false)
	thenBlock = b.fn.InsertBlockAfter(cur, "if.then")
	b.PositionAtEnd(cur)
	b.CBranch(cond, thenBlock, join)
	b.AtEnd(thenBlock, func() { b.Jump(join) })
	b.PositionBefore(thenBlock.Terminator())
	return thenBlock, join
}

// IfElse splits the current block into a three-way diamond on cond:
// then and else blocks joining at a common successor. Both branches
// are pre-terminated with jumps to the join; the builder is left
// positioned inside the then block, before its terminator.
func (b *Builder) IfElse(cond Value) (thenBlock, elseBlock, joinBlock *Block) {
	cur, join := b.SplitBlock("if.join", false)
	thenBlock = b.fn.InsertBlockAfter(cur, "if.then")
	elseBlock = b.fn.InsertBlockAfter(thenBlock, "if.else")
	b.PositionAtEnd(cur)
	b.CBranch(cond, thenBlock, elseBlock)
	b.AtEnd(thenBlock, func() { b.Jump(join) })
	b.AtEnd(elseBlock, func() { b.Jump(join) })
	b.PositionBefore(thenBlock.Terminator())
	return thenBlock, elseBlock, join
}

// GenLoop materializes a counted loop over [start, stop) with the
// given step: an index stack slot in the entry block, a condition
// block, a body block and an exit block wired with jump/cbranch. The
// index comparison is strict less-than. start and step default to 0
// and 1 of stop's type. The builder is left positioned at the
// beginning of the body block.
func (b *Builder) GenLoop(start, stop, step Value) (cond, body, exit *Block) {
	if b.block == nil {
		panic(ErrNotPositioned)
	}
	ty := stop.Type()
	if start == nil {
		start = NewConstant(ty, int64(0))
	}
	if step == nil {
		step = NewConstant(ty, int64(1))
	}

	var slot *Operation
	b.AtFront(b.fn.StartBlock(), func() {
		slot = b.Alloca(types.Pointer{Base: ty})
	})
	// An anchor at the front of the entry block would otherwise sweep
	// the fresh slot into the split-off successor.
	if b.block == b.fn.StartBlock() && b.lastOp == nil {
		b.lastOp = slot
	}

	prev, exit := b.SplitBlock("loop.exit", false)
	cond = b.fn.InsertBlockAfter(prev, "loop.cond")
	body = b.fn.InsertBlockAfter(cond, "loop.body")

	b.AtEnd(prev, func() {
		b.Store(start, slot)
		b.Jump(cond)
	})
	b.AtFront(cond, func() {
		index := b.Load(slot)
		b.Store(b.Add(ty, index, step), slot)
		b.CBranch(b.Lt(index, stop), body, exit)
	})
	b.AtEnd(body, func() {
		b.Jump(cond)
	})

	b.PositionAtBeginning(body)
	return cond, body, exit
}
