package ir

import (
	"pykit/opcode"
	"pykit/types"
)

// Block is a named basic block: a maximal straight-line sequence of
// Operations ending in a terminator. A Block is itself a first-class
// Value so it can appear as an operand of jump/cbranch/phi.
type Block struct {
	name   string
	parent *Function
	head   *Operation
	tail   *Operation

	prevBlock, nextBlock *Block // intrusive list within parent.Blocks
}

// NewBlock returns a detached, parentless block. It cannot hold
// operations; its only purpose is to serve as a synthetic graph node
// (package cfg's per-function "pykit.exit" node for exc_throw
// terminators with no local handler).
func NewBlock(name string) *Block { return &Block{name: name} }

func (b *Block) isValue()         {}
func (b *Block) Type() types.Type { return types.Void }
func (b *Block) Name() string     { return b.name }

// Function returns the owning Function.
func (b *Block) Function() *Function { return b.parent }

// Ops returns the block's operations in order. The returned slice is a
// fresh copy; mutating it does not affect the block.
func (b *Block) Ops() []*Operation {
	var out []*Operation
	for op := b.head; op != nil; op = op.next {
		out = append(out, op)
	}
	return out
}

// Len returns the number of operations in the block.
func (b *Block) Len() int {
	n := 0
	for op := b.head; op != nil; op = op.next {
		n++
	}
	return n
}

// Head returns the first operation, or nil if the block is empty.
func (b *Block) Head() *Operation { return b.head }

// Tail returns the last operation, or nil if the block is empty.
func (b *Block) Tail() *Operation { return b.tail }

// Leaders returns the contiguous prefix of leader operations (phi,
// exc_setup, exc_catch), in declared order (spec.md §3 invariant 3).
func (b *Block) Leaders() []*Operation {
	var out []*Operation
	for op := b.head; op != nil && opcode.IsLeader(op.opcode); op = op.next {
		out = append(out, op)
	}
	return out
}

// Terminator returns the block's terminating operation, or nil if the
// block is empty or (transiently, mid-construction) not yet
// terminated.
func (b *Block) Terminator() *Operation {
	if b.tail != nil && opcode.IsTerminator(b.tail.opcode) {
		return b.tail
	}
	return nil
}

// Contains reports whether op belongs to this block.
func (b *Block) Contains(op *Operation) bool { return op != nil && op.parent == b }

// Prev and Next walk the function's block list.
func (b *Block) Prev() *Block { return b.prevBlock }
func (b *Block) Next() *Block { return b.nextBlock }
