package ir

import (
	"fmt"

	"pykit/types"
)

// temper mints collision-free temporary names within one naming
// scope, mirroring pykit.ir.value.make_temper: the first request for a
// given base name returns it unchanged; subsequent requests append a
// numeric suffix.
type temper struct {
	counts map[string]int
}

func newTemper() *temper { return &temper{counts: make(map[string]int)} }

func (t *temper) Temp(base string) string {
	if base == "" {
		base = "tmp"
	}
	for {
		n := t.counts[base]
		t.counts[base] = n + 1
		if n == 0 {
			return base
		}
		name := fmt.Sprintf("%s_%d", base, n)
		if t.counts[name] == 0 {
			t.counts[name] = 1
			return name
		}
	}
}

// Claim records an externally-chosen name so later Temp calls do not
// mint it again.
func (t *temper) Claim(name string) {
	if t.counts[name] == 0 {
		t.counts[name] = 1
	}
}

// Function owns a typed signature, an ordered list of blocks, a
// def/use index, and a per-function temper (spec.md §3).
type Function struct {
	name      string
	signature types.Function
	args      []*FuncArg

	headBlock *Block
	tailBlock *Block
	blocksLen int

	temper *temper
	uses   *UseIndex

	parent *Module
}

// NewFunction creates a detached Function. argNames must have the
// same length as sig.ArgTypes.
func NewFunction(name string, sig types.Function, argNames []string) *Function {
	f := &Function{
		name:      name,
		signature: sig,
		temper:    newTemper(),
		uses:      newUseIndex(),
	}
	f.args = make([]*FuncArg, len(argNames))
	for i, n := range argNames {
		f.args[i] = &FuncArg{name: n, typ: sig.ArgTypes[i], parent: f, index: i}
	}
	return f
}

func (f *Function) isValue()        {}
func (f *Function) Type() types.Type { return f.signature }
func (f *Function) Name() string     { return f.name }

// Module returns the owning Module, or nil if detached.
func (f *Function) Module() *Module { return f.parent }

// Signature returns the function's Function-typed signature.
func (f *Function) Signature() types.Function { return f.signature }

// Args returns the function's parameters in declared order.
func (f *Function) Args() []*FuncArg { return f.args }

// Arg returns the i'th parameter.
func (f *Function) Arg(i int) *FuncArg { return f.args[i] }

// ArgNames returns the parameters' names in declared order.
func (f *Function) ArgNames() []string {
	names := make([]string, len(f.args))
	for i, a := range f.args {
		names[i] = a.name
	}
	return names
}

// Temp mints a fresh, function-unique name from base.
func (f *Function) Temp(base string) string { return f.temper.Temp(base) }

// Uses returns the function's def/use index.
func (f *Function) Uses() *UseIndex { return f.uses }

// Blocks returns the function's blocks in list order (head = start,
// tail = exit, by position, per spec.md §3).
func (f *Function) Blocks() []*Block {
	out := make([]*Block, 0, f.blocksLen)
	for b := f.headBlock; b != nil; b = b.nextBlock {
		out = append(out, b)
	}
	return out
}

// NumBlocks returns the number of blocks currently owned by f.
func (f *Function) NumBlocks() int { return f.blocksLen }

// StartBlock returns the first block (the entry), or nil if f has no
// blocks.
func (f *Function) StartBlock() *Block { return f.headBlock }

// ExitBlock returns the last block by position, or nil if f has no
// blocks.
func (f *Function) ExitBlock() *Block { return f.tailBlock }

// AddBlock creates and appends a new block named (a function-unique
// variant of) name to the end of f's block list.
func (f *Function) AddBlock(name string) *Block {
	b := &Block{name: f.temper.Temp(name), parent: f}
	f.appendBlockNode(b)
	return b
}

// InsertBlockAfter creates a new block immediately after after in the
// function's block list.
func (f *Function) InsertBlockAfter(after *Block, name string) *Block {
	if after == nil || after.parent != f {
		panic("ir: InsertBlockAfter: after does not belong to this function")
	}
	b := &Block{name: f.temper.Temp(name), parent: f}
	f.insertBlockNodeAfter(after, b)
	return b
}

func (f *Function) insertBlockNodeAfter(after, b *Block) {
	b.prevBlock = after
	b.nextBlock = after.nextBlock
	if after.nextBlock != nil {
		after.nextBlock.prevBlock = b
	} else {
		f.tailBlock = b
	}
	after.nextBlock = b
	f.blocksLen++
}

func (f *Function) appendBlockNode(b *Block) {
	b.prevBlock = f.tailBlock
	b.nextBlock = nil
	if f.tailBlock != nil {
		f.tailBlock.nextBlock = b
	} else {
		f.headBlock = b
	}
	f.tailBlock = b
	f.blocksLen++
}

// DelBlock detaches b from f's block list. It does not check for
// remaining references to b (callers must ensure no jump/cbranch/phi
// still names it, typically via verify.Verify).
func (f *Function) DelBlock(b *Block) {
	if b.parent != f {
		panic("ir: DelBlock: block does not belong to this function")
	}
	if b.prevBlock != nil {
		b.prevBlock.nextBlock = b.nextBlock
	} else {
		f.headBlock = b.nextBlock
	}
	if b.nextBlock != nil {
		b.nextBlock.prevBlock = b.prevBlock
	} else {
		f.tailBlock = b.prevBlock
	}
	b.prevBlock, b.nextBlock, b.parent = nil, nil, nil
	f.blocksLen--
}

// Ops returns every operation in every block, in block-then-in-block
// order.
func (f *Function) Ops() []*Operation {
	var out []*Operation
	for b := f.headBlock; b != nil; b = b.nextBlock {
		out = append(out, b.Ops()...)
	}
	return out
}

// String renders the function's bare name (package printer owns the
// canonical textual form).
func (f *Function) String() string { return f.name }
