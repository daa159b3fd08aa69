package ir

import "pykit/opcode"

// CloneFunction deep-copies fn into a fresh, detached Function with
// all-new block and operation identities, preserving structure,
// metadata, and block/op ordering. It is grounded on pykit's
// ir.copying.copy_function.
//
// phi operations are special-cased: their arguments may reference
// operations not yet copied (a phi can precede, or be circular with,
// one of its own predecessors' tail operations), so phi args are
// filled in a second pass after every block and operation has a
// mapped counterpart.
func CloneFunction(fn *Function, newName string) *Function {
	newFn := NewFunction(newName, fn.signature, fn.ArgNames())

	valuemap := make(map[Value]Value, fn.NumBlocks()*4)
	for i, a := range fn.args {
		valuemap[a] = newFn.args[i]
	}

	for _, b := range fn.Blocks() {
		nb := newFn.AddBlock(b.name)
		valuemap[b] = nb
	}

	lookup := func(v Value) Value {
		if v == nil {
			return nil
		}
		if mapped, ok := valuemap[v]; ok {
			return mapped
		}
		return v // Constant, GlobalValue, external Function: immutable/shared
	}
	remapArgs := func(args []Arg) []Arg {
		out := make([]Arg, len(args))
		for i, a := range args {
			if a.IsList() {
				list := make([]Value, len(a.List))
				for j, v := range a.List {
					list[j] = lookup(v)
				}
				out[i] = Arg{List: list}
			} else {
				out[i] = Arg{Value: lookup(a.Value)}
			}
		}
		return out
	}

	var phis []*Operation
	for _, b := range fn.Blocks() {
		nb := valuemap[b].(*Block)
		for _, op := range b.Ops() {
			var args []Arg
			if op.opcode == opcode.Phi {
				args = nil // filled in the second pass below
			} else {
				args = remapArgs(op.args)
			}
			newOp := NewOperation(op.opcode, op.typ, args, newFn.Temp(op.result))
			newOp.copyMetadataFrom(op)
			nb.Append(newOp)
			valuemap[op] = newOp
			if op.opcode == opcode.Phi {
				phis = append(phis, op)
			}
		}
	}

	for _, oldPhi := range phis {
		newPhi := valuemap[oldPhi].(*Operation)
		newPhi.SetArgs(remapArgs(oldPhi.args))
	}

	return newFn
}

// AdoptBlocks moves every block of src into f, splicing them after
// the given block in order. Block names and op result names are
// re-minted through f's temper so they stay function-unique, and every
// op's argument uses are re-registered in f's def/use index. src is
// left empty and must be discarded; its use index is not maintained.
//
// This is the splice step of function inlining (pykit.transform.inline
// moves the copied callee's blocks into the caller with
// func.add_block(block, after=after)).
func (f *Function) AdoptBlocks(src *Function, after *Block) []*Block {
	if after == nil || after.parent != f {
		panic("ir: AdoptBlocks: after does not belong to this function")
	}
	adopted := make([]*Block, 0, src.NumBlocks())
	for _, b := range src.Blocks() {
		src.DelBlock(b)
		b.parent = f
		b.name = f.temper.Temp(b.name)
		f.insertBlockNodeAfter(after, b)
		after = b
		for op := b.head; op != nil; op = op.next {
			op.result = f.temper.Temp(op.result)
			f.uses.registerArgs(op, op.args)
		}
		adopted = append(adopted, b)
	}
	return adopted
}
