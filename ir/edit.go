package ir

import (
	"errors"

	"pykit/opcode"
	"pykit/types"
)

// ErrInUse is returned by Delete when the operation still has
// recorded uses (spec.md §4.1: an operation may not be deleted while
// other operations reference it).
var ErrInUse = errors.New("ir: operation still has uses")

// nameOp assigns a function-unique result name if op has none, and
// claims a preset name so the temper never mints it again.
func (b *Block) nameOp(op *Operation) {
	if b.parent == nil {
		return
	}
	if op.result == "" {
		op.result = b.parent.Temp(string(op.opcode))
	} else {
		b.parent.temper.Claim(op.result)
	}
}

// Append adds op to the end of b, assigning it a function-unique result
// name if op.result is empty, and registers its argument uses.
func (b *Block) Append(op *Operation) *Operation {
	b.nameOp(op)
	op.parent = b
	op.prev = b.tail
	op.next = nil
	if b.tail != nil {
		b.tail.next = op
	} else {
		b.head = op
	}
	b.tail = op
	b.parent.Uses().registerArgs(op, op.args)
	return op
}

// InsertBefore splices op immediately before mark within mark's
// block.
func (b *Block) InsertBefore(op, mark *Operation) *Operation {
	if mark == nil || mark.parent != b {
		panic("ir: InsertBefore: mark is not in this block")
	}
	b.nameOp(op)
	op.parent = b
	op.prev = mark.prev
	op.next = mark
	if mark.prev != nil {
		mark.prev.next = op
	} else {
		b.head = op
	}
	mark.prev = op
	b.parent.Uses().registerArgs(op, op.args)
	return op
}

// InsertAfter splices op immediately after mark within mark's block.
func (b *Block) InsertAfter(op, mark *Operation) *Operation {
	if mark == nil || mark.parent != b {
		panic("ir: InsertAfter: mark is not in this block")
	}
	b.nameOp(op)
	op.parent = b
	op.prev = mark
	op.next = mark.next
	if mark.next != nil {
		mark.next.prev = op
	} else {
		b.tail = op
	}
	mark.next = op
	b.parent.Uses().registerArgs(op, op.args)
	return op
}

// SetArgs replaces op's argument list with newArgs, updating the
// owning function's def/use index by symmetric difference (spec.md
// §4.1 set_args): values referenced by the old args but not the new
// ones lose a use entry; values newly referenced gain one.
func (op *Operation) SetArgs(newArgs []Arg) {
	old := op.args
	op.args = newArgs
	if f := op.Function(); f != nil {
		f.Uses().rebuildArgs(op, old, newArgs)
	}
}

// ReplaceUses rewrites every recorded user of old so that it refers to
// repl instead, updating the def/use index to match. old and repl
// must belong to the same function. It is the caller's responsibility
// that repl's type matches the slots it now fills.
func ReplaceUses(old, repl Value) {
	var f *Function
	switch v := old.(type) {
	case *Operation:
		f = v.Function()
	case *FuncArg:
		f = v.parent
	case *Block:
		f = v.parent
	default:
		return // untracked kinds have no recorded users to rewrite
	}
	if f == nil {
		return
	}
	for _, user := range f.Uses().Uses(old) {
		newArgs := make([]Arg, len(user.args))
		for i, a := range user.args {
			if a.IsList() {
				list := make([]Value, len(a.List))
				for j, v := range a.List {
					if v == old {
						list[j] = repl
					} else {
						list[j] = v
					}
				}
				newArgs[i] = Arg{List: list}
			} else if a.Value == old {
				newArgs[i] = Arg{Value: repl}
			} else {
				newArgs[i] = a
			}
		}
		user.SetArgs(newArgs)
	}
}

// ReplaceOp rewrites op in place: its opcode, type and args change but
// its identity (and the result name other operations already
// reference) is preserved, mirroring pykit's Operation.replace. The
// def/use index is updated for the argument change only.
func ReplaceOp(op *Operation, newOpcode opcode.Opcode, newTyp types.Type, newArgs []Arg) {
	old := op.args
	op.opcode = newOpcode
	op.typ = newTyp
	op.args = newArgs
	if f := op.Function(); f != nil {
		f.Uses().rebuildArgs(op, old, newArgs)
	}
}

// ReplaceWith replaces every use of old with new and then deletes old,
// mirroring pykit's Operation.replace_with. new must already be
// attached (e.g. inserted just before old).
func ReplaceWith(old *Operation, new *Operation) error {
	ReplaceUses(old, new)
	return Delete(old)
}

// Unlink detaches op from its block's instruction list without
// touching the def/use index: op remains a live value that other
// operations may reference. An unlinked op must be re-inserted into a
// block of the same function, or deleted, before the next analysis.
func Unlink(op *Operation) {
	b := op.parent
	if b == nil {
		return
	}
	if op.prev != nil {
		op.prev.next = op.next
	} else {
		b.head = op.next
	}
	if op.next != nil {
		op.next.prev = op.prev
	} else {
		b.tail = op.prev
	}
	op.prev, op.next, op.parent = nil, nil, nil
}

// Delete detaches op from its block and clears its argument uses. It
// returns ErrInUse if op still has recorded uses (callers must
// ReplaceUses or ReplaceWith first).
func Delete(op *Operation) error {
	f := op.Function()
	if f != nil && f.Uses().HasUses(op) {
		return ErrInUse
	}
	if f != nil {
		f.Uses().unregisterArgs(op, op.args)
	}
	b := op.parent
	if b == nil {
		return nil
	}
	if op.prev != nil {
		op.prev.next = op.next
	} else {
		b.head = op.next
	}
	if op.next != nil {
		op.next.prev = op.prev
	} else {
		b.tail = op.prev
	}
	op.prev, op.next, op.parent = nil, nil, nil
	return nil
}
