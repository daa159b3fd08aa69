package ir

import (
	"fmt"

	"pykit/opcode"
	"pykit/types"
)

// Arg is one element of an Operation's argument list. Per spec.md §3,
// args nest at most one level: an Arg is either a single Value (List
// is nil) or a nested list of Values (e.g. one of phi's two parallel
// lists, or a call's argument list).
type Arg struct {
	Value Value
	List  []Value
}

// IsList reports whether this Arg is a nested list rather than a
// single Value.
func (a Arg) IsList() bool { return a.List != nil }

// ValArg builds a plain single-Value Arg.
func ValArg(v Value) Arg { return Arg{Value: v} }

// ListArg builds a nested list Arg.
func ListArg(vs []Value) Arg { return Arg{List: vs} }

// Operation is a typed n-ary IR instruction: spec.md §3's "Operation".
// Two distinct Operations are distinct Values even if they share an
// opcode: Operation carries no value identity beyond Go pointer
// identity.
type Operation struct {
	opcode   opcode.Opcode
	typ      types.Type
	args     []Arg
	result   string // "" if anonymous (conventional for Void ops)
	metadata map[string]any

	parent     *Block
	prev, next *Operation // intrusive doubly-linked list within parent
}

func (op *Operation) isValue()        {}
func (op *Operation) Type() types.Type { return op.typ }
func (op *Operation) Name() string     { return op.result }

// Opcode returns the operation's opcode.
func (op *Operation) Opcode() opcode.Opcode { return op.opcode }

// Args returns the operation's argument list. Callers must not mutate
// the returned slice or its List fields directly; use SetArgs or
// ReplaceUses so the def/use index stays consistent.
func (op *Operation) Args() []Arg { return op.args }

// Block returns the block op is attached to, or nil if unattached.
func (op *Operation) Block() *Block { return op.parent }

// Function returns the function op belongs to, or nil if unattached.
func (op *Operation) Function() *Function {
	if op.parent == nil {
		return nil
	}
	return op.parent.parent
}

// Metadata returns the value stored under key, and whether it was
// present.
func (op *Operation) Metadata(key string) (any, bool) {
	if op.metadata == nil {
		return nil, false
	}
	v, ok := op.metadata[key]
	return v, ok
}

// SetMetadata attaches a key/value pair to op.
func (op *Operation) SetMetadata(key string, val any) {
	if op.metadata == nil {
		op.metadata = make(map[string]any)
	}
	op.metadata[key] = val
}

// copyMetadataFrom copies all of src's metadata onto op, mirroring
// pykit.ir.copying.copy_function's new_op.add_metadata(op.metadata).
func (op *Operation) copyMetadataFrom(src *Operation) {
	for k, v := range src.metadata {
		op.SetMetadata(k, v)
	}
}

// Prev and Next walk the doubly-linked instruction list within a
// block, returning nil past either end.
func (op *Operation) Prev() *Operation { return op.prev }
func (op *Operation) Next() *Operation { return op.next }

// NewOperation constructs a detached Operation: it belongs to no
// block until inserted or appended via one of the edit primitives in
// edit.go. result may be "" to request an auto-generated name at
// insertion time.
func NewOperation(op opcode.Opcode, typ types.Type, args []Arg, result string) *Operation {
	return &Operation{opcode: op, typ: typ, args: args, result: result}
}

// flattenArgs returns every leaf Value referenced by args, in order,
// duplicates included (for walking); use uniqueValues to fold into the
// set semantics the def/use index requires.
func flattenArgs(args []Arg) []Value {
	var out []Value
	for _, a := range args {
		if a.IsList() {
			out = append(out, a.List...)
		} else if a.Value != nil {
			out = append(out, a.Value)
		}
	}
	return out
}

// uniqueValues folds vs down to the set of distinct Values, preserving
// first-seen order (duplicate operand occurrences count as one use
// entry, per spec.md §4.1).
func uniqueValues(vs []Value) []Value {
	seen := make(map[Value]bool, len(vs))
	out := make([]Value, 0, len(vs))
	for _, v := range vs {
		if v == nil || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// String gives a debug rendering; the pretty-printer (package printer)
// is the canonical textual form.
func (op *Operation) String() string {
	args := make([]string, 0, len(op.args))
	for _, a := range op.args {
		if a.IsList() {
			inner := make([]string, len(a.List))
			for i, v := range a.List {
				inner[i] = v.Name()
			}
			args = append(args, fmt.Sprintf("%v", inner))
		} else if a.Value != nil {
			args = append(args, a.Value.Name())
		}
	}
	return fmt.Sprintf("%s(%v)", op.opcode, args)
}
