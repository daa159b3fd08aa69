// Package ir implements pykit's IR data model: modules, functions,
// blocks, operations and the other value kinds, together with the
// edit primitives that keep the def/use index consistent (spec.md §3,
// §4.1).
package ir

import (
	"fmt"

	"pykit/types"
)

// Value is the sum type of every first-class IR value: FuncArg,
// Operation, Constant, GlobalValue, Block, Function, Undef.
//
// All implementations are pointer types; Value identity is Go pointer
// identity, which is stable for the lifetime of the IR graph (spec.md
// §9 "Cyclic graphs": the def/use index keys off this stable identity,
// not off the owning structure).
type Value interface {
	isValue()
	Type() types.Type
	Name() string
}

// FuncArg is a named, typed argument belonging to a Function.
type FuncArg struct {
	name   string
	typ    types.Type
	parent *Function
	index  int
}

func (a *FuncArg) isValue()        {}
func (a *FuncArg) Type() types.Type { return a.typ }
func (a *FuncArg) Name() string     { return a.name }

// Parent returns the Function this argument belongs to.
func (a *FuncArg) Parent() *Function { return a.parent }

// Index returns the argument's position in Function.ArgNames/ArgTypes.
func (a *FuncArg) Index() int { return a.index }

// Constant is an immutable literal of some type. Constants are freely
// shared and are never tracked by the def/use index: they cannot be
// mutated or deleted independently of the Operation referencing them.
type Constant struct {
	typ types.Type
	val any
}

// NewConstant returns a Constant of type t carrying the literal Go
// value val (an int64, float64, bool, string, or []byte depending on
// t's Kind).
func NewConstant(t types.Type, val any) *Constant {
	return &Constant{typ: t, val: val}
}

func (c *Constant) isValue()        {}
func (c *Constant) Type() types.Type { return c.typ }
func (c *Constant) Name() string     { return fmt.Sprintf("%v", c.val) }

// Value returns the constant's underlying Go literal.
func (c *Constant) Value() any { return c.val }

// GlobalValue is a named, typed value owned by a Module: either a
// definition or an external symbol with a resolved address.
type GlobalValue struct {
	name     string
	typ      types.Type
	external bool
	address  uintptr
	hasAddr  bool
	parent   *Module
}

func (g *GlobalValue) isValue()        {}
func (g *GlobalValue) Type() types.Type { return g.typ }
func (g *GlobalValue) Name() string     { return g.name }

// External reports whether g is declared but defined outside this
// compile unit (its address must be resolved by a
// library.AddressResolver collaborator).
func (g *GlobalValue) External() bool { return g.external }

// Address returns the resolved address and true, or (0, false) if
// unresolved.
func (g *GlobalValue) Address() (uintptr, bool) { return g.address, g.hasAddr }

// SetAddress resolves g's address (set by a caller using an external
// library.AddressResolver; never by the IR core itself).
func (g *GlobalValue) SetAddress(addr uintptr) {
	g.address = addr
	g.hasAddr = true
}

// Undef is a distinct "undefined" sentinel value of some type. Two
// Undef values are considered interchangeable iff they share a type;
// Undef is legal to pass around but a load that observes it is a
// semantic error at interpretation time (spec.md §9).
type Undef struct {
	typ types.Type
}

// NewUndef returns the Undef sentinel of type t.
func NewUndef(t types.Type) *Undef { return &Undef{typ: t} }

func (u *Undef) isValue()        {}
func (u *Undef) Type() types.Type { return u.typ }
func (u *Undef) Name() string     { return "undef" }
