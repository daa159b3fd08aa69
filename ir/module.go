package ir

import (
	"fmt"

	"pykit/types"
)

// Module owns a set of Functions and GlobalValues, each keyed by a
// module-unique name, plus a module-level temper for minting fresh
// top-level names (spec.md §3's "Module").
type Module struct {
	name string

	functions map[string]*Function
	funcOrder []string

	globals    map[string]*GlobalValue
	globalOrder []string

	typedefs     map[string]types.Typedef
	typedefOrder []string

	temper *temper
}

// NewModule returns an empty Module named name.
func NewModule(name string) *Module {
	return &Module{
		name:      name,
		functions: make(map[string]*Function),
		globals:   make(map[string]*GlobalValue),
		typedefs:  make(map[string]types.Typedef),
		temper:    newTemper(),
	}
}

// Name returns the module's name.
func (m *Module) Name() string { return m.name }

// UniqueName mints a module-unique name derived from base.
func (m *Module) UniqueName(base string) string { return m.temper.Temp(base) }

// AddFunction attaches f to m under its own name. It is an error to
// add a function whose name is already taken by a function or global
// in m.
func (m *Module) AddFunction(f *Function) error {
	if _, exists := m.functions[f.name]; exists {
		return fmt.Errorf("ir: module %q already has a function named %q", m.name, f.name)
	}
	if _, exists := m.globals[f.name]; exists {
		return fmt.Errorf("ir: module %q already has a global named %q", m.name, f.name)
	}
	f.parent = m
	m.functions[f.name] = f
	m.funcOrder = append(m.funcOrder, f.name)
	return nil
}

// Function looks up a function by name.
func (m *Module) Function(name string) (*Function, bool) {
	f, ok := m.functions[name]
	return f, ok
}

// Functions returns m's functions in declaration order.
func (m *Module) Functions() []*Function {
	out := make([]*Function, len(m.funcOrder))
	for i, name := range m.funcOrder {
		out[i] = m.functions[name]
	}
	return out
}

// AddGlobal declares a GlobalValue named name of type t in m. external
// marks the value as defined outside this compile unit.
func (m *Module) AddGlobal(name string, t types.Type, external bool) (*GlobalValue, error) {
	if _, exists := m.globals[name]; exists {
		return nil, fmt.Errorf("ir: module %q already has a global named %q", m.name, name)
	}
	if _, exists := m.functions[name]; exists {
		return nil, fmt.Errorf("ir: module %q already has a function named %q", m.name, name)
	}
	g := &GlobalValue{name: name, typ: t, external: external, parent: m}
	m.globals[name] = g
	m.globalOrder = append(m.globalOrder, name)
	return g, nil
}

// Global looks up a global value by name.
func (m *Module) Global(name string) (*GlobalValue, bool) {
	g, ok := m.globals[name]
	return g, ok
}

// Globals returns m's global values in declaration order.
func (m *Module) Globals() []*GlobalValue {
	out := make([]*GlobalValue, len(m.globalOrder))
	for i, name := range m.globalOrder {
		out[i] = m.globals[name]
	}
	return out
}

// AddTypedef declares the transparent type alias name = base in m.
// Typedef names are their own namespace, separate from functions and
// globals.
func (m *Module) AddTypedef(name string, base types.Type) (types.Typedef, error) {
	if _, exists := m.typedefs[name]; exists {
		return types.Typedef{}, fmt.Errorf("ir: module %q already has a typedef named %q", m.name, name)
	}
	td := types.Typedef{Name: name, Base: base}
	m.typedefs[name] = td
	m.typedefOrder = append(m.typedefOrder, name)
	return td, nil
}

// Typedef looks up a type alias by name.
func (m *Module) Typedef(name string) (types.Typedef, bool) {
	td, ok := m.typedefs[name]
	return td, ok
}

// Typedefs returns m's type aliases in declaration order.
func (m *Module) Typedefs() []types.Typedef {
	out := make([]types.Typedef, len(m.typedefOrder))
	for i, name := range m.typedefOrder {
		out[i] = m.typedefs[name]
	}
	return out
}

// DelFunction removes f from m. Callers are responsible for ensuring
// no remaining call/address-of references f (the IR core does not
// track cross-function uses of Function-as-value).
func (m *Module) DelFunction(f *Function) {
	if _, ok := m.functions[f.name]; !ok {
		return
	}
	delete(m.functions, f.name)
	for i, name := range m.funcOrder {
		if name == f.name {
			m.funcOrder = append(m.funcOrder[:i], m.funcOrder[i+1:]...)
			break
		}
	}
	f.parent = nil
}
