package cfg

import (
	"errors"

	"pykit/ir"
	"pykit/opcode"
)

// ErrNotADAG reports a topological sort over a cyclic
// module-dependency graph (spec.md §7): mutually recursive functions
// have no bottom-up processing order.
var ErrNotADAG = errors.New("cfg: module call graph is not a DAG")

// CallGraph maps each function of m to the functions it calls
// directly, in first-callsite order, duplicates removed. Only call
// targets that are module Functions count; calls through globals or
// function-typed values are opaque.
func CallGraph(m *ir.Module) map[*ir.Function][]*ir.Function {
	out := make(map[*ir.Function][]*ir.Function, len(m.Functions()))
	for _, f := range m.Functions() {
		seen := make(map[*ir.Function]bool)
		callees := []*ir.Function{}
		for _, op := range f.Ops() {
			if op.Opcode() != opcode.Call {
				continue
			}
			callee, ok := op.Args()[0].Value.(*ir.Function)
			if !ok || seen[callee] {
				continue
			}
			seen[callee] = true
			callees = append(callees, callee)
		}
		out[f] = callees
	}
	return out
}

// TopoSort orders m's functions callees-first, so a bottom-up pass
// (inlining, interprocedural analysis) visits every callee before its
// callers. It fails with ErrNotADAG when the call graph is cyclic.
func TopoSort(m *ir.Module) ([]*ir.Function, error) {
	graph := CallGraph(m)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*ir.Function]int, len(graph))
	var order []*ir.Function

	var visit func(f *ir.Function) error
	visit = func(f *ir.Function) error {
		switch state[f] {
		case done:
			return nil
		case visiting:
			return ErrNotADAG
		}
		state[f] = visiting
		for _, callee := range graph[f] {
			if callee.Module() != m {
				continue
			}
			if err := visit(callee); err != nil {
				return err
			}
		}
		state[f] = done
		order = append(order, f)
		return nil
	}

	for _, f := range m.Functions() {
		if err := visit(f); err != nil {
			return nil, err
		}
	}
	return order, nil
}
