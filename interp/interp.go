// Package interp is the reference interpreter over typed IR: the
// semantic oracle the SSA and inlining tests compare against
// (spec.md §9 "Interpreter as oracle"). It walks linearized ops,
// honors phi by remembering the previously executed block, and models
// Undef as a sentinel that is legal to pass around but illegal to
// observe. It is deliberately narrow: it covers the opcodes the
// middle-end tests exercise, not the full catalogue.
package interp

import (
	"errors"
	"fmt"
	"io"

	"pykit/ir"
	"pykit/opcode"
)

// ErrUndef reports observation of an undefined value: loading an
// uninitialized slot, branching on Undef, or feeding Undef to an
// operator.
var ErrUndef = errors.New("interp: undefined value observed")

// UncaughtException aborts interpretation of a function whose
// exc_throw reaches no handler.
type UncaughtException struct {
	Value any
}

func (e *UncaughtException) Error() string {
	return fmt.Sprintf("interp: uncaught exception %v", e.Value)
}

type undefValue struct{}

// cell is the storage of one alloca slot.
type cell struct {
	v any
}

// Interpreter evaluates functions. The zero value is usable: prints
// are discarded and the step budget defaults to 1<<20.
type Interpreter struct {
	Out      io.Writer
	MaxSteps int
}

// Run interprets fn on args with a default Interpreter.
func Run(fn *ir.Function, args ...any) (any, error) {
	return (&Interpreter{}).Run(fn, args...)
}

// Run interprets fn on args. It returns the ret operand's value, or
// nil for a void return.
func (in *Interpreter) Run(fn *ir.Function, args ...any) (any, error) {
	if len(args) != len(fn.Args()) {
		return nil, fmt.Errorf("interp: function %s wants %d args, got %d",
			fn.Name(), len(fn.Args()), len(args))
	}
	maxSteps := in.MaxSteps
	if maxSteps == 0 {
		maxSteps = 1 << 20
	}

	env := make(map[ir.Value]any)
	for i, a := range fn.Args() {
		env[a] = args[i]
	}

	eval := func(v ir.Value) any {
		switch x := v.(type) {
		case *ir.Constant:
			return x.Value()
		case *ir.Undef:
			return undefValue{}
		case *ir.Function, *ir.Block:
			return x
		default:
			return env[v]
		}
	}
	observe := func(v ir.Value) (any, error) {
		val := eval(v)
		if _, undef := val.(undefValue); undef {
			return nil, ErrUndef
		}
		return val, nil
	}

	block := fn.StartBlock()
	var prev *ir.Block
	steps := 0

	for block != nil {
		next, jumped := (*ir.Block)(nil), false
		for _, op := range block.Ops() {
			if steps++; steps > maxSteps {
				return nil, fmt.Errorf("interp: function %s exceeded %d steps", fn.Name(), maxSteps)
			}
			args := op.Args()
			switch opc := op.Opcode(); opc {
			case opcode.Phi:
				i := predIndex(args[0].List, prev)
				if i < 0 {
					return nil, fmt.Errorf("interp: phi %%%s has no edge from block %s", op.Name(), prev.Name())
				}
				env[op] = eval(args[1].List[i])

			case opcode.Alloca:
				env[op] = &cell{v: undefValue{}}

			case opcode.Load:
				c := eval(args[0].Value).(*cell)
				if _, undef := c.v.(undefValue); undef {
					return nil, ErrUndef
				}
				env[op] = c.v

			case opcode.Store:
				c := eval(args[1].Value).(*cell)
				c.v = eval(args[0].Value)

			case opcode.Jump:
				next, jumped = args[0].Value.(*ir.Block), true

			case opcode.CBranch:
				cond, err := observe(args[0].Value)
				if err != nil {
					return nil, err
				}
				if cond.(bool) {
					next = args[1].Value.(*ir.Block)
				} else {
					next = args[2].Value.(*ir.Block)
				}
				jumped = true

			case opcode.Ret:
				if len(args) == 0 {
					return nil, nil
				}
				return observe(args[0].Value)

			case opcode.ExcThrow:
				return nil, &UncaughtException{Value: eval(args[0].Value)}

			case opcode.ExcSetup, opcode.ExcCatch:
				// Declarative leaders; the local-throw transform turns
				// matching throws into jumps before interpretation.

			case opcode.Call:
				callee, ok := args[0].Value.(*ir.Function)
				if !ok {
					return nil, fmt.Errorf("interp: call %%%s targets a non-function", op.Name())
				}
				actuals := make([]any, len(args[1].List))
				for i, v := range args[1].List {
					a, err := observe(v)
					if err != nil {
						return nil, err
					}
					actuals[i] = a
				}
				res, err := in.Run(callee, actuals...)
				if err != nil {
					return nil, err
				}
				env[op] = res

			case opcode.CallMath:
				res, err := callMath(eval(args[0].Value), args[1].List, observe)
				if err != nil {
					return nil, err
				}
				env[op] = res

			case opcode.Convert:
				v, err := observe(args[0].Value)
				if err != nil {
					return nil, err
				}
				c, err := convert(v, op.Type())
				if err != nil {
					return nil, err
				}
				env[op] = c

			case opcode.Print:
				if in.Out != nil {
					vals := make([]any, len(args))
					for i, a := range args {
						vals[i] = eval(a.Value)
					}
					fmt.Fprintln(in.Out, vals...)
				}

			default:
				res, err := applyOperator(opc, args, observe)
				if err != nil {
					return nil, fmt.Errorf("interp: op %%%s: %w", op.Name(), err)
				}
				env[op] = res
			}
			if jumped {
				break
			}
		}
		if !jumped {
			return nil, fmt.Errorf("interp: block %s fell off its end", block.Name())
		}
		prev, block = block, next
	}
	return nil, fmt.Errorf("interp: function %s never returned", fn.Name())
}

func predIndex(blocks []ir.Value, prev *ir.Block) int {
	for i, b := range blocks {
		if b == ir.Value(prev) {
			return i
		}
	}
	return -1
}
