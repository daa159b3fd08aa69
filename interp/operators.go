package interp

import (
	"errors"
	"fmt"
	"math"

	"pykit/ir"
	"pykit/opcode"
	"pykit/types"
)

var errDivByZero = errors.New("division by zero")

// applyOperator evaluates the arithmetic, bitwise, and comparison
// opcodes over int64, float64 and bool operands.
func applyOperator(opc opcode.Opcode, args []ir.Arg, observe func(ir.Value) (any, error)) (any, error) {
	operands := make([]any, len(args))
	for i, a := range args {
		v, err := observe(a.Value)
		if err != nil {
			return nil, err
		}
		operands[i] = v
	}

	switch opc {
	case opcode.Invert:
		x, ok := operands[0].(int64)
		if !ok {
			return nil, fmt.Errorf("invert of %T", operands[0])
		}
		return ^x, nil
	case opcode.Not:
		x, ok := operands[0].(bool)
		if !ok {
			return nil, fmt.Errorf("not_ of %T", operands[0])
		}
		return !x, nil
	case opcode.UAdd:
		return operands[0], nil
	case opcode.USub:
		switch x := operands[0].(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
		return nil, fmt.Errorf("usub of %T", operands[0])
	case opcode.Is:
		return operands[0] == operands[1], nil
	}

	if len(operands) != 2 {
		return nil, fmt.Errorf("unsupported opcode %s", opc)
	}
	x, y := operands[0], operands[1]

	if xi, ok := x.(int64); ok {
		yi, ok := y.(int64)
		if !ok {
			return nil, fmt.Errorf("%s of int64 and %T", opc, y)
		}
		return intOp(opc, xi, yi)
	}
	if xf, ok := x.(float64); ok {
		yf, ok := y.(float64)
		if !ok {
			return nil, fmt.Errorf("%s of float64 and %T", opc, y)
		}
		return floatOp(opc, xf, yf)
	}
	if xb, ok := x.(bool); ok {
		yb, ok := y.(bool)
		if !ok {
			return nil, fmt.Errorf("%s of bool and %T", opc, y)
		}
		switch opc {
		case opcode.Eq:
			return xb == yb, nil
		case opcode.NotEq:
			return xb != yb, nil
		case opcode.BitAnd:
			return xb && yb, nil
		case opcode.BitOr:
			return xb || yb, nil
		case opcode.BitXor:
			return xb != yb, nil
		}
	}
	return nil, fmt.Errorf("unsupported opcode %s for %T", opc, x)
}

func intOp(opc opcode.Opcode, x, y int64) (any, error) {
	switch opc {
	case opcode.Add:
		return x + y, nil
	case opcode.Sub:
		return x - y, nil
	case opcode.Mul:
		return x * y, nil
	case opcode.Div:
		if y == 0 {
			return nil, errDivByZero
		}
		return x / y, nil
	case opcode.Mod:
		if y == 0 {
			return nil, errDivByZero
		}
		return x % y, nil
	case opcode.LShift:
		return x << uint(y), nil
	case opcode.RShift:
		return x >> uint(y), nil
	case opcode.BitAnd:
		return x & y, nil
	case opcode.BitOr:
		return x | y, nil
	case opcode.BitXor:
		return x ^ y, nil
	case opcode.Eq:
		return x == y, nil
	case opcode.NotEq:
		return x != y, nil
	case opcode.Lt:
		return x < y, nil
	case opcode.Lte:
		return x <= y, nil
	case opcode.Gt:
		return x > y, nil
	case opcode.Gte:
		return x >= y, nil
	}
	return nil, fmt.Errorf("unsupported int opcode %s", opc)
}

func floatOp(opc opcode.Opcode, x, y float64) (any, error) {
	switch opc {
	case opcode.Add:
		return x + y, nil
	case opcode.Sub:
		return x - y, nil
	case opcode.Mul:
		return x * y, nil
	case opcode.Div:
		if y == 0 {
			return nil, errDivByZero
		}
		return x / y, nil
	case opcode.Mod:
		return math.Mod(x, y), nil
	case opcode.Eq:
		return x == y, nil
	case opcode.NotEq:
		return x != y, nil
	case opcode.Lt:
		return x < y, nil
	case opcode.Lte:
		return x <= y, nil
	case opcode.Gt:
		return x > y, nil
	case opcode.Gte:
		return x >= y, nil
	}
	return nil, fmt.Errorf("unsupported float opcode %s", opc)
}

// convert implements the convert opcode for scalar targets.
func convert(v any, to types.Type) (any, error) {
	switch types.ResolveTypedef(to).Kind() {
	case types.KindInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case types.KindReal:
		switch x := v.(type) {
		case int64:
			return float64(x), nil
		case float64:
			return x, nil
		}
	case types.KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		}
	}
	return nil, fmt.Errorf("interp: cannot convert %T to %s", v, to)
}

var unaryMath = map[string]func(float64) float64{
	string(opcode.Sin):   math.Sin,
	string(opcode.Asin):  math.Asin,
	string(opcode.Sinh):  math.Sinh,
	string(opcode.Asinh): math.Asinh,
	string(opcode.Cos):   math.Cos,
	string(opcode.Acos):  math.Acos,
	string(opcode.Cosh):  math.Cosh,
	string(opcode.Acosh): math.Acosh,
	string(opcode.Tan):   math.Tan,
	string(opcode.Atan):  math.Atan,
	string(opcode.Tanh):  math.Tanh,
	string(opcode.Atanh): math.Atanh,
	string(opcode.Log):   math.Log,
	string(opcode.Log2):  math.Log2,
	string(opcode.Log10): math.Log10,
	string(opcode.Exp):   math.Exp,
	string(opcode.Floor): math.Floor,
	string(opcode.Ceil):  math.Ceil,
	string(opcode.Abs):   math.Abs,
	string(opcode.Round): math.Round,
}

var binaryMath = map[string]func(float64, float64) float64{
	string(opcode.Atan2): math.Atan2,
	string(opcode.Pow):   math.Pow,
}

// callMath evaluates a call_math op. The intrinsic name travels as a
// bytes constant (pykit's Sin/Cos/... builder constants).
func callMath(name any, args []ir.Value, observe func(ir.Value) (any, error)) (any, error) {
	sym, ok := name.(string)
	if !ok {
		return nil, fmt.Errorf("interp: call_math intrinsic name is %T, not a string", name)
	}
	vals := make([]float64, len(args))
	for i, a := range args {
		v, err := observe(a)
		if err != nil {
			return nil, err
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("interp: call_math %s operand is %T", sym, v)
		}
		vals[i] = f
	}
	if f, ok := unaryMath[sym]; ok && len(vals) == 1 {
		return f(vals[0]), nil
	}
	if f, ok := binaryMath[sym]; ok && len(vals) == 2 {
		return f(vals[0], vals[1]), nil
	}
	return nil, fmt.Errorf("interp: unknown math intrinsic %s/%d", sym, len(vals))
}
