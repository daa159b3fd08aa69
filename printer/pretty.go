// Package printer renders pykit IR in its canonical textual form and
// parses that form back (spec.md §4.10). The textual form is the
// golden format for round-trip tests:
//
//	typedef Size = int64
//	global %g = int32*
//
//	function int32 foo(int32 %a, int32 %b) {
//	entry:
//	    %r = (int32) add(%a, %b)
//	    %r2 = (void) ret(%r)
//	}
//
// Operands render as %name for operations, arguments, globals and
// functions; bare names for blocks; literal:type for constants and
// undef; and [..] for nested lists. Comments (";" to end of line) and
// blank lines are tolerated by the parser and never preserved.
package printer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"pykit/ir"
)

const indent = "    "

// WriteModule renders m: typedefs, then globals, then functions, each
// in declaration order.
func WriteModule(w io.Writer, m *ir.Module) {
	for _, td := range m.Typedefs() {
		fmt.Fprintf(w, "typedef %s = %s\n", td.Name, td.Base)
	}
	for _, g := range m.Globals() {
		fmt.Fprintf(w, "global %%%s = %s\n", g.Name(), g.Type())
	}
	if len(m.Typedefs()) > 0 || len(m.Globals()) > 0 {
		fmt.Fprintln(w)
	}
	for i, f := range m.Functions() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		WriteFunction(w, f)
	}
}

// WriteFunction renders fn with one block per label and one op per
// line.
func WriteFunction(w io.Writer, fn *ir.Function) {
	params := make([]string, len(fn.Args()))
	for i, a := range fn.Args() {
		params[i] = fmt.Sprintf("%s %%%s", a.Type(), a.Name())
	}
	fmt.Fprintf(w, "function %s %s(%s) {\n",
		fn.Signature().RestType, fn.Name(), strings.Join(params, ", "))
	for i, b := range fn.Blocks() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s:\n", b.Name())
		for _, op := range b.Ops() {
			fmt.Fprintf(w, "%s%s\n", indent, FormatOp(op))
		}
	}
	fmt.Fprintln(w, "}")
}

// FormatOp renders a single operation.
func FormatOp(op *ir.Operation) string {
	operands := make([]string, 0, len(op.Args()))
	for _, a := range op.Args() {
		if a.IsList() {
			elems := make([]string, len(a.List))
			for i, v := range a.List {
				elems[i] = FormatOperand(v)
			}
			operands = append(operands, "["+strings.Join(elems, ", ")+"]")
		} else if a.Value != nil {
			operands = append(operands, FormatOperand(a.Value))
		}
	}
	return fmt.Sprintf("%%%s = (%s) %s(%s)",
		op.Name(), op.Type(), op.Opcode(), strings.Join(operands, ", "))
}

// FormatOperand renders one operand.
func FormatOperand(v ir.Value) string {
	switch x := v.(type) {
	case *ir.Block:
		return x.Name()
	case *ir.Constant:
		return formatLiteral(x.Value()) + ":" + x.Type().String()
	case *ir.Undef:
		return "undef:" + x.Type().String()
	default:
		// Operation, FuncArg, GlobalValue, Function
		return "%" + v.Name()
	}
}

func formatLiteral(val any) string {
	switch x := val.(type) {
	case string:
		return strconv.Quote(x)
	case []byte:
		return strconv.Quote(string(x))
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case float32:
		return formatLiteral(float64(x))
	default:
		return fmt.Sprintf("%v", x)
	}
}

// FormatModule renders m to a string.
func FormatModule(m *ir.Module) string {
	var b strings.Builder
	WriteModule(&b, m)
	return b.String()
}

// FormatFunction renders fn to a string.
func FormatFunction(fn *ir.Function) string {
	var b strings.Builder
	WriteFunction(&b, fn)
	return b.String()
}
