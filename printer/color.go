package printer

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"pykit/ir"
)

// Terminal highlighting for disassembly output. Colors are disabled
// automatically when the output is not a terminal or NO_COLOR is set;
// the colored form is for humans only and is not parseable.
var (
	typeColor   = color.New(color.FgCyan)
	opcodeColor = color.New(color.FgYellow)
	labelColor  = color.New(color.FgGreen, color.Bold)
	keywordTint = color.New(color.Bold)
)

// Disassemble writes fn to w with ANSI highlighting.
func Disassemble(w io.Writer, fn *ir.Function) {
	params := make([]string, len(fn.Args()))
	for i, a := range fn.Args() {
		params[i] = fmt.Sprintf("%s %%%s", typeColor.Sprint(a.Type()), a.Name())
	}
	fmt.Fprintf(w, "%s %s %s(%s) {\n",
		keywordTint.Sprint("function"),
		typeColor.Sprint(fn.Signature().RestType),
		fn.Name(), strings.Join(params, ", "))
	for i, b := range fn.Blocks() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s:\n", labelColor.Sprint(b.Name()))
		for _, op := range b.Ops() {
			operands := make([]string, 0, len(op.Args()))
			for _, a := range op.Args() {
				if a.IsList() {
					elems := make([]string, len(a.List))
					for j, v := range a.List {
						elems[j] = FormatOperand(v)
					}
					operands = append(operands, "["+strings.Join(elems, ", ")+"]")
				} else if a.Value != nil {
					operands = append(operands, FormatOperand(a.Value))
				}
			}
			fmt.Fprintf(w, "%s%%%s = (%s) %s(%s)\n", indent,
				op.Name(),
				typeColor.Sprint(op.Type()),
				opcodeColor.Sprint(op.Opcode()),
				strings.Join(operands, ", "))
		}
	}
	fmt.Fprintln(w, "}")
}
