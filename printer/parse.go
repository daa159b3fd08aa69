package printer

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"pykit/ir"
	"pykit/opcode"
	"pykit/types"
)

// Grammar of the textual form (spec.md §4.10), EBNF-flavored:
//
//	module   := (typedef | global)* function*
//	typedef  := "typedef" name "=" type
//	global   := "global" "%" name "=" type
//	function := "function" type name "(" arg ("," arg)* ")" "{" block+ "}"
//	arg      := type "%" name
//	block    := name ":" op+
//	op       := "%" name "=" "(" type ")" opcode "(" operand ("," operand)* ")"
//	operand  := "%" name | constant | block_ref | "[" operand ("," operand)* "]"
//
// Constants carry their type inline as literal:type; undef:type is the
// undefined sentinel.

type astModule struct {
	Typedefs  []*astTypedef  `( @@`
	Globals   []*astGlobal   `| @@`
	Functions []*astFunction `| @@ )*`
}

type astTypedef struct {
	Name string   `"typedef" @Ident`
	Type *astType `"=" @@`
}

type astGlobal struct {
	Name string   `"global" "%" @Ident`
	Type *astType `"=" @@`
}

type astFunction struct {
	RetType *astType    `"function" @@`
	Name    string      `@Ident`
	Params  []*astParam `"(" ( @@ ( "," @@ )* )? ")"`
	Blocks  []*astBlock `"{" @@+ "}"`
}

type astParam struct {
	Type *astType `@@`
	Name string   `"%" @Ident`
}

type astBlock struct {
	Label string   `@Ident ":"`
	Ops   []*astOp `@@+`
}

type astOp struct {
	Result   string        `"%" @Ident "="`
	Type     *astType      `"(" @@ ")"`
	Opcode   string        `@Ident`
	Operands []*astOperand `"(" ( @@ ( "," @@ )* )? ")"`
}

type astOperand struct {
	List  *astList  `@@`
	Const *astConst `| @@`
	Var   *string   `| "%" @Ident`
	Block *string   `| @Ident`
}

type astList struct {
	Elems []*astOperand `"[" ( @@ ( "," @@ )* )? "]"`
}

type astConst struct {
	Str   *string  `( @String`
	Float *string  `| @Float`
	Int   *string  `| @Int`
	Bool  *string  `| @("true" | "false")`
	Undef bool     `| @"undef" )`
	Type  *astType `":" @@`
}

type astType struct {
	Name  string   `@Ident`
	Stars []string `@"*"*`
}

var irLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "comment", Pattern: `;[^\n]*`},
	{Name: "whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Float", Pattern: `[-+]?\d+\.\d+([eE][-+]?\d+)?|[-+]?\d+[eE][-+]?\d+`},
	{Name: "Int", Pattern: `[-+]?\d+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Punct", Pattern: `[%=(){}\[\],:*]`},
})

var irParser = participle.MustBuild[astModule](
	participle.Lexer(irLexer),
	participle.UseLookahead(4),
	participle.Unquote("String"),
)

// Parse reads a module in the canonical textual form. Parsing is
// staged so forward references resolve: functions and blocks first,
// then operations, then operands (a phi may name an op defined later
// in its block, a call may name a function defined later in the
// module).
func Parse(src string) (*ir.Module, error) {
	ast, err := irParser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("printer: %w", err)
	}

	m := ir.NewModule("module")
	for _, td := range ast.Typedefs {
		// declaration order: a typedef base may name an earlier typedef
		base, err := resolveType(m, td.Type)
		if err != nil {
			return nil, err
		}
		if _, err := m.AddTypedef(td.Name, base); err != nil {
			return nil, err
		}
	}
	for _, g := range ast.Globals {
		t, err := resolveType(m, g.Type)
		if err != nil {
			return nil, err
		}
		if _, err := m.AddGlobal(g.Name, t, false); err != nil {
			return nil, err
		}
	}

	fns := make([]*ir.Function, len(ast.Functions))
	for i, af := range ast.Functions {
		fn, err := buildSignature(m, af)
		if err != nil {
			return nil, err
		}
		if err := m.AddFunction(fn); err != nil {
			return nil, err
		}
		fns[i] = fn
	}

	for i, af := range ast.Functions {
		if err := buildBody(m, fns[i], af); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func buildSignature(m *ir.Module, af *astFunction) (*ir.Function, error) {
	restype, err := resolveType(m, af.RetType)
	if err != nil {
		return nil, err
	}
	argTypes := make([]types.Type, len(af.Params))
	argNames := make([]string, len(af.Params))
	for i, p := range af.Params {
		t, err := resolveType(m, p.Type)
		if err != nil {
			return nil, err
		}
		argTypes[i] = t
		argNames[i] = p.Name
	}
	sig := types.Function{RestType: restype, ArgTypes: argTypes}
	return ir.NewFunction(af.Name, sig, argNames), nil
}

func buildBody(m *ir.Module, fn *ir.Function, af *astFunction) error {
	blocks := make(map[string]*ir.Block, len(af.Blocks))
	defs := make(map[string]ir.Value)
	for _, a := range fn.Args() {
		defs[a.Name()] = a
	}

	for _, ab := range af.Blocks {
		if blocks[ab.Label] != nil {
			return fmt.Errorf("printer: function %s: duplicate block %q", fn.Name(), ab.Label)
		}
		blocks[ab.Label] = fn.AddBlock(ab.Label)
	}

	type pending struct {
		op  *ir.Operation
		ast *astOp
	}
	var todo []pending
	for _, ab := range af.Blocks {
		blk := blocks[ab.Label]
		for _, ao := range ab.Ops {
			opc := opcode.Opcode(ao.Opcode)
			if err := opcode.Validate(opc, len(ao.Operands)); err != nil {
				return err
			}
			t, err := resolveType(m, ao.Type)
			if err != nil {
				return err
			}
			if _, dup := defs[ao.Result]; dup {
				return fmt.Errorf("printer: function %s: duplicate result %%%s", fn.Name(), ao.Result)
			}
			op := ir.NewOperation(opc, t, nil, ao.Result)
			blk.Append(op)
			defs[ao.Result] = op
			todo = append(todo, pending{op, ao})
		}
	}

	for _, p := range todo {
		args := make([]ir.Arg, 0, len(p.ast.Operands))
		for _, operand := range p.ast.Operands {
			arg, err := resolveOperand(m, fn, blocks, defs, operand)
			if err != nil {
				return err
			}
			args = append(args, arg)
		}
		p.op.SetArgs(args)
	}
	return nil
}

func resolveOperand(m *ir.Module, fn *ir.Function, blocks map[string]*ir.Block,
	defs map[string]ir.Value, o *astOperand) (ir.Arg, error) {

	switch {
	case o.List != nil:
		vals := make([]ir.Value, 0, len(o.List.Elems))
		for _, e := range o.List.Elems {
			arg, err := resolveOperand(m, fn, blocks, defs, e)
			if err != nil {
				return ir.Arg{}, err
			}
			if arg.IsList() {
				return ir.Arg{}, fmt.Errorf("printer: function %s: lists nest at most one level", fn.Name())
			}
			vals = append(vals, arg.Value)
		}
		return ir.ListArg(vals), nil

	case o.Const != nil:
		v, err := resolveConst(m, o.Const)
		if err != nil {
			return ir.Arg{}, err
		}
		return ir.ValArg(v), nil

	case o.Var != nil:
		name := *o.Var
		if v, ok := defs[name]; ok {
			return ir.ValArg(v), nil
		}
		if f, ok := m.Function(name); ok {
			return ir.ValArg(f), nil
		}
		if g, ok := m.Global(name); ok {
			return ir.ValArg(g), nil
		}
		return ir.Arg{}, fmt.Errorf("printer: function %s: unknown operand %%%s", fn.Name(), name)

	case o.Block != nil:
		blk, ok := blocks[*o.Block]
		if !ok {
			return ir.Arg{}, fmt.Errorf("printer: function %s: unknown block %q", fn.Name(), *o.Block)
		}
		return ir.ValArg(blk), nil
	}
	return ir.Arg{}, fmt.Errorf("printer: function %s: empty operand", fn.Name())
}

func resolveConst(m *ir.Module, c *astConst) (ir.Value, error) {
	t, err := resolveType(m, c.Type)
	if err != nil {
		return nil, err
	}
	switch {
	case c.Undef:
		return ir.NewUndef(t), nil
	case c.Str != nil:
		return ir.NewConstant(t, *c.Str), nil
	case c.Bool != nil:
		return ir.NewConstant(t, *c.Bool == "true"), nil
	case c.Float != nil:
		f, err := strconv.ParseFloat(*c.Float, 64)
		if err != nil {
			return nil, fmt.Errorf("printer: bad float literal %q", *c.Float)
		}
		return ir.NewConstant(t, f), nil
	case c.Int != nil:
		if types.ResolveTypedef(t).Kind() == types.KindReal {
			f, err := strconv.ParseFloat(*c.Int, 64)
			if err != nil {
				return nil, fmt.Errorf("printer: bad literal %q", *c.Int)
			}
			return ir.NewConstant(t, f), nil
		}
		n, err := strconv.ParseInt(*c.Int, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("printer: bad int literal %q", *c.Int)
		}
		return ir.NewConstant(t, n), nil
	}
	return nil, fmt.Errorf("printer: empty constant")
}

var scalarTypes = map[string]types.Type{
	"void":      types.Void,
	"bool":      types.Bool,
	"bytes":     types.Bytes,
	"exception": types.Exception,
	"opaque":    types.Opaque,
	"int8":      types.Int8,
	"int16":     types.Int16,
	"int32":     types.Int32,
	"int64":     types.Int64,
	"uint8":     types.UInt8,
	"uint16":    types.UInt16,
	"uint32":    types.UInt32,
	"uint64":    types.UInt64,
	"float32":   types.Float32,
	"float64":   types.Float64,
}

func resolveType(m *ir.Module, at *astType) (types.Type, error) {
	t, ok := scalarTypes[at.Name]
	if !ok {
		td, found := m.Typedef(at.Name)
		if !found {
			return nil, fmt.Errorf("printer: unknown type %q", at.Name)
		}
		t = td
	}
	for range at.Stars {
		t = types.Pointer{Base: t}
	}
	return t, nil
}
