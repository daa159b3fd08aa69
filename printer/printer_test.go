package printer_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pykit/ir"
	"pykit/opcode"
	"pykit/printer"
	"pykit/types"
	"pykit/verify"
)

const goldenModule = `global %counter = int64

function int32 max(int32 %a, int32 %b) {
entry:
    %c = (bool) gt(%a, %b)
    %br = (void) cbranch(%c, then, else)

then:
    %j1 = (void) jump(join)

else:
    %j2 = (void) jump(join)

join:
    %r = (int32) phi([then, else], [%a, %b])
    %ret = (void) ret(%r)
}
`

func TestParseGolden(t *testing.T) {
	m, err := printer.Parse(goldenModule)
	require.NoError(t, err)

	g, ok := m.Global("counter")
	require.True(t, ok)
	assert.True(t, g.Type().Equal(types.Int64))

	fn, ok := m.Function("max")
	require.True(t, ok)
	require.NoError(t, verify.Verify(fn))
	assert.Equal(t, []string{"a", "b"}, fn.ArgNames())
	require.Equal(t, 4, fn.NumBlocks())

	join := fn.ExitBlock()
	phi := join.Head()
	require.Equal(t, opcode.Phi, phi.Opcode())
	// the phi's operands resolved to the blocks and args by name,
	// forward references included
	assert.Equal(t, fn.Blocks()[1], phi.Args()[0].List[0])
	assert.Equal(t, ir.Value(fn.Arg(0)), phi.Args()[1].List[0])
}

func TestRoundTripGolden(t *testing.T) {
	m, err := printer.Parse(goldenModule)
	require.NoError(t, err)

	if diff := cmp.Diff(goldenModule, printer.FormatModule(m)); diff != "" {
		t.Errorf("pretty(parse(golden)) mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripBuiltModule(t *testing.T) {
	m := ir.NewModule("m")
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32}}

	callee := ir.NewFunction("twice", sig, []string{"x"})
	require.NoError(t, m.AddFunction(callee))
	ce := callee.AddBlock("entry")
	cb := ir.NewBuilder(callee)
	cb.PositionAtEnd(ce)
	cb.Ret(cb.Add(types.Int32, callee.Arg(0), callee.Arg(0)))

	fn := ir.NewFunction("driver", sig, []string{"x"})
	require.NoError(t, m.AddFunction(fn))
	entry := fn.AddBlock("entry")
	b := ir.NewBuilder(fn)
	b.PositionAtEnd(entry)
	call := b.Call(types.Int32, callee, []ir.Value{fn.Arg(0)})
	sum := b.Add(types.Int32, call, ir.NewConstant(types.Int32, int64(7)))
	slot := b.Alloca(types.Pointer{Base: types.Float64})
	b.Store(ir.NewConstant(types.Float64, 2.5), slot)
	b.Ret(sum)

	text := printer.FormatModule(m)
	parsed, err := printer.Parse(text)
	require.NoError(t, err)

	if diff := cmp.Diff(text, printer.FormatModule(parsed)); diff != "" {
		t.Errorf("round trip not stable (-first +second):\n%s", diff)
	}

	fn2, ok := parsed.Function("driver")
	require.True(t, ok)
	require.NoError(t, verify.Verify(fn2))

	// the call target resolved back to the module function
	var call2 *ir.Operation
	for _, op := range fn2.Ops() {
		if op.Opcode() == opcode.Call {
			call2 = op
		}
	}
	require.NotNil(t, call2)
	target, ok := call2.Args()[0].Value.(*ir.Function)
	require.True(t, ok)
	assert.Equal(t, "twice", target.Name())
}

func TestTypedefRoundTrip(t *testing.T) {
	const src = `typedef Size = int64
typedef SizePtr = Size*

function Size grow(Size %n, SizePtr %out) {
entry:
    %r = (Size) add(%n, 1:Size)
    %w = (void) store(%r, %out)
    %ret = (void) ret(%r)
}
`
	m, err := printer.Parse(src)
	require.NoError(t, err)

	td, ok := m.Typedef("Size")
	require.True(t, ok)
	assert.True(t, td.Base.Equal(types.Int64))
	nested, ok := m.Typedef("SizePtr")
	require.True(t, ok)
	assert.Equal(t, types.KindPointer, types.ResolveTypedef(nested).Kind())

	fn, ok := m.Function("grow")
	require.True(t, ok)
	require.NoError(t, verify.Verify(fn))
	// the signature resolved through the alias, not its base
	assert.True(t, fn.Signature().RestType.Equal(td))

	if diff := cmp.Diff(src, printer.FormatModule(m)); diff != "" {
		t.Errorf("typedef round trip (-want +got):\n%s", diff)
	}
}

func TestParseRejectsUndeclaredTypedef(t *testing.T) {
	const bad = `function Size f(Size %x) {
entry:
    %ret = (void) ret(%x)
}
`
	_, err := printer.Parse(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestParseRejectsUnknownOpcode(t *testing.T) {
	const bad = `function void f() {
entry:
    %x = (void) frobnicate(%y)
}
`
	_, err := printer.Parse(bad)
	require.Error(t, err)
	var mismatch *opcode.SchemaMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestParseRejectsUnknownOperand(t *testing.T) {
	const bad = `function int32 f(int32 %x) {
entry:
    %r = (int32) add(%x, %nope)
    %ret = (void) ret(%r)
}
`
	_, err := printer.Parse(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operand")
}

func TestParseToleratesCommentsAndBlankLines(t *testing.T) {
	src := "; leading comment\n" + strings.ReplaceAll(goldenModule, "join:", "\n; about to join\njoin:")
	m, err := printer.Parse(src)
	require.NoError(t, err)
	// comments are not preserved
	assert.NotContains(t, printer.FormatModule(m), ";")
}

func TestUndefAndConstantsRoundTrip(t *testing.T) {
	const simpler = `function float64 k() {
entry:
    %u = (bool) eq(undef:float64, 3.5:float64)
    %ret = (void) ret(1.25:float64)
}
`
	m, err := printer.Parse(simpler)
	require.NoError(t, err)
	text := printer.FormatModule(m)
	assert.Contains(t, text, "undef:float64")
	assert.Contains(t, text, "3.5:float64")
	assert.Contains(t, text, "1.25:float64")

	again, err := printer.Parse(text)
	require.NoError(t, err)
	if diff := cmp.Diff(text, printer.FormatModule(again)); diff != "" {
		t.Errorf("constant round trip (-first +second):\n%s", diff)
	}
}
