package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pykit/cfg"
	"pykit/interp"
	"pykit/ir"
	"pykit/opcode"
	"pykit/pipeline"
	"pykit/types"
)

func identityFunc(t *testing.T) *ir.Function {
	t.Helper()
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32}}
	fn := ir.NewFunction("id", sig, []string{"x"})
	entry := fn.AddBlock("entry")
	b := ir.NewBuilder(fn)
	b.PositionAtEnd(entry)
	b.Ret(fn.Arg(0))
	return fn
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	env := pipeline.Fresh()
	var trace []string
	record := func(name string) pipeline.Pass {
		return func(fn *ir.Function, env pipeline.Environment) (*ir.Function, pipeline.Environment, error) {
			trace = append(trace, name)
			return nil, nil, nil
		}
	}
	env.Install("passes.a", record("a"))
	env.Install("passes.b", record("b"))
	env.Install("passes.c", record("c"))
	env["pipeline.analyze"] = []string{"passes.b"}
	env["pipeline.optimize"] = []string{"passes.c", "passes.a"}

	_, _, err := pipeline.Run(identityFunc(t), env)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, trace)
}

func TestRunFailsOnMissingPass(t *testing.T) {
	env := pipeline.Fresh()
	env.AddPass("pipeline.optimize", "passes.nonexistent")

	_, _, err := pipeline.Run(identityFunc(t), env)
	var missing *pipeline.PassNotInstalledError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "passes.nonexistent", missing.Name)
}

func TestDefaultCFAPassPublishesAnalyses(t *testing.T) {
	env := pipeline.Fresh()
	fn := identityFunc(t)

	_, env, err := pipeline.Run(fn, env)
	require.NoError(t, err)

	g, ok := env["analysis.cfg"].(*cfg.Graph)
	require.True(t, ok)
	assert.Equal(t, fn, g.Function())
	_, ok = env["analysis.dominators"].(cfg.DomSets)
	assert.True(t, ok)
}

func TestSSAPassThroughPipeline(t *testing.T) {
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32}}
	fn := ir.NewFunction("inc", sig, []string{"x"})
	entry := fn.AddBlock("entry")
	b := ir.NewBuilder(fn)
	b.PositionAtEnd(entry)
	slot := b.Alloca(types.Pointer{Base: types.Int32})
	b.Store(b.Add(types.Int32, fn.Arg(0), ir.NewConstant(types.Int32, int64(1))), slot)
	b.Ret(b.Load(slot))

	env := pipeline.Fresh()
	env.AddPass("pipeline.optimize", "passes.ssa")
	env.AddPass("pipeline.optimize", "passes.dce")
	env["pipeline.paranoid"] = true

	fn2, _, err := pipeline.Run(fn, env)
	require.NoError(t, err)

	for _, op := range fn2.Ops() {
		assert.NotEqual(t, opcode.Alloca, op.Opcode())
	}
	got, err := interp.Run(fn2, int64(41))
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestEnvironmentCloneIsDeep(t *testing.T) {
	env := pipeline.Fresh()
	env["codegen.opt"] = []string{"one"}

	clone := env.Clone()
	clone.AddPass("pipeline.analyze", "passes.extra")
	clone["runtime.librarypaths"] = append(clone.Strings("runtime.librarypaths"), "/opt/lib")

	assert.Equal(t, []string{"passes.cfa"}, env.Strings("pipeline.analyze"))
	assert.Empty(t, env.Strings("runtime.librarypaths"))
	assert.Equal(t, []string{"passes.cfa", "passes.extra"}, clone.Strings("pipeline.analyze"))
}

func TestRunModuleSharesEnvironment(t *testing.T) {
	m := ir.NewModule("m")
	f1 := identityFunc(t)
	sig := types.Function{RestType: types.Int32, ArgTypes: []types.Type{types.Int32}}
	f2 := ir.NewFunction("id2", sig, []string{"x"})
	entry := f2.AddBlock("entry")
	b := ir.NewBuilder(f2)
	b.PositionAtEnd(entry)
	b.Ret(f2.Arg(0))
	require.NoError(t, m.AddFunction(f1))
	require.NoError(t, m.AddFunction(f2))

	env := pipeline.Fresh()
	seen := []string{}
	env.Install("passes.record", func(fn *ir.Function, env pipeline.Environment) (*ir.Function, pipeline.Environment, error) {
		seen = append(seen, fn.Name())
		return nil, nil, nil
	})
	env.AddPass("pipeline.analyze", "passes.record")

	_, err := pipeline.RunModule(m, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "id2"}, seen)
}
