// Package pipeline runs named, staged passes over IR functions, driven
// by an environment mapping (spec.md §4.8). The environment doubles as
// the compile's configuration surface: stage keys hold ordered lists
// of pass names, pass names resolve to implementations, and passes are
// free to read and write auxiliary keys.
package pipeline

import (
	"fmt"

	"github.com/pkg/errors"

	"pykit/cfg"
	"pykit/ir"
	"pykit/ssa"
	"pykit/transform"
	"pykit/verify"
)

// Environment is the per-compile configuration and state map. Writes
// are sequenced by pass order; there is no concurrent access.
type Environment map[string]any

// Pass is one named transformation. A pass either returns (nil, nil)
// to keep the current function and environment, or a replacement pair.
type Pass func(fn *ir.Function, env Environment) (*ir.Function, Environment, error)

// PassNotInstalledError reports a stage naming a pass with no binding
// in the environment (spec.md §7). It is fatal to the compile.
type PassNotInstalledError struct {
	Name string
}

func (e *PassNotInstalledError) Error() string {
	return fmt.Sprintf("pipeline: pass %q is not installed", e.Name)
}

// Default stage ordering. Each stage key holds an ordered []string of
// pass names.
var defaultStages = []string{
	"pipeline.analyze",
	"pipeline.optimize",
	"pipeline.lower",
	"pipeline.codegen",
}

// Fresh returns a new environment seeded with the default stage
// layout, the core pass bindings, and empty runtime configuration,
// mirroring pykit.environment.fresh_env.
func Fresh() Environment {
	env := Environment{
		"pipeline.stages":   append([]string(nil), defaultStages...),
		"pipeline.analyze":  []string{"passes.cfa"},
		"pipeline.optimize": []string{},
		"pipeline.lower":    []string{},
		"pipeline.codegen":  []string{},

		"runtime.librarypaths": []string{},
		"runtime.libraries":    []string{},

		"types.typedefmap": map[string]any{},
	}

	env["passes.cfa"] = Pass(func(fn *ir.Function, env Environment) (*ir.Function, Environment, error) {
		g := cfg.Build(fn)
		env["analysis.cfg"] = g
		env["analysis.dominators"] = cfg.ComputeDominators(g)
		return nil, nil, nil
	})
	env["passes.ssa"] = Pass(func(fn *ir.Function, env Environment) (*ir.Function, Environment, error) {
		return nil, nil, ssa.Run(fn)
	})
	env["passes.ret"] = Pass(func(fn *ir.Function, env Environment) (*ir.Function, Environment, error) {
		transform.NormalizeReturns(fn)
		return nil, nil, nil
	})
	env["passes.dce"] = Pass(func(fn *ir.Function, env Environment) (*ir.Function, Environment, error) {
		transform.DCE(fn)
		return nil, nil, nil
	})
	env["passes.local_exceptions"] = Pass(func(fn *ir.Function, env Environment) (*ir.Function, Environment, error) {
		model, _ := env["exc.model"].(transform.ExceptionModel)
		transform.ResolveLocalThrows(fn, model)
		return nil, nil, nil
	})

	return env
}

// Clone deep-copies the environment: nested maps and slices are
// copied recursively, everything else (pass funcs, IR references) is
// shared.
func (env Environment) Clone() Environment {
	return deepCopy(env).(Environment)
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case Environment:
		out := make(Environment, len(x))
		for k, val := range x {
			out[k] = deepCopy(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = deepCopy(val)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

// Strings reads a []string-valued key, returning nil when absent.
func (env Environment) Strings(key string) []string {
	s, _ := env[key].([]string)
	return s
}

// Bool reads a bool-valued key, false when absent.
func (env Environment) Bool(key string) bool {
	b, _ := env[key].(bool)
	return b
}

// Stages returns the configured stage keys, or the defaults.
func (env Environment) Stages() []string {
	if s := env.Strings("pipeline.stages"); s != nil {
		return s
	}
	return defaultStages
}

// Install binds a pass implementation under name.
func (env Environment) Install(name string, p Pass) {
	env[name] = p
}

// AddPass appends a pass name to the given stage's list.
func (env Environment) AddPass(stage, name string) {
	env[stage] = append(env.Strings(stage), name)
}

// Run executes every stage of the pipeline over fn: stage order, then
// pass order within the stage. Execution is strictly sequential; a
// pass failure aborts the compile. With "pipeline.paranoid" set, the
// verifier runs before and after every pass.
func Run(fn *ir.Function, env Environment) (*ir.Function, Environment, error) {
	paranoid := env.Bool("pipeline.paranoid")
	for _, stage := range env.Stages() {
		for _, name := range env.Strings(stage) {
			pass, err := lookupPass(env, name)
			if err != nil {
				return fn, env, err
			}
			if paranoid {
				if err := verify.Verify(fn); err != nil {
					return fn, env, errors.Wrapf(err, "before pass %q", name)
				}
			}
			newFn, newEnv, err := pass(fn, env)
			if err != nil {
				return fn, env, errors.Wrapf(err, "pass %q", name)
			}
			if newFn != nil {
				fn = newFn
			}
			if newEnv != nil {
				env = newEnv
			}
			if paranoid {
				if err := verify.Verify(fn); err != nil {
					return fn, env, errors.Wrapf(err, "after pass %q", name)
				}
			}
		}
	}
	return fn, env, nil
}

func lookupPass(env Environment, name string) (Pass, error) {
	v, ok := env[name]
	if !ok {
		return nil, &PassNotInstalledError{Name: name}
	}
	switch p := v.(type) {
	case Pass:
		return p, nil
	case func(*ir.Function, Environment) (*ir.Function, Environment, error):
		return p, nil
	default:
		return nil, &PassNotInstalledError{Name: name}
	}
}

// RunModule runs the pipeline for each function of m in declaration
// order, sharing one environment. Passes mutate functions in place; a
// pass returning a replacement function is not supported at module
// granularity.
func RunModule(m *ir.Module, env Environment) (Environment, error) {
	for _, f := range m.Functions() {
		newFn, newEnv, err := Run(f, env)
		if err != nil {
			return env, err
		}
		if newFn != f {
			return env, errors.Errorf("pipeline: pass replaced function %q; module runs require in-place passes", f.Name())
		}
		env = newEnv
	}
	return env, nil
}
