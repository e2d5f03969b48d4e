// Package script runs level-authored Lua snippets for the trigger engine's
// script action. The interpreter is sandboxed so a script sees only what its
// Host exposes and runs identically on replay:
//
//   - no io, os, package or debug libraries and no math.random
//   - no hash-order iteration (pairs, next)
//   - tostring and string.format refuse tables, functions and other
//     reference values, whose text form carries a heap address
//   - the platform transcendentals in math are gone; sim.sin, sim.cos,
//     sim.atan2 and math.sqrt go through fixedmath instead
package script

import (
	"fmt"

	"github.com/Shopify/go-lua"

	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/simerr"
)

// Host is the simulation surface a script may touch. Values crossing the
// boundary are float64, string or bool.
type Host interface {
	Tick() uint64
	Var(name string) (any, bool)
	SetVar(name string, v any) error
	Random() float64
	RandomInt(lo, hi int) int
	CountCamp(camp int) int
	Message(text string)
	Emit(name string)
	End(reason string) error
}

// Runtime owns one Lua state for a level session. Lua globals written by one
// script are visible to later ones in the same session.
type Runtime struct {
	l    *lua.State
	host Host
}

func New() *Runtime {
	r := &Runtime{l: lua.NewState()}
	openSandbox(r.l)
	r.l.NewTable()
	lua.SetFunctions(r.l, r.functions(), 0)
	r.l.SetGlobal("sim")
	return r
}

// Check compiles src without running it.
func Check(src string) error {
	l := lua.NewState()
	if err := lua.LoadString(l, src); err != nil {
		return simerr.Wrap(simerr.CodeConfig, "compile script", err)
	}
	return nil
}

// Run executes src against host.
func (r *Runtime) Run(src string, host Host) error {
	r.host = host
	defer func() { r.host = nil }()
	if err := lua.LoadString(r.l, src); err != nil {
		return simerr.Wrap(simerr.CodeConfig, "compile script", err)
	}
	if err := r.l.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("run script: %w", err)
	}
	return nil
}

func openSandbox(l *lua.State) {
	libs := []lua.RegistryFunction{
		{Name: "_G", Function: lua.BaseOpen},
		{Name: "string", Function: lua.StringOpen},
		{Name: "table", Function: lua.TableOpen},
		{Name: "math", Function: lua.MathOpen},
	}
	for _, lib := range libs {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "print", "pairs", "next"} {
		l.PushNil()
		l.SetGlobal(name)
	}
	l.PushGlobalTable()
	guardScalars(l, "tostring")
	l.Pop(1)
	l.Global("string")
	guardScalars(l, "format")
	l.Pop(1)

	l.Global("math")
	for _, name := range []string{
		"random", "randomseed",
		"sin", "cos", "tan", "asin", "acos", "atan", "atan2",
		"sinh", "cosh", "tanh", "exp", "log", "log10", "pow",
	} {
		l.PushNil()
		l.SetField(-2, name)
	}
	l.PushGoFunction(func(l *lua.State) int {
		x := checkFixed(l, 1)
		if x < 0 {
			lua.ArgumentError(l, 1, "negative")
		}
		l.PushNumber(fixedmath.Sqrt(x).Float())
		return 1
	})
	l.SetField(-2, "sqrt")
	l.Pop(1)
}

// guardScalars wraps the function name of the table on top of the stack so
// that any argument other than nil, boolean, number or string raises an error.
func guardScalars(l *lua.State, name string) {
	l.Field(-1, name)
	l.PushGoClosure(func(l *lua.State) int {
		n := l.Top()
		for i := 1; i <= n; i++ {
			switch l.TypeOf(i) {
			case lua.TypeNil, lua.TypeBoolean, lua.TypeNumber, lua.TypeString:
			default:
				lua.ArgumentError(l, i, "scalar expected, got "+lua.TypeNameOf(l, i))
			}
		}
		l.PushValue(lua.UpValueIndex(1))
		l.Insert(1)
		l.Call(n, lua.MultipleReturns)
		return l.Top()
	}, 1)
	l.SetField(-2, name)
}

// fixedRange bounds the numbers a script may hand to fixedmath; outside it
// the float to Q32.32 conversion is not defined.
const fixedRange = float64(1 << 31)

func checkFixed(l *lua.State, i int) fixedmath.Fixed {
	x := lua.CheckNumber(l, i)
	if x != x || x >= fixedRange || x <= -fixedRange {
		lua.ArgumentError(l, i, "outside the fixed-point range")
	}
	return fixedmath.FromFloat(x)
}

func (r *Runtime) functions() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		{Name: "tick", Function: func(l *lua.State) int {
			l.PushNumber(float64(r.mustHost(l).Tick()))
			return 1
		}},
		{Name: "get", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			v, ok := r.mustHost(l).Var(name)
			if !ok {
				l.PushNil()
				return 1
			}
			pushValue(l, v)
			return 1
		}},
		{Name: "set", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			var v any
			switch l.TypeOf(2) {
			case lua.TypeNumber:
				v, _ = l.ToNumber(2)
			case lua.TypeString:
				v, _ = l.ToString(2)
			case lua.TypeBoolean:
				v = l.ToBoolean(2)
			default:
				lua.Errorf(l, "sim.set: %s: want number, string or boolean", name)
				return 0
			}
			if err := r.mustHost(l).SetVar(name, v); err != nil {
				lua.Errorf(l, "sim.set: %s", err.Error())
			}
			return 0
		}},
		{Name: "random", Function: func(l *lua.State) int {
			l.PushNumber(r.mustHost(l).Random())
			return 1
		}},
		{Name: "random_int", Function: func(l *lua.State) int {
			lo := lua.CheckInteger(l, 1)
			hi := lua.CheckInteger(l, 2)
			l.PushInteger(r.mustHost(l).RandomInt(lo, hi))
			return 1
		}},
		{Name: "sin", Function: func(l *lua.State) int {
			l.PushNumber(fixedmath.Sin(checkFixed(l, 1)).Float())
			return 1
		}},
		{Name: "cos", Function: func(l *lua.State) int {
			l.PushNumber(fixedmath.Cos(checkFixed(l, 1)).Float())
			return 1
		}},
		{Name: "atan2", Function: func(l *lua.State) int {
			y, x := checkFixed(l, 1), checkFixed(l, 2)
			if x == 0 && y == 0 {
				lua.Errorf(l, "sim.atan2: zero vector has no angle")
			}
			l.PushNumber(fixedmath.Atan2(y, x).Float())
			return 1
		}},
		{Name: "count", Function: func(l *lua.State) int {
			l.PushInteger(r.mustHost(l).CountCamp(lua.CheckInteger(l, 1)))
			return 1
		}},
		{Name: "message", Function: func(l *lua.State) int {
			r.mustHost(l).Message(lua.CheckString(l, 1))
			return 0
		}},
		{Name: "emit", Function: func(l *lua.State) int {
			r.mustHost(l).Emit(lua.CheckString(l, 1))
			return 0
		}},
		{Name: "end_level", Function: func(l *lua.State) int {
			if err := r.mustHost(l).End(lua.OptString(l, 1, "scripted")); err != nil {
				lua.Errorf(l, "sim.end_level: %s", err.Error())
			}
			return 0
		}},
	}
}

func (r *Runtime) mustHost(l *lua.State) Host {
	if r.host == nil {
		lua.Errorf(l, "sim: no host bound")
	}
	return r.host
}

func pushValue(l *lua.State, v any) {
	switch x := v.(type) {
	case float64:
		l.PushNumber(x)
	case int:
		l.PushInteger(x)
	case string:
		l.PushString(x)
	case bool:
		l.PushBoolean(x)
	default:
		l.PushNil()
	}
}
