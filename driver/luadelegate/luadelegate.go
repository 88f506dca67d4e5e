// Package luadelegate is a ScriptEval driver that runs Lua 5.2 with
// Shopify/go-lua.
//
// The conventions match the JavaScript driver: scriptArgs is an array of
// the call's string arguments, host holds one function per capability
// binding taking a table, print writes to the module log, and the first
// value returned by the chunk is the result. Only the base, string, table
// and math libraries are opened.
package luadelegate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Shopify/go-lua"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/hostfunc"
	"github.com/caffeineduck/hostbridge/registry"
	"github.com/caffeineduck/hostbridge/scripteval"
)

// Name is the registry name of the Lua driver.
const Name = "ScriptEval.lua"

// Address is where the builtin Lua driver is deployed.
var Address = registry.AddressFor(Name)

const (
	// hookInterval is the number of VM instructions between context checks.
	hookInterval = 1000
	// maxTableDepth bounds conversion of nested tables.
	maxTableDepth = 16
)

var libs = []lua.RegistryFunction{
	{Name: "_G", Function: lua.BaseOpen},
	{Name: "string", Function: lua.StringOpen},
	{Name: "table", Function: lua.TableOpen},
	{Name: "math", Function: lua.MathOpen},
}

// New returns the driver code.
func New() *executor.Dispatcher {
	return executor.NewDispatcher(Name).Handle(scripteval.Selector, eval)
}

func eval(ctx context.Context, env *executor.Env, args []byte) (any, error) {
	script, scriptArgs, err := scripteval.DecodeRequest(args)
	if err != nil {
		return nil, err
	}
	return Run(ctx, env.Bridge(), script, scriptArgs)
}

// Run evaluates script against b. Errors follow the JavaScript driver:
// script failures are AppErrors, interruption by ctx is a timeout.
func Run(ctx context.Context, b hostfunc.Bridge, script string, args []string) (codec.Value, error) {
	if err := scripteval.CheckScript(script); err != nil {
		return codec.Undefined(), err
	}

	l := lua.NewState()
	for _, lib := range libs {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}

	pushValue(l, args)
	l.SetGlobal("scriptArgs")
	registerHost(ctx, l, hostfunc.Bindings(b))

	l.PushGoFunction(func(l *lua.State) int {
		n := l.Top()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, display(l, i))
		}
		b.Log(hostfunc.LevelInfo, strings.Join(parts, "\t"))
		return 0
	})
	l.SetGlobal("print")

	lua.SetDebugHook(l, func(l *lua.State, _ lua.Debug) {
		if err := ctx.Err(); err != nil {
			lua.Errorf(l, "interrupted: %s", err.Error())
		}
	}, lua.MaskCount, hookInterval)

	if err := lua.LoadString(l, script); err != nil {
		return codec.Undefined(), scripteval.Failed(err)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return codec.Undefined(), scripteval.Timeout(ctxErr)
		}
		if msg, ok := l.ToString(-1); ok && msg != "" {
			return codec.Undefined(), executor.Fail(scripteval.FailCode, "%s", msg)
		}
		return codec.Undefined(), scripteval.Failed(err)
	}
	return toValue(l, -1)
}

func registerHost(ctx context.Context, l *lua.State, funcs *hostfunc.Registry) {
	l.NewTable()
	for _, name := range funcs.List() {
		name := name
		l.PushGoFunction(func(l *lua.State) int {
			var in map[string]any
			if !l.IsNoneOrNil(1) {
				lua.CheckType(l, 1, lua.TypeTable)
				in, _ = goValue(l, 1, 0).(map[string]any)
			}
			out, err := funcs.Call(ctx, name, in)
			if err != nil {
				lua.Errorf(l, "%s: %s", name, err.Error())
			}
			pushValue(l, out)
			return 1
		})
		l.SetField(-2, name)
	}
	l.SetGlobal("host")
}

func toValue(l *lua.State, index int) (codec.Value, error) {
	switch l.TypeOf(index) {
	case lua.TypeNil, lua.TypeNone:
		return codec.Undefined(), nil
	case lua.TypeString:
		s, _ := l.ToString(index)
		return codec.Text(s), nil
	}
	raw, err := json.Marshal(goValue(l, index, 0))
	if err != nil {
		return codec.Undefined(), executor.Fail(scripteval.FailCode, "unsupported result: %v", err)
	}
	return codec.String(string(raw)), nil
}

// goValue converts the Lua value at index. Tables with a border become
// slices, other tables maps keyed by their string keys. Functions and
// userdata convert to nil.
func goValue(l *lua.State, index, depth int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		if !utf8.ValidString(s) {
			return []byte(s)
		}
		return s
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		if depth >= maxTableDepth {
			return nil
		}
		return tableValue(l, l.AbsIndex(index), depth+1)
	}
	return nil
}

func tableValue(l *lua.State, index, depth int) any {
	if n := l.RawLength(index); n > 0 {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			l.RawGetInt(index, i)
			out = append(out, goValue(l, -1, depth))
			l.Pop(1)
		}
		return out
	}

	out := make(map[string]any)
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			out[key] = goValue(l, -1, depth)
		}
		l.Pop(1)
	}
	return out
}

func pushValue(l *lua.State, v any) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case string:
		l.PushString(x)
	case bool:
		l.PushBoolean(x)
	case int:
		l.PushInteger(x)
	case int64:
		l.PushInteger(int(x))
	case float64:
		l.PushNumber(x)
	case []string:
		l.CreateTable(len(x), 0)
		for i, s := range x {
			l.PushString(s)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		l.CreateTable(0, len(x))
		for _, k := range keys {
			pushValue(l, x[k])
			l.SetField(-2, k)
		}
	default:
		l.PushString(fmt.Sprint(x))
	}
}

// display renders a value for print without converting it in place.
func display(l *lua.State, index int) string {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNil:
		return "nil"
	}
	raw, err := json.Marshal(goValue(l, index, 0))
	if err != nil {
		return l.TypeOf(index).String()
	}
	return string(raw)
}
