// Package jsdelegate is a ScriptEval driver that runs JavaScript with goja.
//
// Scripts see two globals: scriptArgs, the string arguments of the call,
// and host, an object with one function per capability binding, for
// example host.http_get({url: "https://example.com"}). console.log
// writes to the module log. The script's completion value is the
// result.
package jsdelegate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/hostfunc"
	"github.com/caffeineduck/hostbridge/registry"
	"github.com/caffeineduck/hostbridge/scripteval"
)

// Name is the registry name of the JavaScript driver.
const Name = "ScriptEval.js"

// Address is where the builtin JavaScript driver is deployed.
var Address = registry.AddressFor(Name)

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

// Run evaluates script against b. Script errors are AppErrors; a script
// still running when ctx ends is interrupted and reported as a timeout.
func Run(ctx context.Context, b hostfunc.Bridge, script string, args []string) (codec.Value, error) {
	if err := scripteval.CheckScript(script); err != nil {
		return codec.Undefined(), err
	}
	if args == nil {
		args = []string{}
	}

	vm := goja.New()
	if err := vm.Set("scriptArgs", args); err != nil {
		return codec.Undefined(), fmt.Errorf("set scriptArgs: %w", err)
	}
	if err := vm.Set("host", hostObject(ctx, vm, hostfunc.Bindings(b))); err != nil {
		return codec.Undefined(), fmt.Errorf("set host: %w", err)
	}

	console := vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		b.Log(hostfunc.LevelInfo, strings.Join(parts, " "))
		return goja.Undefined()
	})
	vm.Set("console", console)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	result, err := vm.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return codec.Undefined(), scripteval.Timeout(err)
		}
		var ex *goja.Exception
		if errors.As(err, &ex) && ex.Value() != nil {
			return codec.Undefined(), executor.Fail(scripteval.FailCode, "%s", ex.Value().String())
		}
		return codec.Undefined(), scripteval.Failed(err)
	}
	return toValue(result)
}

func hostObject(ctx context.Context, vm *goja.Runtime, funcs *hostfunc.Registry) *goja.Object {
	obj := vm.NewObject()
	for _, name := range funcs.List() {
		name := name
		obj.Set(name, func(call goja.FunctionCall) goja.Value {
			var in map[string]any
			if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
				m, ok := arg.Export().(map[string]any)
				if !ok {
					panic(vm.NewTypeError("%s: argument must be an object", name))
				}
				in = m
			}
			out, err := funcs.Call(ctx, name, in)
			if err != nil {
				panic(vm.NewGoError(fmt.Errorf("%s: %w", name, err)))
			}
			return vm.ToValue(out)
		})
	}
	return obj
}

func toValue(v goja.Value) (codec.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return codec.Undefined(), nil
	}
	exported := v.Export()
	switch x := exported.(type) {
	case string:
		return codec.Text(x), nil
	case goja.ArrayBuffer:
		return codec.Bytes(x.Bytes()), nil
	case []byte:
		return codec.Bytes(x), nil
	}
	raw, err := json.Marshal(exported)
	if err != nil {
		return codec.Undefined(), executor.Fail(scripteval.FailCode, "unsupported result: %v", err)
	}
	return codec.String(string(raw)), nil
}
