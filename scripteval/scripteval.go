// Package scripteval calls a script evaluation driver from module code.
//
// A script driver is any module that answers [Selector] with the
// arguments (script string, args []string) and replies with a
// [codec.Value]. Failures of the script itself come back as an
// *executor.AppError with code [FailCode].
package scripteval

import (
	"context"
	"fmt"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/logging"
)

// DriverName is the registry name Eval resolves.
const DriverName = "ScriptEval"

// FailCode is the AppError code for script errors.
const FailCode = "script"

// MaxScriptSize bounds the source accepted by the drivers.
const MaxScriptSize = 64 << 10

// Selector is the eval message id.
var Selector = codec.NewSelector(0x49bfcd24)

// Eval runs script on the driver registered as ScriptEval. A missing
// driver returns executor.ErrUnavailable.
func Eval(ctx context.Context, env *executor.Env, script string, args []string) (codec.Value, error) {
	return EvalWith(ctx, env, DriverName, script, args)
}

// EvalWith is Eval against the driver registered under name. A successful
// result is logged at info level under the caller's current tags.
func EvalWith(ctx context.Context, env *executor.Env, name, script string, args []string) (codec.Value, error) {
	if args == nil {
		args = []string{}
	}
	var out codec.Value
	if err := env.InvokeDriver(ctx, name, executor.NewCall(Selector, script, args), &out); err != nil {
		return codec.Undefined(), err
	}
	logging.Info(ctx, env, "eval result: %s", out)
	return out, nil
}

// DecodeRequest unpacks the eval arguments on the driver side.
func DecodeRequest(args []byte) (script string, scriptArgs []string, err error) {
	if err := codec.DecodeArgs(args, &script, &scriptArgs); err != nil {
		return "", nil, err
	}
	return script, scriptArgs, nil
}

// CheckScript rejects sources a driver should not attempt to run.
func CheckScript(script string) error {
	if len(script) > MaxScriptSize {
		return executor.Fail(FailCode, "script exceeds %d bytes", MaxScriptSize)
	}
	return nil
}

// Failed wraps a script error as an AppError.
func Failed(err error) error {
	return executor.Fail(FailCode, "%s", err.Error())
}

// Timeout reports an interrupted script as an infrastructure failure.
func Timeout(err error) error {
	return fmt.Errorf("%w: script interrupted: %v", executor.ErrTimeout, err)
}
