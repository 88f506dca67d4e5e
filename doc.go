// Package hostbridge runs deterministic modules that reach the outside
// world only through a capability bridge.
//
// # Overview
//
// A module runs as a caller address inside an invocation. It has no
// implicit access to the network, keys, randomness or shared memory:
// each capability goes through the bridge, and other modules are reached
// by name through a driver registry resolved at call time.
//
// # Basic Usage
//
//	s, _ := stack.New(ctx, config.Default(), os.Stderr)
//	defer s.Close()
//
//	err := s.Host.Run(ctx, caller, executor.ModeQuery, func(ctx context.Context, env *executor.Env) error {
//	    span := logging.Enter(ctx, env, "price")
//	    defer span.Release(ctx)
//
//	    v, err := scripteval.Eval(ctx, env, `scriptArgs[0] + "!"`, []string{"hi"})
//	    if err != nil {
//	        return logging.LogErr(ctx, env, err, "eval")
//	    }
//	    logging.Info(ctx, env, "result %s", v)
//	    return nil
//	})
//
// # Failures
//
// Infrastructure failures ([executor.InfraError]) abort the whole
// invocation and discard its storage writes. Application failures
// ([executor.AppError]) are returned to the caller as values.
//
// See the [executor], [hostfunc], [scripteval], [logging] and [sandbox]
// packages for detailed API documentation.
package hostbridge
