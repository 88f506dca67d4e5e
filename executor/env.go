package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/hostfunc"
	"github.com/caffeineduck/hostbridge/registry"
)

// Call describes one delegate call.
type Call struct {
	Selector codec.Selector
	Args     []any
	// BestEffort calls never abort the invocation: infrastructure
	// failures are returned to the caller like any other error.
	BestEffort bool
}

// NewCall builds a Call with positional arguments.
func NewCall(sel codec.Selector, args ...any) Call {
	return Call{Selector: sel, Args: args}
}

// Env is the execution context handed to module code. It is created per
// invocation, carries the caller identity, storage, capability bridge
// and registry snapshot, and must not be shared across goroutines.
type Env struct {
	host     *Host
	caller   registry.Address
	id       string
	storage  Storage
	bridge   hostfunc.Bridge
	registry *registry.Registry
	depth    int
	inv      *invocation
}

// invocation is state shared by an Env and every delegate Env it spawns.
type invocation struct {
	abort error
	log   *logrus.Entry
}

func (e *Env) Caller() registry.Address { return e.caller }

// InvocationID identifies the top-level invocation for log correlation.
func (e *Env) InvocationID() string { return e.id }

// Storage is the caller's storage. Delegate code runs against it too.
func (e *Env) Storage() Storage { return e.storage }

func (e *Env) Bridge() hostfunc.Bridge { return e.bridge }

// Registry is the snapshot captured when the invocation started.
func (e *Env) Registry() *registry.Registry { return e.registry }

func (e *Env) IsInTransaction() bool { return e.bridge.IsInTransaction() }

// Depth is the number of delegate frames below the top-level call.
func (e *Env) Depth() int { return e.depth }

// Logger returns a host log entry for infrastructure messages.
func (e *Env) Logger() *logrus.Entry { return e.inv.log }

// Aborted returns the infrastructure failure that aborted the
// invocation, or nil.
func (e *Env) Aborted() error { return e.inv.abort }

// Abort marks the invocation as failed. The first abort wins.
func (e *Env) Abort(err error) {
	if err == nil {
		return
	}
	if e.inv.abort == nil {
		e.inv.abort = infra("abort", err)
	}
}

// Resolve looks a driver up in the invocation's registry snapshot.
func (e *Env) Resolve(name string) (registry.Address, bool) {
	return e.registry.Resolve(name)
}

// InvokeDriver resolves name and delegate-calls it. A missing driver
// returns ErrUnavailable without aborting.
func (e *Env) InvokeDriver(ctx context.Context, name string, call Call, out any) error {
	addr, ok := e.Resolve(name)
	if !ok {
		e.host.metrics.DelegateCall("unavailable")
		return fmt.Errorf("%w: %s", ErrUnavailable, name)
	}
	return e.Invoke(ctx, addr, call, out)
}

// Invoke runs the code deployed at addr as a delegate: it executes with
// this Env's caller identity, storage and bridge. On success the reply
// payload is decoded into out (which may be nil).
//
// The returned error is nil, an *AppError from the delegate's logic, or
// an *InfraError. Infrastructure failures also abort the invocation
// unless call.BestEffort is set.
func (e *Env) Invoke(ctx context.Context, addr registry.Address, call Call, out any) error {
	err := e.invoke(ctx, addr, call, out)

	var app *AppError
	switch {
	case err == nil:
		e.host.metrics.DelegateCall("ok")
	case errors.As(err, &app):
		e.host.metrics.DelegateCall("app_error")
	default:
		e.host.metrics.DelegateCall("infra_error")
		if !call.BestEffort {
			e.Abort(err)
		}
	}
	return err
}

func (e *Env) invoke(ctx context.Context, addr registry.Address, call Call, out any) error {
	if err := ctx.Err(); err != nil {
		return infra("invoke", fmt.Errorf("%w: %v", ErrTimeout, err))
	}

	if e.depth+1 > e.host.cfg.maxDepth {
		return infra("invoke", fmt.Errorf("%w: limit %d", ErrDepthExceeded, e.host.cfg.maxDepth))
	}

	code, ok := e.host.codeAt(addr)
	if !ok {
		return infra("invoke", fmt.Errorf("%w: %s", ErrUnreachable, addr))
	}

	payload, err := codec.EncodeCall(call.Selector, call.Args...)
	if err != nil {
		return infra("encode", err)
	}

	child := *e
	child.depth = e.depth + 1

	reply, err := runCode(ctx, code, &child, payload)
	if err != nil {
		return infra("call "+call.Selector.String(), err)
	}

	status, body, err := codec.DecodeReply(reply)
	if err != nil {
		return infra("decode reply", err)
	}

	if status == codec.StatusFailure {
		var f codec.Failure
		if err := codec.Unmarshal(body, &f); err != nil {
			return infra("decode failure", fmt.Errorf("%w: %v", codec.ErrDecode, err))
		}
		return &AppError{Code: f.Code, Message: f.Message}
	}

	if out != nil {
		if err := codec.Unmarshal(body, out); err != nil {
			if errors.Is(err, codec.ErrUnknownTag) || errors.Is(err, codec.ErrDecode) {
				return infra("decode result", err)
			}
			return infra("decode result", fmt.Errorf("%w: %v", codec.ErrDecode, err))
		}
	}
	return nil
}

func runCode(ctx context.Context, code Code, env *Env, payload []byte) (reply []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return code.Call(ctx, env, payload)
}
