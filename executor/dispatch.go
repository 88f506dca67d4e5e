package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/caffeineduck/hostbridge/codec"
)

// Code is a deployed module. payload is a codec call payload; the result
// must be a codec reply. Returning an error is an infrastructure failure.
type Code interface {
	Call(ctx context.Context, env *Env, payload []byte) ([]byte, error)
}

// CodeFunc adapts a function to Code.
type CodeFunc func(ctx context.Context, env *Env, payload []byte) ([]byte, error)

func (f CodeFunc) Call(ctx context.Context, env *Env, payload []byte) ([]byte, error) {
	return f(ctx, env, payload)
}

// Handler serves one selector. args is the encoded argument array.
// Returning an *AppError produces a failure reply; any other error is
// an infrastructure failure.
type Handler func(ctx context.Context, env *Env, args []byte) (any, error)

// Dispatcher is Code that routes calls to handlers by selector.
type Dispatcher struct {
	name     string
	handlers map[codec.Selector]Handler
}

func NewDispatcher(name string) *Dispatcher {
	return &Dispatcher{name: name, handlers: make(map[codec.Selector]Handler)}
}

func (d *Dispatcher) Name() string { return d.name }

// Handle registers h for sel, replacing any previous handler.
func (d *Dispatcher) Handle(sel codec.Selector, h Handler) *Dispatcher {
	d.handlers[sel] = h
	return d
}

func (d *Dispatcher) Call(ctx context.Context, env *Env, payload []byte) ([]byte, error) {
	sel, args, err := codec.DecodeCall(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.name, err)
	}

	h, ok := d.handlers[sel]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", d.name, ErrUnknownSelector, sel)
	}

	result, err := h(ctx, env, args)
	var app *AppError
	if errors.As(err, &app) {
		return codec.EncodeReply(codec.StatusFailure, codec.Failure{Code: app.Code, Message: app.Message})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.name, err)
	}
	return codec.EncodeReply(codec.StatusOK, result)
}
