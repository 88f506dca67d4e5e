package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var ErrUnknownFunc = errors.New("unknown host function")

// Func is a capability binding as script engines see it. args is the
// single object the script passed, decoded into plain Go values: strings,
// float64 or int64 numbers, bools, nested map[string]any and []any.
// Binary data crosses as strings (raw for cache keys and values, hex for
// key material and signatures). The result must be built from the same
// set of types so each engine can convert it back. An error surfaces in
// the script as a catchable exception.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry holds the bindings one script run exposes, keyed by the name
// the script calls them under.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds fn to name, replacing any earlier binding.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// List returns the bound names, sorted so engines install them in a
// stable order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunc, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return fn(ctx, args)
}
