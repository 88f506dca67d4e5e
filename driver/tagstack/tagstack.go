// Package tagstack is the TagStack driver: a LIFO list of log tags kept
// in the storage of whichever module calls it.
package tagstack

import (
	"context"
	"fmt"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/registry"
)

// Name is the registry name the logging package resolves.
const Name = "TagStack"

var (
	SelPush = codec.SelectorFor("TagStack::push_tag")
	SelPop  = codec.SelectorFor("TagStack::pop_tag")
	SelTags = codec.SelectorFor("TagStack::tags")
)

// Address is where the builtin TagStack driver is deployed.
var Address = registry.AddressFor(Name)

var storageKey = []byte("hostbridge/tagstack")

// New returns the driver code.
//
//	push_tag(tag string) -> depth uint32
//	pop_tag() -> Value (String of the removed tag, Undefined if empty)
//	tags() -> []string
func New() *executor.Dispatcher {
	return executor.NewDispatcher(Name).
		Handle(SelPush, push).
		Handle(SelPop, pop).
		Handle(SelTags, tags)
}

func push(ctx context.Context, env *executor.Env, args []byte) (any, error) {
	var tag string
	if err := codec.DecodeArgs(args, &tag); err != nil {
		return nil, err
	}
	stack, err := load(env.Storage())
	if err != nil {
		return nil, err
	}
	stack = append(stack, tag)
	if err := save(env.Storage(), stack); err != nil {
		return nil, err
	}
	return uint32(len(stack)), nil
}

func pop(ctx context.Context, env *executor.Env, args []byte) (any, error) {
	if err := codec.DecodeArgs(args); err != nil {
		return nil, err
	}
	stack, err := load(env.Storage())
	if err != nil {
		return nil, err
	}
	if len(stack) == 0 {
		return codec.Undefined(), nil
	}
	top := stack[len(stack)-1]
	if err := save(env.Storage(), stack[:len(stack)-1]); err != nil {
		return nil, err
	}
	return codec.String(top), nil
}

func tags(ctx context.Context, env *executor.Env, args []byte) (any, error) {
	if err := codec.DecodeArgs(args); err != nil {
		return nil, err
	}
	stack, err := load(env.Storage())
	if err != nil {
		return nil, err
	}
	if stack == nil {
		stack = []string{}
	}
	return stack, nil
}

// load returns nil when the stack was never materialized.
func load(s executor.Storage) ([]string, error) {
	raw, ok := s.Get(storageKey)
	if !ok {
		return nil, nil
	}
	var stack []string
	if err := codec.Unmarshal(raw, &stack); err != nil {
		return nil, fmt.Errorf("tag stack storage: %w", err)
	}
	return stack, nil
}

func save(s executor.Storage, stack []string) error {
	if stack == nil {
		stack = []string{}
	}
	raw, err := codec.Marshal(stack)
	if err != nil {
		return fmt.Errorf("tag stack storage: %w", err)
	}
	s.Set(storageKey, raw)
	return nil
}
