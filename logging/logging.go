// Package logging emits module log lines through the capability bridge,
// prefixed with the caller's current tag stack.
//
// Tags are pushed with [Enter] and popped when the returned [Span] is
// released, typically with defer:
//
//	span := logging.Enter(ctx, env, "settle")
//	defer span.Release(ctx)
//	logging.Info(ctx, env, "paid %d", amount) // "[settle]: paid 10"
//
// Everything here is best-effort. Inside a transaction, or when no
// TagStack driver is registered, spans are inert and lines carry no
// prefix. Logging never aborts the invocation.
package logging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/driver/tagstack"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/hostfunc"
)

// ErrOutOfOrder is returned by Span.Release when the span is not the
// innermost live span. Nothing is popped in that case.
var ErrOutOfOrder = errors.New("span released out of order")

// Span is a guard for one pushed tag.
type Span struct {
	env      *executor.Env
	tag      string
	depth    int
	active   bool
	released bool
}

// Enter pushes tag onto the caller's tag stack. The span is inert when
// env is in a transaction or the driver is unavailable.
func Enter(ctx context.Context, env *executor.Env, tag string) *Span {
	s := &Span{env: env, tag: tag}
	if env.IsInTransaction() {
		return s
	}

	var depth uint32
	if err := env.InvokeDriver(ctx, tagstack.Name, bestEffort(tagstack.SelPush, tag), &depth); err != nil {
		env.Logger().WithError(err).Debug("tag push skipped")
		return s
	}
	s.depth = int(depth)
	s.active = true
	return s
}

// Active reports whether the span pushed a tag that is still on the stack.
func (s *Span) Active() bool { return s.active && !s.released }

func (s *Span) Tag() string { return s.tag }

// Release pops the span's tag. It checks that the span is the innermost
// one first; releasing out of order returns ErrOutOfOrder and leaves the
// stack alone. Releasing twice, or releasing an inert span, is a no-op.
func (s *Span) Release(ctx context.Context) error {
	if !s.Active() {
		return nil
	}

	current, err := fetchTags(ctx, s.env)
	if err != nil {
		s.released = true
		return nil
	}
	if len(current) != s.depth || current[len(current)-1] != s.tag {
		return fmt.Errorf("%w: %q at depth %d, stack %v", ErrOutOfOrder, s.tag, s.depth, current)
	}

	s.released = true
	var popped codec.Value
	if err := s.env.InvokeDriver(ctx, tagstack.Name, bestEffort(tagstack.SelPop), &popped); err != nil {
		s.env.Logger().WithError(err).Debug("tag pop failed")
	}
	return nil
}

// Tags returns the caller's current tags, outermost first. It returns
// nil in a transaction or when the driver is unavailable.
func Tags(ctx context.Context, env *executor.Env) []string {
	if env.IsInTransaction() {
		return nil
	}
	tags, err := fetchTags(ctx, env)
	if err != nil {
		return nil
	}
	return tags
}

// Prefix renders tags as "[a,b]: ", or "" for no tags.
func Prefix(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "[" + strings.Join(tags, ",") + "]: "
}

// Log formats a message, prefixes the current tags and emits it.
func Log(ctx context.Context, env *executor.Env, level hostfunc.Level, format string, args ...any) {
	env.Bridge().Log(level, Prefix(Tags(ctx, env))+fmt.Sprintf(format, args...))
}

func Error(ctx context.Context, env *executor.Env, format string, args ...any) {
	Log(ctx, env, hostfunc.LevelError, format, args...)
}

func Warn(ctx context.Context, env *executor.Env, format string, args ...any) {
	Log(ctx, env, hostfunc.LevelWarn, format, args...)
}

func Info(ctx context.Context, env *executor.Env, format string, args ...any) {
	Log(ctx, env, hostfunc.LevelInfo, format, args...)
}

func Debug(ctx context.Context, env *executor.Env, format string, args ...any) {
	Log(ctx, env, hostfunc.LevelDebug, format, args...)
}

// LogErr logs err at error level as "msg: err" and returns it unchanged,
// so it can wrap a return statement. A nil err logs nothing.
func LogErr(ctx context.Context, env *executor.Env, err error, msg string) error {
	if err != nil {
		Error(ctx, env, "%s: %v", msg, err)
	}
	return err
}

func fetchTags(ctx context.Context, env *executor.Env) ([]string, error) {
	var tags []string
	if err := env.InvokeDriver(ctx, tagstack.Name, bestEffort(tagstack.SelTags), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func bestEffort(sel codec.Selector, args ...any) executor.Call {
	call := executor.NewCall(sel, args...)
	call.BestEffort = true
	return call
}
