// Package bench measures the cost of crossing the bridge: wire encoding,
// delegate dispatch, script evaluation and WASM calls.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"testing"
	"time"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/config"
	"github.com/caffeineduck/hostbridge/driver/jsdelegate"
	"github.com/caffeineduck/hostbridge/driver/luadelegate"
	"github.com/caffeineduck/hostbridge/driver/tagstack"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/registry"
	"github.com/caffeineduck/hostbridge/scripteval"
	"github.com/caffeineduck/hostbridge/stack"
)

var caller = registry.AddressFor("bench")

// answerWasm exports run() -> i32 returning 42.
var answerWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 'r', 'u', 'n', 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b,
}

func newStack(tb testing.TB) *stack.Stack {
	tb.Helper()
	s, err := stack.New(context.Background(), config.Default(), io.Discard)
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { s.Close() })
	return s
}

func query(s *stack.Stack, fn func(ctx context.Context, env *executor.Env) error) error {
	return s.Host.Run(context.Background(), caller, executor.ModeQuery, fn)
}

func evalWith(s *stack.Stack, driver, script string) error {
	return query(s, func(ctx context.Context, env *executor.Env) error {
		_, err := scripteval.EvalWith(ctx, env, driver, script, []string{"x"})
		return err
	})
}

// --- Wire codec ---

func BenchmarkCodec_EncodeCall(b *testing.B) {
	for i := 0; i < b.N; i++ {
		codec.EncodeCall(scripteval.Selector, `"ok"`, []string{"a", "b"})
	}
}

func BenchmarkCodec_DecodeCall(b *testing.B) {
	payload, err := codec.EncodeCall(scripteval.Selector, `"ok"`, []string{"a", "b"})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var script string
		var args []string
		_, data, _ := codec.DecodeCall(payload)
		codec.DecodeArgs(data, &script, &args)
	}
}

// --- Delegate dispatch ---

func BenchmarkInvoke_Empty(b *testing.B) {
	s := newStack(b)
	for i := 0; i < b.N; i++ {
		query(s, func(ctx context.Context, env *executor.Env) error { return nil })
	}
}

func BenchmarkInvoke_TagStack(b *testing.B) {
	s := newStack(b)
	for i := 0; i < b.N; i++ {
		query(s, func(ctx context.Context, env *executor.Env) error {
			var depth uint32
			if err := env.InvokeDriver(ctx, tagstack.Name, executor.NewCall(tagstack.SelPush, "bench"), &depth); err != nil {
				return err
			}
			var top codec.Value
			return env.InvokeDriver(ctx, tagstack.Name, executor.NewCall(tagstack.SelPop), &top)
		})
	}
}

// --- Script drivers ---

func BenchmarkScript_JS(b *testing.B) {
	s := newStack(b)
	for i := 0; i < b.N; i++ {
		evalWith(s, jsdelegate.Name, `scriptArgs[0] + "!"`)
	}
}

func BenchmarkScript_JS_HostFunction(b *testing.B) {
	s := newStack(b)
	for i := 0; i < b.N; i++ {
		evalWith(s, jsdelegate.Name, `host.cache_set({key: "k", value: "v"}); host.cache_get({key: "k"})`)
	}
}

func BenchmarkScript_Lua(b *testing.B) {
	s := newStack(b)
	for i := 0; i < b.N; i++ {
		evalWith(s, luadelegate.Name, `return scriptArgs[1] .. "!"`)
	}
}

func BenchmarkScript_Lua_Computation(b *testing.B) {
	s := newStack(b)
	for i := 0; i < b.N; i++ {
		evalWith(s, luadelegate.Name, `local n = 0 for i = 1, 1000 do n = n + i end return n`)
	}
}

// --- WASM sandbox ---

func BenchmarkWasm_Cached(b *testing.B) {
	s := newStack(b)
	run := func() {
		query(s, func(ctx context.Context, env *executor.Env) error {
			_, err := s.Sandbox.Call(ctx, env, answerWasm, "run")
			return err
		})
	}
	run()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		run()
	}
}

func TestComparison(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping comparison in short mode")
	}

	fmt.Println()
	fmt.Println("hostbridge invocation cost")
	fmt.Printf("Platform: %s/%s, CPUs: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Println()

	measure := func(runs int, fn func() error) time.Duration {
		var total time.Duration
		for i := 0; i < runs; i++ {
			start := time.Now()
			if err := fn(); err != nil {
				t.Fatal(err)
			}
			total += time.Since(start)
		}
		return total / time.Duration(runs)
	}

	s := newStack(t)
	runs := 5

	rows := []struct {
		name string
		fn   func() error
	}{
		{"empty invocation", func() error {
			return query(s, func(ctx context.Context, env *executor.Env) error { return nil })
		}},
		{"js eval", func() error { return evalWith(s, jsdelegate.Name, `"ok"`) }},
		{"lua eval", func() error { return evalWith(s, luadelegate.Name, `return "ok"`) }},
		{"wasm call", func() error {
			return query(s, func(ctx context.Context, env *executor.Env) error {
				_, err := s.Sandbox.Call(ctx, env, answerWasm, "run")
				return err
			})
		}},
	}

	fmt.Printf("%-20s %12s %12s\n", "PATH", "FIRST", "WARM")
	for _, row := range rows {
		first := measure(1, row.fn)
		warm := measure(runs, row.fn)
		fmt.Printf("%-20s %12s %12s\n", row.name, formatDuration(first), formatDuration(warm))
	}
	fmt.Println()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d.Nanoseconds())/1000)
	default:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
}
