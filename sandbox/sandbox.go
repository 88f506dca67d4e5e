// Package sandbox runs WebAssembly guests against the capability bridge.
//
// Guests import host functions from the "ext" module:
//
//	log(level, ptr, len i32)
//	is_in_transaction() -> i32
//	cache_set(key_ptr, key_len, val_ptr, val_len i32) -> i32   0 ok, 1 error
//	cache_get(key_ptr, key_len, out_ptr, out_cap i32) -> i32   value length, -1 if absent
//
// No WASI is provided, so guests have no clock, randomness or files
// beyond what the bridge offers.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/zeebo/blake3"

	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/hostfunc"
)

// HostModule is the import module name guests link against.
const HostModule = "ext"

var (
	ErrClosed       = errors.New("sandbox: runtime closed")
	ErrNoExport     = errors.New("sandbox: export not found")
	ErrBadSignature = errors.New("sandbox: export must have signature () -> i32")
	ErrTrap         = errors.New("sandbox: guest trapped")
)

// Runtime compiles and runs guests. Compiled modules are cached by
// content hash, so running the same bytes twice compiles once.
type Runtime struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[[32]byte]wazero.CompiledModule
	mu       sync.RWMutex
	closed   bool
}

type envKey struct{}

func withEnv(ctx context.Context, env *executor.Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

func envFrom(ctx context.Context) *executor.Env {
	env, _ := ctx.Value(envKey{}).(*executor.Env)
	return env
}

// New creates a Runtime with the ext host module instantiated.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	cfg := defaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		dir := cfg.cacheDir
		if dir == "" {
			dir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if err := instantiateHost(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate %s: %w", HostModule, err)
	}

	return &Runtime{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[[32]byte]wazero.CompiledModule),
	}, nil
}

func instantiateHost(ctx context.Context, rt wazero.Runtime) error {
	_, err := rt.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().WithFunc(hostLog).Export("log").
		NewFunctionBuilder().WithFunc(hostIsInTransaction).Export("is_in_transaction").
		NewFunctionBuilder().WithFunc(hostCacheSet).Export("cache_set").
		NewFunctionBuilder().WithFunc(hostCacheGet).Export("cache_get").
		Instantiate(ctx)
	return err
}

func hostLog(ctx context.Context, m api.Module, level, ptr, size uint32) {
	env := envFrom(ctx)
	if env == nil {
		return
	}
	msg, ok := m.Memory().Read(ptr, size)
	if !ok {
		return
	}
	env.Bridge().Log(hostfunc.Level(int32(level)), string(msg))
}

func hostIsInTransaction(ctx context.Context) uint32 {
	if env := envFrom(ctx); env != nil && env.IsInTransaction() {
		return 1
	}
	return 0
}

func hostCacheSet(ctx context.Context, m api.Module, keyPtr, keyLen, valPtr, valLen uint32) uint32 {
	env := envFrom(ctx)
	if env == nil {
		return 1
	}
	key, ok := m.Memory().Read(keyPtr, keyLen)
	if !ok {
		return 1
	}
	val, ok := m.Memory().Read(valPtr, valLen)
	if !ok {
		return 1
	}
	if err := env.Bridge().CacheSet(ctx, clone(key), clone(val)); err != nil {
		return 1
	}
	return 0
}

func hostCacheGet(ctx context.Context, m api.Module, keyPtr, keyLen, outPtr, outCap uint32) int32 {
	env := envFrom(ctx)
	if env == nil {
		return -1
	}
	key, ok := m.Memory().Read(keyPtr, keyLen)
	if !ok {
		return -1
	}
	val, found := env.Bridge().CacheGet(ctx, clone(key))
	if !found {
		return -1
	}
	n := uint32(len(val))
	if n > outCap {
		n = outCap
	}
	if !m.Memory().Write(outPtr, val[:n]) {
		return -1
	}
	return int32(len(val))
}

// Memory views alias guest memory and must not outlive the call.
func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// Call instantiates wasm as an anonymous module bound to env and calls
// its export, which must take no arguments and return one i32.
func (r *Runtime) Call(ctx context.Context, env *executor.Env, wasm []byte, export string) (int32, error) {
	compiled, err := r.compile(ctx, wasm)
	if err != nil {
		return 0, err
	}

	fn, ok := compiled.ExportedFunctions()[export]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoExport, export)
	}
	if len(fn.ParamTypes()) != 0 || len(fn.ResultTypes()) != 1 || fn.ResultTypes()[0] != api.ValueTypeI32 {
		return 0, fmt.Errorf("%w: %s", ErrBadSignature, export)
	}

	ctx = withEnv(ctx, env)
	mod, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return 0, r.callError(ctx, "instantiate", err)
	}
	defer mod.Close(ctx)

	results, err := mod.ExportedFunction(export).Call(ctx)
	if err != nil {
		return 0, r.callError(ctx, export, err)
	}
	return api.DecodeI32(results[0]), nil
}

func (r *Runtime) callError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w: %v", op, executor.ErrTimeout, ctxErr)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTrap, err)
}

// compile returns the cached compiled module for wasm.
func (r *Runtime) compile(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	sum := blake3.Sum256(wasm)

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrClosed
	}
	if compiled, ok := r.compiled[sum]; ok {
		r.mu.RUnlock()
		return compiled, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if compiled, ok := r.compiled[sum]; ok {
		return compiled, nil
	}

	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	r.compiled[sum] = compiled
	return compiled, nil
}

// Cached returns the number of compiled modules held.
func (r *Runtime) Cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.compiled)
}

// Close releases all resources held by the Runtime.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	ctx := context.Background()

	var errs []error
	if err := r.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
