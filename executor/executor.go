package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/caffeineduck/hostbridge/hostfunc"
	"github.com/caffeineduck/hostbridge/metrics"
	"github.com/caffeineduck/hostbridge/registry"
)

// Mode selects how an invocation treats storage.
type Mode int

const (
	// ModeQuery runs read-only: IsInTransaction is false and storage
	// writes are discarded.
	ModeQuery Mode = iota
	// ModeTransaction commits storage writes if the invocation succeeds.
	ModeTransaction
)

func (m Mode) String() string {
	if m == ModeTransaction {
		return "transact"
	}
	return "query"
}

// Host runs invocations against deployed modules. It owns deployed code,
// committed storage per address and the current driver registry.
type Host struct {
	bridge  *hostfunc.Host
	cfg     hostConfig
	metrics *metrics.Collector
	logger  *logrus.Logger

	mu    sync.RWMutex
	code  map[registry.Address]Code
	state map[registry.Address]*store

	registry atomic.Pointer[registry.Registry]

	// Transactions are applied one at a time.
	txMu sync.Mutex
}

// New creates a Host backed by the given capability host.
func New(bridge *hostfunc.Host, opts ...Option) *Host {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Host{
		bridge:  bridge,
		cfg:     cfg,
		metrics: cfg.metrics,
		logger:  bridge.Logger(),
		code:    make(map[registry.Address]Code),
		state:   make(map[registry.Address]*store),
	}
	h.registry.Store(registry.Empty())
	return h
}

// Deploy installs code at addr, replacing whatever was there. Storage at
// addr is kept.
func (h *Host) Deploy(addr registry.Address, code Code) {
	h.mu.Lock()
	h.code[addr] = code
	h.mu.Unlock()
}

// Undeploy removes the code at addr.
func (h *Host) Undeploy(addr registry.Address) {
	h.mu.Lock()
	delete(h.code, addr)
	h.mu.Unlock()
}

func (h *Host) codeAt(addr registry.Address) (Code, bool) {
	h.mu.RLock()
	c, ok := h.code[addr]
	h.mu.RUnlock()
	return c, ok
}

// SetRegistry installs r for invocations that start after this call.
// Running invocations keep the snapshot they started with.
func (h *Host) SetRegistry(r *registry.Registry) {
	if r == nil {
		r = registry.Empty()
	}
	h.registry.Store(r)
}

func (h *Host) Registry() *registry.Registry { return h.registry.Load() }

// StorageValue reads committed storage of addr.
func (h *Host) StorageValue(addr registry.Address, key []byte) ([]byte, bool) {
	return h.storeFor(addr).get(string(key))
}

// StorageKeys lists committed storage keys of addr in sorted order.
func (h *Host) StorageKeys(addr registry.Address) []string {
	return h.storeFor(addr).keys()
}

func (h *Host) storeFor(addr registry.Address) *store {
	h.mu.RLock()
	s, ok := h.state[addr]
	h.mu.RUnlock()
	if ok {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.state[addr]; ok {
		return s
	}
	s = newStore()
	h.state[addr] = s
	return s
}

// Query invokes the module at target without committing anything.
func (h *Host) Query(ctx context.Context, target registry.Address, call Call, out any) error {
	return h.Run(ctx, target, ModeQuery, func(ctx context.Context, env *Env) error {
		return env.Invoke(ctx, target, call, out)
	})
}

// Transact invokes the module at target and commits its storage writes
// when the call succeeds.
func (h *Host) Transact(ctx context.Context, target registry.Address, call Call, out any) error {
	return h.Run(ctx, target, ModeTransaction, func(ctx context.Context, env *Env) error {
		return env.Invoke(ctx, target, call, out)
	})
}

// Run executes fn as caller in a fresh invocation. Storage writes are
// committed only in ModeTransaction when fn returns nil and no
// infrastructure failure was recorded. A recorded failure is returned
// even if fn swallowed it.
func (h *Host) Run(ctx context.Context, caller registry.Address, mode Mode, fn func(ctx context.Context, env *Env) error) error {
	start := time.Now()

	if h.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.timeout)
		defer cancel()
	}

	if mode == ModeTransaction {
		h.txMu.Lock()
		defer h.txMu.Unlock()
	}

	id := uuid.NewString()
	log := h.logger.WithField("invocation", id).
		WithField("caller", caller.String()).
		WithField("mode", mode.String())

	ov := newOverlay(h.storeFor(caller))
	env := &Env{
		host:     h,
		caller:   caller,
		id:       id,
		storage:  ov,
		bridge:   h.bridge.Bridge(caller, id, mode == ModeTransaction),
		registry: h.registry.Load(),
		inv:      &invocation{log: log},
	}

	err := runFn(ctx, env, fn)

	if abort := env.Aborted(); abort != nil {
		err = abort
	}
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = infra("invoke", fmt.Errorf("%w after %v", ErrTimeout, h.cfg.timeout))
	}

	outcome := "ok"
	switch {
	case err == nil:
		if mode == ModeTransaction && ov.dirty() {
			ov.commit()
		}
	case IsInfra(err):
		outcome = "aborted"
	default:
		outcome = "failed"
	}

	elapsed := time.Since(start)
	h.metrics.Invocation(mode.String(), outcome, elapsed)
	log.WithField("outcome", outcome).
		WithField("duration", elapsed).
		Debug("invocation finished")

	return err
}

func runFn(ctx context.Context, env *Env, fn func(context.Context, *Env) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = infra("run", fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	return fn(ctx, env)
}
