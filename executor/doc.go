// Package executor runs module invocations and delegate calls.
//
// # Overview
//
// A [Host] holds deployed [Code] by address, the committed storage of
// every address and the current driver registry. Each top-level
// invocation gets a fresh [Env]: the caller identity, a storage overlay,
// a capability bridge view and the registry snapshot taken at start.
//
//	host := executor.New(bridgeHost)
//	host.Deploy(addr, executor.NewDispatcher("counter").
//	    Handle(incSelector, inc))
//	host.SetRegistry(reg)
//
//	var n uint64
//	err := host.Transact(ctx, addr, executor.NewCall(incSelector), &n)
//
// # Delegate calls
//
// [Env.InvokeDriver] resolves a driver by name and runs its code as a
// delegate: same caller, same storage, same bridge. Wire format is the
// codec call payload and reply.
//
// # Failures
//
// Errors come in two tiers. An [*AppError] is the delegate's own
// failure, returned as a value. An [*InfraError] (no code at the
// address, codec mismatch, depth limit, panic, timeout) aborts the
// whole invocation: [Host.Run] returns it and discards storage writes
// even if the module ignored it. A missing driver name is neither; it
// returns [ErrUnavailable] so callers can degrade. Calls marked
// BestEffort never abort.
package executor
