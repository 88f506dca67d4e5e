// Package hostfunc implements the capability bridge: the host services a
// sandboxed module may call.
//
// # Overview
//
// A module has no implicit access to the network, keys, randomness or
// shared memory. Each capability is reached through a [Bridge] view that
// a [Host] hands out per caller and per invocation:
//
//	host, _ := hostfunc.NewHost(hostfunc.Config{
//	    HTTP: hostfunc.HTTPConfig{AllowedHosts: []string{"api.example.com"}},
//	})
//	b := host.Bridge(caller, invocationID, true)
//	resp := b.HTTPGet(ctx, "https://api.example.com/price")
//
// # Capabilities
//
// HTTP: outbound requests via [HTTP]. Requests never fail with an error;
// a transport failure is status 523, a timeout 524, a denied host 403 and
// a rate-limited caller 429.
//
// Keys: [Keys] derives deterministic key material with HKDF-SHA256.
// [Sign], [Verify] and [PublicKey] support ed25519, ecdsa-p256 and
// dilithium3.
//
// Randomness: [VRF] gives each caller keyed BLAKE3 output for a salt.
//
// Cache: ephemeral bytes through a [Cache] backend ([MemoryCache] or
// [RedisCache]), namespaced by caller address.
//
// Logging: module log lines go to a logrus logger via [LogSink] with the
// caller and invocation attached.
//
// # Script bindings
//
// [Bindings] wraps a Bridge as a [Registry] of named [Func] values so
// script engines can expose it to the code they run.
package hostfunc
