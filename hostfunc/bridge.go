package hostfunc

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/caffeineduck/hostbridge/metrics"
	"github.com/caffeineduck/hostbridge/registry"
)

// Bridge is the set of host capabilities a module may call. A Bridge is
// bound to one caller and one invocation; obtain it from Host.Bridge.
type Bridge interface {
	Caller() registry.Address

	HTTPRequest(ctx context.Context, req HTTPRequest) HTTPResponse
	HTTPGet(ctx context.Context, url string, headers ...Header) HTTPResponse
	HTTPPost(ctx context.Context, url string, body []byte, headers ...Header) HTTPResponse

	DeriveKey(seed []byte, scheme Scheme) ([]byte, error)
	PublicKey(priv []byte, scheme Scheme) ([]byte, error)
	Sign(message, priv []byte, scheme Scheme) ([]byte, error)
	Verify(message, pub, sig []byte, scheme Scheme) bool

	VRF(salt []byte) (saltEcho, output []byte)

	CacheGet(ctx context.Context, key []byte) ([]byte, bool)
	CacheSet(ctx context.Context, key, value []byte) error
	CacheSetExpiration(ctx context.Context, key []byte, ttl time.Duration) error
	CacheRemove(ctx context.Context, key []byte) ([]byte, bool)

	Log(level Level, message string)
	IsInTransaction() bool
}

// Config assembles a Host. Zero values pick defaults: in-memory cache,
// random VRF key, the logrus standard logger, no metrics.
type Config struct {
	HTTP    HTTPConfig
	Cache   Cache
	KeySalt []byte
	VRFKey  []byte
	Logger  *logrus.Logger
	Metrics *metrics.Collector
}

// Host owns the shared capability backends.
type Host struct {
	http    *HTTP
	keys    *Keys
	vrf     *VRF
	cache   Cache
	sink    *LogSink
	metrics *metrics.Collector
}

func NewHost(cfg Config) (*Host, error) {
	vrf, err := NewVRF(cfg.VRFKey)
	if err != nil {
		return nil, err
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Host{
		http:    NewHTTP(cfg.HTTP),
		keys:    NewKeys(cfg.KeySalt),
		vrf:     vrf,
		cache:   cache,
		sink:    NewLogSink(cfg.Logger),
		metrics: cfg.Metrics,
	}, nil
}

// Logger returns the logger module log lines are written to.
func (h *Host) Logger() *logrus.Logger { return h.sink.Logger() }

// Bridge returns the capability view for caller within one invocation.
func (h *Host) Bridge(caller registry.Address, invocation string, inTransaction bool) Bridge {
	return &view{
		host:       h,
		caller:     caller,
		namespace:  hex.EncodeToString(caller[:]),
		invocation: invocation,
		inTx:       inTransaction,
	}
}

type view struct {
	host       *Host
	caller     registry.Address
	namespace  string
	invocation string
	inTx       bool
}

func (v *view) Caller() registry.Address { return v.caller }

func (v *view) IsInTransaction() bool { return v.inTx }

func (v *view) HTTPRequest(ctx context.Context, req HTTPRequest) HTTPResponse {
	resp := v.host.http.Do(ctx, v.namespace, req)
	v.host.metrics.CapabilityCall("http", strconv.Itoa(resp.StatusCode/100)+"xx")
	return resp
}

func (v *view) HTTPGet(ctx context.Context, url string, headers ...Header) HTTPResponse {
	return v.HTTPRequest(ctx, HTTPRequest{Method: http.MethodGet, URL: url, Headers: headers})
}

func (v *view) HTTPPost(ctx context.Context, url string, body []byte, headers ...Header) HTTPResponse {
	return v.HTTPRequest(ctx, HTTPRequest{Method: http.MethodPost, URL: url, Headers: headers, Body: body})
}

func (v *view) DeriveKey(seed []byte, scheme Scheme) ([]byte, error) {
	pair, err := v.host.keys.Derive(seed, scheme)
	v.observe("derive_key", err)
	if err != nil {
		return nil, err
	}
	return pair.Private, nil
}

func (v *view) PublicKey(priv []byte, scheme Scheme) ([]byte, error) {
	pub, err := PublicKey(priv, scheme)
	v.observe("public_key", err)
	return pub, err
}

func (v *view) Sign(message, priv []byte, scheme Scheme) ([]byte, error) {
	sig, err := Sign(message, priv, scheme)
	v.observe("sign", err)
	return sig, err
}

func (v *view) Verify(message, pub, sig []byte, scheme Scheme) bool {
	ok := Verify(message, pub, sig, scheme)
	v.host.metrics.CapabilityCall("verify", strconv.FormatBool(ok))
	return ok
}

func (v *view) VRF(salt []byte) ([]byte, []byte) {
	v.host.metrics.CapabilityCall("vrf", "ok")
	return v.host.vrf.Evaluate(v.caller[:], salt)
}

// CacheGet reports a miss when the backend fails; the failure is logged.
func (v *view) CacheGet(ctx context.Context, key []byte) ([]byte, bool) {
	val, ok, err := v.host.cache.Get(ctx, v.namespace, key)
	v.observe("cache_get", err)
	if err != nil {
		v.warn("cache get failed", err)
		return nil, false
	}
	return val, ok
}

func (v *view) CacheSet(ctx context.Context, key, value []byte) error {
	err := v.host.cache.Set(ctx, v.namespace, key, value, 0)
	v.observe("cache_set", err)
	return err
}

func (v *view) CacheSetExpiration(ctx context.Context, key []byte, ttl time.Duration) error {
	err := v.host.cache.Expire(ctx, v.namespace, key, ttl)
	v.observe("cache_expire", err)
	return err
}

func (v *view) CacheRemove(ctx context.Context, key []byte) ([]byte, bool) {
	val, ok, err := v.host.cache.Remove(ctx, v.namespace, key)
	v.observe("cache_remove", err)
	if err != nil {
		v.warn("cache remove failed", err)
		return nil, false
	}
	return val, ok
}

func (v *view) Log(level Level, message string) {
	v.host.sink.Emit(v.caller.String(), v.invocation, level, message)
}

func (v *view) observe(capability string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	v.host.metrics.CapabilityCall(capability, outcome)
}

func (v *view) warn(msg string, err error) {
	v.host.sink.Logger().WithField("caller", v.caller.String()).
		WithField("invocation", v.invocation).
		WithError(err).
		Warn(msg)
}
