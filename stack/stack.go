// Package stack assembles a local host from configuration: capability
// bridge, invocation host, builtin drivers, driver registry and WASM
// runtime.
package stack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/caffeineduck/hostbridge/config"
	"github.com/caffeineduck/hostbridge/driver/jsdelegate"
	"github.com/caffeineduck/hostbridge/driver/luadelegate"
	"github.com/caffeineduck/hostbridge/driver/tagstack"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/hostfunc"
	"github.com/caffeineduck/hostbridge/metrics"
	"github.com/caffeineduck/hostbridge/registry"
	"github.com/caffeineduck/hostbridge/sandbox"
	"github.com/caffeineduck/hostbridge/scripteval"
)

// Stack is a fully wired local host.
type Stack struct {
	Config  config.Config
	Logger  *logrus.Logger
	Metrics *metrics.Collector
	Bridge  *hostfunc.Host
	Host    *executor.Host
	Sandbox *sandbox.Runtime

	redis *redis.Client
}

// New builds a Stack. Host logs go to logOut.
func New(ctx context.Context, cfg config.Config, logOut io.Writer) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := hostfunc.NewLogger(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	vrfKey, err := cfg.VRFKeyBytes()
	if err != nil {
		return nil, err
	}

	s := &Stack{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewCollector(""),
	}

	cache, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}

	s.Bridge, err = hostfunc.NewHost(hostfunc.Config{
		HTTP:    cfg.HTTP(),
		Cache:   cache,
		KeySalt: []byte(cfg.KeySalt),
		VRFKey:  vrfKey,
		Logger:  logger,
		Metrics: s.Metrics,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	opts := append(cfg.ExecutorOptions(), executor.WithMetrics(s.Metrics))
	s.Host = executor.New(s.Bridge, opts...)
	Deploy(s.Host)

	if err := s.Reload(); err != nil {
		s.Close()
		return nil, err
	}

	var sbOpts []sandbox.Option
	if cfg.WasmMemoryPages > 0 {
		sbOpts = append(sbOpts, sandbox.WithMemoryLimit(cfg.WasmMemoryPages))
	}
	if cfg.WasmCacheDir != "" {
		sbOpts = append(sbOpts, sandbox.WithDiskCache(cfg.WasmCacheDir))
	}
	s.Sandbox, err = sandbox.New(ctx, sbOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	logger.WithField("drivers", strings.Join(s.Host.Registry().Names(), ",")).
		WithField("cache", cfg.CacheBackend).
		Debug("host ready")
	return s, nil
}

func (s *Stack) cache(ctx context.Context) (hostfunc.Cache, error) {
	opts := s.Config.CacheOptions()
	if s.Config.CacheBackend != config.CacheRedis {
		return hostfunc.NewMemoryCache(opts...), nil
	}
	client, err := hostfunc.DialRedis(ctx, s.Config.RedisAddr, s.Config.RedisPassword, s.Config.RedisDB)
	if err != nil {
		return nil, err
	}
	s.redis = client
	return hostfunc.NewRedisCache(client, s.Config.RedisPrefix, opts...), nil
}

// Deploy installs the builtin drivers on h at their well-known addresses.
func Deploy(h *executor.Host) {
	h.Deploy(tagstack.Address, tagstack.New())
	h.Deploy(jsdelegate.Address, jsdelegate.New())
	h.Deploy(luadelegate.Address, luadelegate.New())
}

// Builtins returns the registry of builtin drivers, with ScriptEval
// pointing at the driver for lang.
func Builtins(lang string) (*registry.Registry, error) {
	b := registry.NewBuilder().
		Set(tagstack.Name, tagstack.Address).
		Set(jsdelegate.Name, jsdelegate.Address).
		Set(luadelegate.Name, luadelegate.Address)

	switch strings.ToLower(lang) {
	case "", config.LangJS:
		b.Set(scripteval.DriverName, jsdelegate.Address)
	case config.LangLua:
		b.Set(scripteval.DriverName, luadelegate.Address)
	default:
		return nil, fmt.Errorf("unknown script language %q", lang)
	}
	return b.Build()
}

// Reload rebuilds the registry from the builtins and the configured
// manifest and installs it for subsequent invocations.
func (s *Stack) Reload() error {
	reg, err := Builtins(s.Config.ScriptLang)
	if err != nil {
		return err
	}
	if s.Config.Manifest != "" {
		overlay, err := registry.LoadManifest(s.Config.Manifest)
		if err != nil {
			return err
		}
		if reg, err = registry.Merge(reg, overlay).Build(); err != nil {
			return err
		}
	}
	s.Host.SetRegistry(reg)
	return nil
}

// Close releases the WASM runtime and the Redis connection.
func (s *Stack) Close() error {
	var errs []error
	if s.Sandbox != nil {
		errs = append(errs, s.Sandbox.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}
