package hostfunc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Bindings exposes b to script engines as a Registry. Binary values
// cross the boundary as strings for keys, values and bodies, and as hex
// for key material, signatures and VRF output.
func Bindings(b Bridge) *Registry {
	r := NewRegistry()

	r.Register("http_get", func(ctx context.Context, args map[string]any) (any, error) {
		url, err := stringArg(args, "url")
		if err != nil {
			return nil, err
		}
		return responseMap(b.HTTPGet(ctx, url, headersArg(args)...)), nil
	})

	r.Register("http_post", func(ctx context.Context, args map[string]any) (any, error) {
		url, err := stringArg(args, "url")
		if err != nil {
			return nil, err
		}
		body, _ := args["body"].(string)
		return responseMap(b.HTTPPost(ctx, url, []byte(body), headersArg(args)...)), nil
	})

	r.Register("log", func(ctx context.Context, args map[string]any) (any, error) {
		msg, _ := args["message"].(string)
		level, ok := intArg(args, "level")
		if !ok {
			level = int(LevelInfo)
		}
		b.Log(Level(level), msg)
		return nil, nil
	})

	r.Register("cache_get", func(ctx context.Context, args map[string]any) (any, error) {
		key, err := stringArg(args, "key")
		if err != nil {
			return nil, err
		}
		val, ok := b.CacheGet(ctx, []byte(key))
		if !ok {
			return args["default"], nil
		}
		return string(val), nil
	})

	r.Register("cache_set", func(ctx context.Context, args map[string]any) (any, error) {
		key, err := stringArg(args, "key")
		if err != nil {
			return nil, err
		}
		val, ok := args["value"].(string)
		if !ok {
			return nil, errors.New("value required")
		}
		if err := b.CacheSet(ctx, []byte(key), []byte(val)); err != nil {
			return nil, err
		}
		if ttl, ok := intArg(args, "ttl"); ok && ttl > 0 {
			if err := b.CacheSetExpiration(ctx, []byte(key), time.Duration(ttl)*time.Second); err != nil {
				return nil, err
			}
		}
		return "ok", nil
	})

	r.Register("cache_remove", func(ctx context.Context, args map[string]any) (any, error) {
		key, err := stringArg(args, "key")
		if err != nil {
			return nil, err
		}
		val, ok := b.CacheRemove(ctx, []byte(key))
		if !ok {
			return nil, nil
		}
		return string(val), nil
	})

	r.Register("vrf", func(ctx context.Context, args map[string]any) (any, error) {
		salt, _ := args["salt"].(string)
		_, out := b.VRF([]byte(salt))
		return hex.EncodeToString(out), nil
	})

	r.Register("is_in_transaction", func(ctx context.Context, args map[string]any) (any, error) {
		return b.IsInTransaction(), nil
	})

	r.Register("derive_key", func(ctx context.Context, args map[string]any) (any, error) {
		seed, err := stringArg(args, "seed")
		if err != nil {
			return nil, err
		}
		priv, err := b.DeriveKey([]byte(seed), schemeArg(args))
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(priv), nil
	})

	r.Register("public_key", func(ctx context.Context, args map[string]any) (any, error) {
		priv, err := hexArg(args, "key")
		if err != nil {
			return nil, err
		}
		pub, err := b.PublicKey(priv, schemeArg(args))
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(pub), nil
	})

	r.Register("sign", func(ctx context.Context, args map[string]any) (any, error) {
		priv, err := hexArg(args, "key")
		if err != nil {
			return nil, err
		}
		msg, _ := args["message"].(string)
		sig, err := b.Sign([]byte(msg), priv, schemeArg(args))
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(sig), nil
	})

	r.Register("verify", func(ctx context.Context, args map[string]any) (any, error) {
		pub, err := hexArg(args, "key")
		if err != nil {
			return false, nil
		}
		sig, err := hexArg(args, "signature")
		if err != nil {
			return false, nil
		}
		msg, _ := args["message"].(string)
		return b.Verify([]byte(msg), pub, sig, schemeArg(args)), nil
	})

	return r
}

func responseMap(resp HTTPResponse) map[string]any {
	headers := make(map[string]any, len(resp.Headers))
	for _, h := range resp.Headers {
		if _, seen := headers[h.Name]; !seen {
			headers[h.Name] = h.Value
		}
	}
	return map[string]any{
		"status":  resp.StatusCode,
		"body":    string(resp.Body),
		"headers": headers,
	}
}

// headersArg accepts a name to value object. Names are sorted so the
// outgoing order is deterministic.
func headersArg(args map[string]any) []Header {
	raw, ok := args["headers"].(map[string]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Header, 0, len(names))
	for _, name := range names {
		if v, ok := raw[name].(string); ok {
			out = append(out, Header{Name: name, Value: v})
		}
	}
	return out
}

func stringArg(args map[string]any, name string) (string, error) {
	s, ok := args[name].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s required", name)
	}
	return s, nil
}

func hexArg(args map[string]any, name string) ([]byte, error) {
	s, err := stringArg(args, name)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid hex", name)
	}
	return b, nil
}

func intArg(args map[string]any, name string) (int, bool) {
	switch v := args[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func schemeArg(args map[string]any) Scheme {
	if s, ok := args["scheme"].(string); ok && s != "" {
		return Scheme(s)
	}
	return Ed25519
}
