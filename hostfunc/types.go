package hostfunc

import (
	"strings"
)

// HTTP types

// Header is one request or response header. Order is preserved and a
// name may repeat.
type Header struct {
	Name  string `json:"name" cbor:"1,keyasint"`
	Value string `json:"value" cbor:"2,keyasint"`
}

type HTTPRequest struct {
	Method  string   `json:"method"`
	URL     string   `json:"url"`
	Headers []Header `json:"headers,omitempty"`
	Body    []byte   `json:"body,omitempty"`
}

// HTTPResponse is always returned by the bridge. Failures that never
// reached the remote host are reported through the status codes below.
type HTTPResponse struct {
	StatusCode int      `json:"status" cbor:"1,keyasint"`
	Reason     string   `json:"reason,omitempty" cbor:"2,keyasint,omitempty"`
	Headers    []Header `json:"headers,omitempty" cbor:"3,keyasint,omitempty"`
	Body       []byte   `json:"body,omitempty" cbor:"4,keyasint,omitempty"`
}

// Synthetic statuses for requests that did not produce a remote reply.
const (
	StatusInvalidRequest   = 400
	StatusHostNotAllowed   = 403
	StatusRateLimited      = 429
	StatusTransportFailure = 523
	StatusTimeout          = 524
)

// OK reports a 2xx status.
func (r HTTPResponse) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Header returns the first value of name, case-insensitively.
func (r HTTPResponse) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Signing types

// Scheme names a signature algorithm.
type Scheme string

const (
	Ed25519    Scheme = "ed25519"
	ECDSAP256  Scheme = "ecdsa-p256"
	Dilithium3 Scheme = "dilithium3"
)

// Schemes lists every supported scheme.
func Schemes() []Scheme { return []Scheme{Ed25519, ECDSAP256, Dilithium3} }

// KeyPair is derived key material for one scheme.
type KeyPair struct {
	Scheme  Scheme
	Private []byte
	Public  []byte
}

// Log levels accepted by Bridge.Log.
type Level int

const (
	LevelError Level = 1
	LevelWarn  Level = 2
	LevelInfo  Level = 3
	LevelDebug Level = 4
)

func (l Level) String() string {
	switch l.clamp() {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

func (l Level) clamp() Level {
	if l < LevelError {
		return LevelError
	}
	if l > LevelDebug {
		return LevelDebug
	}
	return l
}
