package codec

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Version is the codec version byte written in front of every payload,
// reply and standalone value. Decoders reject any other version.
const Version byte = 0x01

var (
	ErrVersion     = errors.New("codec: incompatible version")
	ErrUnknownTag  = errors.New("codec: unknown tag")
	ErrDecode      = errors.New("codec: malformed data")
	ErrArity       = errors.New("codec: argument count mismatch")
	ErrInvalidUTF8 = errors.New("codec: string is not valid UTF-8")
)

// Selector identifies an operation on a delegate.
type Selector [4]byte

// NewSelector returns the selector for a fixed big-endian identifier.
func NewSelector(id uint32) Selector {
	var s Selector
	binary.BigEndian.PutUint32(s[:], id)
	return s
}

// SelectorFor derives a selector from a message label such as
// "TagStack::push_tag" by taking the first four bytes of its
// BLAKE2b-256 digest.
func SelectorFor(label string) Selector {
	sum := blake2b.Sum256([]byte(label))
	var s Selector
	copy(s[:], sum[:4])
	return s
}

// ParseSelector accepts "0x49bfcd24" or "49bfcd24".
func ParseSelector(text string) (Selector, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(text, "0x"))
	if err != nil || len(raw) != 4 {
		return Selector{}, fmt.Errorf("invalid selector %q", text)
	}
	var s Selector
	copy(s[:], raw)
	return s, nil
}

func (s Selector) Uint32() uint32 { return binary.BigEndian.Uint32(s[:]) }

func (s Selector) String() string { return "0x" + hex.EncodeToString(s[:]) }

// EncodeArgs encodes positional arguments as a CBOR array.
func EncodeArgs(args ...any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	data, err := encMode.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	return data, nil
}

// DecodeArgs decodes a CBOR argument array into targets, which must be
// pointers. The number of encoded arguments must match len(targets).
func DecodeArgs(data []byte, targets ...any) error {
	var parts []RawMessage
	if err := decMode.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: args: %v", ErrDecode, err)
	}
	if len(parts) != len(targets) {
		return fmt.Errorf("%w: got %d, want %d", ErrArity, len(parts), len(targets))
	}
	for i, part := range parts {
		if err := decMode.Unmarshal(part, targets[i]); err != nil {
			if errors.Is(err, ErrUnknownTag) || errors.Is(err, ErrDecode) {
				return fmt.Errorf("arg %d: %w", i, err)
			}
			return fmt.Errorf("%w: arg %d: %v", ErrDecode, i, err)
		}
	}
	return nil
}

// EncodeCall builds a delegate payload: version, selector, encoded args.
func EncodeCall(sel Selector, args ...any) ([]byte, error) {
	body, err := EncodeArgs(args...)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(sel)+len(body))
	out = append(out, Version)
	out = append(out, sel[:]...)
	return append(out, body...), nil
}

// DecodeCall splits a delegate payload into its selector and encoded args.
func DecodeCall(payload []byte) (Selector, []byte, error) {
	body, err := checkVersion(payload)
	if err != nil {
		return Selector{}, nil, err
	}
	if len(body) < 4 {
		return Selector{}, nil, fmt.Errorf("%w: payload shorter than selector", ErrDecode)
	}
	var sel Selector
	copy(sel[:], body[:4])
	return sel, body[4:], nil
}

// Status discriminates a delegate reply.
type Status byte

const (
	StatusOK      Status = 0
	StatusFailure Status = 1
)

// Failure is the payload of a StatusFailure reply.
type Failure struct {
	Code    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

// EncodeReply builds a reply: version, status, encoded payload.
func EncodeReply(status Status, payload any) ([]byte, error) {
	if status != StatusOK && status != StatusFailure {
		return nil, fmt.Errorf("%w: status %d", ErrUnknownTag, status)
	}
	body, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	out := make([]byte, 0, 2+len(body))
	out = append(out, Version, byte(status))
	return append(out, body...), nil
}

// DecodeReply splits a reply into its status and encoded payload.
func DecodeReply(reply []byte) (Status, []byte, error) {
	body, err := checkVersion(reply)
	if err != nil {
		return 0, nil, err
	}
	if len(body) < 1 {
		return 0, nil, fmt.Errorf("%w: reply without status", ErrDecode)
	}
	status := Status(body[0])
	if status != StatusOK && status != StatusFailure {
		return 0, nil, fmt.Errorf("%w: status %d", ErrUnknownTag, body[0])
	}
	return status, body[1:], nil
}

func checkVersion(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	if data[0] != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersion, data[0], Version)
	}
	return data[1:], nil
}
