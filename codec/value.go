package codec

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is the generic result type exchanged with drivers. It holds
// exactly one of: nothing, a UTF-8 string, or an opaque byte sequence.
// The zero Value is Undefined.
type Value struct {
	kind Kind
	str  string
	raw  []byte
}

func Undefined() Value { return Value{} }

// String returns a Value holding s. s must be valid UTF-8 to encode.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Text returns String(s) when s is valid UTF-8 and Bytes otherwise.
func Text(s string) Value {
	if !utf8.ValidString(s) {
		return Bytes([]byte(s))
	}
	return String(s)
}

// Bytes returns a Value holding a copy of b.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, raw: bytes.Clone(b)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// AsString returns the string payload. ok is false for other kinds.
func (v Value) AsString() (s string, ok bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBytes returns the byte payload. ok is false for other kinds.
func (v Value) AsBytes() (b []byte, ok bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.raw, true
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindBytes:
		return bytes.Equal(v.raw, other.raw)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindBytes:
		return "0x" + hex.EncodeToString(v.raw)
	default:
		return "undefined"
	}
}

// MarshalCBOR encodes the value as a CBOR array [kind] or [kind, payload].
func (v Value) MarshalCBOR() ([]byte, error) {
	switch v.kind {
	case KindUndefined:
		return encMode.Marshal([]any{uint8(v.kind)})
	case KindString:
		if !utf8.ValidString(v.str) {
			return nil, ErrInvalidUTF8
		}
		return encMode.Marshal([]any{uint8(v.kind), v.str})
	case KindBytes:
		raw := v.raw
		if raw == nil {
			raw = []byte{}
		}
		return encMode.Marshal([]any{uint8(v.kind), raw})
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, v.kind)
	}
}

func (v *Value) UnmarshalCBOR(data []byte) error {
	var parts []RawMessage
	if err := decMode.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: value: %v", ErrDecode, err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("%w: value: empty", ErrDecode)
	}

	var tag uint8
	if err := decMode.Unmarshal(parts[0], &tag); err != nil {
		return fmt.Errorf("%w: value tag: %v", ErrDecode, err)
	}

	switch Kind(tag) {
	case KindUndefined:
		if len(parts) != 1 {
			return fmt.Errorf("%w: undefined carries a payload", ErrDecode)
		}
		*v = Undefined()
	case KindString:
		if len(parts) != 2 {
			return fmt.Errorf("%w: string value needs one payload", ErrDecode)
		}
		var s string
		if err := decMode.Unmarshal(parts[1], &s); err != nil {
			return fmt.Errorf("%w: string payload: %v", ErrDecode, err)
		}
		*v = String(s)
	case KindBytes:
		if len(parts) != 2 {
			return fmt.Errorf("%w: bytes value needs one payload", ErrDecode)
		}
		var b []byte
		if err := decMode.Unmarshal(parts[1], &b); err != nil {
			return fmt.Errorf("%w: bytes payload: %v", ErrDecode, err)
		}
		*v = Value{kind: KindBytes, raw: b}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
	return nil
}

// EncodeValue encodes v with the codec version prefix.
func EncodeValue(v Value) ([]byte, error) {
	body, err := v.MarshalCBOR()
	if err != nil {
		return nil, err
	}
	return append([]byte{Version}, body...), nil
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(data []byte) (Value, error) {
	body, err := checkVersion(data)
	if err != nil {
		return Value{}, err
	}
	var v Value
	if err := v.UnmarshalCBOR(body); err != nil {
		return Value{}, err
	}
	return v, nil
}
