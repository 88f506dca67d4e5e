package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		value Value
	}{
		{"undefined", Undefined()},
		{"empty string", String("")},
		{"string", String("ok")},
		{"unicode", String("héllo, 世界")},
		{"nil bytes", Bytes(nil)},
		{"empty bytes", Bytes([]byte{})},
		{"non-utf8 bytes", Bytes([]byte("\xff\xfe"))},
		{"emoji", String("🦀 ok")},
		{"bytes", Bytes([]byte{0x00, 0xff, 0x10})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := EncodeValue(tc.value)
			require.NoError(t, err)
			assert.Equal(t, Version, data[0])

			got, err := DecodeValue(data)
			require.NoError(t, err)
			assert.True(t, tc.value.Equal(got), "got %s, want %s", got, tc.value)
			assert.Equal(t, tc.value.Kind(), got.Kind())
		})
	}
}

func TestInvalidUTF8String(t *testing.T) {
	_, err := EncodeValue(String("\xff\xfe"))
	assert.ErrorIs(t, err, ErrInvalidUTF8)

	_, err = EncodeArgs(String("ok"), String("bad\xff"))
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want Value
	}{
		{"", String("")},
		{"héllo", String("héllo")},
		{"\xff\xfe", Bytes([]byte{0xff, 0xfe})},
		{"ok\x80", Bytes([]byte("ok\x80"))},
	}

	for _, tt := range tests {
		got := Text(tt.in)
		assert.True(t, tt.want.Equal(got), "Text(%q) = %s, want %s", tt.in, got, tt.want)

		data, err := EncodeValue(got)
		require.NoError(t, err)
		decoded, err := DecodeValue(data)
		require.NoError(t, err)
		assert.True(t, got.Equal(decoded))
	}
}

func TestDecodeValueRejectsTrailingData(t *testing.T) {
	data, err := EncodeValue(String("ok"))
	require.NoError(t, err)

	_, err = DecodeValue(append(data, 0x00))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestValueAccessors(t *testing.T) {
	s, ok := String("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = String("x").AsBytes()
	assert.False(t, ok)

	b, ok := Bytes([]byte("y")).AsBytes()
	assert.True(t, ok)
	assert.Equal(t, []byte("y"), b)

	assert.True(t, Value{}.IsUndefined())
	assert.False(t, String("").Equal(Bytes(nil)))
}

func TestBytesCopiesInput(t *testing.T) {
	in := []byte{1, 2, 3}
	v := Bytes(in)
	in[0] = 9

	b, _ := v.AsBytes()
	assert.Equal(t, byte(1), b[0])
}

func TestDecodeValueRejectsVersion(t *testing.T) {
	data, err := EncodeValue(String("ok"))
	require.NoError(t, err)
	data[0] = 0x02

	_, err = DecodeValue(data)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestDecodeValueRejectsUnknownTag(t *testing.T) {
	body, err := Marshal([]any{uint8(7), "x"})
	require.NoError(t, err)

	_, err = DecodeValue(append([]byte{Version}, body...))
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestDecodeValueRejectsGarbage(t *testing.T) {
	_, err := DecodeValue([]byte{Version, 0xff, 0x00})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeValue(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestCallRoundTrip(t *testing.T) {
	sel := NewSelector(0x49bfcd24)
	payload, err := EncodeCall(sel, "return 'ok'", []string{"test"})
	require.NoError(t, err)

	assert.Equal(t, []byte{Version, 0x49, 0xbf, 0xcd, 0x24}, payload[:5])

	gotSel, args, err := DecodeCall(payload)
	require.NoError(t, err)
	assert.Equal(t, sel, gotSel)

	var script string
	var scriptArgs []string
	require.NoError(t, DecodeArgs(args, &script, &scriptArgs))
	assert.Equal(t, "return 'ok'", script)
	assert.Equal(t, []string{"test"}, scriptArgs)
}

func TestDecodeArgsArity(t *testing.T) {
	args, err := EncodeArgs("one", "two")
	require.NoError(t, err)

	var a string
	err = DecodeArgs(args, &a)
	assert.ErrorIs(t, err, ErrArity)
}

func TestDecodeArgsValue(t *testing.T) {
	args, err := EncodeArgs(Bytes([]byte("raw")), Undefined())
	require.NoError(t, err)

	var first, second Value
	require.NoError(t, DecodeArgs(args, &first, &second))
	assert.True(t, first.Equal(Bytes([]byte("raw"))))
	assert.True(t, second.IsUndefined())
}

func TestDecodeCallShortPayload(t *testing.T) {
	_, _, err := DecodeCall([]byte{Version, 0x01})
	assert.ErrorIs(t, err, ErrDecode)

	_, _, err = DecodeCall([]byte{0x09, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrVersion)
}

func TestReplyRoundTrip(t *testing.T) {
	reply, err := EncodeReply(StatusFailure, Failure{Code: "script", Message: "boom"})
	require.NoError(t, err)

	status, body, err := DecodeReply(reply)
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, status)

	var f Failure
	require.NoError(t, Unmarshal(body, &f))
	assert.Equal(t, Failure{Code: "script", Message: "boom"}, f)
}

func TestDecodeReplyUnknownStatus(t *testing.T) {
	_, _, err := DecodeReply([]byte{Version, 0x05, 0xf6})
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestSelectors(t *testing.T) {
	assert.Equal(t, "0x49bfcd24", NewSelector(0x49bfcd24).String())
	assert.Equal(t, uint32(0x49bfcd24), NewSelector(0x49bfcd24).Uint32())

	parsed, err := ParseSelector("0x49bfcd24")
	require.NoError(t, err)
	assert.Equal(t, NewSelector(0x49bfcd24), parsed)

	_, err = ParseSelector("0x1234")
	assert.Error(t, err)

	assert.Equal(t, SelectorFor("TagStack::push_tag"), SelectorFor("TagStack::push_tag"))
	assert.NotEqual(t, SelectorFor("TagStack::push_tag"), SelectorFor("TagStack::pop_tag"))
}
