package luadelegate_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/driver/luadelegate"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/hostfunc"
	"github.com/caffeineduck/hostbridge/registry"
	"github.com/caffeineduck/hostbridge/scripteval"
)

func newBridge(t *testing.T, buf *bytes.Buffer) hostfunc.Bridge {
	t.Helper()
	logger, err := hostfunc.NewLogger(buf, "debug", "text")
	require.NoError(t, err)
	h, err := hostfunc.NewHost(hostfunc.Config{Logger: logger})
	require.NoError(t, err)
	return h.Bridge(registry.AddressFor("lua-test"), "inv", true)
}

func run(t *testing.T, script string, args ...string) (codec.Value, error) {
	t.Helper()
	return luadelegate.Run(context.Background(), newBridge(t, new(bytes.Buffer)), script, args)
}

func TestReturnValues(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   codec.Value
	}{
		{"string", `return "ok"`, codec.String("ok")},
		{"nothing", `local x = 1`, codec.Undefined()},
		{"nil", `return nil`, codec.Undefined()},
		{"integer", `return 40 + 2`, codec.String("42")},
		{"boolean", `return true`, codec.String("true")},
		{"array", `return {1, "two"}`, codec.String(`[1,"two"]`)},
		{"record", `return {a = 1}`, codec.String(`{"a":1}`)},
		{"unicode", `return "héllo"`, codec.String("héllo")},
		{"binary string", `return "\255\0"`, codec.Bytes([]byte{0xff, 0x00})},
		{"binary in table", `return {"\255"}`, codec.String(`["/w=="]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.script)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestScriptArgs(t *testing.T) {
	got, err := run(t, `return #scriptArgs .. ":" .. scriptArgs[1]`, "a", "b")
	require.NoError(t, err)
	assert.True(t, got.Equal(codec.String("2:a")))
}

func TestScriptErrors(t *testing.T) {
	_, err := run(t, `error("boom")`)
	var app *executor.AppError
	require.True(t, errors.As(err, &app))
	assert.Equal(t, scripteval.FailCode, app.Code)
	assert.Contains(t, app.Message, "boom")

	_, err = run(t, `return (`)
	require.True(t, errors.As(err, &app))
	assert.Equal(t, scripteval.FailCode, app.Code)
}

func TestSandboxedLibraries(t *testing.T) {
	got, err := run(t, `return tostring(os) .. "," .. tostring(io)`)
	require.NoError(t, err)
	assert.True(t, got.Equal(codec.String("nil,nil")))

	got, err = run(t, `return string.upper("x") .. math.floor(2.5)`)
	require.NoError(t, err)
	assert.True(t, got.Equal(codec.String("X2")))
}

func TestHostBindings(t *testing.T) {
	buf := new(bytes.Buffer)
	b := newBridge(t, buf)

	got, err := luadelegate.Run(context.Background(), b, `
		host.cache_set({key = "k", value = "v"})
		print("cached", host.cache_get({key = "k"}))
		return host.cache_get({key = "k"}) .. "/" .. tostring(host.is_in_transaction())
	`, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(codec.String("v/true")), "got %v", got)
	// the text formatter quotes messages containing a tab
	assert.Contains(t, buf.String(), `msg="cached\tv"`)

	got, err = luadelegate.Run(context.Background(), b, `
		local ok, msg = pcall(host.cache_get, {})
		return tostring(ok)
	`, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(codec.String("false")))
}

func TestInterruptedOnDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := luadelegate.Run(ctx, newBridge(t, new(bytes.Buffer)), `while true do end`, nil)
	assert.ErrorIs(t, err, executor.ErrTimeout)
}

func TestDriverThroughExecutor(t *testing.T) {
	h, err := executor.NewLocal()
	require.NoError(t, err)
	h.Deploy(luadelegate.Address, luadelegate.New())

	var out codec.Value
	err = h.Query(context.Background(), luadelegate.Address,
		executor.NewCall(scripteval.Selector, `return scriptArgs[1] .. "!"`, []string{"hi"}), &out)
	require.NoError(t, err)
	assert.True(t, out.Equal(codec.String("hi!")))

	err = h.Query(context.Background(), luadelegate.Address,
		executor.NewCall(scripteval.Selector, `return "\255\254"`, []string{}), &out)
	require.NoError(t, err)
	assert.True(t, out.Equal(codec.Bytes([]byte{0xff, 0xfe})), "got %v", out)
}
