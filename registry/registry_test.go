package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	addr := AddressFor("ScriptEval")
	reg, err := NewBuilder().Set("ScriptEval", addr).Build()
	require.NoError(t, err)

	got, ok := reg.Resolve("ScriptEval")
	assert.True(t, ok)
	assert.Equal(t, addr, got)

	_, ok = reg.Resolve("Missing")
	assert.False(t, ok)
}

func TestNilRegistryResolvesNothing(t *testing.T) {
	var reg *Registry
	_, ok := reg.Resolve("TagStack")
	assert.False(t, ok)
	assert.Empty(t, reg.Names())
}

func TestSnapshotIsImmutable(t *testing.T) {
	b := NewBuilder().Set("A", AddressFor("a"))
	first, err := b.Build()
	require.NoError(t, err)

	b.Set("B", AddressFor("b")).Remove("A")
	second, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, first.Names())
	assert.Equal(t, []string{"B"}, second.Names())
}

func TestBuildRejectsInvalid(t *testing.T) {
	_, err := NewBuilder().Set("", AddressFor("x")).Build()
	assert.Error(t, err)

	_, err = NewBuilder().Set("Zero", Address{}).Build()
	assert.Error(t, err)
}

func TestAddressText(t *testing.T) {
	addr := AddressFor("TagStack")
	parsed, err := ParseAddress(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)

	_, err = ParseAddress("0x1234")
	assert.Error(t, err)

	_, err = ParseAddress("zz")
	assert.Error(t, err)

	assert.NotEqual(t, AddressFor("a"), AddressFor("b"))
	assert.Len(t, addr.Short(), 8)
}

func TestLoadManifest(t *testing.T) {
	script := AddressFor("ScriptEval")
	tags := AddressFor("TagStack")

	manifest := "drivers:\n" +
		"  - name: ScriptEval\n" +
		"    address: \"" + script.String() + "\"\n" +
		"  - name: TagStack\n" +
		"    address: \"" + tags.String() + "\"\n"

	path := filepath.Join(t.TempDir(), "drivers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	reg, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ScriptEval", "TagStack"}, reg.Names())

	got, ok := reg.Resolve("TagStack")
	assert.True(t, ok)
	assert.Equal(t, tags, got)
}

func TestParseManifestErrors(t *testing.T) {
	cases := map[string]string{
		"duplicate": "drivers:\n  - name: A\n    address: \"" + AddressFor("a").String() + "\"\n  - name: A\n    address: \"" + AddressFor("b").String() + "\"\n",
		"bad address": "drivers:\n  - name: A\n    address: \"0x12\"\n",
		"unknown field": "drivers:\n  - name: A\n    addr: \"" + AddressFor("a").String() + "\"\n",
	}
	for name, manifest := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(manifest))
			assert.Error(t, err)
		})
	}
}

func TestManifestRoundTrip(t *testing.T) {
	reg, err := NewBuilder().
		Set("ScriptEval", AddressFor("ScriptEval")).
		Set("TagStack", AddressFor("TagStack")).
		Build()
	require.NoError(t, err)

	data, err := MarshalManifest(reg)
	require.NoError(t, err)

	back, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, reg.Entries(), back.Entries())
}

func TestMerge(t *testing.T) {
	base, err := NewBuilder().Set("A", AddressFor("a")).Set("B", AddressFor("b")).Build()
	require.NoError(t, err)
	overlay, err := NewBuilder().Set("B", AddressFor("b2")).Build()
	require.NoError(t, err)

	merged, err := Merge(base, overlay).Build()
	require.NoError(t, err)

	b, _ := merged.Resolve("B")
	assert.Equal(t, AddressFor("b2"), b)
	assert.Equal(t, 2, merged.Len())
}
