package registry

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk form of a registry:
//
//	drivers:
//	  - name: ScriptEval
//	    address: 0x...
type Manifest struct {
	Drivers []ManifestEntry `yaml:"drivers"`
}

type ManifestEntry struct {
	Name    string  `yaml:"name"`
	Address Address `yaml:"address"`
}

// LoadManifest reads a YAML manifest and builds a registry from it.
func LoadManifest(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest builds a registry from YAML manifest bytes. A name that
// appears twice is an error.
func ParseManifest(data []byte) (*Registry, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	b := NewBuilder()
	for _, e := range m.Drivers {
		if _, dup := b.drivers[e.Name]; dup {
			return nil, fmt.Errorf("parse manifest: duplicate driver %q", e.Name)
		}
		b.Set(e.Name, e.Address)
	}
	return b.Build()
}

// Merge returns a builder holding base with every manifest entry applied
// on top.
func Merge(base *Registry, overlay *Registry) *Builder {
	b := From(base)
	for _, e := range overlay.Entries() {
		b.Set(e.Name, e.Address)
	}
	return b
}

// MarshalManifest renders r as YAML.
func MarshalManifest(r *Registry) ([]byte, error) {
	m := Manifest{}
	for _, e := range r.Entries() {
		m.Drivers = append(m.Drivers, ManifestEntry(e))
	}
	return yaml.Marshal(m)
}
