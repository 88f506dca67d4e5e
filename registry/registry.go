// Package registry maps driver names to the addresses of deployed
// modules.
//
// A [Registry] is an immutable snapshot. The invocation host captures
// one snapshot when an invocation starts, so lookups inside a single
// execution always agree even if the host installs a new registry
// concurrently.
package registry

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Address identifies a deployed module.
type Address [32]byte

// AddressFor derives a stable address from a label. Builtin drivers
// use it so their addresses are the same on every host.
func AddressFor(label string) Address {
	return Address(blake2b.Sum256([]byte("hostbridge/address/" + label)))
}

// ParseAddress accepts 64 hex digits, optionally prefixed with 0x.
func ParseAddress(text string) (Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(text), "0x"))
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", text, err)
	}
	if len(raw) != len(Address{}) {
		return Address{}, fmt.Errorf("invalid address %q: want 32 bytes, got %d", text, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// Short returns the first four bytes in hex, for log fields.
func (a Address) Short() string { return hex.EncodeToString(a[:4]) }

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Entry is one registered driver.
type Entry struct {
	Name    string
	Address Address
}

// Registry is an immutable name to address table.
type Registry struct {
	drivers map[string]Address
}

// Empty returns a registry with no drivers.
func Empty() *Registry {
	return &Registry{drivers: map[string]Address{}}
}

// Resolve returns the address registered under name.
func (r *Registry) Resolve(name string) (Address, bool) {
	if r == nil {
		return Address{}, false
	}
	addr, ok := r.drivers[name]
	return addr, ok
}

// Names returns registered driver names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns all registrations sorted by name.
func (r *Registry) Entries() []Entry {
	names := r.Names()
	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = Entry{Name: name, Address: r.drivers[name]}
	}
	return entries
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.drivers)
}

// Builder accumulates registrations for a new Registry.
type Builder struct {
	drivers map[string]Address
}

func NewBuilder() *Builder {
	return &Builder{drivers: make(map[string]Address)}
}

// From starts a builder seeded with the entries of an existing registry.
func From(r *Registry) *Builder {
	b := NewBuilder()
	for _, e := range r.Entries() {
		b.drivers[e.Name] = e.Address
	}
	return b
}

// Set registers or replaces name.
func (b *Builder) Set(name string, addr Address) *Builder {
	b.drivers[name] = addr
	return b
}

func (b *Builder) Remove(name string) *Builder {
	delete(b.drivers, name)
	return b
}

// Build validates the registrations and returns an immutable snapshot.
// The builder may keep being used afterwards.
func (b *Builder) Build() (*Registry, error) {
	drivers := make(map[string]Address, len(b.drivers))
	for name, addr := range b.drivers {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("driver name is empty")
		}
		if addr.IsZero() {
			return nil, fmt.Errorf("driver %q: zero address", name)
		}
		drivers[name] = addr
	}
	return &Registry{drivers: drivers}, nil
}
