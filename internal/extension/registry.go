// Package extension maps stable type names to factories for each pluggable
// capability (still codecs, video codecs, handlers).
package extension

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

var (
	ErrNotRegistered     = errors.New("no such type has been registered")
	ErrAlreadyRegistered = errors.New("type is already registered")
)

// Options is the opaque per-extension configuration blob persisted with a workflow
type Options map[string]any

// Decode copies the options into out, matching mapstructure tags and
// converting loosely typed YAML/JSON values (e.g. "90" to int).
func (o Options) Decode(out any) error {
	if len(o) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(o)); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// Descriptor describes a registered type
type Descriptor struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type entry[F any] struct {
	Descriptor
	factory F
}

// Registry holds the factories of one capability
type Registry[F any] struct {
	capability string
	mu         sync.RWMutex
	entries    map[string]entry[F]
	order      []string
}

// NewRegistry creates an empty registry for the named capability
func NewRegistry[F any](capability string) *Registry[F] {
	return &Registry[F]{
		capability: capability,
		entries:    make(map[string]entry[F]),
	}
}

// Capability returns the capability name
func (r *Registry[F]) Capability() string {
	return r.capability
}

// Register adds a factory under name
func (r *Registry[F]) Register(name, displayName string, factory F) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s %q", ErrAlreadyRegistered, r.capability, name)
	}
	if displayName == "" {
		displayName = name
	}
	r.entries[name] = entry[F]{
		Descriptor: Descriptor{Name: name, DisplayName: displayName},
		factory:    factory,
	}
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for static tables
func (r *Registry[F]) MustRegister(name, displayName string, factory F) {
	if err := r.Register(name, displayName, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under name
func (r *Registry[F]) Lookup(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s %q", ErrNotRegistered, r.capability, name)
	}
	return e.factory, nil
}

// Enumerate lists registered types in registration order
func (r *Registry[F]) Enumerate() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Descriptor)
	}
	return out
}
