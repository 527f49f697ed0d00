// Package taxonomy holds the static event taxonomy: which events exist and
// which properties each event may carry. Taxonomy content is configuration
// supplied by the host application, not logic.
package taxonomy

import (
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pulseflow/pulseflow/pkg/errors"
)

// EventSpec declares the property surface of one event type.
type EventSpec struct {
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
}

// Registry answers allowlist queries for event properties.
// A Registry is immutable after construction; hot reload swaps whole
// registries through a Watcher.
type Registry struct {
	specs   map[string]EventSpec
	allowed map[string]map[string]bool
}

// New builds a Registry from event specs.
func New(specs map[string]EventSpec) *Registry {
	allowed := make(map[string]map[string]bool, len(specs))
	for name, spec := range specs {
		set := make(map[string]bool, len(spec.Required)+len(spec.Optional))
		for _, k := range spec.Required {
			set[k] = true
		}
		for _, k := range spec.Optional {
			set[k] = true
		}
		allowed[name] = set
	}
	return &Registry{specs: specs, allowed: allowed}
}

// taxonomyFile is the YAML document shape.
type taxonomyFile struct {
	Events map[string]EventSpec `yaml:"events"`
}

// LoadFile reads a taxonomy YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTaxonomyFormat, "failed to read taxonomy file").
			WithContext("path", path)
	}
	return Parse(data)
}

// Parse builds a Registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var doc taxonomyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeTaxonomyFormat, "invalid taxonomy yaml")
	}
	if len(doc.Events) == 0 {
		return nil, errors.New(errors.CodeTaxonomyFormat, "taxonomy declares no events")
	}
	return New(doc.Events), nil
}

// Known reports whether the event name exists in the taxonomy.
func (r *Registry) Known(event string) bool {
	_, ok := r.specs[event]
	return ok
}

// AllowedProps returns the union of required and optional property names
// for the event, sorted. Nil for unknown events.
func (r *Registry) AllowedProps(event string) []string {
	set, ok := r.allowed[event]
	if !ok {
		return nil
	}
	props := make([]string, 0, len(set))
	for k := range set {
		props = append(props, k)
	}
	sort.Strings(props)
	return props
}

// IsAllowedProp is a pure membership test on the event's allowlist.
func (r *Registry) IsAllowedProp(event, key string) bool {
	return r.allowed[event][key]
}

// RequiredProps returns the required property names for the event.
func (r *Registry) RequiredProps(event string) []string {
	spec, ok := r.specs[event]
	if !ok {
		return nil
	}
	out := make([]string, len(spec.Required))
	copy(out, spec.Required)
	sort.Strings(out)
	return out
}

// Events returns all event names, sorted.
func (r *Registry) Events() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider is a read-only handle that always yields the current Registry.
// The zero-cost implementation is Static; Watcher provides hot reload.
type Provider interface {
	Current() *Registry
}

// Static wraps a fixed Registry as a Provider.
type Static struct {
	reg *Registry
}

// NewStatic creates a Provider that never changes.
func NewStatic(reg *Registry) *Static {
	return &Static{reg: reg}
}

// Current returns the wrapped Registry.
func (s *Static) Current() *Registry {
	return s.reg
}

// swapper is shared by Watcher to publish new registries atomically.
type swapper struct {
	mu  sync.RWMutex
	reg *Registry
}

func (s *swapper) Current() *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg
}

func (s *swapper) swap(reg *Registry) {
	s.mu.Lock()
	s.reg = reg
	s.mu.Unlock()
}
