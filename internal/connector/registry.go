package connector

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory is a function that creates a new Connector instance.
type Factory func() Connector

// Registry maps driver names and aliases to connector factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string // alias -> driver name
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
	}
}

// RegisterDriver registers a connector factory under name and any aliases.
// Names are case-insensitive.
func (r *Registry) RegisterDriver(name string, factory Factory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = strings.ToLower(name)
	r.factories[name] = factory
	for _, a := range aliases {
		r.aliases[strings.ToLower(a)] = name
	}
}

// Lookup returns a new connector for a driver name or alias.
func (r *Registry) Lookup(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(name)
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	factory, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s (available: %v)", name, r.availableDrivers())
	}
	return factory(), nil
}

// Resolve picks the connector for cfg: the explicit driver name when set,
// otherwise the one inferred from the URL.
func (r *Registry) Resolve(cfg ConnectionConfig) (Connector, error) {
	name := cfg.Driver
	if name == "" {
		name = InferDriver(cfg.URL)
	}
	if name == "" {
		return nil, fmt.Errorf("cannot infer driver from url %q: set driverClassName", cfg.URL)
	}
	return r.Lookup(name)
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableDrivers()
}

func (r *Registry) availableDrivers() []string {
	drivers := make([]string, 0, len(r.factories))
	for d := range r.factories {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}
