package provider

import (
	"fmt"
	"sync"

	api "github.com/stackdock-io/stackdock/pkg/provider"
	"github.com/stackdock-io/stackdock/providers/docker"
	"github.com/stackdock-io/stackdock/providers/null"
	"github.com/stackdock-io/stackdock/providers/random"
)

// Registry manages the lifecycle of providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]api.Interface
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]api.Interface),
	}
}

// LoadProvider initializes and registers a built-in provider.
func (r *Registry) LoadProvider(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p api.Interface
	switch name {
	case "null":
		p = null.New()
	case "docker":
		p = docker.New()
	case "random":
		p = random.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.providers[name] = p
	return nil
}

// Register installs a provider under the given name, replacing any existing
// registration. Used by tests and embedders.
func (r *Registry) Register(name string, p api.Interface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (api.Interface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
