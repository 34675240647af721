package services

import (
	"fmt"
	"sort"
	"sync"

	"ntropiq/internal/logger"
	"ntropiq/pkg/ntropiqtypes"
)

// Registry holds the services the CLI and server wire together.
type Registry struct {
	mu       sync.RWMutex
	services map[string]ntropiqtypes.Service
}

// NewRegistry creates a new service registry with an empty service map.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]ntropiqtypes.Service),
	}
}

// RegisterService adds a service, returning an error if its name is taken.
func (r *Registry) RegisterService(service ntropiqtypes.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := service.Name()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}
	r.services[name] = service
	return nil
}

// GetService retrieves a service by name.
func (r *Registry) GetService(name string) (ntropiqtypes.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("service %s not found", name)
	}
	return service, nil
}

// InitializeAll initializes every service in name order. Failures are collected
// per service so one unconfigured collaborator does not hide the others.
func (r *Registry) InitializeAll() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	failures := make(map[string]error)
	for _, name := range r.namesLocked() {
		if err := r.services[name].Initialize(); err != nil {
			logger.Warn("Service not ready", "service", name, "error", err)
			failures[name] = err
			continue
		}
		logger.Debug("Service initialized", "service", name)
	}
	return failures
}

// Names returns the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
