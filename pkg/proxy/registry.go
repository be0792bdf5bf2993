package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"
)

var (
	// ErrServiceNotFound indicates an unregistered service name
	ErrServiceNotFound = errors.New("service not found")

	// ErrDuplicateService indicates a service name collision
	ErrDuplicateService = errors.New("service already registered")
)

// DefaultUpstreamTimeout bounds a forwarded request when the service
// does not declare its own timeout
const DefaultUpstreamTimeout = 30 * time.Second

// Service is an upstream target reachable through the gateway
type Service struct {
	Name    string        `json:"name"`
	BaseURL *url.URL      `json:"-"`
	Timeout time.Duration `json:"timeout"`
}

// Registry maps service names to upstream targets. Safe for concurrent
// use; registration normally happens once at startup but admin endpoints
// may mutate it live.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service
}

// NewRegistry creates an empty service registry
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// Register adds an upstream service. The base URL must be absolute.
func (r *Registry) Register(name, baseURL string, timeout time.Duration) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url for %s: %w", name, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("base url for %s must be absolute", name)
	}
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[name]; exists {
		return ErrDuplicateService
	}
	r.services[name] = &Service{Name: name, BaseURL: u, Timeout: timeout}
	return nil
}

// Lookup resolves a service by name
func (r *Registry) Lookup(name string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return svc, nil
}

// Deregister removes a service
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[name]; !ok {
		return ErrServiceNotFound
	}
	delete(r.services, name)
	return nil
}

// List returns registered service names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
