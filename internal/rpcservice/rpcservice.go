// Package rpcservice implements the service & registry layer (C4): a
// server's top-level mapping from service name to its procedures, and
// each service's own mapping from method name to procedure descriptor.
package rpcservice

import (
	"fmt"
	"sync"

	"github.com/dkoosis/goarpc/internal/procedure"
	"github.com/dkoosis/goarpc/internal/rpcerror"
)

// Service holds one named group of procedures. A method name may have
// both a Return and a Notify variant registered under it; the two kinds
// are looked up independently.
type Service struct {
	name       string
	returns    map[string]*procedure.Descriptor
	notifies   map[string]*procedure.Descriptor
}

// NewService creates an empty, named service.
func NewService(name string) *Service {
	return &Service{
		name:     name,
		returns:  make(map[string]*procedure.Descriptor),
		notifies: make(map[string]*procedure.Descriptor),
	}
}

// Name returns the service's registered name.
func (s *Service) Name() string { return s.name }

// AddReturn registers a Return-kind procedure under method. Re-registering
// an existing method name is a programmer error.
func (s *Service) AddReturn(method string, d *procedure.Descriptor) error {
	if method == "" {
		return fmt.Errorf("rpcservice: method name must not be empty")
	}
	if _, exists := s.returns[method]; exists {
		return fmt.Errorf("rpcservice: %s.%s already registered (return)", s.name, method)
	}
	s.returns[method] = d
	return nil
}

// AddNotify registers a Notify-kind procedure under method.
func (s *Service) AddNotify(method string, d *procedure.Descriptor) error {
	if method == "" {
		return fmt.Errorf("rpcservice: method name must not be empty")
	}
	if _, exists := s.notifies[method]; exists {
		return fmt.Errorf("rpcservice: %s.%s already registered (notify)", s.name, method)
	}
	s.notifies[method] = d
	return nil
}

// CallProcedureReturn resolves method to a Return descriptor, failing
// METHOD_NOT_FOUND if absent.
func (s *Service) CallProcedureReturn(method string) (*procedure.Descriptor, error) {
	d, ok := s.returns[method]
	if !ok {
		return nil, rpcerror.New(rpcerror.MethodNotFound, nil, map[string]any{
			"service": s.name, "method": method,
		})
	}
	return d, nil
}

// CallProcedureNotify resolves method to a Notify descriptor, failing
// METHOD_NOT_FOUND if absent.
func (s *Service) CallProcedureNotify(method string) (*procedure.Descriptor, error) {
	d, ok := s.notifies[method]
	if !ok {
		return nil, rpcerror.New(rpcerror.MethodNotFound, nil, map[string]any{
			"service": s.name, "method": method,
		})
	}
	return d, nil
}

// Registry is the server's top-level name -> Service mapping. Safe for
// concurrent registration and lookup; registration normally happens once
// at startup, before the event loop begins dispatching.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// AddService registers svc under its own name. Re-registering an existing
// name is a programmer error.
func (r *Registry) AddService(svc *Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[svc.name]; exists {
		return fmt.Errorf("rpcservice: service %q already registered", svc.name)
	}
	r.services[svc.name] = svc
	return nil
}

// Lookup finds the service registered under name.
func (r *Registry) Lookup(name string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	return svc, ok
}
