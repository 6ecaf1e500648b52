package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mise-kitchen/mise/internal/enrich"
	"github.com/mise-kitchen/mise/pkg/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]func(ProviderEntry) (stt.Provider, error)
	ai  map[string]func(ProviderEntry) (*enrich.AIClient, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: make(map[string]func(ProviderEntry) (stt.Provider, error)),
		ai:  make(map[string]func(ProviderEntry) (*enrich.AIClient, error)),
	}
}

// RegisterSTT registers a speech-to-text provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterAI registers an enrichment provider factory under name.
func (r *Registry) RegisterAI(name string, factory func(ProviderEntry) (*enrich.AIClient, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ai[name] = factory
}

// CreateSTT instantiates a speech-to-text provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAI instantiates an enrichment provider using the factory registered
// under entry.Name.
func (r *Registry) CreateAI(entry ProviderEntry) (*enrich.AIClient, error) {
	r.mu.RLock()
	factory, ok := r.ai[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: ai/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
