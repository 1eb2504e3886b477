// Package task defines run handlers: the code a source or action executes
// when it syncs. Handlers are built from a definition's kind and config by a
// Registry of factories.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/handsdb/hands/internal/connector"
)

// ErrUnknownKind is returned when a definition names a kind with no factory.
var ErrUnknownKind = errors.New("unknown handler kind")

// Env is everything a handler may touch during one run.
type Env struct {
	SourceID string
	Conn     connector.Connector
	Secrets  map[string]string
	Input    map[string]interface{}
	Log      *RunLogger
}

// Secret returns a resolved secret value, or "" when it was not declared.
func (e *Env) Secret(name string) string {
	return e.Secrets[name]
}

// Handler performs a sync. The returned value becomes SyncResult.Result.
// Handlers must honour ctx cancellation.
type Handler interface {
	Run(ctx context.Context, env *Env) (interface{}, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *Env) (interface{}, error)

// Run calls f(ctx, env).
func (f HandlerFunc) Run(ctx context.Context, env *Env) (interface{}, error) {
	return f(ctx, env)
}

// Factory builds a handler from a definition's kind-specific config.
type Factory func(config map[string]interface{}) (Handler, error)

// Registry maps handler kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Builtins returns a Registry with the built-in kinds registered.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("sql", NewSQL)
	r.Register("http_json", NewHTTPJSON)
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Build constructs a handler for kind from config.
func (r *Registry) Build(kind string, config map[string]interface{}) (Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownKind, kind, r.Kinds())
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	h, err := f(config)
	if err != nil {
		return nil, fmt.Errorf("%s config: %w", kind, err)
	}
	return h, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
