package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/task"
)

// Root is a directory scanned for definitions of one type.
type Root struct {
	Dir  string
	Type Type
}

// snapshot is an immutable view of one scan.
type snapshot struct {
	byID     map[string]*Source
	sorted   []*Source
	errors   []model.DiscoveryError
	loadedAt time.Time
}

// Registry holds the sources and actions of a workbook. Load rescans every
// root and replaces the whole view at once; readers never see a partial scan.
type Registry struct {
	loader        Loader
	kinds         *task.Registry
	roots         []Root
	checkSchedule func(string) error
	logger        *slog.Logger

	loadMu sync.Mutex
	snap   atomic.Pointer[snapshot]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithScheduleCheck validates schedule expressions while loading.
func WithScheduleCheck(fn func(string) error) RegistryOption {
	return func(r *Registry) { r.checkSchedule = fn }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty registry. Call Load to populate it.
func NewRegistry(loader Loader, kinds *task.Registry, roots []Root, opts ...RegistryOption) *Registry {
	r := &Registry{
		loader: loader,
		kinds:  kinds,
		roots:  roots,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(&snapshot{byID: map[string]*Source{}, errors: []model.DiscoveryError{}})
	return r
}

// Load rescans every root and swaps in the result. An id defined under two
// roots is reported as an error for the later root. It returns the
// discovery errors of this scan.
func (r *Registry) Load(ctx context.Context) []model.DiscoveryError {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	next := &snapshot{
		byID:     make(map[string]*Source),
		errors:   []model.DiscoveryError{},
		loadedAt: time.Now().UTC(),
	}

	for _, root := range r.roots {
		if ctx.Err() != nil {
			break
		}
		result := Discover(r.loader, root.Dir, root.Type, r.kinds, r.checkSchedule)
		next.errors = append(next.errors, result.Errors...)
		for _, src := range result.Sources {
			if prev, dup := next.byID[src.ID]; dup {
				next.errors = append(next.errors, model.DiscoveryError{
					File:  src.Path,
					Error: fmt.Sprintf("duplicate id %q (already defined by %s)", src.ID, prev.Path),
				})
				continue
			}
			next.byID[src.ID] = src
		}
	}

	next.sorted = make([]*Source, 0, len(next.byID))
	for _, src := range next.byID {
		next.sorted = append(next.sorted, src)
	}
	sort.Slice(next.sorted, func(i, j int) bool {
		return next.sorted[i].ID < next.sorted[j].ID
	})

	r.snap.Store(next)

	for _, e := range next.errors {
		r.logger.Warn("definition failed to load", "file", e.File, "error", e.Error)
	}
	r.logger.Info("definitions loaded", "count", len(next.sorted), "errors", len(next.errors))
	return next.errors
}

// Get returns the source with the given id.
func (r *Registry) Get(id string) (*Source, bool) {
	src, ok := r.snap.Load().byID[id]
	return src, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns all registered sources sorted by id.
func (r *Registry) List() []*Source {
	s := r.snap.Load().sorted
	out := make([]*Source, len(s))
	copy(out, s)
	return out
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	s := r.snap.Load().sorted
	ids := make([]string, len(s))
	for i, src := range s {
		ids[i] = src.ID
	}
	return ids
}

// Errors returns the discovery errors of the last Load.
func (r *Registry) Errors() []model.DiscoveryError {
	e := r.snap.Load().errors
	out := make([]model.DiscoveryError, len(e))
	copy(out, e)
	return out
}

// LoadedAt returns when the last Load completed, zero before the first.
func (r *Registry) LoadedAt() time.Time {
	return r.snap.Load().loadedAt
}
