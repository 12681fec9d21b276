// registry.go resolves venue names to adapter constructors at startup.
package exchange

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/zhanghongchuang/perp-dex-tools/internal/config"
)

// Constructor builds an adapter from the loaded configuration. It must not
// perform network I/O; that happens in Connect.
type Constructor func(cfg *config.Config, logger *slog.Logger) (ExchangeClient, error)

// Registry maps lowercased venue names to constructors. Safe for concurrent
// use, though in practice all registrations happen before the first Create.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// defaultRegistry backs the package-level helpers. Venue packages register
// themselves in init(); main pulls them in with blank imports.
var defaultRegistry = NewRegistry()

// MustRegister adds a venue to the default registry, panicking on a nil
// constructor. Intended for venue package init().
func MustRegister(name string, ctor Constructor) {
	if err := defaultRegistry.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Create instantiates a venue adapter from the default registry.
func Create(name string, cfg *config.Config, logger *slog.Logger) (ExchangeClient, error) {
	return defaultRegistry.Create(name, cfg, logger)
}

// Venues lists the venue names in the default registry.
func Venues() []string {
	return defaultRegistry.Names()
}

// Register adds a venue under the given name (case-insensitive). A nil
// constructor is rejected; re-registering a name replaces the previous entry.
func (r *Registry) Register(name string, ctor Constructor) error {
	if ctor == nil {
		return fmt.Errorf("register %q: nil constructor", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[strings.ToLower(name)] = ctor
	return nil
}

// Create instantiates the adapter registered under name.
func (r *Registry) Create(name string, cfg *config.Config, logger *slog.Logger) (ExchangeClient, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownVenue, name, strings.Join(r.names(), ", "))
	}
	return ctor(cfg, logger)
}

// Names returns the registered venue names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	out := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
