// Package provider defines the contract every enrichment knowledge source
// implements and the registry that selects sources for a call.
package provider

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// ErrRegistryUnavailable is returned when the provider set cannot be read.
// It is the only error that aborts an orchestration call.
var ErrRegistryUnavailable = eris.New("provider: registry unavailable")

// UniversalSector marks a provider that applies to every sector.
const UniversalSector = "*"

// RateLimit is the per-(provider, tenant) admission limit. A zero value falls
// back to the orchestrator default.
type RateLimit struct {
	Limit  int           `json:"limit" yaml:"limit"`
	Window time.Duration `json:"window" yaml:"window"`
}

// Descriptor is the static capability record of a provider.
type Descriptor struct {
	Name string `json:"name"`
	// Sectors lists the supported sector codes. Empty or "*" means universal.
	Sectors  []string `json:"sectors"`
	Priority int      `json:"priority"`
	// ConfidenceWeight is a trust multiplier in [0,1] applied to every
	// confidence the provider reports.
	ConfidenceWeight float64       `json:"confidence_weight"`
	CacheTTL         time.Duration `json:"cache_ttl"`
	Timeout          time.Duration `json:"timeout,omitempty"`
	RateLimit        RateLimit     `json:"rate_limit"`
	// TenantScoped providers answer differently per tenant.
	TenantScoped bool `json:"tenant_scoped,omitempty"`
}

// Universal reports whether the provider applies to every sector.
func (d Descriptor) Universal() bool {
	return len(d.Sectors) == 0 || slices.Contains(d.Sectors, UniversalSector)
}

// Supports reports whether the provider applies to sector.
func (d Descriptor) Supports(sector string) bool {
	if d.Universal() {
		return true
	}
	sector = strings.TrimSpace(sector)
	for _, s := range d.Sectors {
		if strings.EqualFold(s, sector) {
			return true
		}
	}
	return false
}

// Provider is an independent knowledge source.
type Provider interface {
	Descriptor() Descriptor
	// IsEnabled is a pure configuration check and never performs I/O.
	IsEnabled() bool
	// Initialize performs one-time setup. It must be safe to call repeatedly.
	Initialize(ctx context.Context) error
	// Enrich proposes field values for item. It is the only method allowed to
	// perform network I/O.
	Enrich(ctx context.Context, item model.ExtractedItem, ectx model.EnrichmentContext) (*model.EnrichmentResult, error)
}

// Registry holds the ordered provider set. It is built once at startup and
// read concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	index     map[string]int
	failure   error
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds p. Registering a name twice replaces the earlier provider in
// place, keeping its insertion position.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Descriptor().Name
	if i, ok := r.index[name]; ok {
		r.providers[i] = p
		return
	}
	r.index[name] = len(r.providers)
	r.providers = append(r.providers, p)
}

// Fail marks the registry unusable. Every subsequent Eligible call returns
// ErrRegistryUnavailable wrapping cause.
func (r *Registry) Fail(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = cause
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.index[name]; ok {
		return r.providers[i]
	}
	return nil
}

// List returns every provider ordered by descending priority, then insertion.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	out := slices.Clone(r.providers)
	r.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Provider) int {
		return b.Descriptor().Priority - a.Descriptor().Priority
	})
	return out
}

// Eligible returns the enabled providers that support sector, in List order.
func (r *Registry) Eligible(sector string) ([]Provider, error) {
	if r == nil {
		return nil, ErrRegistryUnavailable
	}
	r.mu.RLock()
	failure := r.failure
	r.mu.RUnlock()
	if failure != nil {
		return nil, eris.Wrap(ErrRegistryUnavailable, failure.Error())
	}

	var out []Provider
	for _, p := range r.List() {
		if p.Descriptor().Supports(sector) && p.IsEnabled() {
			out = append(out, p)
		}
	}
	return out, nil
}

// Rank returns the position of each provider in List order, used as the
// priority tie-break during fusion.
func (r *Registry) Rank() map[string]int {
	ranks := make(map[string]int)
	for i, p := range r.List() {
		ranks[p.Descriptor().Name] = i
	}
	return ranks
}

// InitializeAll calls Initialize on every enabled provider. A provider that
// fails to initialize is logged by the caller and stays registered.
func (r *Registry) InitializeAll(ctx context.Context) map[string]error {
	errs := make(map[string]error)
	for _, p := range r.List() {
		if !p.IsEnabled() {
			continue
		}
		if err := p.Initialize(ctx); err != nil {
			errs[p.Descriptor().Name] = eris.Wrapf(err, "provider: initialize %s", p.Descriptor().Name)
		}
	}
	return errs
}
