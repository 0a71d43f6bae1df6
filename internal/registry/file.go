// Package registry builds the provider set from a sources file. Each entry
// names a kind, and a kind maps to one factory.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/sources/catalog"
	"github.com/sells-group/catalog-enricher/internal/sources/gs1"
	"github.com/sells-group/catalog-enricher/internal/sources/history"
	llmsource "github.com/sells-group/catalog-enricher/internal/sources/llm"
	"github.com/sells-group/catalog-enricher/internal/sources/taxonomy"
	"github.com/sells-group/catalog-enricher/internal/sources/typehint"
)

// Source kinds.
const (
	KindHistory  = "history"
	KindCatalog  = "catalog"
	KindGS1      = "gs1"
	KindTaxonomy = "taxonomy"
	KindTypeHint = "typehint"
	KindLLM      = "llm"
)

// Source is one entry of the sources file.
type Source struct {
	Name             string             `yaml:"name"`
	Kind             string             `yaml:"kind"`
	Disabled         bool               `yaml:"disabled"`
	Sectors          []string           `yaml:"sectors"`
	Priority         *int               `yaml:"priority"`
	ConfidenceWeight float64            `yaml:"confidence_weight"`
	CacheTTL         time.Duration      `yaml:"cache_ttl"`
	Timeout          time.Duration      `yaml:"timeout"`
	RateLimit        provider.RateLimit `yaml:"rate_limit"`
	// Options holds kind-specific settings.
	Options yaml.Node `yaml:"options"`
}

// File is a parsed sources file.
type File struct {
	Sources []Source `yaml:"sources"`
	// Dir resolves relative paths in source options.
	Dir string `yaml:"-"`
}

// kindDefaults are applied where an entry leaves a descriptor value unset.
// An unnamed entry takes its kind's provider name, so provenance does not
// depend on how the sources file was written.
var kindDefaults = map[string]provider.Descriptor{
	KindHistory:  {Name: history.Name, Priority: 100, ConfidenceWeight: 1.0, CacheTTL: -1},
	KindCatalog:  {Name: catalog.Name, Priority: 80, ConfidenceWeight: 0.85, CacheTTL: time.Hour},
	KindGS1:      {Name: gs1.Name, Priority: 70, ConfidenceWeight: 0.95},
	KindTaxonomy: {Name: taxonomy.Name, Priority: 50, ConfidenceWeight: 0.7},
	KindTypeHint: {Name: typehint.Name, Priority: 20, ConfidenceWeight: 0.6},
	KindLLM:      {Name: llmsource.Name, Priority: 10, ConfidenceWeight: 0.5, Timeout: 15 * time.Second},
}

// Default is used when no sources file exists. Taxonomy is absent because it
// needs a table path.
func Default() *File {
	return &File{Sources: []Source{
		{Name: history.Name, Kind: KindHistory},
		{Name: catalog.Name, Kind: KindCatalog},
		{Name: gs1.Name, Kind: KindGS1},
		{Name: typehint.Name, Kind: KindTypeHint},
		{Name: llmsource.Name, Kind: KindLLM},
	}}
}

// Load reads a sources file. YAML and JSON are both accepted. A missing file
// yields Default.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("registry: sources file not found, using defaults", zap.String("path", path))
		return Default(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: %s", path)
	}
	f.Dir = filepath.Dir(path)
	return f, nil
}

// Parse decodes and validates a sources document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: parse sources")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks kinds, names and weights.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Sources))
	var errs []string
	for i := range f.Sources {
		s := &f.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		s.Name = strings.TrimSpace(s.Name)
		def, ok := kindDefaults[s.Kind]
		if s.Name == "" {
			s.Name = def.Name
		}
		if !ok {
			if s.Name == "" {
				s.Name = s.Kind
			}
			errs = append(errs, fmt.Sprintf("source %s: unknown kind %q", s.Name, s.Kind))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("duplicate source name %q", s.Name))
		}
		seen[s.Name] = true
		if s.ConfidenceWeight < 0 || s.ConfidenceWeight > 1 {
			errs = append(errs, fmt.Sprintf("source %s: confidence_weight must be within [0,1]", s.Name))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("registry: invalid sources: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Descriptor merges the entry with its kind defaults.
func (s Source) Descriptor() provider.Descriptor {
	d := kindDefaults[s.Kind]
	d.Name = s.Name
	d.Sectors = s.Sectors
	if s.Priority != nil {
		d.Priority = *s.Priority
	}
	if s.ConfidenceWeight > 0 {
		d.ConfidenceWeight = s.ConfidenceWeight
	}
	if s.CacheTTL != 0 {
		d.CacheTTL = s.CacheTTL
	}
	if s.Timeout > 0 {
		d.Timeout = s.Timeout
	}
	if s.RateLimit.Limit != 0 {
		d.RateLimit = s.RateLimit
	}
	return d
}

// decodeOptions decodes the options block into v. An absent block leaves v
// untouched.
func (s Source) decodeOptions(v any) error {
	if s.Options.Kind == 0 {
		return nil
	}
	return eris.Wrapf(s.Options.Decode(v), "registry: source %s options", s.Name)
}
