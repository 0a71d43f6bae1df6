package registry

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/config"
	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/llm"
	"github.com/sells-group/catalog-enricher/internal/resilience"
	"github.com/sells-group/catalog-enricher/internal/retrieval"
	"github.com/sells-group/catalog-enricher/internal/sources/catalog"
	"github.com/sells-group/catalog-enricher/internal/sources/gs1"
	"github.com/sells-group/catalog-enricher/internal/sources/history"
	llmsource "github.com/sells-group/catalog-enricher/internal/sources/llm"
	"github.com/sells-group/catalog-enricher/internal/sources/taxonomy"
	"github.com/sells-group/catalog-enricher/internal/sources/typehint"
)

// Deps are the shared collaborators handed to every factory. Nil members
// leave the sources that need them disabled.
type Deps struct {
	Engine  *retrieval.Engine
	Store   history.ValidationStore
	LLM     *llm.Service
	GS1     config.GS1Config
	Retry   resilience.RetryConfig
	Tenants []string
}

// Set is a built provider set.
type Set struct {
	Registry *provider.Registry
	// History is the first history source, used to record validations. Nil
	// when none is declared.
	History *history.Provider
}

type factory func(src Source, dir string, deps Deps) (provider.Provider, error)

var factories = map[string]factory{
	KindHistory: func(src Source, _ string, deps Deps) (provider.Provider, error) {
		var cfg history.Config
		if err := src.decodeOptions(&cfg); err != nil {
			return nil, err
		}
		if len(cfg.Tenants) == 0 {
			cfg.Tenants = deps.Tenants
		}
		var idx history.Index
		if deps.Engine != nil {
			idx = deps.Engine
		}
		return history.New(src.Descriptor(), idx, deps.Store, cfg), nil
	},
	KindCatalog: func(src Source, _ string, deps Deps) (provider.Provider, error) {
		var cfg catalog.Config
		if err := src.decodeOptions(&cfg); err != nil {
			return nil, err
		}
		var s catalog.Searcher
		if deps.Engine != nil {
			s = deps.Engine
		}
		return catalog.New(src.Descriptor(), s, cfg), nil
	},
	KindGS1: func(src Source, _ string, deps Deps) (provider.Provider, error) {
		cfg := deps.GS1
		if err := src.decodeOptions(&cfg); err != nil {
			return nil, err
		}
		return gs1.FromConfig(src.Descriptor(), cfg, deps.Retry), nil
	},
	KindTaxonomy: func(src Source, dir string, _ Deps) (provider.Provider, error) {
		var opts struct {
			Table string `yaml:"table"`
		}
		if err := src.decodeOptions(&opts); err != nil {
			return nil, err
		}
		path := opts.Table
		if path != "" && !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return taxonomy.New(src.Descriptor(), path), nil
	},
	KindTypeHint: func(src Source, _ string, _ Deps) (provider.Provider, error) {
		return typehint.New(src.Descriptor(), false), nil
	},
	KindLLM: func(src Source, _ string, deps Deps) (provider.Provider, error) {
		var cls llmsource.Classifier
		if deps.LLM != nil {
			cls = deps.LLM
		}
		return llmsource.New(src.Descriptor(), cls), nil
	},
}

// Build constructs every declared source in file order.
func Build(f *File, deps Deps) (*Set, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	set := &Set{Registry: provider.NewRegistry()}
	for _, src := range f.Sources {
		if src.Disabled {
			zap.L().Info("registry: source disabled", zap.String("source", src.Name))
			continue
		}
		p, err := factories[src.Kind](src, f.Dir, deps)
		if err != nil {
			return nil, eris.Wrapf(err, "registry: build %s", src.Name)
		}
		set.Registry.Register(p)
		if h, ok := p.(*history.Provider); ok && set.History == nil {
			set.History = h
		}
		d := p.Descriptor()
		zap.L().Debug("registry: source registered",
			zap.String("source", d.Name),
			zap.String("kind", src.Kind),
			zap.Int("priority", d.Priority),
			zap.Float64("confidence_weight", d.ConfidenceWeight),
			zap.Bool("enabled", p.IsEnabled()),
		)
	}
	return set, nil
}

// Open loads and builds the sources file at path. When that fails the
// returned set's registry is marked unavailable, so every enrichment call
// reports the failure instead of running with a partial provider set.
func Open(path string, deps Deps) (*Set, error) {
	f, err := Load(path)
	if err == nil {
		var set *Set
		if set, err = Build(f, deps); err == nil {
			return set, nil
		}
	}
	reg := provider.NewRegistry()
	reg.Fail(err)
	zap.L().Error("registry: sources unavailable", zap.String("path", path), zap.Error(err))
	return &Set{Registry: reg}, err
}
