package provider

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/model"
)

func noop(_ context.Context, _ model.ExtractedItem, _ model.EnrichmentContext) (*model.EnrichmentResult, error) {
	return model.NewResult("noop"), nil
}

func fake(name string, priority int, sectors ...string) *Func {
	return &Func{Desc: Descriptor{Name: name, Priority: priority, Sectors: sectors, ConfidenceWeight: 1}, Fn: noop}
}

func names(ps []Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Descriptor().Name
	}
	return out
}

// initCounter counts Initialize calls.
type initCounter struct {
	Func
	mu    sync.Mutex
	calls int
	err   error
}

func (c *initCounter) Initialize(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func TestDescriptor_Supports(t *testing.T) {
	t.Parallel()

	assert.True(t, Descriptor{}.Supports("ict"))
	assert.True(t, Descriptor{Sectors: []string{"*"}}.Supports("food"))
	assert.True(t, Descriptor{Sectors: []string{"ICT", "retail"}}.Supports(" ict "))
	assert.False(t, Descriptor{Sectors: []string{"retail"}}.Supports("ict"))
	assert.False(t, Descriptor{Sectors: []string{"retail"}}.Supports(""))
}

func TestRegistry_ListOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(fake("taxonomy", 10))
	r.Register(fake("history", 100))
	r.Register(fake("typehint", 10))
	r.Register(fake("llm", 1))

	assert.Equal(t, []string{"history", "taxonomy", "typehint", "llm"}, names(r.List()))
	assert.Equal(t, map[string]int{"history": 0, "taxonomy": 1, "typehint": 2, "llm": 3}, r.Rank())
}

func TestRegistry_RegisterReplacesInPlace(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(fake("a", 1))
	r.Register(fake("b", 1))
	replacement := fake("a", 1)
	r.Register(replacement)

	assert.Equal(t, []string{"a", "b"}, names(r.List()))
	assert.Same(t, replacement, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
}

func TestRegistry_Eligible(t *testing.T) {
	t.Parallel()

	disabled := fake("gs1", 50)
	disabled.Disabled = true

	r := NewRegistry()
	r.Register(fake("taxonomy", 10, "ict"))
	r.Register(fake("food_codes", 20, "food"))
	r.Register(fake("typehint", 5, "*"))
	r.Register(disabled)

	got, err := r.Eligible("ict")
	require.NoError(t, err)
	assert.Equal(t, []string{"taxonomy", "typehint"}, names(got))

	got, err = r.Eligible("")
	require.NoError(t, err)
	assert.Equal(t, []string{"typehint"}, names(got), "only universal providers apply without a sector")
}

func TestRegistry_Failure(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(fake("taxonomy", 1))
	r.Fail(errors.New("sources.yaml: parse error"))

	_, err := r.Eligible("ict")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRegistryUnavailable))
	assert.Contains(t, err.Error(), "sources.yaml")

	var nilReg *Registry
	_, err = nilReg.Eligible("ict")
	assert.True(t, eris.Is(err, ErrRegistryUnavailable))
}

func TestRegistry_InitializeAll(t *testing.T) {
	t.Parallel()

	ok := &initCounter{Func: *fake("ok", 1)}
	bad := &initCounter{Func: *fake("bad", 1), err: errors.New("table missing")}
	off := &initCounter{Func: *fake("off", 1)}
	off.Disabled = true

	r := NewRegistry()
	r.Register(ok)
	r.Register(bad)
	r.Register(off)

	errs := r.InitializeAll(context.Background())
	errs = r.InitializeAll(context.Background())

	assert.Len(t, errs, 1)
	assert.Contains(t, errs["bad"].Error(), "table missing")
	assert.Equal(t, 2, ok.calls)
	assert.Equal(t, 0, off.calls)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register(fake("provider", 1))
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Eligible("ict")
			_ = r.Get("provider")
		}()
	}
	wg.Wait()

	assert.Len(t, r.List(), 1)
}
