package gs1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDigit(t *testing.T) {
	assert.Equal(t, byte('1'), CheckDigit("400638133393"))
	assert.Equal(t, byte('2'), CheckDigit("03600029145"))
	assert.Equal(t, byte('4'), CheckDigit("9638507"))
}

func TestNormalizeGTIN(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"4006381333931", "04006381333931", true},
		{"036000291452", "00036000291452", true},
		{"96385074", "00000096385074", true},
		{"4006-3813 33931", "04006381333931", true},
		{"4006381333932", "", false},
		{"40063813339", "", false},
		{"40063813339X1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeGTIN(tt.in)
			if !tt.ok {
				assert.True(t, eris.Is(err, ErrInvalidGTIN))
				assert.False(t, ValidGTIN(tt.in))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, ValidGTIN(tt.in))
		})
	}
}

func TestLookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/04006381333931", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"brand":"STABILO","description":"Highlighter","category":"Writing Instruments","gpc_code":"10000315"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	p, err := c.Lookup(context.Background(), "4006381333931")
	require.NoError(t, err)
	assert.Equal(t, "STABILO", p.Brand)
	assert.Equal(t, "Writing Instruments", p.Category)
	assert.Equal(t, "10000315", p.CategoryCode)
	assert.Equal(t, "04006381333931", p.GTIN)
}

func TestLookup_NotFoundAndStatus(t *testing.T) {
	var status atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte("nope")) //nolint:errcheck
	}))
	defer srv.Close()
	c := NewClient("k", WithBaseURL(srv.URL))

	status.Store(http.StatusNotFound)
	_, err := c.Lookup(context.Background(), "4006381333931")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.False(t, Retryable(err))

	status.Store(http.StatusServiceUnavailable)
	_, err = c.Lookup(context.Background(), "4006381333931")
	require.Error(t, err)
	assert.True(t, Retryable(err))

	status.Store(http.StatusUnauthorized)
	_, err = c.Lookup(context.Background(), "4006381333931")
	require.Error(t, err)
	assert.False(t, Retryable(err))
	assert.Contains(t, err.Error(), "401")
}

func TestLookup_InvalidGTINMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Lookup(context.Background(), "12345")
	assert.True(t, eris.Is(err, ErrInvalidGTIN))
	assert.Zero(t, hits.Load())
}

func TestLookup_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"brand":"x"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(1, 1))
	_, err := c.Lookup(context.Background(), "4006381333931")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Lookup(ctx, "4006381333931")
	assert.ErrorContains(t, err, "rate limit wait")
}
