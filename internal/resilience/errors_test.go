package resilience

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/catalog-enricher/internal/model"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"caller cancelled", context.Canceled, false},
		{"deadline through eris", eris.Wrap(context.DeadlineExceeded, "gs1: lookup"), false},
		{"registry overloaded", NewTransientError(errors.New("gs1 registry overloaded"), 503), true},
		{"wrapped rate limit", eris.Wrap(NewTransientError(errors.New("slow down"), 429), "llm: classify"), true},
		{"bad request", errors.New("gs1: invalid gtin 123"), false},
		{"reset", eris.Wrap(syscall.ECONNRESET, "write tcp"), true},
		{"refused", eris.Wrap(syscall.ECONNREFUSED, "dial redis"), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"dns not found", &net.DNSError{IsNotFound: true, Err: "no such host"}, false},
		{"broken pipe text", errors.New("embed: write: broken pipe"), true},
		{"tls text", errors.New("TLS handshake timeout"), true},
		{"io timeout text", errors.New("read tcp 10.0.0.1: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
	for _, code := range []int{200, 204, 400, 401, 403, 404, 409, 422, 501} {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestTransientError_UnwrapAndMessage(t *testing.T) {
	inner := errors.New("catalog index busy")
	te := NewTransientError(inner, 503)

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "catalog index busy", te.Error())
	assert.Equal(t, 503, te.StatusCode)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ResultStatus
	}{
		{"nil", nil, model.StatusOK},
		{"breaker open", eris.Wrap(ErrCircuitOpen, "gs1: lookup"), model.StatusCircuitOpen},
		{"caller went away", eris.Wrap(context.Canceled, "llm: classify"), model.StatusAbandoned},
		{"per-call budget spent", eris.Wrap(context.DeadlineExceeded, "catalog: search"), model.StatusTimeout},
		{"dial timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, model.StatusTimeout},
		{"upstream throttled", eris.Wrap(NewTransientError(errors.New("quota"), 429), "gs1: lookup"), model.StatusRateLimited},
		{"gateway timeout", NewTransientError(errors.New("upstream slow"), 504), model.StatusTimeout},
		{"upstream 502", NewTransientError(errors.New("bad gateway"), 502), model.StatusFailed},
		{"plain failure", errors.New("gs1: invalid gtin"), model.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
