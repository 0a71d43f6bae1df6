// Package resilience provides circuit breakers and retry with backoff for
// outbound provider calls.
package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// TransientError marks a provider failure that a later attempt may not
// repeat. StatusCode is the upstream HTTP status, or zero for transport
// failures.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// Messages from HTTP clients and drivers that lose the typed cause.
var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
}

// IsTransient reports whether err is worth retrying. Context errors never
// are: either the caller gave up or the per-call budget is spent.
func IsTransient(err error) bool {
	if err == nil || isContextErr(err) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if isNetTimeout(err) || isConnErr(err) {
		return true
	}
	return matchesPattern(err)
}

// IsTransientHTTPStatus reports whether an upstream HTTP status is safe to
// retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Classify maps a provider error to the status recorded on its result.
// Upstream throttling is reported as rate_limited so it reads the same as
// local admission denial in the audit trail.
func Classify(err error) model.ResultStatus {
	if err == nil {
		return model.StatusOK
	}
	var te *TransientError
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return model.StatusCircuitOpen
	case errors.Is(err, context.Canceled):
		return model.StatusAbandoned
	case errors.Is(err, context.DeadlineExceeded), isNetTimeout(err):
		return model.StatusTimeout
	case errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests:
		return model.StatusRateLimited
	case errors.As(err, &te) && (te.StatusCode == http.StatusRequestTimeout || te.StatusCode == http.StatusGatewayTimeout):
		return model.StatusTimeout
	default:
		return model.StatusFailed
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnErr(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED)
}

func matchesPattern(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
