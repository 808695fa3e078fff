package llm

import (
	"context"
	"errors"
	"net"

	"cv-evaluation-service/internal/domain/ports/adapter"
)

// transientStatus reports whether an HTTP status from a provider is worth
// retrying: request timeout, rate limit, or a 5xx.
func transientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// wrapTransportErr classifies transport-level failures. Network timeouts
// are transient; everything else (bad request assembly, TLS, auth) is not.
func wrapTransportErr(err error) *adapter.ProviderError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &adapter.ProviderError{Transient: true, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &adapter.ProviderError{Transient: true, Err: err}
	}
	return &adapter.ProviderError{Transient: false, Err: err}
}
