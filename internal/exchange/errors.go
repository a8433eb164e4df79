// Package exchange is the boundary to the spot exchange: market metadata, prices,
// klines and order execution. Raw protocol failures are translated into APIError
// here and never reach the trading core.
package exchange

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// APIError is a non-success response from the exchange.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error: status %d, code %d: %s", e.Status, e.Code, e.Msg)
}

// Exchange error codes the client treats specially.
const (
	codeTooManyRequests = -1003
	codeTimestampSkew   = -1021
)

// Rejected reports whether the exchange refused the request before acting on it,
// which makes even an order safe to resend.
func (e *APIError) Rejected() bool {
	switch {
	case e.Status == http.StatusTooManyRequests, e.Status == http.StatusTeapot:
		return true
	case e.Code == codeTooManyRequests, e.Code == codeTimestampSkew:
		return true
	}
	return false
}

// Transient reports whether a read-only request is worth one more attempt.
func (e *APIError) Transient() bool {
	return e.Rejected() || e.Status >= 500
}

// retryable classifies err for a request; mutating requests only retry on
// explicit rejections.
func retryable(err error, idempotent bool) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if idempotent {
			return apiErr.Transient()
		}
		return apiErr.Rejected()
	}
	var netErr net.Error
	if idempotent && errors.As(err, &netErr) {
		return true
	}
	return false
}
