// Package netutil holds the outbound HTTP client shared by the Telegram
// poller and the OCR provider, plus the transient-failure rules both use.
package netutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// ShouldRetry reports whether err looks like a transient network failure:
// a timeout, a refused or reset connection, or a failed dial.
func ShouldRetry(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var op *net.OpError
	if errors.As(err, &op) && op.Op == "dial" {
		return true
	}
	var dns *net.DNSError
	return errors.As(err, &dns) && (dns.IsTemporary || dns.IsTimeout)
}

// ShouldRetryStatus reports whether an HTTP status is a transient upstream
// failure. Plain 500 is treated as permanent.
func ShouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}
