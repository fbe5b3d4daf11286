package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sony/gobreaker/v2"
)

// TransientPredicate decides whether an outcome is transient, i.e. worth
// retrying by the caller. Exactly one of resp and err is normally non-nil.
//
// Example - also treat 500 responses carrying a retry hint as transient:
//
//	client := httpclient.New(
//	    httpclient.WithDefaultSendOptions(func(o *httpclient.SendOptions) {
//	        o.ThrowTransient = true
//	        o.TransientPredicate = func(resp *http.Response, err error) bool {
//	            if resp != nil && resp.Header.Get("Retry-After") != "" {
//	                return true
//	            }
//	            return httpclient.DefaultTransientPredicate(resp, err)
//	        }
//	    }),
//	)
type TransientPredicate func(resp *http.Response, err error) bool

// DefaultTransientPredicate treats as transient:
//   - any 5xx response, 408 Request Timeout and 429 Too Many Requests
//   - timeouts and cancellation
//   - connection-level failures (refused, reset, unreachable, EOF)
//   - an open circuit breaker or a local rate limit rejection
//
// Permanent transport failures, such as an untrusted certificate or a host
// that does not exist, are not transient.
func DefaultTransientPredicate(resp *http.Response, err error) bool {
	if err != nil {
		return isTransientError(err)
	}
	if resp != nil {
		return IsTransientStatus(resp.StatusCode)
	}
	return false
}

// IsTransientStatus reports whether status is transient under the default
// rules: 5xx, 408 or 429.
func IsTransientStatus(status int) bool {
	return status >= http.StatusInternalServerError ||
		status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests
}

func isTransientError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if isPermanentError(err) {
		return false
	}
	// Anything else that failed below HTTP is a connection-level failure.
	return true
}

// isConnectionError reports whether err is a network failure, as opposed
// to a failure produced while building or reading the request.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	return containsPattern(err, transientPatterns)
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"network is down",
	"network unreachable",
	"i/o timeout",
	"server closed",
	"broken pipe",
	"eof",
}

// isPermanentError reports failures that will not go away on retry.
func isPermanentError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	if errors.Is(err, syscall.EACCES) {
		return true
	}

	return containsPattern(err, permanentPatterns)
}

var permanentPatterns = []string{
	"x509:",
	"certificate",
	"tls:",
	"permission denied",
}

func containsPattern(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// StatusCodePredicate returns a predicate that treats only the given statuses
// as transient. Transport failures still follow the default rules.
func StatusCodePredicate(codes ...int) TransientPredicate {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(resp *http.Response, err error) bool {
		if err != nil {
			return isTransientError(err)
		}
		if resp == nil {
			return false
		}
		_, ok := set[resp.StatusCode]
		return ok
	}
}
