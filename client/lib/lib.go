package lib

import (
	"context"
	"errors"
	"log"
	"runtime"
	"strings"

	"github.com/godii/transgemma/client/backend"
	"github.com/sony/gobreaker"
)

var (
	Version   string = "Unknown"
	GitCommit string = "Unknown"
)

// ErrQuotaExceeded is returned by RunMetered when the daily allowance is used up.
var ErrQuotaExceeded = errors.New("daily quota exceeded")

func CheckFatalError(err error) {
	if err != nil {
		_, filename, line, _ := runtime.Caller(1)
		log.Fatalf("transgemma %s fatal error at %s:%d: %v", Version, filename, line, err)
	}
}

// IsOfflineError reports whether err means the entitlement authority could not be reached,
// as opposed to the authority answering.
func IsOfflineError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, backend.ErrOffline) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, ": no such host") ||
		strings.Contains(msg, "connect: network is unreachable") ||
		strings.Contains(msg, "read: connection reset by peer") ||
		strings.Contains(msg, ": EOF") ||
		strings.Contains(msg, "status_code=502") ||
		strings.Contains(msg, "status_code=503") ||
		strings.Contains(msg, "status_code=504") ||
		strings.Contains(msg, ": i/o timeout") ||
		strings.Contains(msg, "connect: operation timed out") ||
		strings.Contains(msg, "net/http: TLS handshake timeout") ||
		strings.Contains(msg, "connect: connection refused")
}
