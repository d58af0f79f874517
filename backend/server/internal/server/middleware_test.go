package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("test"))
}

func panicHandler(w http.ResponseWriter, r *http.Request) {
	panic(fmt.Errorf("synthetic panic for tests"))
}

func newLoggedRequest() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/license/verify", nil)
	req.Header.Add("X-Real-Ip", "127.0.0.1")
	req.Header.Add("X-Transgemma-Version", "v0.7")
	return req
}

func TestLoggerMiddleware(t *testing.T) {
	var out strings.Builder
	w := httptest.NewRecorder()
	withLogging(nil, &out)(http.HandlerFunc(okHandler)).ServeHTTP(w, newLoggedRequest())

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, out.String(), `127.0.0.1 POST "/api/license/verify" v0.7 200`)
	require.Contains(t, out.String(), "4 B")
}

func TestLoggerMiddlewareWithPanic(t *testing.T) {
	var out strings.Builder
	handler := withLogging(nil, &out)(http.HandlerFunc(panicHandler))

	var panicError any
	func() {
		defer func() { panicError = recover() }()
		handler.ServeHTTP(httptest.NewRecorder(), newLoggedRequest())
	}()

	require.NotNil(t, panicError, "expected the panic to propagate")
	require.Contains(t, fmt.Sprintf("%v", panicError), "synthetic panic for tests")
	require.Contains(t, out.String(), `127.0.0.1 POST "/api/license/verify"`)
	require.Contains(t, out.String(), "synthetic panic for tests")
}

func TestPanicGuard(t *testing.T) {
	var out strings.Builder
	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		withPanicGuard(&out)(http.HandlerFunc(panicHandler)).ServeHTTP(w, newLoggedRequest())
	})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, out.String(), "panic: synthetic panic for tests")

	w = httptest.NewRecorder()
	withPanicGuard(&out)(http.HandlerFunc(okHandler)).ServeHTTP(w, newLoggedRequest())
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMergeMiddlewares(t *testing.T) {
	tests := []struct {
		name               string
		handler            http.HandlerFunc
		expectedStatusCode int
		expectedPieces     []string
	}{
		{
			name:               "no panics",
			handler:            okHandler,
			expectedStatusCode: http.StatusOK,
			expectedPieces:     []string{`127.0.0.1 POST "/api/license/verify"`},
		},
		{
			name:               "panics",
			handler:            panicHandler,
			expectedStatusCode: http.StatusServiceUnavailable,
			expectedPieces: []string{
				`synthetic panic for tests`,
				`127.0.0.1 POST "/api/license/verify"`,
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var out strings.Builder
			middlewares := mergeMiddlewares(
				withPanicGuard(&out),
				withLogging(nil, &out),
			)

			w := httptest.NewRecorder()
			require.NotPanics(t, func() {
				middlewares(test.handler).ServeHTTP(w, newLoggedRequest())
			})
			require.Equal(t, test.expectedStatusCode, w.Code)
			for _, expectedPiece := range test.expectedPieces {
				require.Contains(t, out.String(), expectedPiece)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	handler := withRateLimit(newClientLimiters(0.001, 2), nil)(http.HandlerFunc(okHandler))
	serve := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Add("X-Real-Ip", ip)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, serve("10.0.0.1"))
	require.Equal(t, http.StatusOK, serve("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, serve("10.0.0.1"))
	// Buckets are per client
	require.Equal(t, http.StatusOK, serve("10.0.0.2"))

	unlimited := withRateLimit(nil, nil)(http.HandlerFunc(okHandler))
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		unlimited.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitIgnoresClientPort(t *testing.T) {
	handler := withRateLimit(newClientLimiters(0.001, 1), nil)(http.HandlerFunc(okHandler))
	codes := []int{}
	for port := 40000; port < 40010; port++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/activate", nil)
		req.RemoteAddr = fmt.Sprintf("203.0.113.7:%d", port)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	require.Equal(t, http.StatusOK, codes[0])
	for _, code := range codes[1:] {
		require.Equal(t, http.StatusTooManyRequests, code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:51000"
	require.Equal(t, "2001:db8::1", getClientIp(req))
	req.Header.Set("X-Real-Ip", "198.51.100.4")
	require.Equal(t, "198.51.100.4", getClientIp(req))
}

func TestEvictIdleLimiters(t *testing.T) {
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	limiters := newClientLimiters(1, 20)
	limiters.now = func() time.Time { return now }
	require.Equal(t, 20*time.Second, limiters.refillTime())

	limiters.get("10.0.0.1")
	limiters.get("10.0.0.2")
	now = now.Add(15 * time.Minute)
	limiters.get("10.0.0.2")
	require.Equal(t, 0, limiters.evictIdle(20*time.Minute))
	require.Equal(t, 1, limiters.evictIdle(10*time.Minute))
	require.Len(t, limiters.limiters, 1)
	require.Contains(t, limiters.limiters, "10.0.0.2")
}

func TestVersionTag(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, "unknown", getVersionTag(req))
	req.Header.Set("X-Transgemma-Version", "v0.12")
	require.Equal(t, "v0.12", getVersionTag(req))
	req.Header.Set("X-Transgemma-Version", "Unknown")
	require.Equal(t, "unknown", getVersionTag(req))
}

func TestByteCountToString(t *testing.T) {
	require.Equal(t, "999 B", byteCountToString(999))
	require.Equal(t, "1.5 kB", byteCountToString(1500))
	require.Equal(t, "2.0 MB", byteCountToString(2_000_000))
}
