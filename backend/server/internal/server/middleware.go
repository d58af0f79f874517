package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"golang.org/x/time/rate"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type loggedResponseData struct {
	size   int
	status int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	responseData *loggedResponseData
}

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.responseData.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func getFunctionName(temp interface{}) string {
	strs := strings.Split((runtime.FuncForPC(reflect.ValueOf(temp).Pointer()).Name()), ".")
	return strs[len(strs)-1]
}

func byteCountToString(b int) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMG"[exp])
}

type Middleware func(http.Handler) http.Handler

// mergeMiddlewares creates a new middleware that runs the given middlewares in reverse order. The first middleware
// passed will be the "outermost" one
func mergeMiddlewares(middlewares ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// withLogging will log every request made to the wrapped endpoint. It will also log
// panics, but won't stop them.
func withLogging(s *statsd.Client, out io.Writer) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			responseData := loggedResponseData{status: http.StatusOK}
			lrw := loggingResponseWriter{
				ResponseWriter: rw,
				responseData:   &responseData,
			}
			start := time.Now()
			span, ctx := tracer.StartSpanFromContext(
				r.Context(),
				getFunctionName(h),
				tracer.SpanType(ext.SpanTypeWeb),
				tracer.ServiceName("transgemma-api"),
			)
			defer span.Finish()

			defer func() {
				// log panics
				if err := recover(); err != nil {
					duration := time.Since(start)
					fmt.Fprintf(out, "%s %s %#v %s %s %s %v\n", getRemoteAddr(r), r.Method, r.RequestURI, getTransgemmaVersion(r), duration.String(), byteCountToString(responseData.size), err)

					// keep panicking
					panic(err)
				}
			}()

			h.ServeHTTP(&lrw, r.WithContext(ctx))

			duration := time.Since(start)
			fmt.Fprintf(out, "%s %s %#v %s %d %s %s\n", getRemoteAddr(r), r.Method, r.RequestURI, getTransgemmaVersion(r), responseData.status, duration.String(), byteCountToString(responseData.size))
			if s != nil {
				tags := []string{"handler:" + r.URL.Path, "version:" + getVersionTag(r)}
				s.Distribution("transgemma.request_duration", float64(duration.Microseconds())/1_000, tags, 1.0)
				s.Incr("transgemma.request", tags, 1.0)
			}
		})
	}
}

// withPanicGuard is the last defence from a panic. it will log them and return a 503 error
// to the client and prevent the http server from breaking
func withPanicGuard(out io.Writer) Middleware {
	if out == nil {
		out = os.Stdout
	}
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if r := recover(); r != nil {
					fmt.Fprintf(out, "panic: %s\n", r)
					rw.WriteHeader(http.StatusServiceUnavailable)
				}
			}()
			h.ServeHTTP(rw, r)
		})
	}
}

// clientLimiters hands out one token bucket per client IP.
type clientLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*clientLimiter
	now      func() time.Time
}

type clientLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
	}
}

func (c *clientLimiters) get(ip string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[ip]
	if !ok {
		l = &clientLimiter{Limiter: rate.NewLimiter(c.limit, c.burst)}
		c.limiters[ip] = l
	}
	l.lastSeen = c.now()
	return l.Limiter
}

// evictIdle drops the buckets of clients not seen for idle and returns how many were dropped.
// idle must be long enough for any bucket to refill, otherwise eviction resets a client early.
func (c *clientLimiters) evictIdle(idle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-idle)
	evicted := 0
	for ip, l := range c.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(c.limiters, ip)
			evicted++
		}
	}
	return evicted
}

// refillTime is how long an emptied bucket takes to fill up again.
func (c *clientLimiters) refillTime() time.Duration {
	return time.Duration(float64(c.burst) / float64(c.limit) * float64(time.Second))
}

// withRateLimit rejects requests from a client IP once it exceeds its token bucket. A nil
// limiter set disables limiting.
func withRateLimit(limiters *clientLimiters, s *statsd.Client) Middleware {
	return func(h http.Handler) http.Handler {
		if limiters == nil {
			return h
		}
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if !limiters.get(getClientIp(r)).Allow() {
				if s != nil {
					s.Incr("transgemma.rate_limited", []string{"handler:" + r.URL.Path}, 1.0)
				}
				rw.Header().Set("Retry-After", "60")
				http.Error(rw, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			h.ServeHTTP(rw, r)
		})
	}
}
