package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/godii/transgemma/backend/server/internal/database"
	"github.com/godii/transgemma/shared"

	"github.com/DataDog/datadog-go/statsd"
	httptrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http"
)

type Server struct {
	db     *database.DB
	statsd *statsd.Client

	isProductionEnvironment bool
	releaseVersion          string
	adminToken              string
	maxDevices              int
	limiters                *clientLimiters
	now                     func() time.Time
}

type Option func(*Server)

func WithStatsd(statsd *statsd.Client) Option {
	return func(s *Server) {
		s.statsd = statsd
	}
}

func WithReleaseVersion(releaseVersion string) Option {
	return func(s *Server) {
		s.releaseVersion = releaseVersion
	}
}

func IsProductionEnvironment(v bool) Option {
	return func(s *Server) {
		s.isProductionEnvironment = v
	}
}

// WithAdminToken enables the internal endpoints for minting and managing license codes. They
// are not served when the token is empty.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

func WithMaxDevices(n int) Option {
	return func(s *Server) {
		s.maxDevices = n
	}
}

// WithRateLimit limits every remote address to rps requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiters = newClientLimiters(rps, burst)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func NewServer(db *database.DB, options ...Option) *Server {
	srv := Server{db: db, maxDevices: shared.MaxDevicesPerLicense, now: time.Now}
	for _, option := range options {
		option(&srv)
	}
	if srv.maxDevices <= 0 {
		panic(fmt.Errorf("cannot create a server that allows %d devices per license", srv.maxDevices))
	}
	return &srv
}

func (s *Server) newMux() *httptrace.ServeMux {
	mux := httptrace.NewServeMux()
	middlewares := mergeMiddlewares(
		withPanicGuard(os.Stdout),
		withLogging(s.statsd, os.Stdout),
		withRateLimit(s.limiters, s.statsd),
	)

	mux.Handle(shared.ActivatePath, middlewares(http.HandlerFunc(s.apiActivateHandler)))
	mux.Handle(shared.VerifyPath, middlewares(http.HandlerFunc(s.apiVerifyHandler)))
	mux.Handle(shared.PingPath, middlewares(http.HandlerFunc(s.apiPingHandler)))
	mux.Handle("/healthcheck", middlewares(http.HandlerFunc(s.healthCheckHandler)))
	if s.adminToken != "" {
		mux.Handle("/internal/api/v1/mint", middlewares(s.withAdminAuth(s.mintHandler)))
		mux.Handle("/internal/api/v1/codes", middlewares(s.withAdminAuth(s.listCodesHandler)))
		mux.Handle("/internal/api/v1/revoke", middlewares(s.withAdminAuth(s.revokeHandler)))
	}
	return mux
}

// Handler returns the complete routing table, for serving from tests.
func (s *Server) Handler() http.Handler {
	return s.newMux()
}

func (s *Server) Run(ctx context.Context, addr string) error {
	mux := s.newMux()

	if s.isProductionEnvironment {
		defer configureObservability(mux, s.releaseVersion)()
		go s.runBackgroundJobs(ctx)
	}
	go s.runHousekeeping(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Listening on %s\n", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http.ListenAndServe: %w", err)
		}
	}

	return nil
}

func (s *Server) runBackgroundJobs(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		deleted, err := s.db.Clean(ctx, s.now())
		s.handleNonCriticalError(err)
		if err == nil && deleted > 0 {
			fmt.Printf("Cleaned %d unredeemed license codes\n", deleted)
		}
		if s.statsd != nil {
			s.statsd.Count("transgemma.clean", deleted, []string{}, 1.0)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runHousekeeping drops idle rate limit buckets and reports connection pool stats every interval.
func (s *Server) runHousekeeping(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.housekeep()
	}
}

func (s *Server) housekeep() {
	evicted := 0
	if s.limiters != nil {
		evicted = s.limiters.evictIdle(max(s.limiters.refillTime(), 10*time.Minute))
	}
	if s.statsd == nil {
		return
	}
	s.statsd.Count("transgemma.rate_limiter.evicted", int64(evicted), []string{}, 1.0)
	stats, err := s.db.Stats()
	if err != nil {
		s.handleNonCriticalError(err)
		return
	}
	s.statsd.Gauge("transgemma.db.open_connections", float64(stats.OpenConnections), []string{}, 1.0)
	s.statsd.Gauge("transgemma.db.in_use", float64(stats.InUse), []string{}, 1.0)
	s.statsd.Gauge("transgemma.db.idle", float64(stats.Idle), []string{}, 1.0)
	s.statsd.Gauge("transgemma.db.wait_count", float64(stats.WaitCount), []string{}, 1.0)
}

func (s *Server) handleNonCriticalError(err error) {
	if err != nil {
		if s.isProductionEnvironment {
			fmt.Printf("Unexpected non-critical error: %v", err)
		} else {
			panic(fmt.Errorf("unexpected non-critical error: %w", err))
		}
	}
}
