package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/godii/transgemma/shared"
	"github.com/sony/gobreaker"
)

const (
	DefaultServerHostname = "https://transgemma-api.godii.xyz"
	DefaultTimeout        = 5 * time.Second
)

// HTTPBackend implements EntitlementBackend by making HTTP requests to the license server.
type HTTPBackend struct {
	serverURL   string
	client      *http.Client
	timeout     time.Duration
	version     string
	getDeviceId func() string
	breaker     *gobreaker.CircuitBreaker
}

// HTTPBackendOption is a functional option for configuring HTTPBackend
type HTTPBackendOption func(*HTTPBackend)

// WithServerURL sets a custom server URL
func WithServerURL(url string) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.serverURL = url
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.client = client
	}
}

// WithTimeout bounds each request, including reading the response body
func WithTimeout(timeout time.Duration) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.timeout = timeout
	}
}

// WithVersion sets the client version for headers
func WithVersion(version string) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.version = version
	}
}

// WithDeviceIdCallback sets a callback to get the deviceId for request headers
func WithDeviceIdCallback(fn func() string) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.getDeviceId = fn
	}
}

// WithBreakerSettings replaces the default circuit breaker settings
func WithBreakerSettings(settings gobreaker.Settings) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.breaker = gobreaker.NewCircuitBreaker(settings)
	}
}

// NewHTTPBackend creates a new HTTP backend with the given options.
func NewHTTPBackend(opts ...HTTPBackendOption) *HTTPBackend {
	b := &HTTPBackend{
		serverURL: getServerHostname(""),
		client:    &http.Client{},
		timeout:   DefaultTimeout,
		version:   "Unknown",
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.breaker == nil {
		b.breaker = gobreaker.NewCircuitBreaker(defaultBreakerSettings())
	}
	return b
}

func defaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "entitlement-authority",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
}

func getServerHostname(configured string) string {
	if server := os.Getenv("TRANSGEMMA_SERVER"); server != "" {
		return server
	}
	if configured != "" {
		return configured
	}
	return DefaultServerHostname
}

// Type returns "http" to identify this backend type.
func (b *HTTPBackend) Type() string {
	return string(BackendTypeHTTP)
}

// Activate asks the server to bind a device to a license code.
func (b *HTTPBackend) Activate(ctx context.Context, req shared.ActivateRequest) (*shared.ActivateResponse, error) {
	jsonValue, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activate request: %w", err)
	}
	respBody, err := b.apiPost(ctx, shared.ActivatePath, "application/json", jsonValue)
	if err != nil {
		return nil, err
	}
	var resp shared.ActivateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activate response: %w", err)
	}
	return &resp, nil
}

// Verify re-validates a license code for a device.
func (b *HTTPBackend) Verify(ctx context.Context, req shared.VerifyRequest) (*shared.VerifyResponse, error) {
	jsonValue, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify request: %w", err)
	}
	respBody, err := b.apiPost(ctx, shared.VerifyPath, "application/json", jsonValue)
	if err != nil {
		return nil, err
	}
	var resp shared.VerifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verify response: %w", err)
	}
	return &resp, nil
}

// Ping checks if the server is reachable.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	_, err := b.apiGet(ctx, shared.PingPath)
	return err
}

// apiGet performs a GET request to the server.
func (b *HTTPBackend) apiGet(ctx context.Context, path string) ([]byte, error) {
	return b.do(ctx, "GET", path, "", nil)
}

// apiPost performs a POST request to the server.
func (b *HTTPBackend) apiPost(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	return b.do(ctx, "POST", path, contentType, body)
}

func (b *HTTPBackend) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	resp, err := b.breaker.Execute(func() (interface{}, error) {
		return b.roundTrip(ctx, method, path, contentType, body)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s%s: %w", method, b.serverURL, path, err)
	}
	return resp.([]byte), nil
}

func (b *HTTPBackend) roundTrip(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, b.serverURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status_code=%d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// setHeaders sets common headers on the request.
func (b *HTTPBackend) setHeaders(req *http.Request) {
	req.Header.Set("X-Transgemma-Version", b.version)

	if b.getDeviceId != nil {
		if deviceId := b.getDeviceId(); deviceId != "" {
			req.Header.Set("X-Transgemma-Device-Id", deviceId)
		}
	}
}
