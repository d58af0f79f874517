package backend

import (
	"fmt"
	"net/http"
	"time"
)

// Config holds the minimal configuration needed to create a backend.
// This avoids circular imports with the hctx package.
type Config struct {
	// BackendType is either "http" (default) or "offline"
	BackendType string

	// ServerURL overrides the default authority. $TRANSGEMMA_SERVER takes precedence.
	ServerURL string

	// Version is the client version for HTTP headers
	Version string

	// Timeout bounds every request. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the client used for requests
	HTTPClient *http.Client

	// DeviceId returns this device's id for the request headers
	DeviceId func() string
}

// NewBackendFromConfig creates the appropriate entitlement backend based on configuration.
func NewBackendFromConfig(cfg Config) (EntitlementBackend, error) {
	switch BackendType(cfg.BackendType) {
	case BackendTypeOffline:
		return NewOfflineBackend(), nil

	case BackendTypeHTTP, "":
		opts := []HTTPBackendOption{
			WithVersion(cfg.Version),
			WithServerURL(getServerHostname(cfg.ServerURL)),
		}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, WithHTTPClient(cfg.HTTPClient))
		}
		if cfg.DeviceId != nil {
			opts = append(opts, WithDeviceIdCallback(cfg.DeviceId))
		}
		return NewHTTPBackend(opts...), nil

	default:
		return nil, fmt.Errorf("unknown backend type: %q", cfg.BackendType)
	}
}
