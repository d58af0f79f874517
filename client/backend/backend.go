// Package backend provides the transport to the entitlement authority. It supports two
// backend types:
//   - HTTPBackend: talks to the license server API (default)
//   - OfflineBackend: never reaches the network, every call fails with ErrOffline
package backend

import (
	"context"
	"errors"

	"github.com/godii/transgemma/shared"
)

// ErrOffline is returned by backends that cannot reach the entitlement authority.
var ErrOffline = errors.New("entitlement authority is unreachable")

// EntitlementBackend defines the remote operations of the entitlement authority.
// A returned error always means the authority gave no authoritative answer. Rejections are
// reported in the response body.
type EntitlementBackend interface {
	// Activate binds deviceId to a license code.
	// For HTTP: POST /api/license/activate
	Activate(ctx context.Context, req shared.ActivateRequest) (*shared.ActivateResponse, error)

	// Verify re-checks a previously activated code for deviceId.
	// For HTTP: POST /api/license/verify
	Verify(ctx context.Context, req shared.VerifyRequest) (*shared.VerifyResponse, error)

	// Ping checks if the authority is reachable.
	// For HTTP: GET /api/ping
	Ping(ctx context.Context) error

	// Type returns the backend type identifier ("http" or "offline").
	Type() string
}

// BackendType represents the type of entitlement backend
type BackendType string

const (
	BackendTypeHTTP    BackendType = "http"
	BackendTypeOffline BackendType = "offline"
)

// OfflineBackend is used when the user disabled network access. Activation and verification
// behave exactly as if the authority were down.
type OfflineBackend struct{}

func NewOfflineBackend() *OfflineBackend {
	return &OfflineBackend{}
}

func (*OfflineBackend) Activate(context.Context, shared.ActivateRequest) (*shared.ActivateResponse, error) {
	return nil, ErrOffline
}

func (*OfflineBackend) Verify(context.Context, shared.VerifyRequest) (*shared.VerifyResponse, error) {
	return nil, ErrOffline
}

func (*OfflineBackend) Ping(context.Context) error {
	return ErrOffline
}

func (*OfflineBackend) Type() string {
	return string(BackendTypeOffline)
}
