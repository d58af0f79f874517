package lib

import (
	"context"
	"time"

	"github.com/godii/transgemma/client/backend"
	"github.com/godii/transgemma/client/data"
	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/store"
	"github.com/godii/transgemma/shared"
)

type ActivationResult struct {
	Success     bool
	Message     string
	ExpireAt    time.Time
	DeviceCount int
}

// VerificationResult is either the authority's answer or, when Cached is set, the locally
// stored license's own evaluation.
type VerificationResult struct {
	Valid       bool
	ExpireAt    time.Time
	DeviceCount int
	Cached      bool
}

// EntitlementClient talks to the entitlement authority. It never writes local state.
type EntitlementClient struct {
	backend  backend.EntitlementBackend
	licenses *store.EntitlementStore
	messages data.Messages
	now      func() time.Time
}

func NewEntitlementClient(b backend.EntitlementBackend, licenses *store.EntitlementStore, messages data.Messages, now func() time.Time) *EntitlementClient {
	if now == nil {
		now = time.Now
	}
	return &EntitlementClient{backend: b, licenses: licenses, messages: messages, now: now}
}

func (c *EntitlementClient) Activate(ctx context.Context, code, deviceId string) ActivationResult {
	resp, err := c.backend.Activate(ctx, shared.ActivateRequest{Code: shared.NormalizeCode(code), DeviceId: deviceId})
	if err != nil {
		hctx.GetLogger().Warnf("license activation failed to reach the authority (offline=%v): %v", IsOfflineError(err), err)
		return ActivationResult{Success: false, Message: c.messages.NetworkError()}
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = c.messages.ActivationFailed()
		}
		return ActivationResult{Success: false, Message: msg}
	}
	return ActivationResult{
		Success:     true,
		Message:     resp.Message,
		ExpireAt:    shared.FromEpochMillis(resp.ExpireAt),
		DeviceCount: resp.DeviceCount,
	}
}

func (c *EntitlementClient) Verify(ctx context.Context, code, deviceId string) VerificationResult {
	resp, err := c.backend.Verify(ctx, shared.VerifyRequest{Code: shared.NormalizeCode(code), DeviceId: deviceId})
	if err == nil {
		return VerificationResult{
			Valid:       resp.Valid,
			ExpireAt:    shared.FromEpochMillis(resp.ExpireAt),
			DeviceCount: resp.DeviceCount,
		}
	}
	hctx.GetLogger().Warnf("license verification failed to reach the authority, using the cached license: %v", err)
	cached, err := c.licenses.Read(ctx)
	if err != nil {
		hctx.GetLogger().Warnf("failed to read the cached license: %v", err)
		return VerificationResult{Valid: false, Cached: true}
	}
	result := VerificationResult{Valid: cached.IsEntitling(c.now()), Cached: true}
	if cached != nil {
		result.ExpireAt = cached.ExpiresAt()
		result.DeviceCount = cached.DeviceCount
	}
	return result
}
