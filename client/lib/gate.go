package lib

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/godii/transgemma/client/data"
	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/store"
	"github.com/godii/transgemma/shared"
	"github.com/samber/lo"
)

// DeviceIdentity provides the id licenses are bound to.
type DeviceIdentity interface {
	GetDeviceID(ctx context.Context) string
}

// UsageDecision is the answer to "may the user run this metered action now?". Remaining is
// only meaningful for users without a license.
type UsageDecision struct {
	Allowed   bool
	IsPro     bool
	Remaining int
	Message   string
}

// LicenseStatus is a read-only summary for display. For Pro users DaysLeft and DeviceCount
// are set, otherwise the remaining daily allowances are.
type LicenseStatus struct {
	IsPro              bool
	DaysLeft           int
	DeviceCount        int
	ExpireAt           time.Time
	ParagraphRemaining int
	SelectionRemaining int
	Message            string
}

type QuotaGate struct {
	quota    *store.QuotaStore
	licenses *store.EntitlementStore
	identity DeviceIdentity
	client   *EntitlementClient

	paragraphLimit int
	selectionLimit int
	messages       data.Messages
	now            func() time.Time
}

type QuotaGateOption func(*QuotaGate)

// WithLimits sets the daily allowances for users without a license
func WithLimits(paragraph, selection int) QuotaGateOption {
	return func(g *QuotaGate) {
		g.paragraphLimit = paragraph
		g.selectionLimit = selection
	}
}

// WithLocale selects the language of user-facing messages
func WithLocale(locale string) QuotaGateOption {
	return func(g *QuotaGate) {
		g.messages = data.MessagesFor(locale)
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) QuotaGateOption {
	return func(g *QuotaGate) {
		g.now = now
	}
}

func NewQuotaGate(quota *store.QuotaStore, licenses *store.EntitlementStore, identity DeviceIdentity, client *EntitlementClient, opts ...QuotaGateOption) *QuotaGate {
	g := &QuotaGate{
		quota:          quota,
		licenses:       licenses,
		identity:       identity,
		client:         client,
		paragraphLimit: data.FREE_PARAGRAPH_LIMIT,
		selectionLimit: data.FREE_SELECTION_LIMIT,
		messages:       data.MessagesFor(data.LocaleEnglish),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *QuotaGate) limitFor(action data.ActionType) int {
	if action == data.ActionParagraph {
		return g.paragraphLimit
	}
	return g.selectionLimit
}

func (g *QuotaGate) CheckUsageLimit(ctx context.Context, action data.ActionType) (UsageDecision, error) {
	license, err := g.licenses.Read(ctx)
	if err != nil {
		return UsageDecision{}, fmt.Errorf("failed to read license: %w", err)
	}
	if license.IsEntitling(g.now()) {
		return UsageDecision{Allowed: true, IsPro: true}, nil
	}

	stats, err := g.quota.Read(ctx)
	if err != nil {
		return UsageDecision{}, fmt.Errorf("failed to read usage stats: %w", err)
	}
	limit := g.limitFor(action)
	count := stats.Count(action)
	if count >= limit {
		return UsageDecision{
			Allowed:   false,
			IsPro:     false,
			Remaining: 0,
			Message:   g.messages.LimitReached(action, limit),
		}, nil
	}
	return UsageDecision{Allowed: true, IsPro: false, Remaining: limit - count}, nil
}

// IncrementUsage records one successful metered action. Failed actions must not be recorded.
func (g *QuotaGate) IncrementUsage(ctx context.Context, action data.ActionType) (data.UsageStats, error) {
	stats, err := g.quota.Update(ctx, func(s *data.UsageStats) {
		s.Increment(action)
	})
	if err != nil {
		return data.UsageStats{}, fmt.Errorf("failed to record %s usage: %w", action, err)
	}
	return stats, nil
}

func (g *QuotaGate) GetLicenseStatus(ctx context.Context) (LicenseStatus, error) {
	now := g.now()
	license, err := g.licenses.Read(ctx)
	if err != nil {
		return LicenseStatus{}, fmt.Errorf("failed to read license: %w", err)
	}
	if license.IsEntitling(now) {
		daysLeft := int(math.Ceil(float64(license.ExpireTime-now.UnixMilli()) / float64((24 * time.Hour).Milliseconds())))
		deviceCount := lo.Ternary(license.DeviceCount > 0, license.DeviceCount, 1)
		return LicenseStatus{
			IsPro:       true,
			DaysLeft:    daysLeft,
			DeviceCount: deviceCount,
			ExpireAt:    license.ExpiresAt(),
			Message:     g.messages.ProStatus(daysLeft, deviceCount, shared.MaxDevicesPerLicense),
		}, nil
	}

	stats, err := g.quota.Read(ctx)
	if err != nil {
		return LicenseStatus{}, fmt.Errorf("failed to read usage stats: %w", err)
	}
	paragraphRemaining := lo.Max([]int{0, g.paragraphLimit - stats.ParagraphCount})
	selectionRemaining := lo.Max([]int{0, g.selectionLimit - stats.SelectionCount})
	return LicenseStatus{
		ParagraphRemaining: paragraphRemaining,
		SelectionRemaining: selectionRemaining,
		Message:            g.messages.FreeStatus(paragraphRemaining, selectionRemaining),
	}, nil
}

// ValidateLicenseCode activates code for this device and caches the license on success. The
// returned error is only set if the license could not be persisted.
func (g *QuotaGate) ValidateLicenseCode(ctx context.Context, code string) (ActivationResult, error) {
	code = shared.NormalizeCode(code)
	if code == "" {
		return ActivationResult{Success: false, Message: g.messages.EmptyCode()}, nil
	}
	deviceId := g.identity.GetDeviceID(ctx)
	result := g.client.Activate(ctx, code, deviceId)
	if !result.Success {
		return result, nil
	}

	deviceCount := lo.Ternary(result.DeviceCount > 0, result.DeviceCount, 1)
	license := data.License{
		Code:         code,
		Valid:        true,
		DeviceId:     deviceId,
		ActivateTime: g.now().UnixMilli(),
		ExpireTime:   shared.ToEpochMillis(result.ExpireAt),
		DeviceCount:  deviceCount,
	}
	if err := g.licenses.Write(ctx, license); err != nil {
		return ActivationResult{}, fmt.Errorf("failed to save the activated license: %w", err)
	}
	hctx.GetLogger().Infof("activated license for device %s, expires at %s", deviceId, result.ExpireAt.Format(time.RFC3339))
	result.DeviceCount = deviceCount
	result.Message = g.messages.ActivationSucceeded(deviceCount, shared.MaxDevicesPerLicense)
	return result, nil
}

// VerifyLicense re-validates the cached license and refreshes it from an authoritative answer.
func (g *QuotaGate) VerifyLicense(ctx context.Context) (VerificationResult, error) {
	license, err := g.licenses.Read(ctx)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("failed to read license: %w", err)
	}
	if license == nil || license.Code == "" {
		return VerificationResult{Valid: false}, nil
	}

	result := g.client.Verify(ctx, license.Code, g.identity.GetDeviceID(ctx))
	if result.Cached || !result.Valid {
		return result, nil
	}
	_, err = g.licenses.Update(ctx, func(l *data.License) bool {
		l.ExpireTime = shared.ToEpochMillis(result.ExpireAt)
		l.DeviceCount = result.DeviceCount
		return true
	})
	if err != nil {
		return result, fmt.Errorf("failed to refresh the cached license: %w", err)
	}
	return result, nil
}

// RunMetered runs fn if the quota allows it and records the usage if fn succeeds.
func (g *QuotaGate) RunMetered(ctx context.Context, action data.ActionType, fn func(ctx context.Context) error) error {
	decision, err := g.CheckUsageLimit(ctx, action)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, decision.Message)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	_, err = g.IncrementUsage(ctx, action)
	return err
}
