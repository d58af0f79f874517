package lib

import (
	"context"

	"github.com/godii/transgemma/client/backend"
	"github.com/godii/transgemma/client/data"
	"github.com/godii/transgemma/client/device"
	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/store"
)

// Components bundles everything built on top of a hctx context.
type Components struct {
	Identity     *device.Identity
	Quota        *store.QuotaStore
	Licenses     *store.EntitlementStore
	Backend      backend.EntitlementBackend
	Entitlements *EntitlementClient
	Gate         *QuotaGate
}

// MakeComponents wires the quota gate from the config, settings and DB stored in ctx.
func MakeComponents(ctx context.Context) (*Components, error) {
	config := hctx.GetConf(ctx)
	settings := hctx.GetSettings(ctx).Get()
	kv := store.NewSqliteKV(hctx.GetDb(ctx))

	identity := device.NewIdentity(kv, device.NewCollector(Version).Collect)
	cfg := backend.Config{
		BackendType: config.BackendType,
		ServerURL:   config.ServerURL,
		Version:     Version,
		Timeout:     config.HTTPTimeout(),
		DeviceId:    func() string { return identity.GetDeviceID(ctx) },
	}
	if IsOfflineBinary() {
		cfg.BackendType = string(backend.BackendTypeOffline)
	} else {
		cfg.HTTPClient = GetHttpClient()
	}
	b, err := backend.NewBackendFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	quota := store.NewQuotaStore(kv, nil)
	licenses := store.NewEntitlementStore(kv)
	client := NewEntitlementClient(b, licenses, data.MessagesFor(settings.Locale), nil)
	gate := NewQuotaGate(quota, licenses, identity, client,
		WithLimits(config.ParagraphLimit, config.SelectionLimit),
		WithLocale(settings.Locale),
	)
	return &Components{
		Identity:     identity,
		Quota:        quota,
		Licenses:     licenses,
		Backend:      b,
		Entitlements: client,
		Gate:         gate,
	}, nil
}
