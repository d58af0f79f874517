package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/godii/transgemma/client/data"
	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/shared/testutils"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T) *SqliteKV {
	dir := testutils.UseTempTransgemmaPath(t)
	db, err := hctx.OpenSqliteDb(filepath.Join(dir, data.DB_PATH))
	require.NoError(t, err)
	return NewSqliteKV(db)
}

func TestKVMissingKey(t *testing.T) {
	kv := newTestKV(t)
	var out string
	found, err := kv.Get(context.Background(), "nope", &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestKVOverwrite(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	require.NoError(t, kv.Set(ctx, data.KeyDeviceId, "first"))
	require.NoError(t, kv.Set(ctx, data.KeyDeviceId, "second"))

	var out string
	found, err := kv.Get(ctx, data.KeyDeviceId, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "second", out)
}

func TestQuotaStoreLazyReset(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	clock := testutils.NewFakeClock(time.Date(2026, 10, 14, 9, 0, 0, 0, time.Local))
	qs := NewQuotaStore(kv, clock.Now)

	require.NoError(t, qs.Write(ctx, data.UsageStats{Date: "2026-10-14", ParagraphCount: 5000, SelectionCount: 3}))
	stats, err := qs.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, data.UsageStats{Date: "2026-10-14", ParagraphCount: 5000, SelectionCount: 3}, stats)

	clock.Advance(24 * time.Hour)
	stats, err = qs.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, data.UsageStats{Date: "2026-10-15", ParagraphCount: 0, SelectionCount: 0}, stats)

	// A pure read never rewrites the stored record
	var stored data.UsageStats
	found, err := kv.Get(ctx, data.KeyUsageStats, &stored)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2026-10-14", stored.Date)
	require.Equal(t, 5000, stored.ParagraphCount)
}

func TestQuotaStoreFreshInstall(t *testing.T) {
	kv := newTestKV(t)
	clock := testutils.NewFakeClock(time.Date(2026, 10, 15, 9, 0, 0, 0, time.Local))
	stats, err := NewQuotaStore(kv, clock.Now).Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, data.EmptyUsageStats("2026-10-15"), stats)
}

func TestQuotaStoreUpdateResetsBothCounters(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	clock := testutils.NewFakeClock(time.Date(2026, 10, 14, 23, 0, 0, 0, time.Local))
	qs := NewQuotaStore(kv, clock.Now)
	require.NoError(t, qs.Write(ctx, data.UsageStats{Date: "2026-10-14", ParagraphCount: 7, SelectionCount: 9}))

	clock.Advance(2 * time.Hour)
	stats, err := qs.Update(ctx, func(s *data.UsageStats) { s.Increment(data.ActionSelection) })
	require.NoError(t, err)
	require.Equal(t, data.UsageStats{Date: "2026-10-15", ParagraphCount: 0, SelectionCount: 1}, stats)

	var stored data.UsageStats
	_, err = kv.Get(ctx, data.KeyUsageStats, &stored)
	require.NoError(t, err)
	require.Equal(t, stats, stored)
}

func TestQuotaStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	qs := NewQuotaStore(newTestKV(t), nil)

	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := qs.Update(ctx, func(s *data.UsageStats) { s.Increment(data.ActionParagraph) })
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := qs.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, 20, stats.ParagraphCount)
}

func TestEntitlementStore(t *testing.T) {
	ctx := context.Background()
	es := NewEntitlementStore(newTestKV(t))

	license, err := es.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, license)

	updated, err := es.Update(ctx, func(l *data.License) bool { l.DeviceCount = 3; return true })
	require.NoError(t, err)
	require.Nil(t, updated)

	expired := data.License{
		Code:         "AB-CD",
		Valid:        true,
		DeviceId:     "0123456789abcdef0123456789abcdef",
		ActivateTime: time.Now().Add(-48 * time.Hour).UnixMilli(),
		ExpireTime:   time.Now().Add(-time.Hour).UnixMilli(),
		DeviceCount:  1,
	}
	require.NoError(t, es.Write(ctx, expired))

	// Expired licenses are stored and returned verbatim
	license, err = es.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, expired, *license)

	updated, err = es.Update(ctx, func(l *data.License) bool { l.DeviceCount = 2; return true })
	require.NoError(t, err)
	require.Equal(t, 2, updated.DeviceCount)

	license, err = es.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, license.DeviceCount)
}

func TestQuotaStoreUpdatesAcrossDatabaseHandles(t *testing.T) {
	ctx := context.Background()
	dir := testutils.UseTempTransgemmaPath(t)
	dbPath := filepath.Join(dir, data.DB_PATH)

	// Every CLI invocation opens its own handle on the same file
	var stores []*QuotaStore
	for i := 0; i < 2; i++ {
		db, err := hctx.OpenSqliteDb(dbPath)
		require.NoError(t, err)
		stores = append(stores, NewQuotaStore(NewSqliteKV(db), nil))
	}

	wg := sync.WaitGroup{}
	for _, qs := range stores {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(qs *QuotaStore) {
				defer wg.Done()
				_, err := qs.Update(ctx, func(s *data.UsageStats) { s.Increment(data.ActionParagraph) })
				require.NoError(t, err)
			}(qs)
		}
	}
	wg.Wait()

	stats, err := stores[0].Read(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, stats.ParagraphCount)
	require.Equal(t, 0, stats.SelectionCount)
}

func TestEntitlementStoreUpdatesAcrossDatabaseHandles(t *testing.T) {
	ctx := context.Background()
	dir := testutils.UseTempTransgemmaPath(t)
	dbPath := filepath.Join(dir, data.DB_PATH)

	var stores []*EntitlementStore
	for i := 0; i < 2; i++ {
		db, err := hctx.OpenSqliteDb(dbPath)
		require.NoError(t, err)
		stores = append(stores, NewEntitlementStore(NewSqliteKV(db)))
	}
	require.NoError(t, stores[0].Write(ctx, data.License{Code: "AB-CD", Valid: true}))

	wg := sync.WaitGroup{}
	for _, es := range stores {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(es *EntitlementStore) {
				defer wg.Done()
				_, err := es.Update(ctx, func(l *data.License) bool { l.DeviceCount++; return true })
				require.NoError(t, err)
			}(es)
		}
	}
	wg.Wait()

	license, err := stores[1].Read(ctx)
	require.NoError(t, err)
	require.Equal(t, 40, license.DeviceCount)
}

func TestKVUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	require.NoError(t, kv.Set(ctx, data.KeyDeviceId, "kept"))

	err := kv.Update(ctx, data.KeyDeviceId, func(tx KV) error {
		require.NoError(t, tx.Set(ctx, data.KeyDeviceId, "discarded"))
		return errors.New("abort")
	})
	require.Error(t, err)

	var out string
	_, err = kv.Get(ctx, data.KeyDeviceId, &out)
	require.NoError(t, err)
	require.Equal(t, "kept", out)
}
