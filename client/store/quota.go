package store

import (
	"context"
	"sync"
	"time"

	"github.com/godii/transgemma/client/data"
)

// QuotaStore persists the daily UsageStats record.
type QuotaStore struct {
	kv  KV
	now func() time.Time
	mu  sync.Mutex
}

func NewQuotaStore(kv KV, now func() time.Time) *QuotaStore {
	if now == nil {
		now = time.Now
	}
	return &QuotaStore{kv: kv, now: now}
}

// Read returns today's usage. A record from an earlier day reads as a zeroed record for
// today, but the stored record is only replaced on the next Write.
func (s *QuotaStore) Read(ctx context.Context) (data.UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

func (s *QuotaStore) read(ctx context.Context) (data.UsageStats, error) {
	return readUsage(ctx, s.kv, data.DayOf(s.now()))
}

func readUsage(ctx context.Context, kv KV, today string) (data.UsageStats, error) {
	var stats data.UsageStats
	found, err := kv.Get(ctx, data.KeyUsageStats, &stats)
	if err != nil {
		return data.UsageStats{}, err
	}
	if !found || stats.Date != today {
		return data.EmptyUsageStats(today), nil
	}
	return stats, nil
}

func (s *QuotaStore) Write(ctx context.Context, stats data.UsageStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(ctx, data.KeyUsageStats, stats)
}

// Update applies fn to the current (lazily reset) stats and persists the result, stamped
// with today's date. Updates are serialized within the process and, through the database's
// write lock, across processes.
func (s *QuotaStore) Update(ctx context.Context, fn func(*data.UsageStats)) (data.UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats data.UsageStats
	err := s.kv.Update(ctx, data.KeyUsageStats, func(tx KV) error {
		today := data.DayOf(s.now())
		current, err := readUsage(ctx, tx, today)
		if err != nil {
			return err
		}
		fn(&current)
		current.Date = today
		if err := tx.Set(ctx, data.KeyUsageStats, current); err != nil {
			return err
		}
		stats = current
		return nil
	})
	if err != nil {
		return data.UsageStats{}, err
	}
	return stats, nil
}
