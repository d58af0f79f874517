package store

import (
	"context"
	"sync"

	"github.com/godii/transgemma/client/data"
)

// EntitlementStore is a plain record store for the cached License. It does not look at
// expiry; callers decide what a stored license means.
type EntitlementStore struct {
	kv KV
	mu sync.Mutex
}

func NewEntitlementStore(kv KV) *EntitlementStore {
	return &EntitlementStore{kv: kv}
}

// Read returns the stored license, or nil if none was ever activated.
func (s *EntitlementStore) Read(ctx context.Context) (*data.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

func (s *EntitlementStore) read(ctx context.Context) (*data.License, error) {
	return readLicense(ctx, s.kv)
}

func readLicense(ctx context.Context, kv KV) (*data.License, error) {
	var license data.License
	found, err := kv.Get(ctx, data.KeyLicense, &license)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &license, nil
}

func (s *EntitlementStore) Write(ctx context.Context, license data.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(ctx, data.KeyLicense, license)
}

// Update applies fn to the stored license and persists it if fn returns true. It is a
// no-op when no license is stored.
func (s *EntitlementStore) Update(ctx context.Context, fn func(*data.License) bool) (*data.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var license *data.License
	err := s.kv.Update(ctx, data.KeyLicense, func(tx KV) error {
		current, err := readLicense(ctx, tx)
		if err != nil {
			return err
		}
		license = current
		if current == nil || !fn(current) {
			return nil
		}
		return tx.Set(ctx, data.KeyLicense, *current)
	})
	if err != nil {
		return nil, err
	}
	return license, nil
}
