// Package device derives the stable per-installation device id that licenses are bound to.
package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/godii/transgemma/client/data"
	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/store"
)

const (
	signalDelimiter = "|||"
	deviceIdLen     = 32
)

// Derive hashes the ordered signals into a 32 character lowercase hex id.
func Derive(s Signals) string {
	sum := sha256.Sum256([]byte(strings.Join(s.components(), signalDelimiter)))
	return hex.EncodeToString(sum[:])[:deviceIdLen]
}

// Identity hands out the device id, deriving and persisting it on first use.
type Identity struct {
	kv      store.KV
	collect func() Signals

	mu       sync.Mutex
	deviceId string
}

func NewIdentity(kv store.KV, collect func() Signals) *Identity {
	return &Identity{kv: kv, collect: collect}
}

// GetDeviceID never fails. If the id cannot be read or persisted, the freshly derived id is
// returned and the failure is logged.
func (i *Identity) GetDeviceID(ctx context.Context) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.deviceId != "" {
		return i.deviceId
	}

	// The first write happens under the database write lock, so concurrent first runs agree on one id.
	deviceId := ""
	err := i.kv.Update(ctx, data.KeyDeviceId, func(tx store.KV) error {
		var stored string
		found, err := tx.Get(ctx, data.KeyDeviceId, &stored)
		if err != nil {
			return err
		}
		if found && stored != "" {
			deviceId = stored
			return nil
		}
		deviceId = Derive(i.collect())
		return tx.Set(ctx, data.KeyDeviceId, deviceId)
	})
	if err != nil {
		hctx.GetLogger().Warnf("failed to persist device id: %v", err)
		if deviceId == "" {
			deviceId = Derive(i.collect())
		}
	}
	i.deviceId = deviceId
	return deviceId
}
