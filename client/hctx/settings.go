package hctx

import (
	"fmt"
	"sync"
)

// SettingsCache is a read-through copy of the persisted Settings. It is populated once
// when the context is built and only changes through Update, which persists the new
// value and then notifies every subscriber.
type SettingsCache struct {
	mu          sync.RWMutex
	current     Settings
	subscribers []func(Settings)
}

func NewSettingsCache(initial Settings) *SettingsCache {
	return &SettingsCache{current: initial}
}

func (c *SettingsCache) Get() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Subscribe registers fn to be called with the new settings after every successful Update.
func (c *SettingsCache) Subscribe(fn func(Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

func (c *SettingsCache) Update(fn func(*Settings)) error {
	c.mu.Lock()
	config, err := GetConfig()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to read config before updating settings: %w", err)
	}
	fn(&config.Settings)
	if err := SetConfig(&config); err != nil {
		c.mu.Unlock()
		return err
	}
	c.current = config.Settings
	updated := c.current
	subscribers := append([]func(Settings){}, c.subscribers...)
	c.mu.Unlock()

	for _, sub := range subscribers {
		sub(updated)
	}
	return nil
}
