// Package cache persists per-series enhancement settings so a series
// scanned again later picks up the settings that worked for it before.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"manga-optimizer/internal/enhance"
)

// SettingsCache stores saved enhancement settings keyed by series title
type SettingsCache struct {
	mu       sync.Mutex
	path     string
	settings map[string]enhance.Config
}

// New creates a settings cache backed by a JSON file under appDir
func New(appDir string) *SettingsCache {
	return &SettingsCache{
		path:     filepath.Join(appDir, "series_settings.json"),
		settings: make(map[string]enhance.Config),
	}
}

// Load reads the cache from disk. A missing file is not an error.
func (c *SettingsCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &c.settings)
}

// Get returns the saved settings for a series, if any
func (c *SettingsCache) Get(series string) (enhance.Config, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, ok := c.settings[series]
	return cfg, ok
}

// Put saves settings for a series and persists the cache
func (c *SettingsCache) Put(series string, cfg enhance.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings[series] = cfg
	return c.persistLocked()
}

// Delete removes saved settings for a series and persists the cache
func (c *SettingsCache) Delete(series string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.settings, series)
	return c.persistLocked()
}

func (c *SettingsCache) persistLocked() error {
	data, err := json.MarshalIndent(c.settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}
