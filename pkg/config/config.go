// Package config manages runtime settings for the process: backend DSNs,
// the cache endpoint, and federation switches. Query metadata does not
// live here; that is the metadata registry's job.
package config

import (
	"strconv"
	"sync"
)

// Config is a concurrency-safe key/value settings store.
type Config struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty configuration.
func New() *Config {
	return &Config{values: make(map[string]string)}
}

// Get retrieves a value; absent keys return the empty string.
func (c *Config) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetBool interprets a value as a boolean; absent or malformed keys are
// false.
func (c *Config) GetBool(key string) bool {
	v, err := strconv.ParseBool(c.Get(key))
	return err == nil && v
}

// GetInt interprets a value as an integer, falling back to def.
func (c *Config) GetInt(key string, def int) int {
	v, err := strconv.Atoi(c.Get(key))
	if err != nil {
		return def
	}
	return v
}

// Set stores one value.
func (c *Config) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Update stores multiple values.
func (c *Config) Update(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.values[k] = v
	}
}

// GetAll returns a copy of all values.
func (c *Config) GetAll() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
