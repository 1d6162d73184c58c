package cache

import (
	"github.com/goliatone/go-querystate/internal/cacheinfra"
)

// Config exposes the result-set cache options to consumers of the cache package.
type Config = cacheinfra.Config

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig = cacheinfra.EarlyRefreshConfig

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return cacheinfra.DefaultConfig()
}

// NewCacheService constructs the sturdyc-backed cache service.
func NewCacheService(cfg Config) (CacheService, error) {
	return cacheinfra.NewSturdycService(cfg)
}
