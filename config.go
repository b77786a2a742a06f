package authcore

import (
	"bytes"
	"errors"
	"time"
)

// Config defines every tunable of the token lifecycle engine. Instances are
// configured before Builder.Build and treated as immutable afterwards; the
// Engine keeps a private clone.
type Config struct {
	JWT       JWTConfig
	Store     StoreConfig
	Cache     CacheConfig
	Directory DirectoryConfig
	Security  SecurityConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig carries the per-class signing material. AccessSecret and
// RefreshSecret must differ: the classes never share a key.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Leeway is the clock-skew tolerance applied to expiry checks.
	// Zero means exact enforcement.
	Leeway time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig tunes the durable token store.
type StoreConfig struct {
	Timeout time.Duration
	// Retention is how long expired rows are kept before PurgeExpired
	// hard-deletes them.
	Retention time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig tunes the Redis revocation cache.
type CacheConfig struct {
	KeyPrefix string
	Timeout   time.Duration
	// ReadRetryInterval is the pause before the single retry of an
	// idempotent cache read.
	ReadRetryInterval time.Duration
}

/*
====================================
DIRECTORY CONFIG
====================================
*/

// DirectoryConfig tunes calls to the external user directory.
type DirectoryConfig struct {
	Timeout time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds hardening switches.
type SecurityConfig struct {
	// EnforceDeviceMatch fails a refresh whose device fingerprint differs
	// from the one captured at login. Off by default: mismatches are
	// logged, audited, and counted but do not block.
	EnforceDeviceMatch bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the atomic metrics registry.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Secrets are not
// defaulted; Validate rejects a config without them.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     0,
		},
		Store: StoreConfig{
			Timeout:   2 * time.Second,
			Retention: 30 * 24 * time.Hour,
		},
		Cache: CacheConfig{
			KeyPrefix:         "authcore",
			Timeout:           500 * time.Millisecond,
			ReadRetryInterval: 50 * time.Millisecond,
		},
		Directory: DirectoryConfig{
			Timeout: 3 * time.Second,
		},
		Security: SecurityConfig{
			EnforceDeviceMatch: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency. It is called
// by Builder.Build and may be called directly.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT AccessSecret must be >= 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be >= 32 bytes")
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}
	if c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be <= 2m")
	}

	// Store
	if c.Store.Timeout <= 0 {
		return errors.New("Store Timeout must be > 0")
	}
	if c.Store.Retention < 0 {
		return errors.New("Store Retention must be >= 0")
	}

	// Cache
	if c.Cache.KeyPrefix == "" {
		return errors.New("Cache KeyPrefix must not be empty")
	}
	if c.Cache.Timeout <= 0 {
		return errors.New("Cache Timeout must be > 0")
	}
	if c.Cache.ReadRetryInterval <= 0 {
		return errors.New("Cache ReadRetryInterval must be > 0")
	}

	// Directory
	if c.Directory.Timeout <= 0 {
		return errors.New("Directory Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	return nil
}
