// Package config loads duskvault's settings from the process environment
// and an optional .env file, the way the Python reference's
// pydantic_settings layer does: declare, validate once at startup, then let
// the rest of the program read a plain struct.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full set of settings governing one duskvaultd process.
type Config struct {
	// RedisURL is the KV connection string. Must start with "redis://".
	RedisURL string

	// StoragePath is the root directory under which every upload's
	// directory is created. Created at startup if missing.
	StoragePath string

	// WordlistPath points at the diceware-style word list consumed by
	// internal/wordlist. Must exist and yield exactly 7776 words.
	WordlistPath string

	// AllowedMIMETypes is the validation allow-list; empty means
	// permit-all. Entries may end in "*" to match a category.
	AllowedMIMETypes []string

	// MaxFileSize is the maximum accepted plaintext size, in bytes.
	MaxFileSize int64

	// CleanupIntervalMinutes is how often the reaper scans the storage
	// root for orphaned directories.
	CleanupIntervalMinutes int

	// OrphanAgeMinutes is the minimum age (by directory modification time) an
	// indexless directory must reach before the reaper deletes it.
	OrphanAgeMinutes int

	// ShredPasses is the number of random-overwrite passes performed
	// before unlinking a blob.
	ShredPasses int

	// FailThreshold is the number of lookup misses from one source, in
	// one scope, before that source is blocked.
	FailThreshold int

	// BlockWindowSeconds is how long a block flag survives once set.
	BlockWindowSeconds int

	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string

	// RedisMaxConnections caps the KV connection pool's active connections.
	RedisMaxConnections int

	// RedisDialTimeoutSeconds bounds how long a new Redis connection may
	// take to establish before the dial fails.
	RedisDialTimeoutSeconds int

	// RedisHealthCheckIntervalSeconds is the minimum idle time before a
	// pooled connection is re-pinged with PING before reuse.
	RedisHealthCheckIntervalSeconds int
}

const (
	envRedisURL      = "DUSKVAULT_REDIS_URL"
	envStoragePath   = "DUSKVAULT_STORAGE_PATH"
	envWordlistPath  = "DUSKVAULT_WORDLIST_PATH"
	envAllowedMIME   = "DUSKVAULT_ALLOWED_MIME_TYPES"
	envMaxFileSize   = "DUSKVAULT_MAX_FILE_SIZE"
	envCleanupMins   = "DUSKVAULT_CLEANUP_INTERVAL_MINUTES"
	envOrphanAgeMins = "DUSKVAULT_ORPHAN_AGE_MINUTES"
	envShredPasses   = "DUSKVAULT_SHRED_PASSES"
	envFailThreshold = "DUSKVAULT_DOWNLOAD_FAIL_THRESHOLD"
	envBlockWindow   = "DUSKVAULT_BLOCK_WINDOW_SECONDS"
	envListenAddr    = "DUSKVAULT_LISTEN_ADDR"

	envRedisMaxConns       = "DUSKVAULT_REDIS_MAX_CONNECTIONS"
	envRedisDialTimeout    = "DUSKVAULT_REDIS_DIAL_TIMEOUT_SECONDS"
	envRedisHealthInterval = "DUSKVAULT_REDIS_HEALTH_CHECK_INTERVAL_SECONDS"
)

// defaults mirrors app/config.py's Field(default=...) values.
func defaults() Config {
	return Config{
		RedisURL:               "redis://127.0.0.1:6379/0",
		StoragePath:            "./storage/uploads",
		WordlistPath:           "internal/wordlist/testdata/wordlist.txt",
		AllowedMIMETypes:       nil,
		MaxFileSize:            1024 * 1024,
		CleanupIntervalMinutes: 2,
		OrphanAgeMinutes:       120,
		ShredPasses:            1,
		FailThreshold:          5,
		BlockWindowSeconds:     900,
		ListenAddr:             ":8080",

		RedisMaxConnections:             10,
		RedisDialTimeoutSeconds:         5,
		RedisHealthCheckIntervalSeconds: 30,
	}
}

// Load reads a .env file if present (ignored if absent — errors other than
// "missing file" are surfaced), then overlays environment variables onto
// the defaults, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()

	if v, ok := os.LookupEnv(envRedisURL); ok {
		cfg.RedisURL = v
	}
	if v, ok := os.LookupEnv(envStoragePath); ok {
		cfg.StoragePath = v
	}
	if v, ok := os.LookupEnv(envWordlistPath); ok {
		cfg.WordlistPath = v
	}
	if v, ok := os.LookupEnv(envAllowedMIME); ok {
		cfg.AllowedMIMETypes = splitNonEmpty(v)
	}
	if v, ok := os.LookupEnv(envListenAddr); ok {
		cfg.ListenAddr = v
	}

	var err error
	if cfg.MaxFileSize, err = overrideInt64(envMaxFileSize, cfg.MaxFileSize); err != nil {
		return nil, err
	}
	if cfg.CleanupIntervalMinutes, err = overrideInt(envCleanupMins, cfg.CleanupIntervalMinutes); err != nil {
		return nil, err
	}
	if cfg.OrphanAgeMinutes, err = overrideInt(envOrphanAgeMins, cfg.OrphanAgeMinutes); err != nil {
		return nil, err
	}
	if cfg.ShredPasses, err = overrideInt(envShredPasses, cfg.ShredPasses); err != nil {
		return nil, err
	}
	if cfg.FailThreshold, err = overrideInt(envFailThreshold, cfg.FailThreshold); err != nil {
		return nil, err
	}
	if cfg.BlockWindowSeconds, err = overrideInt(envBlockWindow, cfg.BlockWindowSeconds); err != nil {
		return nil, err
	}
	if cfg.RedisMaxConnections, err = overrideInt(envRedisMaxConns, cfg.RedisMaxConnections); err != nil {
		return nil, err
	}
	if cfg.RedisDialTimeoutSeconds, err = overrideInt(envRedisDialTimeout, cfg.RedisDialTimeoutSeconds); err != nil {
		return nil, err
	}
	if cfg.RedisHealthCheckIntervalSeconds, err = overrideInt(envRedisHealthInterval, cfg.RedisHealthCheckIntervalSeconds); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.RedisURL, "redis://") {
		return fmt.Errorf("%s must start with 'redis://', got %q", envRedisURL, c.RedisURL)
	}
	if c.StoragePath == "" {
		return fmt.Errorf("%s must not be empty", envStoragePath)
	}
	if _, err := os.Stat(c.WordlistPath); err != nil {
		return fmt.Errorf("%s: wordlist not found at %q: %w", envWordlistPath, c.WordlistPath, err)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("%s must be > 0", envMaxFileSize)
	}
	if c.CleanupIntervalMinutes < 1 || c.CleanupIntervalMinutes > 60 {
		return fmt.Errorf("%s must be in [1, 60]", envCleanupMins)
	}
	if c.OrphanAgeMinutes <= 60 {
		return fmt.Errorf("%s must exceed the maximum upload expiry (60 minutes)", envOrphanAgeMins)
	}
	if c.ShredPasses < 1 {
		return fmt.Errorf("%s must be >= 1", envShredPasses)
	}
	if c.FailThreshold < 1 {
		return fmt.Errorf("%s must be >= 1", envFailThreshold)
	}
	if c.BlockWindowSeconds < 1 {
		return fmt.Errorf("%s must be >= 1", envBlockWindow)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%s must not be empty", envListenAddr)
	}
	if c.RedisMaxConnections < 1 {
		return fmt.Errorf("%s must be >= 1", envRedisMaxConns)
	}
	if c.RedisDialTimeoutSeconds < 1 {
		return fmt.Errorf("%s must be >= 1", envRedisDialTimeout)
	}
	if c.RedisHealthCheckIntervalSeconds < 1 {
		return fmt.Errorf("%s must be >= 1", envRedisHealthInterval)
	}
	return nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func overrideInt(name string, cur int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return cur, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", name, v, err)
	}
	return n, nil
}

func overrideInt64(name string, cur int64) (int64, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return cur, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", name, v, err)
	}
	return n, nil
}
