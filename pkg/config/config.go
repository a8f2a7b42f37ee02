package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	DefaultOptionsFileName = "OPTIONS"
	CurrentOptionsVersion  = 1
)

var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrOptionsNotFound = errors.New("options file not found")
	ErrInvalidOptions  = errors.New("invalid options file")
)

// Compression names accepted by BlockCompression
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionZstd   = "zstd"
)

type Config struct {
	Version int `json:"version"`

	// Write buffer configuration
	WriteBufferSize      int64   `json:"write_buffer_size"`
	ArenaBlockSize       int64   `json:"arena_block_size"`
	MaxSuccessiveMerges  int     `json:"max_successive_merges"`
	InplaceUpdateSupport bool    `json:"inplace_update_support"`
	FlushUsageRatio      float64 `json:"flush_usage_ratio"`
	MaxImmutableTables   int     `json:"max_immutable_tables"`

	// Block configuration
	BlockRestartInterval int    `json:"block_restart_interval"`
	BlockCompression     string `json:"block_compression"`
	VerifyChecksums      bool   `json:"verify_checksums"`

	// Read path configuration
	MaxRangeResults int `json:"max_range_results"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentOptionsVersion,

		// Write buffer defaults
		WriteBufferSize:      64 * 1024 * 1024, // 64MB
		ArenaBlockSize:       1024 * 1024,      // 1MB
		MaxSuccessiveMerges:  0,                // unlimited
		InplaceUpdateSupport: false,
		FlushUsageRatio:      0.9,
		MaxImmutableTables:   4,

		// Block defaults
		BlockRestartInterval: 16, // Restart points every 16 keys
		BlockCompression:     CompressionSnappy,
		VerifyChecksums:      true,

		MaxRangeResults: 0, // unlimited
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: write buffer size must be positive", ErrInvalidConfig)
	}

	if c.ArenaBlockSize <= 0 {
		return fmt.Errorf("%w: arena block size must be positive", ErrInvalidConfig)
	}

	if c.ArenaBlockSize > c.WriteBufferSize {
		return fmt.Errorf("%w: arena block size exceeds write buffer size", ErrInvalidConfig)
	}

	if c.MaxSuccessiveMerges < 0 {
		return fmt.Errorf("%w: max successive merges must not be negative", ErrInvalidConfig)
	}

	if c.FlushUsageRatio <= 0 || c.FlushUsageRatio > 1 {
		return fmt.Errorf("%w: flush usage ratio must be in (0, 1]", ErrInvalidConfig)
	}

	if c.MaxImmutableTables <= 0 {
		return fmt.Errorf("%w: max immutable tables must be positive", ErrInvalidConfig)
	}

	if c.BlockRestartInterval <= 0 {
		return fmt.Errorf("%w: block restart interval must be positive", ErrInvalidConfig)
	}

	switch c.BlockCompression {
	case CompressionNone, CompressionSnappy, CompressionZstd:
	default:
		return fmt.Errorf("%w: unknown block compression %q", ErrInvalidConfig, c.BlockCompression)
	}

	if c.MaxRangeResults < 0 {
		return fmt.Errorf("%w: max range results must not be negative", ErrInvalidConfig)
	}

	return nil
}

// LoadConfig loads the options file from dir
func LoadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, DefaultOptionsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrOptionsNotFound
		}
		return nil, fmt.Errorf("failed to read options: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the options file in dir
func (c *Config) Save(dir string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, DefaultOptionsFileName)
	tempPath := path + ".tmp"

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write options: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename options: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// FlushThreshold returns the usage in bytes at which a write buffer asks to
// be flushed
func (c *Config) FlushThreshold() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(float64(c.WriteBufferSize) * c.FlushUsageRatio)
}
