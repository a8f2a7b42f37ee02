// ABOUTME: Tests for telemetry configuration validation, environment variable loading, and default values
// ABOUTME: Ensures configuration behaves correctly with valid and invalid inputs using real config operations

package telemetry

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "lsmcore" {
		t.Errorf("Expected default service name 'lsmcore', got '%s'", cfg.ServiceName)
	}

	if !cfg.Enabled {
		t.Error("Expected telemetry to be enabled by default")
	}

	if len(cfg.Exporters) != 1 || cfg.Exporters[0] != "stdout" {
		t.Errorf("Expected default exporters ['stdout'], got %v", cfg.Exporters)
	}

	if cfg.ExportTimeout != 30*time.Second {
		t.Errorf("Expected default export timeout 30s, got %s", cfg.ExportTimeout)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"empty service version", func(c *Config) { c.ServiceVersion = "" }},
		{"negative sample rate", func(c *Config) { c.SampleRate = -0.1 }},
		{"sample rate above one", func(c *Config) { c.SampleRate = 1.1 }},
		{"zero export timeout", func(c *Config) { c.ExportTimeout = 0 }},
		{"zero batch timeout", func(c *Config) { c.BatchTimeout = 0 }},
		{"zero queue size", func(c *Config) { c.MaxQueueSize = 0 }},
		{"zero batch size", func(c *Config) { c.MaxExportBatchSize = 0 }},
		{"unknown exporter", func(c *Config) { c.Exporters = []string{"prometheus"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error but got none")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LSMCORE_TELEMETRY_SERVICE_NAME", "shell")
	t.Setenv("LSMCORE_TELEMETRY_ENABLED", "false")
	t.Setenv("LSMCORE_TELEMETRY_EXPORTERS", "stdout, stderr")
	t.Setenv("LSMCORE_TELEMETRY_SAMPLE_RATE", "0.25")
	t.Setenv("LSMCORE_TELEMETRY_BATCH_TIMEOUT", "250ms")
	t.Setenv("LSMCORE_TELEMETRY_MAX_QUEUE_SIZE", "not-a-number")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	if cfg.ServiceName != "shell" {
		t.Errorf("Expected service name 'shell', got '%s'", cfg.ServiceName)
	}
	if cfg.Enabled {
		t.Error("Expected telemetry to be disabled")
	}
	if !cfg.HasExporter("stderr") || !cfg.HasExporter("stdout") {
		t.Errorf("Expected trimmed exporters, got %v", cfg.Exporters)
	}
	if cfg.SampleRate != 0.25 {
		t.Errorf("Expected sample rate 0.25, got %f", cfg.SampleRate)
	}
	if cfg.BatchTimeout != 250*time.Millisecond {
		t.Errorf("Expected batch timeout 250ms, got %s", cfg.BatchTimeout)
	}
	if cfg.MaxQueueSize != DefaultConfig().MaxQueueSize {
		t.Errorf("Expected unparsable value to be ignored, got %d", cfg.MaxQueueSize)
	}
}
