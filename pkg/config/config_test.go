package config

import (
	"os"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Client.Mode != "default" {
		t.Errorf("Mode = %q", cfg.Client.Mode)
	}
	if cfg.Client.BatchSize != 50 {
		t.Errorf("BatchSize = %d", cfg.Client.BatchSize)
	}
	if cfg.Queue.MaxSize != 1000 {
		t.Errorf("MaxSize = %d", cfg.Queue.MaxSize)
	}
	if cfg.Transport.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v", cfg.Transport.MaxBackoff)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d", cfg.Breaker.FailureThreshold)
	}
}

func TestMerge_OverridesNonZeroOnly(t *testing.T) {
	m := NewManager()

	m.merge(&Config{
		Client: ClientConfig{Mode: "privacy", BatchSize: 25},
		Queue:  QueueConfig{MaxSize: 200},
	})

	cfg := m.Get()
	if cfg.Client.Mode != "privacy" {
		t.Errorf("Mode = %q", cfg.Client.Mode)
	}
	if cfg.Client.BatchSize != 25 {
		t.Errorf("BatchSize = %d", cfg.Client.BatchSize)
	}
	if cfg.Queue.MaxSize != 200 {
		t.Errorf("MaxSize = %d", cfg.Queue.MaxSize)
	}
	// Untouched fields keep their defaults.
	if cfg.Client.FlushInterval != 30*time.Second {
		t.Errorf("FlushInterval = %v", cfg.Client.FlushInterval)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadEnv(t *testing.T) {
	os.Setenv("PULSEFLOW_MODE", "privacy")
	os.Setenv("PULSEFLOW_ENDPOINT", "https://ingest.example.com")
	os.Setenv("PULSEFLOW_DISABLED", "true")
	os.Setenv("PULSEFLOW_BATCH_SIZE", "10")
	defer func() {
		os.Unsetenv("PULSEFLOW_MODE")
		os.Unsetenv("PULSEFLOW_ENDPOINT")
		os.Unsetenv("PULSEFLOW_DISABLED")
		os.Unsetenv("PULSEFLOW_BATCH_SIZE")
	}()

	m := NewManager()
	m.loadEnv()

	cfg := m.Get()
	if cfg.Client.Mode != "privacy" {
		t.Errorf("Mode = %q", cfg.Client.Mode)
	}
	if cfg.Transport.Endpoint != "https://ingest.example.com" {
		t.Errorf("Endpoint = %q", cfg.Transport.Endpoint)
	}
	if !cfg.Transport.Disabled {
		t.Error("Disabled should be set")
	}
	if cfg.Client.BatchSize != 10 {
		t.Errorf("BatchSize = %d", cfg.Client.BatchSize)
	}
}
