// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all PulseFlow configuration.
type Config struct {
	Version int `yaml:"version"`

	Client    ClientConfig    `yaml:"client"`
	Queue     QueueConfig     `yaml:"queue"`
	Transport TransportConfig `yaml:"transport"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy"`
	Storage   StorageConfig   `yaml:"storage"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ClientConfig controls the event pipeline front end.
type ClientConfig struct {
	Mode                string        `yaml:"mode"` // default | privacy
	BatchSize           int           `yaml:"batch_size"`
	FlushInterval       time.Duration `yaml:"flush_interval"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	MaxRetries          int           `yaml:"max_retries"`
	AppVersion          string        `yaml:"app_version"`
	Platform            string        `yaml:"platform"`
}

// QueueConfig controls the durable outbound queue.
type QueueConfig struct {
	MaxSize int    `yaml:"max_size"`
	Key     string `yaml:"key"`
}

// TransportConfig controls delivery to the ingestion endpoint.
type TransportConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Disabled       bool          `yaml:"disabled"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// BreakerConfig controls the circuit breaker guarding the endpoint.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MonitoringPeriod time.Duration `yaml:"monitoring_period"`
}

// TaxonomyConfig locates the event taxonomy.
type TaxonomyConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// StorageConfig selects the queue persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory | file | redis
	Dir     string `yaml:"dir"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig for the redis queue backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	Prefix   string `yaml:"prefix"`
}

// ArchiveConfig for the dead-letter archive.
type ArchiveConfig struct {
	Backend string `yaml:"backend"` // none | memory | s3

	S3 S3Config `yaml:"s3"`
}

// S3Config for the S3 dead-letter backend.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// TelemetryConfig for optional trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	pulseflowDir := filepath.Join(homeDir, ".pulseflow")

	return &Config{
		Version: 1,
		Client: ClientConfig{
			Mode:                "default",
			BatchSize:           50,
			FlushInterval:       30 * time.Second,
			MaintenanceInterval: 5 * time.Minute,
			MaxRetries:          5,
		},
		Queue: QueueConfig{
			MaxSize: 1000,
			Key:     "analytics_queue",
		},
		Transport: TransportConfig{
			MaxRetries:     3,
			BaseBackoff:    time.Second,
			MaxBackoff:     30 * time.Second,
			RequestTimeout: 15 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			MonitoringPeriod: 2 * time.Minute,
		},
		Taxonomy: TaxonomyConfig{
			Path: filepath.Join(pulseflowDir, "taxonomy.yaml"),
		},
		Storage: StorageConfig{
			Backend: "file",
			Dir:     filepath.Join(pulseflowDir, "queue"),
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "pulseflow:queue:",
			},
		},
		Archive: ArchiveConfig{
			Backend: "none",
			S3: S3Config{
				Prefix: "dead-letter/",
			},
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()

	// Load from paths in order (later overrides earlier)
	paths := m.getConfigPaths()
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but surface errors for existing files
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// Override with environment variables
	m.loadEnv()

	// Ensure directories exist
	m.ensureDirs()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/pulseflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".pulseflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".pulseflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Client
	if src.Client.Mode != "" {
		m.config.Client.Mode = src.Client.Mode
	}
	if src.Client.BatchSize != 0 {
		m.config.Client.BatchSize = src.Client.BatchSize
	}
	if src.Client.FlushInterval != 0 {
		m.config.Client.FlushInterval = src.Client.FlushInterval
	}
	if src.Client.MaintenanceInterval != 0 {
		m.config.Client.MaintenanceInterval = src.Client.MaintenanceInterval
	}
	if src.Client.MaxRetries != 0 {
		m.config.Client.MaxRetries = src.Client.MaxRetries
	}
	if src.Client.AppVersion != "" {
		m.config.Client.AppVersion = src.Client.AppVersion
	}
	if src.Client.Platform != "" {
		m.config.Client.Platform = src.Client.Platform
	}

	// Queue
	if src.Queue.MaxSize != 0 {
		m.config.Queue.MaxSize = src.Queue.MaxSize
	}
	if src.Queue.Key != "" {
		m.config.Queue.Key = src.Queue.Key
	}

	// Transport
	if src.Transport.Endpoint != "" {
		m.config.Transport.Endpoint = src.Transport.Endpoint
	}
	if src.Transport.Disabled {
		m.config.Transport.Disabled = true
	}
	if src.Transport.MaxRetries != 0 {
		m.config.Transport.MaxRetries = src.Transport.MaxRetries
	}
	if src.Transport.BaseBackoff != 0 {
		m.config.Transport.BaseBackoff = src.Transport.BaseBackoff
	}
	if src.Transport.MaxBackoff != 0 {
		m.config.Transport.MaxBackoff = src.Transport.MaxBackoff
	}
	if src.Transport.RequestTimeout != 0 {
		m.config.Transport.RequestTimeout = src.Transport.RequestTimeout
	}

	// Breaker
	if src.Breaker.FailureThreshold != 0 {
		m.config.Breaker.FailureThreshold = src.Breaker.FailureThreshold
	}
	if src.Breaker.SuccessThreshold != 0 {
		m.config.Breaker.SuccessThreshold = src.Breaker.SuccessThreshold
	}
	if src.Breaker.Timeout != 0 {
		m.config.Breaker.Timeout = src.Breaker.Timeout
	}
	if src.Breaker.MonitoringPeriod != 0 {
		m.config.Breaker.MonitoringPeriod = src.Breaker.MonitoringPeriod
	}

	// Taxonomy
	if src.Taxonomy.Path != "" {
		m.config.Taxonomy.Path = src.Taxonomy.Path
	}
	if src.Taxonomy.Watch {
		m.config.Taxonomy.Watch = true
	}

	// Storage
	if src.Storage.Backend != "" {
		m.config.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.Dir != "" {
		m.config.Storage.Dir = src.Storage.Dir
	}
	if src.Storage.Redis.Address != "" {
		m.config.Storage.Redis.Address = src.Storage.Redis.Address
	}
	if src.Storage.Redis.Password != "" {
		m.config.Storage.Redis.Password = src.Storage.Redis.Password
	}
	if src.Storage.Redis.Database != 0 {
		m.config.Storage.Redis.Database = src.Storage.Redis.Database
	}
	if src.Storage.Redis.Prefix != "" {
		m.config.Storage.Redis.Prefix = src.Storage.Redis.Prefix
	}

	// Archive
	if src.Archive.Backend != "" {
		m.config.Archive.Backend = src.Archive.Backend
	}
	if src.Archive.S3.Bucket != "" {
		m.config.Archive.S3.Bucket = src.Archive.S3.Bucket
	}
	if src.Archive.S3.Prefix != "" {
		m.config.Archive.S3.Prefix = src.Archive.S3.Prefix
	}
	if src.Archive.S3.Region != "" {
		m.config.Archive.S3.Region = src.Archive.S3.Region
	}
	if src.Archive.S3.Endpoint != "" {
		m.config.Archive.S3.Endpoint = src.Archive.S3.Endpoint
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("PULSEFLOW_MODE"); v != "" {
		m.config.Client.Mode = v
	}

	if v := os.Getenv("PULSEFLOW_ENDPOINT"); v != "" {
		m.config.Transport.Endpoint = v
	}

	if v := os.Getenv("PULSEFLOW_DISABLED"); v == "1" || v == "true" {
		m.config.Transport.Disabled = true
	}

	if v := os.Getenv("PULSEFLOW_TAXONOMY"); v != "" {
		m.config.Taxonomy.Path = v
	}

	if v := os.Getenv("PULSEFLOW_STORAGE"); v != "" {
		m.config.Storage.Backend = v
	}

	if v := os.Getenv("PULSEFLOW_REDIS_ADDR"); v != "" {
		m.config.Storage.Redis.Address = v
	}

	if v := os.Getenv("PULSEFLOW_BATCH_SIZE"); v != "" {
		var size int
		if _, err := fmt.Sscanf(v, "%d", &size); err == nil {
			m.config.Client.BatchSize = size
		}
	}

	if v := os.Getenv("PULSEFLOW_QUEUE_MAX"); v != "" {
		var max int
		if _, err := fmt.Sscanf(v, "%d", &max); err == nil {
			m.config.Queue.MaxSize = max
		}
	}
}

// ensureDirs creates necessary directories.
func (m *Manager) ensureDirs() {
	dirs := []string{
		m.config.Storage.Dir,
		filepath.Dir(m.config.Taxonomy.Path),
	}

	for _, dir := range dirs {
		os.MkdirAll(dir, 0755)
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".pulseflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
