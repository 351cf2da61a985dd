// Package config loads the ingestion engine's configuration from a YAML
// file with environment-variable overrides for connection secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// OrganizationSource describes where to reach one upstream organization's
// archive (FTP or HTTP), how to time out on it, and how to discover its
// releases.
type OrganizationSource struct {
	Slug           string        `yaml:"slug"`
	Protocol       string        `yaml:"protocol"` // "ftp" or "http"
	Host           string        `yaml:"host"`
	CurrentPath    string        `yaml:"current_path"`
	HistoricalPath string        `yaml:"historical_path"`
	Timeout        time.Duration `yaml:"timeout"`

	// DateEstimation configures the linear release-date estimate a
	// monotone-integer version strategy (GenBank, RefSeq) falls back on
	// when the upstream listing carries no usable ModTime. Per spec's
	// Open Question on this, the formula's constants drift between
	// upstream documents, so they're configuration rather than a
	// hard-coded guess.
	DateEstimation DateEstimationConfig `yaml:"date_estimation"`
}

// DateEstimationConfig configures discovery.LinearDateEstimation for one
// organization source.
type DateEstimationConfig struct {
	EpochRelease int       `yaml:"epoch_release"`
	Epoch        time.Time `yaml:"epoch"`
	PeriodDays   float64   `yaml:"period_days"`
}

// S3SSEConfig configures server-side encryption for uploaded objects.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "", "sse-s3", "sse-kms"
	KMSKeyID string `yaml:"kms_key_id,omitempty"`
}

// S3Config configures the object-store backend (AWS S3 or an S3-compatible
// service such as MinIO).
type S3Config struct {
	Bucket                string      `yaml:"bucket"`
	Region                string      `yaml:"region"`
	Endpoint              string      `yaml:"endpoint,omitempty"`
	Prefix                string      `yaml:"prefix,omitempty"`
	AccessKey             string      `yaml:"access_key,omitempty"`
	SecretKey             string      `yaml:"secret_key,omitempty"`
	UsePathStyle          bool        `yaml:"use_path_style,omitempty"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify,omitempty"`
	SSE                   S3SSEConfig `yaml:"sse,omitempty"`
}

// Config is the top-level configuration surface enumerated in spec.md §6.4.
type Config struct {
	// DatabaseDSN is the Postgres connection string for the coordination
	// substrate (ingestion_jobs, ingestion_work_units, registry, versions).
	DatabaseDSN string `yaml:"database_dsn"`

	S3 S3Config `yaml:"s3"`

	// CacheDir is the local disk path for decompressed upstream archives.
	CacheDir string `yaml:"cache_dir"`

	// BatchSize is the Work-Unit record width (default 1000, recommended
	// 500-5000).
	BatchSize int `yaml:"batch_size"`

	// MaxWorkers is the per-process worker count (default 4, range 1-32).
	MaxWorkers int `yaml:"max_workers"`

	// HeartbeatIntervalSecs is the worker heartbeat period (default 30s).
	HeartbeatIntervalSecs int `yaml:"heartbeat_interval_secs"`

	// WorkerTimeoutSecs is the dead-worker threshold (default 300s).
	WorkerTimeoutSecs int `yaml:"worker_timeout_secs"`

	// MaxRetries is the Work-Unit retry cap (default 3).
	MaxRetries int `yaml:"max_retries"`

	// OrganismCacheTTLSecs is the organism-cache refresh period (default
	// 300s).
	OrganismCacheTTLSecs int `yaml:"organism_cache_ttl_secs"`

	// ParallelUploads bounds concurrent object-store PUTs (default 50).
	ParallelUploads int `yaml:"parallel_uploads"`

	// StoreBatchSize is the transaction batch size for the storage engine
	// (default 100).
	StoreBatchSize int `yaml:"store_batch_size"`

	// DownloadTimeoutSecs bounds a single file download (default 600s).
	DownloadTimeoutSecs int `yaml:"download_timeout_secs"`

	// FetchRetries bounds fetcher retry attempts (default 3).
	FetchRetries int `yaml:"fetch_retries"`

	// Sources maps an organization slug to its upstream location.
	Sources []OrganizationSource `yaml:"sources"`
}

// Defaults returns a Config populated with the spec's documented defaults.
func Defaults() Config {
	return Config{
		CacheDir:              "/var/cache/bioingest",
		BatchSize:             1000,
		MaxWorkers:            4,
		HeartbeatIntervalSecs: 30,
		WorkerTimeoutSecs:     300,
		MaxRetries:            3,
		OrganismCacheTTLSecs:  300,
		ParallelUploads:       50,
		StoreBatchSize:        100,
		DownloadTimeoutSecs:   600,
		FetchRetries:          3,
	}
}

// HeartbeatInterval returns HeartbeatIntervalSecs as a time.Duration.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSecs) * time.Second
}

// WorkerTimeout returns WorkerTimeoutSecs as a time.Duration.
func (c Config) WorkerTimeout() time.Duration {
	return time.Duration(c.WorkerTimeoutSecs) * time.Second
}

// OrganismCacheTTL returns OrganismCacheTTLSecs as a time.Duration.
func (c Config) OrganismCacheTTL() time.Duration {
	return time.Duration(c.OrganismCacheTTLSecs) * time.Second
}

// DownloadTimeout returns DownloadTimeoutSecs as a time.Duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSecs) * time.Second
}

// LoadConfig reads a YAML config file at path, applies spec defaults for
// any field the file omits, and overrides secrets from the environment.
func LoadConfig(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	// Unmarshal onto the defaults so an omitted field keeps its default
	// rather than zeroing out.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BIOINGEST_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("BIOINGEST_S3_ACCESS_KEY"); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv("BIOINGEST_S3_SECRET_KEY"); v != "" {
		cfg.S3.SecretKey = v
	}
	if v := os.Getenv("BIOINGEST_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("BIOINGEST_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
}

// Validate checks that the required fields for normal operation are set.
func (c Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("config: database_dsn is required")
	}
	if c.S3.Bucket == "" {
		return fmt.Errorf("config: s3.bucket is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("config: max_workers must be positive")
	}
	return nil
}

// SourceFor returns the configured OrganizationSource for slug, if any.
func (c Config) SourceFor(slug string) (OrganizationSource, bool) {
	for _, s := range c.Sources {
		if s.Slug == slug {
			return s, true
		}
	}
	return OrganizationSource{}, false
}
