// Package config loads the TOML configuration file and applies SEISMON_*
// environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "input/config.toml"

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Feed      FeedConfig      `toml:"feed"`
	Amplitude AmplitudeConfig `toml:"amplitude"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Registry  RegistryConfig  `toml:"registry"`
	Events    EventsConfig    `toml:"events"`
	Export    ExportConfig    `toml:"export"`
	Ops       OpsConfig       `toml:"ops"`
}

type DatabaseConfig struct {
	Driver   string        `toml:"driver"`   // SEISMON_DATABASE_DRIVER: postgres | sqlite (default postgres)
	User     string        `toml:"user"`     // SEISMON_DATABASE_USER
	Database string        `toml:"database"` // SEISMON_DATABASE_NAME
	Password string        `toml:"password"` // SEISMON_DATABASE_PASSWORD
	Host     string        `toml:"host"`     // SEISMON_DATABASE_HOST (default localhost)
	Port     int           `toml:"port"`     // SEISMON_DATABASE_PORT (default 5432)
	DSN      string        `toml:"dsn"`      // SEISMON_DATABASE_DSN: full postgres URL or sqlite path
	Timeout  time.Duration `toml:"timeout"`  // SEISMON_DATABASE_TIMEOUT: per storage call (default 30s)
}

type FeedConfig struct {
	Directory    string        `toml:"directory"`     // SEISMON_FEED_DIRECTORY (required)
	LookbackDays int           `toml:"lookback_days"` // SEISMON_FEED_LOOKBACK_DAYS (default 7)
	Retention    time.Duration `toml:"retention"`     // SEISMON_FEED_RETENTION (default 168h)
}

type AmplitudeConfig struct {
	DatasetDir        string  `toml:"dataset_dir"`        // SEISMON_AMPLITUDE_DATASET_DIR (default "input")
	Threshold         float64 `toml:"threshold"`          // µm/s floor for training rows (default 0.1)
	LocklossThreshold float64 `toml:"lockloss_threshold"` // m/s (default 1e-5)
}

type SchedulerConfig struct {
	Interval time.Duration `toml:"interval"` // SEISMON_SCHEDULER_INTERVAL (default 15s)
	Workers  int           `toml:"workers"`  // SEISMON_SCHEDULER_WORKERS (default 1)
}

type RegistryConfig struct {
	Catalogue string `toml:"catalogue"` // SEISMON_REGISTRY_CATALOGUE: YAML file; empty = built-in stations
}

type EventsConfig struct {
	NATSURL string `toml:"nats_url"` // SEISMON_NATS_URL (optional, empty = no events)
}

type ExportConfig struct {
	Interval   time.Duration `toml:"interval"`    // SEISMON_EXPORT_INTERVAL (0 = disabled)
	Format     string        `toml:"format"`      // jsonl | parquet (default jsonl)
	File       string        `toml:"file"`        // SEISMON_EXPORT_FILE: local destination
	S3Bucket   string        `toml:"s3_bucket"`   // SEISMON_EXPORT_S3_BUCKET (enables S3 when set)
	S3Key      string        `toml:"s3_key"`      // default "seismon/export.<format>"
	S3Region   string        `toml:"s3_region"`   // default "us-east-1"
	S3Endpoint string        `toml:"s3_endpoint"` // custom endpoint for MinIO
}

type OpsConfig struct {
	MetricsAddr string `toml:"metrics_addr"` // SEISMON_METRICS_ADDR (empty = disabled)
	HealthAddr  string `toml:"health_addr"`  // SEISMON_HEALTH_ADDR (empty = disabled)
}

// Default returns a Config with every default filled in.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			Timeout: 30 * time.Second,
		},
		Feed: FeedConfig{
			LookbackDays: 7,
			Retention:    7 * 24 * time.Hour,
		},
		Amplitude: AmplitudeConfig{
			DatasetDir:        "input",
			Threshold:         0.1,
			LocklossThreshold: 10e-6,
		},
		Scheduler: SchedulerConfig{
			Interval: 15 * time.Second,
			Workers:  1,
		},
		Export: ExportConfig{
			Format:   "jsonl",
			S3Region: "us-east-1",
		},
	}
}

// Load reads the TOML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	db := &c.Database
	db.Driver = envOrDefault("SEISMON_DATABASE_DRIVER", db.Driver)
	db.User = envOrDefault("SEISMON_DATABASE_USER", db.User)
	db.Database = envOrDefault("SEISMON_DATABASE_NAME", db.Database)
	db.Password = envOrDefault("SEISMON_DATABASE_PASSWORD", db.Password)
	db.Host = envOrDefault("SEISMON_DATABASE_HOST", db.Host)
	db.DSN = envOrDefault("SEISMON_DATABASE_DSN", db.DSN)

	c.Feed.Directory = envOrDefault("SEISMON_FEED_DIRECTORY", c.Feed.Directory)
	c.Amplitude.DatasetDir = envOrDefault("SEISMON_AMPLITUDE_DATASET_DIR", c.Amplitude.DatasetDir)
	c.Registry.Catalogue = envOrDefault("SEISMON_REGISTRY_CATALOGUE", c.Registry.Catalogue)
	c.Events.NATSURL = envOrDefault("SEISMON_NATS_URL", c.Events.NATSURL)

	c.Export.Format = envOrDefault("SEISMON_EXPORT_FORMAT", c.Export.Format)
	c.Export.File = envOrDefault("SEISMON_EXPORT_FILE", c.Export.File)
	c.Export.S3Bucket = envOrDefault("SEISMON_EXPORT_S3_BUCKET", c.Export.S3Bucket)
	c.Export.S3Key = envOrDefault("SEISMON_EXPORT_S3_KEY", c.Export.S3Key)
	c.Export.S3Region = envOrDefault("SEISMON_EXPORT_S3_REGION", c.Export.S3Region)
	c.Export.S3Endpoint = envOrDefault("SEISMON_EXPORT_S3_ENDPOINT", c.Export.S3Endpoint)

	c.Ops.MetricsAddr = envOrDefault("SEISMON_METRICS_ADDR", c.Ops.MetricsAddr)
	c.Ops.HealthAddr = envOrDefault("SEISMON_HEALTH_ADDR", c.Ops.HealthAddr)

	var err error
	if db.Port, err = envInt("SEISMON_DATABASE_PORT", db.Port); err != nil {
		return err
	}
	if db.Timeout, err = envDuration("SEISMON_DATABASE_TIMEOUT", db.Timeout); err != nil {
		return err
	}
	if c.Feed.LookbackDays, err = envInt("SEISMON_FEED_LOOKBACK_DAYS", c.Feed.LookbackDays); err != nil {
		return err
	}
	if c.Feed.Retention, err = envDuration("SEISMON_FEED_RETENTION", c.Feed.Retention); err != nil {
		return err
	}
	if c.Scheduler.Interval, err = envDuration("SEISMON_SCHEDULER_INTERVAL", c.Scheduler.Interval); err != nil {
		return err
	}
	if c.Scheduler.Workers, err = envInt("SEISMON_SCHEDULER_WORKERS", c.Scheduler.Workers); err != nil {
		return err
	}
	if c.Export.Interval, err = envDuration("SEISMON_EXPORT_INTERVAL", c.Export.Interval); err != nil {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "postgresql":
		if c.Database.DSN == "" && c.Database.Database == "" {
			return fmt.Errorf("database: either dsn or database name is required")
		}
	case "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			return fmt.Errorf("database: dsn (sqlite file path) is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database: unsupported driver %q", c.Database.Driver)
	}
	if c.Feed.Directory == "" {
		return fmt.Errorf("feed: directory is required")
	}
	if c.Feed.LookbackDays <= 0 {
		return fmt.Errorf("feed: lookback_days must be positive, got %d", c.Feed.LookbackDays)
	}
	if c.Feed.Retention <= 0 {
		return fmt.Errorf("feed: retention must be positive, got %s", c.Feed.Retention)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %s", c.Scheduler.Interval)
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler: workers must be at least 1, got %d", c.Scheduler.Workers)
	}
	switch c.Export.Format {
	case "jsonl", "parquet":
	default:
		return fmt.Errorf("export: unsupported format %q", c.Export.Format)
	}
	return nil
}

// Lookback returns the feed lookback window.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Feed.LookbackDays) * 24 * time.Hour
}

// IsSQLite reports whether the sqlite driver is selected.
func (c *Config) IsSQLite() bool {
	d := strings.ToLower(c.Database.Driver)
	return d == "sqlite" || d == "sqlite3"
}

// DatabaseURL returns the connection string for the configured driver. For
// postgres without an explicit dsn the URL is assembled from its parts.
func (c *Config) DatabaseURL() string {
	db := c.Database
	if db.DSN != "" || c.IsSQLite() {
		return db.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Database,
	}
	if db.User != "" {
		if db.Password != "" {
			u.User = url.UserPassword(db.User, db.Password)
		} else {
			u.User = url.User(db.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	if db.Timeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(db.Timeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ExportKey returns the S3 object key, defaulting by format.
func (c *Config) ExportKey() string {
	if c.Export.S3Key != "" {
		return c.Export.S3Key
	}
	return "seismon/export." + c.Export.Format
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
