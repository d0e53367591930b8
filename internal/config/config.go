// Package config loads and validates the pipeline configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. TXNFLOW_DATABASE_DSN.
const EnvPrefix = "TXNFLOW"

// Config is the full process configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
	Dataset     DatasetConfig     `mapstructure:"dataset"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Rules       RulesConfig       `mapstructure:"rules"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConfig selects and tunes the relational store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ObjectStoreConfig selects the chunk and detection transport.
type ObjectStoreConfig struct {
	Type         string `mapstructure:"type"`
	BasePath     string `mapstructure:"base_path"`
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKeyID  string `mapstructure:"access_key_id"`
	SecretKey    string `mapstructure:"secret_access_key"`
	InputPrefix  string `mapstructure:"input_prefix"`
	OutputPrefix string `mapstructure:"output_prefix"`
	PathStyle    bool   `mapstructure:"path_style"`
}

// DatasetConfig locates the source dataset and the importance table.
type DatasetConfig struct {
	Type             string      `mapstructure:"type"`
	TransactionsPath string      `mapstructure:"transactions_path"`
	ImportancePath   string      `mapstructure:"importance_path"`
	Drive            DriveConfig `mapstructure:"drive"`
}

// DriveConfig locates the dataset in a Google Drive folder.
type DriveConfig struct {
	FolderID           string        `mapstructure:"folder_id"`
	TransactionsFile   string        `mapstructure:"transactions_file"`
	ImportanceFile     string        `mapstructure:"importance_file"`
	ServiceAccountPath string        `mapstructure:"service_account_path"`
	ClientID           string        `mapstructure:"client_id"`
	ClientSecret       string        `mapstructure:"client_secret"`
	RefreshToken       string        `mapstructure:"refresh_token"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
}

// PipelineConfig holds the static backpressure knobs of both workers.
type PipelineConfig struct {
	DisplayTimezone     string        `mapstructure:"display_timezone"`
	ChunkSize           int           `mapstructure:"chunk_size"`
	ProduceInterval     time.Duration `mapstructure:"produce_interval"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	DetectionBatchSize  int           `mapstructure:"detection_batch_size"`
	ConsumerStartDelay  time.Duration `mapstructure:"consumer_start_delay"`
	StageRetryDelay     time.Duration `mapstructure:"stage_retry_delay"`
	StopWhenExhausted   bool          `mapstructure:"stop_when_exhausted"`
	MonitorRecentLimit  int           `mapstructure:"monitor_recent_limit"`
	MonitorPollInterval time.Duration `mapstructure:"monitor_poll_interval"`
}

// RulesConfig holds the detection thresholds.
type RulesConfig struct {
	UpgradeMinMerchantTransactions int     `mapstructure:"upgrade_min_merchant_transactions"`
	UpgradeCountPercentile         float64 `mapstructure:"upgrade_count_percentile"`
	UpgradeWeightPercentile        float64 `mapstructure:"upgrade_weight_percentile"`
	ChildMinTransactions           int     `mapstructure:"child_min_transactions"`
	ChildMaxAverageAmount          float64 `mapstructure:"child_max_average_amount"`
	DEIMinFemaleCustomers          int     `mapstructure:"dei_min_female_customers"`
}

// MetricsConfig configures the status HTTP server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// SetDefaults registers a default for every key so env overrides always apply.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "~/.local/share/txnflow/txnflow.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("objectstore.type", "fs")
	v.SetDefault("objectstore.base_path", "~/.local/share/txnflow/objects")
	v.SetDefault("objectstore.bucket", "transaction-processing-bucket")
	v.SetDefault("objectstore.region", "us-east-1")
	v.SetDefault("objectstore.endpoint", "")
	v.SetDefault("objectstore.path_style", false)
	v.SetDefault("objectstore.access_key_id", "")
	v.SetDefault("objectstore.secret_access_key", "")
	v.SetDefault("objectstore.input_prefix", "input/transactions/")
	v.SetDefault("objectstore.output_prefix", "output/detections/")

	v.SetDefault("dataset.type", "file")
	v.SetDefault("dataset.transactions_path", "transactions.csv")
	v.SetDefault("dataset.importance_path", "CustomerImportance.csv")
	v.SetDefault("dataset.drive.folder_id", "")
	v.SetDefault("dataset.drive.transactions_file", "transactions.csv")
	v.SetDefault("dataset.drive.importance_file", "CustomerImportance.csv")
	v.SetDefault("dataset.drive.service_account_path", "")
	v.SetDefault("dataset.drive.client_id", "")
	v.SetDefault("dataset.drive.client_secret", "")
	v.SetDefault("dataset.drive.refresh_token", "")
	v.SetDefault("dataset.drive.retry_attempts", 3)
	v.SetDefault("dataset.drive.retry_delay", "1s")

	v.SetDefault("pipeline.display_timezone", "Asia/Kolkata")
	v.SetDefault("pipeline.chunk_size", 10000)
	v.SetDefault("pipeline.produce_interval", "1s")
	v.SetDefault("pipeline.poll_interval", "1s")
	v.SetDefault("pipeline.detection_batch_size", 50)
	v.SetDefault("pipeline.consumer_start_delay", "2s")
	v.SetDefault("pipeline.stage_retry_delay", "1s")
	v.SetDefault("pipeline.stop_when_exhausted", true)
	v.SetDefault("pipeline.monitor_recent_limit", 10)
	v.SetDefault("pipeline.monitor_poll_interval", "5s")

	v.SetDefault("rules.upgrade_min_merchant_transactions", 50000)
	v.SetDefault("rules.upgrade_count_percentile", 0.9)
	v.SetDefault("rules.upgrade_weight_percentile", 0.1)
	v.SetDefault("rules.child_min_transactions", 80)
	v.SetDefault("rules.child_max_average_amount", 23)
	v.SetDefault("rules.dei_min_female_customers", 100)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")
}

// Load reads the configuration into v. An explicit path must exist; without
// one the standard locations are searched and a missing file is fine.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "txnflow"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.expandPaths()
	cfg.Dataset.Drive.applyEnvFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations no worker can run with.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{common.ErrInvalidConfig}, args...)...))
	}

	switch strings.ToLower(c.Database.Driver) {
	case "sqlite3", "sqlite", "postgres", "postgresql", "pgx":
	default:
		invalid("unknown database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, fmt.Errorf("%w: database.dsn", common.ErrMissingConfig))
	}

	switch c.ObjectStore.Type {
	case "fs":
		if c.ObjectStore.BasePath == "" {
			errs = append(errs, fmt.Errorf("%w: objectstore.base_path", common.ErrMissingConfig))
		}
	case "s3":
		if c.ObjectStore.Bucket == "" {
			errs = append(errs, fmt.Errorf("%w: objectstore.bucket", common.ErrMissingConfig))
		}
	default:
		invalid("unknown object store type %q", c.ObjectStore.Type)
	}
	if c.ObjectStore.InputPrefix == c.ObjectStore.OutputPrefix {
		invalid("input and output prefixes must differ")
	}

	switch c.Dataset.Type {
	case "file":
	case "drive":
		if err := c.Dataset.Drive.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		invalid("unknown dataset type %q", c.Dataset.Type)
	}

	p := c.Pipeline
	if p.ChunkSize <= 0 {
		invalid("pipeline.chunk_size must be positive")
	}
	if p.DetectionBatchSize <= 0 {
		invalid("pipeline.detection_batch_size must be positive")
	}
	if p.ProduceInterval <= 0 || p.PollInterval <= 0 {
		invalid("pipeline intervals must be positive")
	}
	if p.ConsumerStartDelay < 0 || p.StageRetryDelay < 0 {
		invalid("pipeline delays cannot be negative")
	}
	if _, err := time.LoadLocation(p.DisplayTimezone); err != nil {
		invalid("pipeline.display_timezone %q: %v", p.DisplayTimezone, err)
	}

	r := c.Rules
	if r.UpgradeCountPercentile < 0 || r.UpgradeCountPercentile > 1 ||
		r.UpgradeWeightPercentile < 0 || r.UpgradeWeightPercentile > 1 {
		invalid("rule percentiles must be within [0, 1]")
	}

	return errors.Join(errs...)
}

// DisplayLocation returns the timezone detection timestamps are rendered in.
func (c *Config) DisplayLocation() *time.Location {
	loc, err := time.LoadLocation(c.Pipeline.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LogOptions maps the log section onto the logger constructor.
func (c *Config) LogOptions() common.LogOptions {
	return common.LogOptions{
		Level:       c.Log.Level,
		Encoding:    c.Log.Encoding,
		Development: c.Log.Development,
	}
}
