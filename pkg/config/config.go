package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "TXLATENCY"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultChainType is the default chain backend.
	DefaultChainType = ChainTypeSolana

	// DefaultCluster is the default Solana cluster.
	DefaultCluster = "testnet"

	// DefaultCommitment is the default Solana commitment level.
	DefaultCommitment = "confirmed"

	// DefaultBalanceAlertThreshold is the balance (native units) below which a
	// warning is logged before each probe.
	DefaultBalanceAlertThreshold = 0.01

	// DefaultInterval is the default probe interval in milliseconds.
	DefaultInterval = "60000"

	// DefaultMaxConcurrent bounds the number of in-flight probe cycles.
	DefaultMaxConcurrent = 1

	// DefaultConfirmationTimeout bounds how long a probe waits for confirmation.
	DefaultConfirmationTimeout = 60 * time.Second

	// DefaultPollInterval is how often confirmation status is polled.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultOutputDir is where record files are written before upload.
	DefaultOutputDir = "./records"

	// DefaultUploadMethod is the default upload backend.
	DefaultUploadMethod = UploadMethodS3

	// DefaultLocalArchiveDir is the destination of the local upload method.
	DefaultLocalArchiveDir = "./archive"

	// DefaultS3Region is used when no region is configured.
	DefaultS3Region = "us-east-1"

	// DefaultHistoryDriver is the default history database driver.
	DefaultHistoryDriver = "sqlite"

	// DefaultHistorySQLitePath is the default SQLite database file.
	DefaultHistorySQLitePath = "./txlatency.db"

	// DefaultAPIListen is the default status API listen address.
	DefaultAPIListen = ":9090"

	// DefaultRequestsPerMinute is the default per-IP API rate limit.
	DefaultRequestsPerMinute = 120
)

// Chain backend types.
const (
	ChainTypeSolana = "solana"
	ChainTypeEVM    = "evm"
)

// Upload methods.
const (
	UploadMethodS3    = "s3"
	UploadMethodLocal = "local"
)

// Config is the root configuration for txlatency.
type Config struct {
	Global  GlobalConfig  `yaml:"global" mapstructure:"global"`
	Chain   ChainConfig   `yaml:"chain" mapstructure:"chain"`
	Probe   ProbeConfig   `yaml:"probe" mapstructure:"probe"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Upload  UploadConfig  `yaml:"upload" mapstructure:"upload"`
	History HistoryConfig `yaml:"history" mapstructure:"history"`
	API     APIConfig     `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ChainConfig selects the network and the signing account.
type ChainConfig struct {
	Type                  string  `yaml:"type" mapstructure:"type"`
	Cluster               string  `yaml:"cluster,omitempty" mapstructure:"cluster"`
	RPCURL                string  `yaml:"rpc_url,omitempty" mapstructure:"rpc_url"`
	Commitment            string  `yaml:"commitment,omitempty" mapstructure:"commitment"`
	SignerPrivateKey      string  `yaml:"signer_private_key" mapstructure:"signer_private_key"`
	BalanceAlertThreshold float64 `yaml:"balance_alert_threshold" mapstructure:"balance_alert_threshold"`
}

// ProbeConfig controls the probe schedule.
type ProbeConfig struct {
	// Interval is kept as the raw configured string; use IntervalDuration.
	Interval            string        `yaml:"interval" mapstructure:"interval"`
	MaxConcurrent       int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout" mapstructure:"confirmation_timeout"`
	PollInterval        time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// OutputConfig controls where record files are staged.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// UploadConfig selects and configures the upload backend.
type UploadConfig struct {
	Method string            `yaml:"method" mapstructure:"method"`
	S3     S3UploadConfig    `yaml:"s3" mapstructure:"s3"`
	Local  LocalUploadConfig `yaml:"local" mapstructure:"local"`
}

// S3UploadConfig contains settings for uploading records to S3-compatible
// storage.
type S3UploadConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
	Preflight       bool   `yaml:"preflight" mapstructure:"preflight"`
}

// LocalUploadConfig moves record files into a local archive directory.
type LocalUploadConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// HistoryConfig enables the measurement history database.
type HistoryConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// APIConfig contains the status API server settings.
type APIConfig struct {
	Enabled     bool            `yaml:"enabled" mapstructure:"enabled"`
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// legacyEnvAliases maps configuration keys to the plain environment variable
// names used by earlier deployments of the probe.
var legacyEnvAliases = map[string]string{
	"chain.signer_private_key":      "SIGNER_PRIVATE_KEY",
	"chain.balance_alert_threshold": "BALANCE_ALERT_CONDITION_IN_SOL",
	"probe.interval":                "SEND_TX_INTERVAL",
	"upload.s3.bucket":              "S3_BUCKET",
	"upload.s3.region":              "AWS_REGION",
}

// LoadDotEnv loads environment variables from a dotenv file. A missing file
// is not an error. Variables already present in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("loading env file %s: %w", path, err)
	}

	return nil
}

// Load reads and merges the given configuration files in order, applies
// environment overrides and defaults. With no paths the configuration comes
// from the environment alone.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range legacyEnvAliases {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, alias); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every key with viper so that AutomaticEnv can
// override keys that are absent from the config files.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("chain.type", DefaultChainType)
	v.SetDefault("chain.cluster", DefaultCluster)
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.commitment", DefaultCommitment)
	v.SetDefault("chain.signer_private_key", "")
	v.SetDefault("chain.balance_alert_threshold", DefaultBalanceAlertThreshold)

	v.SetDefault("probe.interval", DefaultInterval)
	v.SetDefault("probe.max_concurrent", DefaultMaxConcurrent)
	v.SetDefault("probe.confirmation_timeout", DefaultConfirmationTimeout.String())
	v.SetDefault("probe.poll_interval", DefaultPollInterval.String())

	v.SetDefault("output.dir", DefaultOutputDir)

	v.SetDefault("upload.method", DefaultUploadMethod)
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.region", "")
	v.SetDefault("upload.s3.endpoint_url", "")
	v.SetDefault("upload.s3.access_key_id", "")
	v.SetDefault("upload.s3.secret_access_key", "")
	v.SetDefault("upload.s3.force_path_style", false)
	v.SetDefault("upload.s3.prefix", "")
	v.SetDefault("upload.s3.storage_class", "")
	v.SetDefault("upload.s3.acl", "")
	v.SetDefault("upload.s3.preflight", true)
	v.SetDefault("upload.local.dir", DefaultLocalArchiveDir)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.database.driver", DefaultHistoryDriver)
	v.SetDefault("history.database.sqlite.path", DefaultHistorySQLitePath)
	v.SetDefault("history.database.postgres.host", "")
	v.SetDefault("history.database.postgres.port", 5432)
	v.SetDefault("history.database.postgres.user", "")
	v.SetDefault("history.database.postgres.password", "")
	v.SetDefault("history.database.postgres.database", "")
	v.SetDefault("history.database.postgres.ssl_mode", "disable")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", DefaultAPIListen)
	v.SetDefault("api.cors_origins", []string{})
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.requests_per_minute", DefaultRequestsPerMinute)
}

// applyDefaults fills values that were explicitly set to their zero value.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Chain.Type == "" {
		c.Chain.Type = DefaultChainType
	}

	c.Chain.Type = strings.ToLower(c.Chain.Type)

	if c.Chain.Type == ChainTypeSolana {
		if c.Chain.Cluster == "" && c.Chain.RPCURL == "" {
			c.Chain.Cluster = DefaultCluster
		}

		if c.Chain.Commitment == "" {
			c.Chain.Commitment = DefaultCommitment
		}
	}

	if c.Probe.Interval == "" {
		c.Probe.Interval = DefaultInterval
	}

	if c.Probe.ConfirmationTimeout == 0 {
		c.Probe.ConfirmationTimeout = DefaultConfirmationTimeout
	}

	if c.Probe.PollInterval == 0 {
		c.Probe.PollInterval = DefaultPollInterval
	}

	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}

	if c.Upload.Method == "" {
		c.Upload.Method = DefaultUploadMethod
	}

	if c.Upload.S3.Region == "" {
		c.Upload.S3.Region = DefaultS3Region
	}

	if c.Upload.Local.Dir == "" {
		c.Upload.Local.Dir = DefaultLocalArchiveDir
	}

	if c.History.Database.Driver == "" {
		c.History.Database.Driver = DefaultHistoryDriver
	}

	if c.API.Listen == "" {
		c.API.Listen = DefaultAPIListen
	}

	if c.API.RateLimit.RequestsPerMinute <= 0 {
		c.API.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Chain.Type {
	case ChainTypeSolana:
		if c.Chain.RPCURL == "" {
			if _, ok := validClusters[c.Chain.Cluster]; !ok {
				return fmt.Errorf("chain: unknown solana cluster %q", c.Chain.Cluster)
			}
		}

		if _, ok := validCommitments[c.Chain.Commitment]; !ok {
			return fmt.Errorf("chain: unknown commitment %q", c.Chain.Commitment)
		}
	case ChainTypeEVM:
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain: rpc_url is required for evm chains")
		}
	default:
		return fmt.Errorf("chain: unknown type %q", c.Chain.Type)
	}

	if c.Chain.SignerPrivateKey == "" {
		return fmt.Errorf("chain: signer_private_key is required")
	}

	if c.Chain.BalanceAlertThreshold < 0 {
		return fmt.Errorf("chain: balance_alert_threshold must not be negative")
	}

	if _, err := c.Probe.IntervalDuration(); err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	if c.Probe.MaxConcurrent < 0 {
		return fmt.Errorf("probe: max_concurrent must not be negative")
	}

	if c.Probe.ConfirmationTimeout < 0 || c.Probe.PollInterval < 0 {
		return fmt.Errorf("probe: timeouts must not be negative")
	}

	switch c.Upload.Method {
	case UploadMethodS3:
		if c.Upload.S3.Bucket == "" {
			return fmt.Errorf("upload: s3 bucket is required")
		}
	case UploadMethodLocal:
		if c.Upload.Local.Dir == "" {
			return fmt.Errorf("upload: local dir is required")
		}
	default:
		return fmt.Errorf("upload: unknown method %q", c.Upload.Method)
	}

	if c.History.Enabled {
		if _, ok := validDrivers[c.History.Database.Driver]; !ok {
			return fmt.Errorf("history: unsupported database driver %q", c.History.Database.Driver)
		}
	}

	if c.API.Enabled && !c.History.Enabled {
		return fmt.Errorf("api: requires history to be enabled")
	}

	return nil
}

// Redacted returns a copy of the configuration with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c

	out.Chain.SignerPrivateKey = redact(out.Chain.SignerPrivateKey)
	out.Upload.S3.SecretAccessKey = redact(out.Upload.S3.SecretAccessKey)
	out.History.Database.Postgres.Password = redact(out.History.Database.Postgres.Password)

	return &out
}

func redact(s string) string {
	if s == "" {
		return ""
	}

	return "<redacted>"
}

// validClusters is the list of supported Solana clusters.
var validClusters = map[string]struct{}{
	"devnet":       {},
	"testnet":      {},
	"mainnet-beta": {},
	"localnet":     {},
}

// validCommitments is the list of supported Solana commitment levels.
var validCommitments = map[string]struct{}{
	"processed": {},
	"confirmed": {},
	"finalized": {},
}

// validDrivers is the list of supported history database drivers.
var validDrivers = map[string]struct{}{
	"sqlite":   {},
	"postgres": {},
}
