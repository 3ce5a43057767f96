package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearLegacyEnv blanks the legacy variables so a developer's shell cannot
// leak into the tests. Empty values are ignored by the loader.
func clearLegacyEnv(t *testing.T) {
	t.Helper()

	for _, alias := range legacyEnvAliases {
		t.Setenv(alias, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	return configPath
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, `
global:
  log_level: info
chain:
  type: solana
  cluster: devnet
  signer_private_key: yaml-key
  balance_alert_threshold: 0.5
probe:
  interval: "30000"
  max_concurrent: 2
upload:
  method: s3
  s3:
    bucket: yaml-bucket
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "devnet", cfg.Chain.Cluster)
				assert.Equal(t, "yaml-key", cfg.Chain.SignerPrivateKey)
				assert.InDelta(t, 0.5, cfg.Chain.BalanceAlertThreshold, 1e-9)
				assert.Equal(t, "30000", cfg.Probe.Interval)
				assert.Equal(t, 2, cfg.Probe.MaxConcurrent)
				assert.Equal(t, "yaml-bucket", cfg.Upload.S3.Bucket)
			},
		},
		{
			name: "prefixed string override",
			envVars: map[string]string{
				"TXLATENCY_GLOBAL_LOG_LEVEL": "debug",
				"TXLATENCY_CHAIN_CLUSTER":    "mainnet-beta",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
				assert.Equal(t, "mainnet-beta", cfg.Chain.Cluster)
			},
		},
		{
			name: "prefixed numeric and boolean overrides",
			envVars: map[string]string{
				"TXLATENCY_PROBE_MAX_CONCURRENT":         "4",
				"TXLATENCY_PROBE_CONFIRMATION_TIMEOUT":   "15s",
				"TXLATENCY_UPLOAD_S3_FORCE_PATH_STYLE":   "true",
				"TXLATENCY_CHAIN_BALANCE_ALERT_THRESHOLD": "2.25",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 4, cfg.Probe.MaxConcurrent)
				assert.Equal(t, 15*time.Second, cfg.Probe.ConfirmationTimeout)
				assert.True(t, cfg.Upload.S3.ForcePathStyle)
				assert.InDelta(t, 2.25, cfg.Chain.BalanceAlertThreshold, 1e-9)
			},
		},
		{
			name: "legacy variable names",
			envVars: map[string]string{
				"SIGNER_PRIVATE_KEY":             "legacy-key",
				"S3_BUCKET":                      "legacy-bucket",
				"BALANCE_ALERT_CONDITION_IN_SOL": "0.01",
				"SEND_TX_INTERVAL":               "60*1000",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "legacy-key", cfg.Chain.SignerPrivateKey)
				assert.Equal(t, "legacy-bucket", cfg.Upload.S3.Bucket)
				assert.InDelta(t, 0.01, cfg.Chain.BalanceAlertThreshold, 1e-9)
				assert.Equal(t, "60*1000", cfg.Probe.Interval)
			},
		},
		{
			name: "prefixed name wins over legacy name",
			envVars: map[string]string{
				"TXLATENCY_UPLOAD_S3_BUCKET": "prefixed-bucket",
				"S3_BUCKET":                  "legacy-bucket",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "prefixed-bucket", cfg.Upload.S3.Bucket)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLegacyEnv(t)

			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	clearLegacyEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, ChainTypeSolana, cfg.Chain.Type)
	assert.Equal(t, DefaultCluster, cfg.Chain.Cluster)
	assert.Equal(t, DefaultCommitment, cfg.Chain.Commitment)
	assert.InDelta(t, DefaultBalanceAlertThreshold, cfg.Chain.BalanceAlertThreshold, 1e-9)
	assert.Equal(t, DefaultInterval, cfg.Probe.Interval)
	assert.Equal(t, DefaultMaxConcurrent, cfg.Probe.MaxConcurrent)
	assert.Equal(t, DefaultConfirmationTimeout, cfg.Probe.ConfirmationTimeout)
	assert.Equal(t, DefaultPollInterval, cfg.Probe.PollInterval)
	assert.Equal(t, DefaultOutputDir, cfg.Output.Dir)
	assert.Equal(t, UploadMethodS3, cfg.Upload.Method)
	assert.Equal(t, DefaultS3Region, cfg.Upload.S3.Region)
	assert.True(t, cfg.Upload.S3.Preflight)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, DefaultAPIListen, cfg.API.Listen)
}

func TestLoad_MergesFilesInOrder(t *testing.T) {
	clearLegacyEnv(t)

	base := writeConfig(t, `
chain:
  cluster: devnet
upload:
  s3:
    bucket: base-bucket
    prefix: base
`)
	override := writeConfig(t, `
upload:
  s3:
    prefix: override
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, "devnet", cfg.Chain.Cluster)
	assert.Equal(t, "base-bucket", cfg.Upload.S3.Bucket)
	assert.Equal(t, "override", cfg.Upload.S3.Prefix)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: yaml: content:")

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("empty path is ignored", func(t *testing.T) {
		require.NoError(t, LoadDotEnv(""))
	})

	t.Run("variables are loaded without overriding the environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte(
			"TXLATENCY_TEST_DOTENV_NEW=from-file\nTXLATENCY_TEST_DOTENV_SET=from-file\n",
		), 0o644))

		t.Setenv("TXLATENCY_TEST_DOTENV_SET", "from-env")
		t.Setenv("TXLATENCY_TEST_DOTENV_NEW", "")
		require.NoError(t, os.Unsetenv("TXLATENCY_TEST_DOTENV_NEW"))

		require.NoError(t, LoadDotEnv(path))

		assert.Equal(t, "from-file", os.Getenv("TXLATENCY_TEST_DOTENV_NEW"))
		assert.Equal(t, "from-env", os.Getenv("TXLATENCY_TEST_DOTENV_SET"))
	})
}

func validConfig() *Config {
	cfg := &Config{
		Chain: ChainConfig{
			SignerPrivateKey:      "secret",
			BalanceAlertThreshold: 0.01,
		},
		Upload: UploadConfig{
			S3: S3UploadConfig{Bucket: "bucket"},
		},
	}
	cfg.applyDefaults()

	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		errSubstr string
	}{
		{
			name:   "valid solana config",
			mutate: func(_ *Config) {},
		},
		{
			name: "missing signer key",
			mutate: func(cfg *Config) {
				cfg.Chain.SignerPrivateKey = ""
			},
			errSubstr: "signer_private_key is required",
		},
		{
			name: "unknown cluster",
			mutate: func(cfg *Config) {
				cfg.Chain.Cluster = "moonnet"
			},
			errSubstr: "unknown solana cluster",
		},
		{
			name: "rpc url bypasses cluster check",
			mutate: func(cfg *Config) {
				cfg.Chain.Cluster = "custom"
				cfg.Chain.RPCURL = "http://127.0.0.1:8899"
			},
		},
		{
			name: "unknown commitment",
			mutate: func(cfg *Config) {
				cfg.Chain.Commitment = "eventually"
			},
			errSubstr: "unknown commitment",
		},
		{
			name: "evm requires rpc url",
			mutate: func(cfg *Config) {
				cfg.Chain.Type = ChainTypeEVM
			},
			errSubstr: "rpc_url is required",
		},
		{
			name: "unknown chain type",
			mutate: func(cfg *Config) {
				cfg.Chain.Type = "bitcoin"
			},
			errSubstr: "unknown type",
		},
		{
			name: "malformed interval",
			mutate: func(cfg *Config) {
				cfg.Probe.Interval = "60*abc"
			},
			errSubstr: "invalid interval",
		},
		{
			name: "negative max concurrent",
			mutate: func(cfg *Config) {
				cfg.Probe.MaxConcurrent = -1
			},
			errSubstr: "max_concurrent",
		},
		{
			name: "s3 without bucket",
			mutate: func(cfg *Config) {
				cfg.Upload.S3.Bucket = ""
			},
			errSubstr: "bucket is required",
		},
		{
			name: "local method needs no bucket",
			mutate: func(cfg *Config) {
				cfg.Upload.Method = UploadMethodLocal
				cfg.Upload.S3.Bucket = ""
			},
		},
		{
			name: "unknown upload method",
			mutate: func(cfg *Config) {
				cfg.Upload.Method = "ftp"
			},
			errSubstr: "unknown method",
		},
		{
			name: "unsupported history driver",
			mutate: func(cfg *Config) {
				cfg.History.Enabled = true
				cfg.History.Database.Driver = "mysql"
			},
			errSubstr: "unsupported database driver",
		},
		{
			name: "api without history",
			mutate: func(cfg *Config) {
				cfg.API.Enabled = true
			},
			errSubstr: "requires history",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errSubstr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := validConfig()
	cfg.Upload.S3.SecretAccessKey = "aws-secret"

	redacted := cfg.Redacted()

	assert.Equal(t, "<redacted>", redacted.Chain.SignerPrivateKey)
	assert.Equal(t, "<redacted>", redacted.Upload.S3.SecretAccessKey)
	assert.Empty(t, redacted.History.Database.Postgres.Password)

	// The source config is untouched.
	assert.Equal(t, "secret", cfg.Chain.SignerPrivateKey)
}
