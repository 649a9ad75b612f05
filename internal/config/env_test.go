package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.WorkDir)
	assert.Equal(t, "", cfg.DBURL)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, "", cfg.ManifestPath)
	assert.Equal(t, 1800.0, cfg.Download.Timeout)
	assert.Equal(t, 4, cfg.Download.MaxRetries)
	assert.Equal(t, 2.0, cfg.Download.InitialDelay)
	assert.Equal(t, 2.0, cfg.Download.BackoffFactor)
	assert.Equal(t, "uv", cfg.Converter.Command)
	assert.Equal(t, 4, cfg.Converter.MaxRetries)
	assert.Equal(t, 2.0, cfg.Converter.InitialDelay)
	assert.Equal(t, 2.0, cfg.Converter.BackoffFactor)
	assert.Equal(t, 5.0, cfg.Reporting.LogTimeInterval)
}

func TestEnvDefaults_MatchConfigDefaults(t *testing.T) {
	// Struct tag defaults must be literals, so keep them in sync with config.go.
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkDir, cfg.WorkDir)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
	assert.Equal(t, DefaultDownloadTimeout.Seconds(), cfg.Download.Timeout)
	assert.Equal(t, DefaultDownloadMaxRetries, cfg.Download.MaxRetries)
	assert.Equal(t, DefaultDownloadInitialDelay.Seconds(), cfg.Download.InitialDelay)
	assert.Equal(t, DefaultDownloadBackoff, cfg.Download.BackoffFactor)
	assert.Equal(t, DefaultConverterCommand, cfg.Converter.Command)
	assert.Equal(t, DefaultConverterMaxRetries, cfg.Converter.MaxRetries)
	assert.Equal(t, DefaultConverterDelay.Seconds(), cfg.Converter.InitialDelay)
	assert.Equal(t, DefaultConverterBackoff, cfg.Converter.BackoffFactor)
	assert.Equal(t, DefaultReportingInterval.Seconds(), cfg.Reporting.LogTimeInterval)
}

func TestLoadFromEnv_OverrideValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("WORK_DIR", "/models")
	t.Setenv("DB_URL", "postgres://localhost/modelprep")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("WORKER_COUNT", "3")
	t.Setenv("MANIFEST_PATH", "/etc/modelprep/models.yaml")
	t.Setenv("DOWNLOAD_TIMEOUT", "60")
	t.Setenv("DOWNLOAD_MAX_RETRIES", "2")
	t.Setenv("DOWNLOAD_INITIAL_DELAY", "0.5")
	t.Setenv("DOWNLOAD_BACKOFF_FACTOR", "3")
	t.Setenv("CONVERTER_COMMAND", "/usr/local/bin/uv")
	t.Setenv("CONVERTER_MAX_RETRIES", "1")
	t.Setenv("CONVERTER_INITIAL_DELAY", "0.25")
	t.Setenv("CONVERTER_BACKOFF_FACTOR", "1.5")
	t.Setenv("KAGGLE_USERNAME", "someone")
	t.Setenv("KAGGLE_KEY", "secret")
	t.Setenv("HF_TOKEN", "hf_abc")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/models", cfg.WorkDir)
	assert.Equal(t, "postgres://localhost/modelprep", cfg.DBURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, "/etc/modelprep/models.yaml", cfg.ManifestPath)
	assert.Equal(t, 60.0, cfg.Download.Timeout)
	assert.Equal(t, 2, cfg.Download.MaxRetries)
	assert.Equal(t, 0.5, cfg.Download.InitialDelay)
	assert.Equal(t, 3.0, cfg.Download.BackoffFactor)
	assert.Equal(t, "/usr/local/bin/uv", cfg.Converter.Command)
	assert.Equal(t, 1, cfg.Converter.MaxRetries)
	assert.Equal(t, 0.25, cfg.Converter.InitialDelay)
	assert.Equal(t, 1.5, cfg.Converter.BackoffFactor)
	assert.Equal(t, "someone", cfg.KaggleUsername)
	assert.Equal(t, "secret", cfg.KaggleKey)
	assert.Equal(t, "hf_abc", cfg.HFToken)
}

func TestLoadFromEnvWithPrefix(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("MODELPREP_WORK_DIR", "/prefixed")
	t.Setenv("MODELPREP_DOWNLOAD_MAX_RETRIES", "7")

	cfg, err := LoadFromEnvWithPrefix("MODELPREP")
	require.NoError(t, err)

	assert.Equal(t, "/prefixed", cfg.WorkDir)
	assert.Equal(t, 7, cfg.Download.MaxRetries)
}

func TestLoadFromEnv_InvalidInt(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("WORKER_COUNT", "many")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestEnvConfig_ToAppConfig(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("WORK_DIR", "/srv/models")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("DOWNLOAD_INITIAL_DELAY", "1.5")
	t.Setenv("CONVERTER_INITIAL_DELAY", "3")
	t.Setenv("REPORTING_LOG_TIME_INTERVAL", "10")
	t.Setenv("KAGGLE_USERNAME", "u")
	t.Setenv("KAGGLE_KEY", "k")

	env, err := LoadFromEnv()
	require.NoError(t, err)
	cfg := env.ToAppConfig()

	assert.Equal(t, "/srv/models", cfg.WorkDir())
	assert.Equal(t, "sqlite:///"+filepath.Join("/srv/models", DefaultDBFile), cfg.DBURL())
	assert.Equal(t, LogFormatJSON, cfg.LogFormat())
	assert.Equal(t, 2, cfg.WorkerCount())
	assert.Equal(t, 1500*time.Millisecond, cfg.Download().InitialDelay())
	assert.Equal(t, 3*time.Second, cfg.Converter().InitialDelay())
	assert.Equal(t, DefaultConverterBackoff, cfg.Converter().BackoffFactor())
	assert.Equal(t, 10*time.Second, cfg.ReportingInterval())
	assert.True(t, cfg.Credentials().HasKaggle())
	assert.Equal(t, "", cfg.Credentials().HFToken())
}

func TestEnvConfig_ToAppConfig_ExplicitDBURL(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("WORK_DIR", "/srv/models")
	t.Setenv("DB_URL", "postgres://db/modelprep")

	env, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres://db/modelprep", env.ToAppConfig().DBURL())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	clearEnvVars(t)

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "WORK_DIR=/from/dotenv\nCONVERTER_COMMAND=uvx\nWORKER_COUNT=4\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o644))

	// Process environment wins over the file.
	t.Setenv("WORKER_COUNT", "2")

	cfg, err := LoadConfig(envPath)
	require.NoError(t, err)

	assert.Equal(t, "/from/dotenv", cfg.WorkDir())
	assert.Equal(t, "uvx", cfg.Converter().Command())
	assert.Equal(t, 2, cfg.WorkerCount())

	// LoadDotEnv sets variables without registering cleanup.
	_ = os.Unsetenv("WORK_DIR")
	_ = os.Unsetenv("CONVERTER_COMMAND")
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	n, err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadDotEnv_KeepsProcessValues(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("KAGGLE_USERNAME", "from-shell")

	envPath := filepath.Join(t.TempDir(), ".env")
	content := "KAGGLE_USERNAME=from-file\nKAGGLE_KEY=file-key\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o644))

	n, err := LoadDotEnv(envPath)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "from-shell", os.Getenv("KAGGLE_USERNAME"))
	assert.Equal(t, "file-key", os.Getenv("KAGGLE_KEY"))
}

func TestLoadDotEnv_Malformed(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("KAGGLE_KEY='unterminated\n"), 0o644))

	_, err := LoadDotEnv(envPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read env file")
}

func clearEnvVars(t *testing.T) {
	t.Helper()

	vars := []string{
		"WORK_DIR",
		"DB_URL",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"WORKER_COUNT",
		"MANIFEST_PATH",
		"DOWNLOAD_TIMEOUT",
		"DOWNLOAD_MAX_RETRIES",
		"DOWNLOAD_INITIAL_DELAY",
		"DOWNLOAD_BACKOFF_FACTOR",
		"CONVERTER_COMMAND",
		"CONVERTER_MAX_RETRIES",
		"CONVERTER_INITIAL_DELAY",
		"CONVERTER_BACKOFF_FACTOR",
		"REPORTING_LOG_TIME_INTERVAL",
		"KAGGLE_USERNAME",
		"KAGGLE_KEY",
		"HF_TOKEN",
		"MODELPREP_WORK_DIR",
		"MODELPREP_DOWNLOAD_MAX_RETRIES",
	}

	for _, v := range vars {
		// Setenv registers restoration of the original value.
		t.Setenv(v, "")
		_ = os.Unsetenv(v)
	}
}
