package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Queue.RequirePaymentBeforeQueue)
	assert.Equal(t, 10, cfg.Queue.MaxUploadSizeMB)
	assert.Equal(t, "https://api.razorpay.com/v1", cfg.Payment.BaseURL)
	assert.False(t, cfg.Notify.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
  read_timeout: 10s
queue:
  require_payment_before_queue: false
  max_files_per_batch: 8
database:
  path: /tmp/printflow-test.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.Queue.RequirePaymentBeforeQueue)
	assert.Equal(t, 8, cfg.Queue.MaxFilesPerBatch)
	assert.Equal(t, "/tmp/printflow-test.db", cfg.Database.Path)

	// Untouched sections keep their defaults.
	assert.Equal(t, "printflow-uploads", cfg.Blob.Bucket)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRINTFLOW_PORT", "7000")
	t.Setenv("PRINTFLOW_DB_PATH", "/tmp/env.db")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, "rzp_test_key", cfg.Payment.KeyID)
	assert.Equal(t, "AC-env", cfg.Notify.AccountSID)
	assert.True(t, cfg.Notify.Enabled, "setting Twilio credentials enables notifications")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"empty blob endpoint", func(c *Config) { c.Blob.Endpoint = "" }},
		{"empty blob bucket", func(c *Config) { c.Blob.Bucket = "" }},
		{"notify enabled without creds", func(c *Config) { c.Notify.Enabled = true }},
		{"zero subscriber buffer", func(c *Config) { c.Queue.SubscriberBuffer = 0 }},
		{"zero max upload size", func(c *Config) { c.Queue.MaxUploadSizeMB = 0 }},
		{"zero max files", func(c *Config) { c.Queue.MaxFilesPerBatch = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
