package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Blob     BlobConfig     `yaml:"blob"`
	Payment  PaymentConfig  `yaml:"payment"`
	Notify   NotifyConfig   `yaml:"notify"`
	Queue    QueueConfig    `yaml:"queue"`
	Vendor   VendorConfig   `yaml:"vendor"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type PaymentConfig struct {
	BaseURL   string        `yaml:"base_url"`
	KeyID     string        `yaml:"key_id"`
	KeySecret string        `yaml:"key_secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url"`
	AccountSID  string        `yaml:"account_sid"`
	AuthToken   string        `yaml:"auth_token"`
	FromNumber  string        `yaml:"from_number"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	WorkerCount int           `yaml:"worker_count"`
	QueueSize   int           `yaml:"queue_size"`
}

type QueueConfig struct {
	RequirePaymentBeforeQueue bool `yaml:"require_payment_before_queue"`
	SubscriberBuffer          int  `yaml:"subscriber_buffer"`
	MaxUploadSizeMB           int  `yaml:"max_upload_size_mb"`
	MaxFilesPerBatch          int  `yaml:"max_files_per_batch"`
}

// VendorConfig seeds the default vendor account on first start.
type VendorConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Phone    string `yaml:"phone"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printflow.db",
		},
		Blob: BlobConfig{
			Endpoint: "localhost:9000",
			Bucket:   "printflow-uploads",
		},
		Payment: PaymentConfig{
			BaseURL: "https://api.razorpay.com/v1",
			Timeout: 15 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled:     false,
			BaseURL:     "https://api.twilio.com/2010-04-01",
			MaxRetries:  3,
			RetryDelay:  5 * time.Second,
			WorkerCount: 2,
			QueueSize:   100,
		},
		Queue: QueueConfig{
			RequirePaymentBeforeQueue: true,
			SubscriberBuffer:          64,
			MaxUploadSizeMB:           10,
			MaxFilesPerBatch:          5,
		},
		Vendor: VendorConfig{
			Name: "Campus Print Shop",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PRINTFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTFLOW_DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("PRINTFLOW_BLOB_ENDPOINT"); v != "" {
		c.Blob.Endpoint = v
	}
	if v := os.Getenv("PRINTFLOW_BLOB_ACCESS_KEY"); v != "" {
		c.Blob.AccessKey = v
	}
	if v := os.Getenv("PRINTFLOW_BLOB_SECRET_KEY"); v != "" {
		c.Blob.SecretKey = v
	}
	if v := os.Getenv("PRINTFLOW_BLOB_BUCKET"); v != "" {
		c.Blob.Bucket = v
	}

	if v := os.Getenv("RAZORPAY_KEY_ID"); v != "" {
		c.Payment.KeyID = v
	}
	if v := os.Getenv("RAZORPAY_KEY_SECRET"); v != "" {
		c.Payment.KeySecret = v
	}

	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		c.Notify.AccountSID = v
		c.Notify.Enabled = true
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		c.Notify.AuthToken = v
	}
	if v := os.Getenv("TWILIO_PHONE_NUMBER"); v != "" {
		c.Notify.FromNumber = v
	}

	if v := os.Getenv("PRINTFLOW_VENDOR_EMAIL"); v != "" {
		c.Vendor.Email = v
	}
	if v := os.Getenv("PRINTFLOW_VENDOR_PASSWORD"); v != "" {
		c.Vendor.Password = v
	}

	if v := os.Getenv("PRINTFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Blob.Endpoint == "" {
		return fmt.Errorf("blob endpoint is required")
	}

	if c.Blob.Bucket == "" {
		return fmt.Errorf("blob bucket is required")
	}

	if c.Payment.BaseURL == "" {
		return fmt.Errorf("payment base url is required")
	}

	if c.Notify.Enabled {
		if c.Notify.AccountSID == "" || c.Notify.AuthToken == "" {
			return fmt.Errorf("notify credentials are required when notifications are enabled")
		}
		if c.Notify.FromNumber == "" {
			return fmt.Errorf("notify from number is required when notifications are enabled")
		}
	}

	if c.Notify.MaxRetries < 0 {
		return fmt.Errorf("notify max retries must be non-negative")
	}

	if c.Notify.WorkerCount < 1 {
		return fmt.Errorf("notify worker count must be at least 1")
	}

	if c.Queue.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber buffer must be at least 1")
	}

	if c.Queue.MaxUploadSizeMB < 1 {
		return fmt.Errorf("max upload size must be at least 1 MB")
	}

	if c.Queue.MaxFilesPerBatch < 1 {
		return fmt.Errorf("max files per batch must be at least 1")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
