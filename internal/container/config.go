// Package container provides dependency injection and lifecycle management
// for the field service completion backend.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database     DatabaseConfig
	Storage      StorageConfig
	Fiscal       FiscalConfig
	WhatsApp     WhatsAppConfig
	Lark         LarkConfig
	Workflow     WorkflowConfig
	Notification NotificationConfig
	Report       ReportConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// Driver is "local" or "s3"
	Driver string

	// MaxFileSize rejects larger uploads; zero disables the check
	MaxFileSize int64

	// LocalDir and LocalPublicURL configure the local driver
	LocalDir       string
	LocalPublicURL string

	S3Bucket    string
	S3Region    string
	S3Prefix    string
	S3Endpoint  string
	S3PublicURL string
}

// FiscalConfig holds fiscal gateway settings.
type FiscalConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// ServiceCode seeds new fiscal drafts
	ServiceCode string
}

// WhatsAppConfig holds WhatsApp Cloud API settings. Empty PhoneNumberID disables the channel.
type WhatsAppConfig struct {
	BaseURL        string
	PhoneNumberID  string
	AccessToken    string
	DefaultCountry string
	RatePerSecond  float64
	Timeout        time.Duration
}

// LarkConfig holds Lark API settings. Empty AppID disables the channel.
type LarkConfig struct {
	AppID     string
	AppSecret string
	ChatID    string
	BaseURL   string
}

// WorkflowConfig holds completion session settings.
type WorkflowConfig struct {
	IdleTimeout       time.Duration
	SweepInterval     time.Duration
	UploadConcurrency int
}

// NotificationConfig bounds each notification channel.
type NotificationConfig struct {
	Timeout time.Duration
}

// ReportConfig holds completion report settings.
type ReportConfig struct {
	CompanyName string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/field-service.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Driver:         "local",
			MaxFileSize:    10 << 20,
			LocalDir:       "data/files",
			LocalPublicURL: "http://localhost:8080/files",
		},
		Fiscal: FiscalConfig{
			Timeout:     30 * time.Second,
			ServiceCode: "14.01",
		},
		WhatsApp: WhatsAppConfig{
			DefaultCountry: "55",
			RatePerSecond:  10,
			Timeout:        10 * time.Second,
		},
		Workflow: WorkflowConfig{
			IdleTimeout:       2 * time.Hour,
			SweepInterval:     time.Minute,
			UploadConcurrency: 4,
		},
		Notification: NotificationConfig{
			Timeout: 15 * time.Second,
		},
		Report: ReportConfig{
			CompanyName: "Field Service",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local.base_dir is required")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Fiscal.BaseURL == "" {
		return fmt.Errorf("fiscal.base_url is required")
	}

	return nil
}
