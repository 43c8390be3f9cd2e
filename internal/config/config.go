package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Fiscal       FiscalConfig       `mapstructure:"fiscal"`
	WhatsApp     WhatsAppConfig     `mapstructure:"whatsapp"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Notification NotificationConfig `mapstructure:"notification"`
	Report       ReportConfig       `mapstructure:"report"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig selects and configures the file store
type StorageConfig struct {
	// Driver is "local" or "s3"
	Driver      string   `mapstructure:"driver"`
	MaxFileSize int64    `mapstructure:"max_file_size"`
	Local       LocalDir `mapstructure:"local"`
	S3          S3Config `mapstructure:"s3"`
}

// LocalDir is the local filesystem store
type LocalDir struct {
	BaseDir   string `mapstructure:"base_dir"`
	PublicURL string `mapstructure:"public_url"`
}

// S3Config holds S3 bucket settings
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	PublicURL string `mapstructure:"public_url"`
}

// FiscalConfig holds the fiscal emission gateway settings
type FiscalConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ServiceCode string        `mapstructure:"service_code"`
}

// WhatsAppConfig holds WhatsApp Cloud API settings; empty PhoneNumberID disables the channel
type WhatsAppConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PhoneNumberID  string        `mapstructure:"phone_number_id"`
	AccessToken    string        `mapstructure:"access_token"`
	DefaultCountry string        `mapstructure:"default_country"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// LarkConfig holds Lark API configuration; empty AppID disables the channel
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	ChatID    string `mapstructure:"chat_id"`
	BaseURL   string `mapstructure:"base_url"`
}

// AuthConfig holds bearer token settings; empty JWTSecret disables authentication
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// WorkflowConfig holds completion session settings
type WorkflowConfig struct {
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	UploadConcurrency int           `mapstructure:"upload_concurrency"`
}

// NotificationConfig bounds post-completion notifications
type NotificationConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReportConfig holds completion report settings
type ReportConfig struct {
	CompanyName string `mapstructure:"company_name"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional .env file, the YAML file and environment variables.
// A missing config file is not an error; defaults and environment apply.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports variables from path without overriding the real environment
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_bytes", 32<<20)

	// Database defaults
	v.SetDefault("database.path", "data/field-service.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Storage defaults
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.max_file_size", 10<<20)
	v.SetDefault("storage.local.base_dir", "data/files")
	v.SetDefault("storage.local.public_url", "http://localhost:8080/files")

	// Fiscal defaults
	v.SetDefault("fiscal.base_url", "")
	v.SetDefault("fiscal.timeout", 30*time.Second)
	v.SetDefault("fiscal.service_code", "14.01")

	// WhatsApp defaults
	v.SetDefault("whatsapp.base_url", "https://graph.facebook.com/v19.0")
	v.SetDefault("whatsapp.default_country", "55")
	v.SetDefault("whatsapp.rate_per_second", 10)
	v.SetDefault("whatsapp.timeout", 10*time.Second)

	// Auth defaults
	v.SetDefault("auth.issuer", "field-service")

	// Workflow defaults
	v.SetDefault("workflow.idle_timeout", 2*time.Hour)
	v.SetDefault("workflow.sweep_interval", time.Minute)
	v.SetDefault("workflow.upload_concurrency", 4)

	v.SetDefault("notification.timeout", 15*time.Second)
	v.SetDefault("report.company_name", "Field Service")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds secrets to explicit environment variables
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"fiscal.api_key":        "FIELD_FISCAL_API_KEY",
		"whatsapp.access_token": "FIELD_WHATSAPP_TOKEN",
		"lark.app_id":           "FIELD_LARK_APP_ID",
		"lark.app_secret":       "FIELD_LARK_APP_SECRET",
		"auth.jwt_secret":       "FIELD_JWT_SECRET",
		"storage.s3.bucket":     "FIELD_S3_BUCKET",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required")
		}
	default:
		return fmt.Errorf("storage.driver must be local or s3, got %q", c.Storage.Driver)
	}

	if c.Fiscal.BaseURL == "" {
		return fmt.Errorf("fiscal.base_url is required")
	}

	if c.WhatsApp.PhoneNumberID != "" && c.WhatsApp.AccessToken == "" {
		return fmt.Errorf("whatsapp.access_token is required when whatsapp.phone_number_id is set")
	}
	if c.Lark.AppID != "" && (c.Lark.AppSecret == "" || c.Lark.ChatID == "") {
		return fmt.Errorf("lark.app_secret and lark.chat_id are required when lark.app_id is set")
	}

	if c.Workflow.UploadConcurrency <= 0 {
		return fmt.Errorf("workflow.upload_concurrency must be positive")
	}

	return nil
}
