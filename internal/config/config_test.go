package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
fiscal:
  base_url: https://nfse.example.com
workflow:
  idle_timeout: 30m
whatsapp:
  phone_number_id: "1234"
`)
	t.Setenv("FIELD_WHATSAPP_TOKEN", "wa-token")
	t.Setenv("FIELD_JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://nfse.example.com", cfg.Fiscal.BaseURL)
	assert.Equal(t, 30*time.Minute, cfg.Workflow.IdleTimeout)
	assert.Equal(t, "wa-token", cfg.WhatsApp.AccessToken)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)

	// defaults
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, "55", cfg.WhatsApp.DefaultCountry)
	assert.Equal(t, 4, cfg.Workflow.UploadConcurrency)
	assert.Equal(t, "14.01", cfg.Fiscal.ServiceCode)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
fiscal:
  base_url: https://nfse.example.com
`)
	t.Setenv("FIELD_SERVER_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("FIELD_FISCAL_BASE_URL", "https://nfse.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "data/test.db"},
			Storage:  StorageConfig{Driver: "local", Local: LocalDir{BaseDir: "data/files"}},
			Fiscal:   FiscalConfig{BaseURL: "https://nfse.example.com"},
			Workflow: WorkflowConfig{UploadConcurrency: 2},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no fiscal gateway", func(c *Config) { c.Fiscal.BaseURL = "" }, "fiscal.base_url"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "ftp" }, "storage.driver"},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = "s3" }, "storage.s3.bucket"},
		{"s3 without region", func(c *Config) {
			c.Storage.Driver = "s3"
			c.Storage.S3.Bucket = "evidence"
		}, "storage.s3.region"},
		{"whatsapp without token", func(c *Config) { c.WhatsApp.PhoneNumberID = "1234" }, "whatsapp.access_token"},
		{"lark without chat", func(c *Config) {
			c.Lark.AppID = "cli_x"
			c.Lark.AppSecret = "secret"
		}, "lark.chat_id"},
		{"no upload workers", func(c *Config) { c.Workflow.UploadConcurrency = 0 }, "upload_concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Driver: "s3", S3: S3Config{Bucket: "evidence", Region: "sa-east-1"}},
		Fiscal:  FiscalConfig{BaseURL: "https://nfse.example.com", ServiceCode: "14.02"},
	}

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "s3", cc.Storage.Driver)
	assert.Equal(t, "evidence", cc.Storage.S3Bucket)
	assert.Equal(t, "14.02", cc.Fiscal.ServiceCode)
}
