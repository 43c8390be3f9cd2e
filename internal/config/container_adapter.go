package config

import (
	"github.com/garyjia/field-service/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Storage: container.StorageConfig{
			Driver:         c.Storage.Driver,
			MaxFileSize:    c.Storage.MaxFileSize,
			LocalDir:       c.Storage.Local.BaseDir,
			LocalPublicURL: c.Storage.Local.PublicURL,
			S3Bucket:       c.Storage.S3.Bucket,
			S3Region:       c.Storage.S3.Region,
			S3Prefix:       c.Storage.S3.Prefix,
			S3Endpoint:     c.Storage.S3.Endpoint,
			S3PublicURL:    c.Storage.S3.PublicURL,
		},
		Fiscal: container.FiscalConfig{
			BaseURL:     c.Fiscal.BaseURL,
			APIKey:      c.Fiscal.APIKey,
			Timeout:     c.Fiscal.Timeout,
			ServiceCode: c.Fiscal.ServiceCode,
		},
		WhatsApp: container.WhatsAppConfig{
			BaseURL:        c.WhatsApp.BaseURL,
			PhoneNumberID:  c.WhatsApp.PhoneNumberID,
			AccessToken:    c.WhatsApp.AccessToken,
			DefaultCountry: c.WhatsApp.DefaultCountry,
			RatePerSecond:  c.WhatsApp.RatePerSecond,
			Timeout:        c.WhatsApp.Timeout,
		},
		Lark: container.LarkConfig{
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			ChatID:    c.Lark.ChatID,
			BaseURL:   c.Lark.BaseURL,
		},
		Workflow: container.WorkflowConfig{
			IdleTimeout:       c.Workflow.IdleTimeout,
			SweepInterval:     c.Workflow.SweepInterval,
			UploadConcurrency: c.Workflow.UploadConcurrency,
		},
		Notification: container.NotificationConfig{
			Timeout: c.Notification.Timeout,
		},
		Report: container.ReportConfig{
			CompanyName: c.Report.CompanyName,
		},
	}
}
