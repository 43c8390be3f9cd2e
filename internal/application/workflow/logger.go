package workflow

import "github.com/garyjia/field-service/internal/application/port"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) SessionOpened() {}
func (nopMetrics) SessionClosed(string) {}
func (nopMetrics) AttachmentUploaded(bool) {}
func (nopMetrics) FiscalEmission(string, float64) {}
func (nopMetrics) Finalization(string, float64) {}

var _ port.WorkflowMetrics = nopMetrics{}
