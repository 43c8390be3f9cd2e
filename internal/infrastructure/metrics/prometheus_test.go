package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Workflow(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed("completed")
	c.AttachmentUploaded(true)
	c.AttachmentUploaded(true)
	c.AttachmentUploaded(false)
	c.FiscalEmission("failed", 0.3)
	c.Finalization("completed", 0.1)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionsOpen))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sessionsOpened))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionsClosed.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.uploads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploads.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fiscalEmissions.WithLabelValues("failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.collaboratorTimes))
}

func TestCollectors_Handler(t *testing.T) {
	c := New()
	c.ObserveHTTP("POST", "/api/sessions/:sid/finalize", "200", 0.02)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `field_service_http_requests_total{method="POST",route="/api/sessions/:sid/finalize",status="200"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
