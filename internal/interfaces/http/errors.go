package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/application/service"
	"github.com/garyjia/field-service/internal/application/workflow"
	"github.com/garyjia/field-service/internal/domain/completion"
	domainwf "github.com/garyjia/field-service/internal/domain/workflow"
)

// statusFor maps application errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, completion.ErrValidation),
		errors.Is(err, port.ErrFileTooLarge),
		errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, domainwf.ErrGuardFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrOperationInFlight),
		errors.Is(err, workflow.ErrSessionExists),
		errors.Is(err, workflow.ErrOrderNotCompletable),
		errors.Is(err, service.ErrOrderAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrSessionNotFound),
		errors.Is(err, port.ErrNotFound),
		errors.Is(err, service.ErrCompletionNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, workflow.ErrBypassNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrCompletionFailed),
		errors.Is(err, workflow.ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope; 5xx details are logged, not returned
func (h *Handlers) respondError(c *gin.Context, err error, action string) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "action", action, "path", c.FullPath(), "error", err)
		message = "internal error"
	} else if status >= 500 {
		h.logger.Error("Collaborator failure", "action", action, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, Response{Success: false, Error: message})
}
