package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printflow/printflow/internal/core"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	// Status carries the job's actual current status on state conflicts so
	// the client can resynchronize instead of retrying blindly.
	Status string `json:"status,omitempty"`
}

// writeEngineError maps the engine's error taxonomy onto HTTP responses.
func writeEngineError(c *gin.Context, err error) {
	var conflict *core.StateConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "invalid_state_transition",
			Message: conflict.Error(),
			Status:  string(conflict.Current),
		})
	case errors.Is(err, core.ErrDuplicateReference):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "duplicate_reference",
			Message: "this payment reference has already been used",
		})
	case errors.Is(err, core.ErrAmountMismatch):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "amount_mismatch",
			Message: "submitted amount does not match the batch total",
		})
	case errors.Is(err, core.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "not_authorized",
			Message: "you may not act on this job",
		})
	case errors.Is(err, core.ErrServiceClosed):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "service_closed",
			Message: "the vendor is not accepting uploads right now",
		})
	case errors.Is(err, core.ErrJobNotFound), errors.Is(err, core.ErrBatchNotFound), errors.Is(err, core.ErrVendorNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, core.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "something went wrong",
		})
	}
}
