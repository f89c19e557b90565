package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/scentmatch/scentmatch/internal/telemetry"
)

// ErrorResponse is the wire shape of an error body.
type ErrorResponse struct {
	Error *errors.AppError `json:"error"`
}

// ErrorHandler converts errors attached to the gin context into structured
// JSON responses and recovers panics as internal errors.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				ctx := c.Request.Context()
				correlationID := telemetry.GetCorrelationID(ctx)

				telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
					"operation":   "panic_recovery",
					"panic_value": fmt.Sprintf("%v", r),
					"stack_trace": string(debug.Stack()),
					"path":        c.Request.URL.Path,
				}).Error("Panic recovered in HTTP handler")

				appErr := errors.NewInternalError(fmt.Sprintf("panic in handler: %v", r), nil).
					WithCorrelationID(correlationID)
				c.AbortWithStatusJSON(appErr.HTTPStatus, ErrorResponse{Error: sanitize(appErr)})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		HandleError(c, c.Errors.Last().Err)
	}
}

// HandleError writes the structured response for err and logs it at a level
// matching its severity.
func HandleError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	correlationID := telemetry.GetCorrelationID(ctx)

	appErr := errors.AsAppError(err)
	if appErr == nil {
		appErr = errors.NewInternalError("An unexpected error occurred", err)
	}
	if appErr.CorrelationID == "" {
		appErr = appErr.WithCorrelationID(correlationID)
	}

	logError(c, appErr)

	c.AbortWithStatusJSON(appErr.HTTPStatus, ErrorResponse{Error: sanitize(appErr)})
}

func logError(c *gin.Context, appErr *errors.AppError) {
	logger := telemetry.GetContextualLogger(c.Request.Context()).WithFields(map[string]interface{}{
		"operation":  "error_handler",
		"error_type": string(appErr.Type),
		"error_code": appErr.Code,
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
	})

	for k, v := range appErr.Metadata {
		logger = logger.WithField(k, v)
	}
	if appErr.Cause != nil {
		logger = logger.WithField("cause", appErr.Cause.Error())
	}

	switch appErr.Type {
	case errors.ErrorTypeInvalidArgument, errors.ErrorTypeForbidden:
		logger.Warn(appErr.Message)
	case errors.ErrorTypeNotFound, errors.ErrorTypeConflict, errors.ErrorTypeInvalidTransition:
		logger.Info(appErr.Message)
	default:
		logger.Error(appErr.Message)
	}
}

// sanitize strips internals from server-side error categories before they
// leave the process.
func sanitize(appErr *errors.AppError) *errors.AppError {
	if appErr.HTTPStatus < http.StatusInternalServerError {
		return appErr
	}
	return &errors.AppError{
		Type:          appErr.Type,
		Code:          appErr.Code,
		Message:       "An internal error occurred",
		CorrelationID: appErr.CorrelationID,
		Timestamp:     appErr.Timestamp,
		HTTPStatus:    appErr.HTTPStatus,
	}
}
