package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scentmatch/scentmatch/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// LoggingConfig holds the configuration for the request logging middleware
type LoggingConfig struct {
	SkipPaths []string `json:"skip_paths"`
}

// DefaultLoggingConfig returns the default logging middleware configuration
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths: []string{
			"/health",
			"/metrics",
		},
	}
}

// RequestLogging logs each request with a correlation ID carried through the
// request context and echoed back in the X-Correlation-ID header.
func RequestLogging(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	return func(c *gin.Context) {
		for _, path := range config.SkipPaths {
			if c.Request.URL.Path == path {
				c.Next()
				return
			}
		}

		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = telemetry.NewCorrelationID()
		}
		c.Header("X-Correlation-ID", correlationID)

		ctx := telemetry.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		duration := time.Since(start)

		fields := logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"query":       c.Request.URL.RawQuery,
			"remote_ip":   c.ClientIP(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(duration.Nanoseconds()) / 1000000,
			"size":        c.Writer.Size(),
		}

		if len(c.Errors) > 0 {
			errs := make([]string, len(c.Errors))
			for i, err := range c.Errors {
				errs[i] = err.Error()
			}
			fields["errors"] = errs
		}

		logEntry := telemetry.GetContextualLogger(ctx).WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			logEntry.Error("HTTP request completed with server error")
		case c.Writer.Status() >= 400:
			logEntry.Warn("HTTP request completed with client error")
		case duration > 5*time.Second:
			logEntry.Warn("HTTP request completed (slow)")
		default:
			logEntry.Info("HTTP request completed")
		}
	}
}
