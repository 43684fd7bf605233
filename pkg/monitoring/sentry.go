package monitoring

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yansimam/backend/pkg/response"
)

var enabled bool

// Init configures Sentry when dsn is set. Without a dsn every call in this package is a no-op.
func Init(dsn, environment string, logger *zap.Logger) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	enabled = true
	logger.Info("Sentry error reporting enabled", zap.String("environment", environment))
	return nil
}

// Flush waits for buffered events to be sent.
func Flush() {
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}

// Capture reports err with optional string tags.
func Capture(err error, tags map[string]string) {
	if !enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Recovery recovers panics, reports them, and answers 500 with the standard envelope.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
				)
				if enabled {
					hub := sentry.CurrentHub().Clone()
					hub.Scope().SetRequest(c.Request)
					hub.Recover(r)
				}
				response.Internal(c, "internal error")
			}
		}()
		c.Next()
	}
}
