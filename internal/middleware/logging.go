package middleware

import (
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/monitoring"
)

// RequestIDKey is the gin context key holding the request id
const RequestIDKey = "request_id"

// Logger returns a gin middleware for logging HTTP requests
func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		entry := logger.WithFields(logrus.Fields{
			"status_code":   param.StatusCode,
			"latency":       param.Latency,
			"client_ip":     param.ClientIP,
			"method":        param.Method,
			"path":          param.Path,
			"request_id":    param.Keys[RequestIDKey],
			"user_agent":    param.Request.UserAgent(),
			"response_size": param.BodySize,
			"timestamp":     param.TimeStamp.Format(time.RFC3339),
		})
		if param.ErrorMessage != "" {
			entry = entry.WithField("error", param.ErrorMessage)
		}

		if param.StatusCode >= 500 {
			entry.Warn("HTTP request processed")
		} else {
			entry.Info("HTTP request processed")
		}

		return ""
	})
}

// ExposeRequestID copies the X-Request-ID assigned by requestid.New into the
// gin context so the logger can read it. It must run after requestid.New.
func ExposeRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(RequestIDKey, requestid.Get(c))
		c.Next()
	}
}

// Metrics records the duration and status of every request by route
func Metrics(metrics monitoring.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
