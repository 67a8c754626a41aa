package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ContextKey type for storing context values
type contextKey string

const (
	// RequestIDKey holds the X-Request-ID assigned by the API middleware
	RequestIDKey contextKey = "request_id"
)

// WithRequestID stores id on ctx for later log enrichment
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID returns the request ID stored on ctx, or ""
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// ContextLogger wraps a logger with context
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// Helper to merge context fields with provided fields
func (c *ContextLogger) mergeContextFields(props []map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{})
	for k, v := range firstProps(props) {
		fields[k] = v
	}
	if reqID := RequestID(c.ctx); reqID != "" {
		fields["request_id"] = reqID
	}
	return fields
}

func (c *ContextLogger) Info(msg string, props ...map[string]interface{}) {
	c.logger.log(2, logrus.InfoLevel, msg, c.mergeContextFields(props))
}

func (c *ContextLogger) Warn(msg string, props ...map[string]interface{}) {
	c.logger.log(2, logrus.WarnLevel, msg, c.mergeContextFields(props))
}

func (c *ContextLogger) Error(msg string, props ...map[string]interface{}) {
	c.logger.log(2, logrus.ErrorLevel, msg, c.mergeContextFields(props))
}

func (c *ContextLogger) Debug(msg string, props ...map[string]interface{}) {
	c.logger.log(2, logrus.DebugLevel, msg, c.mergeContextFields(props))
}
