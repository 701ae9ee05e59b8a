package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDHeader carries the trace identifier in and out.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for the trace identifier.
	TraceIDKey = "trace_id"
	// UserIDKey is the context key for the authenticated user id.
	UserIDKey = "user_id"
	// UserKey is the context key for the authenticated account.
	UserKey = "user"
	// SessionKey is the context key for the resolved session.
	SessionKey = "session"
)

// EnrichContext accepts an inbound trace identifier or mints one, and
// reflects it back on the response.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)

		c.Next()
	}
}

// GetTraceID returns the trace identifier stored on the request context.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
