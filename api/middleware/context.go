package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mailgate/mailgate/internal/utils"
)

const (
	RequestIDHeader = "X-Request-ID"

	ContextRequestID = "RequestID"
)

// RequestIDMiddleware assigns every request an id, honoring one the
// caller already supplied, and echoes it in the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextRequestID, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// CustomContextMiddleware adds custom context to all requests
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
