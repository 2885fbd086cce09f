package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/mailgate/mailgate/internal/tracing"
)

// TracingMiddleware creates a new span for each request and adds common tags
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(
			c.Request.Context(),
			c.Request.Method+" "+c.FullPath(),
			c.Request.Header,
		)
		defer span.Finish()

		tracing.SetDefaultRestSpanTags(ctx, span)

		if key := c.Param("templateKey"); key != "" {
			tracing.TagTemplateKey(span, key)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if c.Writer.Status() >= 400 {
			span.SetTag("error", true)
			span.SetTag("http.status_code", c.Writer.Status())
		}
	}
}
