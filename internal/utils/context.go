package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

// CustomContext carries the authenticated tenant through the request.
type CustomContext struct {
	AppSource  string
	DomainID   string
	DomainName string
	RequestID  string
}

type customContextKeyType struct{}

var customContextKey = customContextKeyType{}

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource:  appSource,
		DomainID:   c.GetString("DomainID"),
		DomainName: c.GetString("DomainName"),
		RequestID:  c.GetString("RequestID"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetDomainIDFromContext(ctx context.Context) string {
	return GetContext(ctx).DomainID
}

func GetDomainNameFromContext(ctx context.Context) string {
	return GetContext(ctx).DomainName
}

func GetRequestIDFromContext(ctx context.Context) string {
	return GetContext(ctx).RequestID
}

// SetDomainInContext stamps the tenant on the context so spans opened
// further down carry the domain tags.
func SetDomainInContext(ctx context.Context, domainID, domainName string) context.Context {
	existing := GetContext(ctx)
	customContext := &CustomContext{
		AppSource:  existing.AppSource,
		DomainID:   domainID,
		DomainName: domainName,
		RequestID:  existing.RequestID,
	}
	return WithCustomContext(ctx, customContext)
}
