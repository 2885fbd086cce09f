package tracing

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"

	"github.com/mailgate/mailgate/internal/utils"
)

const (
	SpanTagDomain      = "domain"
	SpanTagDomainId    = "domain-id"
	SpanTagTemplateKey = "template-key"
	SpanTagRequestId   = "request-id"
	SpanTagComponent   = "component"
)

const (
	SpanTagComponentPostgresRepository = "postgresRepository"
	SpanTagComponentRest               = "rest"
	SpanTagComponentService            = "service"
	SpanTagComponentTransport          = "transport"
)

func TracingEnhancer(ctx context.Context, endpoint string) func(c *gin.Context) {
	return func(c *gin.Context) {
		ctxWithSpan, span := StartHttpServerTracerSpanWithHeader(ctx, endpoint, c.Request.Header)
		defer span.Finish()
		TagComponentRest(span)
		c.Request = c.Request.WithContext(ctxWithSpan)
		c.Next()
	}
}

func StartHttpServerTracerSpanWithHeader(ctx context.Context, operationName string, headers http.Header) (context.Context, opentracing.Span) {
	spanCtx, err := opentracing.GlobalTracer().Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers))
	if err != nil {
		serverSpan := opentracing.GlobalTracer().StartSpan(operationName)
		opentracing.GlobalTracer().Inject(serverSpan.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers))
		return opentracing.ContextWithSpan(ctx, serverSpan), serverSpan
	}

	serverSpan := opentracing.GlobalTracer().StartSpan(operationName, ext.RPCServerOption(spanCtx))
	return opentracing.ContextWithSpan(ctx, serverSpan), serverSpan
}

func setDefaultSpanTags(ctx context.Context, span opentracing.Span) {
	if domainID := utils.GetDomainIDFromContext(ctx); domainID != "" {
		span.SetTag(SpanTagDomainId, domainID)
	}
	if domainName := utils.GetDomainNameFromContext(ctx); domainName != "" {
		span.SetTag(SpanTagDomain, domainName)
	}
	if requestID := utils.GetRequestIDFromContext(ctx); requestID != "" {
		span.SetTag(SpanTagRequestId, requestID)
	}
}

func SetDefaultRestSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span)
	TagComponentRest(span)
}

func SetDefaultServiceSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span)
	TagComponentService(span)
}

func SetDefaultPostgresRepositorySpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span)
	TagComponentPostgresRepository(span)
}

func SetDefaultTransportSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span)
	span.SetTag(SpanTagComponent, SpanTagComponentTransport)
}

func InjectTextMapCarrier(spanCtx opentracing.SpanContext) (opentracing.TextMapCarrier, error) {
	m := make(opentracing.TextMapCarrier)
	if err := opentracing.GlobalTracer().Inject(spanCtx, opentracing.TextMap, m); err != nil {
		return nil, err
	}
	return m, nil
}

func ExtractTextMapCarrier(spanCtx opentracing.SpanContext) opentracing.TextMapCarrier {
	textMapCarrier, err := InjectTextMapCarrier(spanCtx)
	if err != nil {
		return make(opentracing.TextMapCarrier)
	}
	return textMapCarrier
}

func TraceErr(span opentracing.Span, err error, fields ...log.Field) {
	if span == nil || err == nil {
		return
	}
	ext.LogError(span, err, fields...)
}

func LogObjectAsJson(span opentracing.Span, name string, object any) {
	if object == nil {
		span.LogFields(log.String(name, "nil"))
		return
	}
	jsonObject, err := json.Marshal(object)
	if err == nil {
		span.LogFields(log.String(name, string(jsonObject)))
	} else {
		span.LogFields(log.Object(name, object))
	}
}

func TagComponentPostgresRepository(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentPostgresRepository)
}

func TagComponentRest(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentRest)
}

func TagComponentService(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentService)
}

func TagDomain(span opentracing.Span, domain string) {
	if domain != "" {
		span.SetTag(SpanTagDomain, domain)
	}
}

func TagTemplateKey(span opentracing.Span, templateKey string) {
	if templateKey != "" {
		span.SetTag(SpanTagTemplateKey, templateKey)
	}
}

func RecoveryWithJaeger(tracer opentracing.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				span := tracer.StartSpan("panic-recovery")
				defer span.Finish()

				buf := make([]byte, 4096)
				stackSize := runtime.Stack(buf, false)
				span.LogKV(
					"event", "error",
					"error.object", r,
					"stack", string(buf[:stackSize]),
				)
				span.SetTag("error", true)

				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}
