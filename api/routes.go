package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/mailgate/mailgate/api/handlers"
	"github.com/mailgate/mailgate/api/middleware"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, adminAPIKey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))
	r.Use(middleware.RequestIDMiddleware())

	// setup handlers
	apiHandlers := handlers.InitHandlers(s, repos)

	// Health check endpoint (no auth, no custom context)
	r.GET("/health", handlers.HealthCheck)

	// Tenant API: authenticated by per-domain API key
	api := r.Group("/v1")
	api.Use(middleware.DomainAPIKeyMiddleware(repos.DomainRepository))
	api.Use(middleware.CustomContextMiddleware("mailgate"))
	api.Use(middleware.TracingMiddleware())
	{
		emails := api.Group("/email")
		{
			emails.POST("/send", apiHandlers.Emails.Send())
			emails.GET("/stats", apiHandlers.Emails.Stats())
			emails.GET("/logs", apiHandlers.Emails.Logs())
		}

		templates := api.Group("/templates")
		{
			templates.POST("", apiHandlers.Templates.Create())
			templates.GET("", apiHandlers.Templates.List())
			templates.GET("/:templateKey", apiHandlers.Templates.Get())
			templates.PUT("/:templateKey", apiHandlers.Templates.Update())
			templates.DELETE("/:templateKey", apiHandlers.Templates.Delete())
			templates.POST("/:templateKey/preview", apiHandlers.Templates.Preview())
		}
	}

	// Admin API: guarded by the operator key
	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminAPIKeyMiddleware(middleware.AdminAPIKeyConfig{
		HeaderName:  "X-Admin-Key",
		ValidAPIKey: adminAPIKey,
	}))
	admin.Use(middleware.CustomContextMiddleware("mailgate-admin"))
	admin.Use(middleware.TracingMiddleware())
	{
		domains := admin.Group("/domains")
		{
			domains.POST("", apiHandlers.Domains.Register())
			domains.GET("", apiHandlers.Domains.List())
			domains.GET("/:id", apiHandlers.Domains.Get())
			domains.PATCH("/:id", apiHandlers.Domains.Update())
			domains.DELETE("/:id", apiHandlers.Domains.Delete())
			domains.POST("/:id/regenerate-key", apiHandlers.Domains.RegenerateKey())
			domains.POST("/:id/test-email", apiHandlers.Domains.TestEmail())
		}
	}
}
