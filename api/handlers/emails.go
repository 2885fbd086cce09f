package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailgate/mailgate/api/middleware"
	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/services/email"
	"github.com/mailgate/mailgate/services/render"
	"github.com/mailgate/mailgate/services/template"
	"github.com/mailgate/mailgate/services/transport"
)

type SendEmailRequest struct {
	// Domain is optional; when present it must match the domain the API
	// key authenticated as.
	Domain      string                 `json:"domain"`
	TemplateKey string                 `json:"templateKey" binding:"required"`
	To          string                 `json:"to" binding:"required"`
	Variables   map[string]interface{} `json:"variables"`
}

type EmailsHandler struct {
	emailService  *email.Service
	logRepository repository.EmailLogRepository
}

func NewEmailsHandler(emailService *email.Service, repos *repository.Repositories) *EmailsHandler {
	return &EmailsHandler{
		emailService:  emailService,
		logRepository: repos.EmailLogRepository,
	}
}

// authenticatedDomain returns the domain record the API key middleware
// attached to the request.
func authenticatedDomain(c *gin.Context) *models.Domain {
	value, ok := c.Get(middleware.ContextDomain)
	if !ok {
		return nil
	}
	domain, _ := value.(*models.Domain)
	return domain
}

// Send runs the delivery pipeline for one message.
func (h *EmailsHandler) Send() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.Send")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := authenticatedDomain(c)
		if domain == nil {
			tracing.TraceErr(span, errors.New("missing domain in context"))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		var req SendEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tracing.TagTemplateKey(span, req.TemplateKey)

		if req.Domain != "" && req.Domain != domain.Domain {
			c.JSON(http.StatusForbidden, gin.H{"error": "API key is not valid for the requested domain"})
			return
		}

		result, err := h.emailService.Send(ctx, domain, email.SendRequest{
			TemplateKey: req.TemplateKey,
			To:          req.To,
			Variables:   req.Variables,
		})
		if err != nil {
			h.writeSendError(c, span, result, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"logId":     result.LogID,
			"messageId": result.MessageID,
			"status":    result.Status,
		})
	}
}

func (h *EmailsHandler) writeSendError(c *gin.Context, span opentracing.Span, result *email.SendResult, err error) {
	tracing.TraceErr(span, err)

	var rateLimitErr *email.RateLimitError
	var validationErr *template.ValidationError
	var renderErr *render.RenderError
	var cfgErr *transport.ConfigError

	switch {
	case errors.Is(err, email.ErrDomainInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "Domain is not active"})
	case errors.Is(err, email.ErrInvalidRecipient):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipient address is not valid"})
	case errors.Is(err, email.ErrTemplateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
	case errors.As(err, &rateLimitErr):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   rateLimitErr.Reason,
			"limit":   rateLimitErr.Limit,
			"current": rateLimitErr.Current,
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    validationErr.Detail,
			"variable": validationErr.Variable,
		})
	case errors.As(err, &renderErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": renderErr.Detail})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   cfgErr.Detail,
			"logId":   result.LogID,
		})
	case result != nil:
		// delivery failure after the log entry was queued
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
			"logId":   result.LogID,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// Stats returns aggregate delivery counts for the authenticated domain.
func (h *EmailsHandler) Stats() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.Stats")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := authenticatedDomain(c)
		if domain == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		period := enum.StatsPeriod(c.DefaultQuery("period", "today"))
		if !period.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be one of: today, week, month"})
			return
		}

		stats, err := h.emailService.GetStats(ctx, domain.ID, period)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}

// Logs lists the domain's delivery log, newest first.
func (h *EmailsHandler) Logs() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.Logs")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := authenticatedDomain(c)
		if domain == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit < 1 || limit > 200 {
			limit = 50
		}
		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			offset = 0
		}

		entries, total, err := h.logRepository.ListByDomain(ctx, domain.ID, limit, offset)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs":   entries,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}
