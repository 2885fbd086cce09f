package handlers

import (
	"net/http"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
	"github.com/mailgate/mailgate/services/transport"
)

type RegisterDomainRequest struct {
	Domain    string `json:"domain" binding:"required"`
	FromEmail string `json:"fromEmail" binding:"required"`
	FromName  string `json:"fromName" binding:"required"`
	Mailer    string `json:"mailer"`

	SMTPHost     string `json:"smtpHost"`
	SMTPPort     int    `json:"smtpPort"`
	SMTPSecurity string `json:"smtpSecurity"`
	SMTPUsername string `json:"smtpUsername"`
	SMTPPassword string `json:"smtpPassword"`

	SESKey    string `json:"sesKey"`
	SESSecret string `json:"sesSecret"`
	SESRegion string `json:"sesRegion"`

	HourlyLimit int `json:"hourlyLimit"`
	DailyLimit  int `json:"dailyLimit"`
}

type UpdateDomainRequest struct {
	FromEmail string `json:"fromEmail"`
	FromName  string `json:"fromName"`
	Mailer    string `json:"mailer"`
	Status    string `json:"status"`

	SMTPHost     *string `json:"smtpHost"`
	SMTPPort     *int    `json:"smtpPort"`
	SMTPSecurity *string `json:"smtpSecurity"`
	SMTPUsername *string `json:"smtpUsername"`
	SMTPPassword *string `json:"smtpPassword"`

	SESKey    *string `json:"sesKey"`
	SESSecret *string `json:"sesSecret"`
	SESRegion *string `json:"sesRegion"`

	HourlyLimit *int `json:"hourlyLimit"`
	DailyLimit  *int `json:"dailyLimit"`
}

type TestEmailRequest struct {
	To string `json:"to" binding:"required"`
}

type DomainsHandler struct {
	domainRepository   repository.DomainRepository
	templateRepository repository.TemplateRepository
	deliverer          transport.Deliverer
}

func NewDomainsHandler(repos *repository.Repositories, deliverer transport.Deliverer) *DomainsHandler {
	return &DomainsHandler{
		domainRepository:   repos.DomainRepository,
		templateRepository: repos.TemplateRepository,
		deliverer:          deliverer,
	}
}

// Register creates a tenant domain. The response carries the plaintext
// API key; it is never retrievable again.
func (h *DomainsHandler) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.Register")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req RegisterDomainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Domain = strings.ToLower(strings.TrimSpace(req.Domain))
		tracing.TagDomain(span, req.Domain)

		validation := mailvalidate.ValidateEmailSyntax(req.FromEmail)
		if !validation.IsValid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fromEmail is not a valid address"})
			return
		}
		if validation.Domain != req.Domain {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fromEmail must belong to the registered domain"})
			return
		}

		mailer := enum.MailerSMTP
		if req.Mailer != "" {
			mailer = enum.Mailer(req.Mailer)
			if !mailer.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "mailer must be one of: smtp, ses, sendmail"})
				return
			}
		}

		if existing, err := h.domainRepository.GetByName(ctx, req.Domain); err == nil && existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Domain already registered"})
			return
		}

		apiKey := utils.GenerateAPIKey()
		domain := &models.Domain{
			Domain:       req.Domain,
			FromEmail:    req.FromEmail,
			FromName:     req.FromName,
			Mailer:       mailer,
			Status:       enum.DomainStatusActive,
			APIKeyHash:   utils.HashAPIKey(apiKey),
			SMTPHost:     req.SMTPHost,
			SMTPPort:     req.SMTPPort,
			SMTPSecurity: enum.EmailSecurity(req.SMTPSecurity),
			SMTPUsername: req.SMTPUsername,
			SMTPPassword: req.SMTPPassword,
			SESKey:       req.SESKey,
			SESSecret:    req.SESSecret,
			SESRegion:    req.SESRegion,
			HourlyLimit:  req.HourlyLimit,
			DailyLimit:   req.DailyLimit,
		}
		if domain.HourlyLimit == 0 {
			domain.HourlyLimit = 100
		}
		if domain.DailyLimit == 0 {
			domain.DailyLimit = 1000
		}

		if err := h.domainRepository.Create(ctx, domain); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register domain"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"domain": domain,
			"apiKey": apiKey,
		})
	}
}

func (h *DomainsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domains, err := h.domainRepository.List(ctx, c.Query("status"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list domains"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"domains": domains})
	}
}

func (h *DomainsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain, err := h.domainRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, repository.ErrDomainNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load domain"})
			return
		}

		c.JSON(http.StatusOK, domain)
	}
}

func (h *DomainsHandler) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.Update")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain, err := h.domainRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, repository.ErrDomainNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load domain"})
			return
		}
		tracing.TagDomain(span, domain.Domain)

		var req UpdateDomainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if req.FromEmail != "" {
			validation := mailvalidate.ValidateEmailSyntax(req.FromEmail)
			if !validation.IsValid || validation.Domain != domain.Domain {
				c.JSON(http.StatusBadRequest, gin.H{"error": "fromEmail must be a valid address on the domain"})
				return
			}
			domain.FromEmail = req.FromEmail
		}
		if req.FromName != "" {
			domain.FromName = req.FromName
		}
		if req.Mailer != "" {
			mailer := enum.Mailer(req.Mailer)
			if !mailer.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "mailer must be one of: smtp, ses, sendmail"})
				return
			}
			domain.Mailer = mailer
		}
		if req.Status != "" {
			status := enum.DomainStatus(req.Status)
			if !status.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of: active, inactive, suspended"})
				return
			}
			domain.Status = status
		}

		if req.SMTPHost != nil {
			domain.SMTPHost = *req.SMTPHost
		}
		if req.SMTPPort != nil {
			domain.SMTPPort = *req.SMTPPort
		}
		if req.SMTPSecurity != nil {
			domain.SMTPSecurity = enum.EmailSecurity(*req.SMTPSecurity)
		}
		if req.SMTPUsername != nil {
			domain.SMTPUsername = *req.SMTPUsername
		}
		if req.SMTPPassword != nil {
			domain.SMTPPassword = *req.SMTPPassword
		}
		if req.SESKey != nil {
			domain.SESKey = *req.SESKey
		}
		if req.SESSecret != nil {
			domain.SESSecret = *req.SESSecret
		}
		if req.SESRegion != nil {
			domain.SESRegion = *req.SESRegion
		}
		if req.HourlyLimit != nil && *req.HourlyLimit > 0 {
			domain.HourlyLimit = *req.HourlyLimit
		}
		if req.DailyLimit != nil && *req.DailyLimit > 0 {
			domain.DailyLimit = *req.DailyLimit
		}

		if err := h.domainRepository.Update(ctx, domain); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update domain"})
			return
		}

		c.JSON(http.StatusOK, domain)
	}
}

// Delete removes a domain and, via the cascade, its templates and logs.
// When templates still exist the caller must pass ?force=true.
func (h *DomainsHandler) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.Delete")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if c.Query("force") != "true" {
			count, err := h.templateRepository.CountByDomain(ctx, c.Param("id"))
			if err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete domain"})
				return
			}
			if count > 0 {
				c.JSON(http.StatusConflict, gin.H{
					"error":     "Domain still has templates; pass force=true to delete them as well",
					"templates": count,
				})
				return
			}
		}

		err := h.domainRepository.Delete(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, repository.ErrDomainNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete domain"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// RegenerateKey rotates the domain's API key. The old key stops working
// immediately.
func (h *DomainsHandler) RegenerateKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.RegenerateKey")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain, err := h.domainRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, repository.ErrDomainNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load domain"})
			return
		}
		tracing.TagDomain(span, domain.Domain)

		apiKey := utils.GenerateAPIKey()
		if err := h.domainRepository.UpdateAPIKeyHash(ctx, domain.ID, utils.HashAPIKey(apiKey)); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rotate API key"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"apiKey": apiKey})
	}
}

// TestEmail delivers a fixed diagnostic message through the domain's
// configured transport, bypassing templates and rate limits. Nothing is
// written to the delivery log.
func (h *DomainsHandler) TestEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.TestEmail")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain, err := h.domainRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, repository.ErrDomainNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load domain"})
			return
		}
		tracing.TagDomain(span, domain.Domain)

		var req TestEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		validation := mailvalidate.ValidateEmailSyntax(req.To)
		if !validation.IsValid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to is not a valid address"})
			return
		}

		messageID, err := h.deliverer.Deliver(ctx, domain, &transport.Message{
			FromEmail: domain.FromEmail,
			FromName:  domain.FromName,
			To:        req.To,
			Subject:   "Transport configuration test for " + domain.Domain,
			BodyHTML:  "<p>This is a test message confirming the transport configuration works.</p>",
		})
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "messageId": messageID})
	}
}
