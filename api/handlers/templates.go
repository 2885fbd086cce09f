package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
	"github.com/mailgate/mailgate/services/render"
	"github.com/mailgate/mailgate/services/template"
)

type TemplateRequest struct {
	TemplateKey string              `json:"templateKey" binding:"required"`
	Category    string              `json:"category"`
	Description string              `json:"description"`
	Subject     string              `json:"subject" binding:"required"`
	BodyHTML    string              `json:"bodyHtml" binding:"required"`
	Variables   models.VariableList `json:"variables"`
	Status      string              `json:"status"`
}

type PreviewRequest struct {
	Variables map[string]interface{} `json:"variables"`
}

type TemplatesHandler struct {
	templateRepository repository.TemplateRepository
}

func NewTemplatesHandler(repos *repository.Repositories) *TemplatesHandler {
	return &TemplatesHandler{
		templateRepository: repos.TemplateRepository,
	}
}

// validate runs the structural checks shared by create and update: key
// format, variable schema, and a render of both subject and body
// against sample bindings.
func (h *TemplatesHandler) validate(req *TemplateRequest) error {
	if err := template.ValidateKey(req.TemplateKey); err != nil {
		return err
	}
	if err := template.ValidateSchema(req.Variables); err != nil {
		return err
	}
	return template.CheckSyntax(req.Subject, req.BodyHTML, req.Variables, utils.Now())
}

func (h *TemplatesHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TemplatesHandler.Create")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := authenticatedDomain(c)
		if domain == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		var req TemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tracing.TagTemplateKey(span, req.TemplateKey)

		if err := h.validate(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		status := enum.TemplateStatusActive
		if req.Status != "" {
			status = enum.TemplateStatus(req.Status)
		}

		tpl := &models.Template{
			DomainID:    domain.ID,
			TemplateKey: req.TemplateKey,
			Category:    req.Category,
			Description: req.Description,
			Subject:     req.Subject,
			BodyHTML:    req.BodyHTML,
			Variables:   req.Variables,
			Status:      status,
		}
		if err := h.templateRepository.Create(ctx, tpl); err != nil {
			if errors.Is(err, repository.ErrTemplateAlreadyExists) {
				c.JSON(http.StatusConflict, gin.H{"error": "Template key already exists"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create template"})
			return
		}

		c.JSON(http.StatusCreated, tpl)
	}
}

func (h *TemplatesHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TemplatesHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := authenticatedDomain(c)
		if domain == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		templates, err := h.templateRepository.List(ctx, domain.ID, c.Query("category"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list templates"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"templates": templates})
	}
}

func (h *TemplatesHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TemplatesHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := authenticatedDomain(c)
		if domain == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		tpl, err := h.templateRepository.GetByKey(ctx, domain.ID, c.Param("templateKey"))
		if err != nil {
			if errors.Is(err, repository.ErrTemplateNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load template"})
			return
		}

		c.JSON(http.StatusOK, tpl)
	}
}

func (h *TemplatesHandler) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TemplatesHandler.Update")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := authenticatedDomain(c)
		if domain == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		tpl, err := h.templateRepository.GetByKey(ctx, domain.ID, c.Param("templateKey"))
		if err != nil {
			if errors.Is(err, repository.ErrTemplateNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load template"})
			return
		}

		var req TemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// the key identifies the template and cannot be changed
		req.TemplateKey = tpl.TemplateKey
		if err := h.validate(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		tpl.Category = req.Category
		tpl.Description = req.Description
		tpl.Subject = req.Subject
		tpl.BodyHTML = req.BodyHTML
		tpl.Variables = req.Variables
		if req.Status != "" {
			tpl.Status = enum.TemplateStatus(req.Status)
		}

		if err := h.templateRepository.Update(ctx, tpl); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update template"})
			return
		}

		c.JSON(http.StatusOK, tpl)
	}
}

func (h *TemplatesHandler) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TemplatesHandler.Delete")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := authenticatedDomain(c)
		if domain == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		err := h.templateRepository.Delete(ctx, domain.ID, c.Param("templateKey"))
		if err != nil {
			if errors.Is(err, repository.ErrTemplateNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete template"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// Preview renders the template without sending anything. Variables not
// supplied in the request fall back to type-based samples.
func (h *TemplatesHandler) Preview() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TemplatesHandler.Preview")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := authenticatedDomain(c)
		if domain == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		tpl, err := h.templateRepository.GetByKey(ctx, domain.ID, c.Param("templateKey"))
		if err != nil {
			if errors.Is(err, repository.ErrTemplateNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load template"})
			return
		}

		var req PreviewRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		bindings := template.SampleBindings(tpl.Variables, utils.Now())
		for name, value := range req.Variables {
			bindings[name] = value
		}

		subject, err := render.Render(tpl.Subject, bindings, render.WithoutEscaping())
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		bodyHTML, err := render.Render(tpl.BodyHTML, bindings)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"subject":  subject,
			"bodyHtml": bodyHTML,
		})
	}
}
