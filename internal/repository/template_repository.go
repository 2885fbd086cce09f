package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
)

// TemplateRepository defines data operations over templates. All lookups are
// scoped by domain ID in the query itself; a template is never visible to
// another tenant, even for an identical key.
type TemplateRepository interface {
	Create(ctx context.Context, template *models.Template) error
	GetByKey(ctx context.Context, domainID, templateKey string) (*models.Template, error)
	GetActiveByKey(ctx context.Context, domainID, templateKey string) (*models.Template, error)
	List(ctx context.Context, domainID, category string) ([]models.Template, error)
	CountByDomain(ctx context.Context, domainID string) (int64, error)
	Update(ctx context.Context, template *models.Template) error
	Delete(ctx context.Context, domainID, templateKey string) error
}

type gormTemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &gormTemplateRepository{db: db}
}

func (r *gormTemplateRepository) Create(ctx context.Context, template *models.Template) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TemplateRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if template == nil || template.DomainID == "" || template.TemplateKey == "" {
		return ErrInvalidInput
	}
	tracing.TagTemplateKey(span, template.TemplateKey)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Template{}).
		Where("domain_id = ? AND template_key = ?", template.DomainID, template.TemplateKey).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if count > 0 {
		return ErrTemplateAlreadyExists
	}

	template.CreatedAt = utils.Now()
	template.UpdatedAt = template.CreatedAt

	err = r.db.WithContext(ctx).Create(template).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *gormTemplateRepository) GetByKey(ctx context.Context, domainID, templateKey string) (*models.Template, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TemplateRepository.GetByKey")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTemplateKey(span, templateKey)

	if domainID == "" || templateKey == "" {
		return nil, ErrInvalidInput
	}

	var template models.Template
	err := r.db.WithContext(ctx).
		Where("domain_id = ? AND template_key = ?", domainID, templateKey).
		First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &template, nil
}

// GetActiveByKey is the send-pipeline lookup: active templates only.
func (r *gormTemplateRepository) GetActiveByKey(ctx context.Context, domainID, templateKey string) (*models.Template, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TemplateRepository.GetActiveByKey")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTemplateKey(span, templateKey)

	if domainID == "" || templateKey == "" {
		return nil, ErrInvalidInput
	}

	var template models.Template
	err := r.db.WithContext(ctx).
		Where("domain_id = ? AND template_key = ? AND status = ?", domainID, templateKey, enum.TemplateStatusActive).
		First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &template, nil
}

func (r *gormTemplateRepository) List(ctx context.Context, domainID, category string) ([]models.Template, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TemplateRepository.List")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if domainID == "" {
		return nil, ErrInvalidInput
	}

	query := r.db.WithContext(ctx).Where("domain_id = ?", domainID)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var templates []models.Template
	err := query.Order("template_key ASC").Find(&templates).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return templates, nil
}

func (r *gormTemplateRepository) CountByDomain(ctx context.Context, domainID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TemplateRepository.CountByDomain")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if domainID == "" {
		return 0, ErrInvalidInput
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Template{}).
		Where("domain_id = ?", domainID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

func (r *gormTemplateRepository) Update(ctx context.Context, template *models.Template) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TemplateRepository.Update")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if template == nil || template.ID == "" {
		return ErrInvalidInput
	}
	tracing.TagTemplateKey(span, template.TemplateKey)

	template.UpdatedAt = utils.Now()

	result := r.db.WithContext(ctx).Model(&models.Template{}).
		Where("id = ? AND domain_id = ?", template.ID, template.DomainID).
		Updates(map[string]interface{}{
			"category":    template.Category,
			"description": template.Description,
			"subject":     template.Subject,
			"body_html":   template.BodyHTML,
			"variables":   template.Variables,
			"status":      template.Status,
			"updated_at":  template.UpdatedAt,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Delete removes a template; historical log entries keep their template_key
// and have template_id nulled so the send history survives.
func (r *gormTemplateRepository) Delete(ctx context.Context, domainID, templateKey string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TemplateRepository.Delete")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTemplateKey(span, templateKey)

	if domainID == "" || templateKey == "" {
		return ErrInvalidInput
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var template models.Template
		err := tx.Where("domain_id = ? AND template_key = ?", domainID, templateKey).First(&template).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTemplateNotFound
			}
			return err
		}

		err = tx.Model(&models.EmailLog{}).
			Where("template_id = ?", template.ID).
			Update("template_id", nil).Error
		if err != nil {
			return err
		}

		return tx.Delete(&template).Error
	})
}
