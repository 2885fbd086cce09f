package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"gorm.io/gorm"

	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
)

// DomainRepository defines data operations over tenant domains.
type DomainRepository interface {
	Create(ctx context.Context, domain *models.Domain) error
	GetByID(ctx context.Context, id string) (*models.Domain, error)
	GetByName(ctx context.Context, domainName string) (*models.Domain, error)
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*models.Domain, error)
	List(ctx context.Context, status string) ([]models.Domain, error)
	Update(ctx context.Context, domain *models.Domain) error
	UpdateAPIKeyHash(ctx context.Context, id string, apiKeyHash string) error
	Delete(ctx context.Context, id string) error
}

type gormDomainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &gormDomainRepository{db: db}
}

func (r *gormDomainRepository) Create(ctx context.Context, domain *models.Domain) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if domain == nil {
		return ErrInvalidInput
	}

	domain.CreatedAt = utils.Now()
	domain.UpdatedAt = domain.CreatedAt

	err := r.db.WithContext(ctx).Create(domain).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogFields(tracingLog.String("domain.id", domain.ID))
	return nil
}

func (r *gormDomainRepository) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if id == "" {
		return nil, ErrInvalidInput
	}

	var domain models.Domain
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDomainNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &domain, nil
}

func (r *gormDomainRepository) GetByName(ctx context.Context, domainName string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByName")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagDomain(span, domainName)

	if domainName == "" {
		return nil, ErrInvalidInput
	}

	var domain models.Domain
	err := r.db.WithContext(ctx).Where("domain = ?", domainName).First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDomainNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &domain, nil
}

// GetByAPIKeyHash is the authentication lookup. Only the hash ever touches
// the query; the plaintext key is never persisted or logged.
func (r *gormDomainRepository) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByAPIKeyHash")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if apiKeyHash == "" {
		return nil, ErrInvalidInput
	}

	var domain models.Domain
	err := r.db.WithContext(ctx).Where("api_key_hash = ?", apiKeyHash).First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDomainNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &domain, nil
}

func (r *gormDomainRepository) List(ctx context.Context, status string) ([]models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.List")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	query := r.db.WithContext(ctx).Model(&models.Domain{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var domains []models.Domain
	err := query.Order("created_at DESC").Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return domains, nil
}

func (r *gormDomainRepository) Update(ctx context.Context, domain *models.Domain) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.Update")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if domain == nil || domain.ID == "" {
		return ErrInvalidInput
	}

	domain.UpdatedAt = utils.Now()

	result := r.db.WithContext(ctx).Model(&models.Domain{}).
		Where("id = ?", domain.ID).
		Updates(map[string]interface{}{
			"from_email":    domain.FromEmail,
			"from_name":     domain.FromName,
			"mailer":        domain.Mailer,
			"status":        domain.Status,
			"smtp_host":     domain.SMTPHost,
			"smtp_port":     domain.SMTPPort,
			"smtp_security": domain.SMTPSecurity,
			"smtp_username": domain.SMTPUsername,
			"smtp_password": domain.SMTPPassword,
			"ses_key":       domain.SESKey,
			"ses_secret":    domain.SESSecret,
			"ses_region":    domain.SESRegion,
			"hourly_limit":  domain.HourlyLimit,
			"daily_limit":   domain.DailyLimit,
			"updated_at":    domain.UpdatedAt,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDomainNotFound
	}
	return nil
}

func (r *gormDomainRepository) UpdateAPIKeyHash(ctx context.Context, id string, apiKeyHash string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.UpdateAPIKeyHash")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if id == "" || apiKeyHash == "" {
		return ErrInvalidInput
	}

	result := r.db.WithContext(ctx).Model(&models.Domain{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"api_key_hash": apiKeyHash,
			"updated_at":   utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDomainNotFound
	}
	return nil
}

// Delete removes a domain together with its templates and logs (cascade).
func (r *gormDomainRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.Delete")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if id == "" {
		return ErrInvalidInput
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("domain_id = ?", id).Delete(&models.EmailLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("domain_id = ?", id).Delete(&models.Template{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Domain{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDomainNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrDomainNotFound) {
		tracing.TraceErr(span, err)
	}
	return err
}
