package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"gorm.io/gorm"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
)

// StatusCounts aggregates log entries by terminal status since a window start.
type StatusCounts struct {
	Total  int64
	Sent   int64
	Failed int64
	Queued int64
}

// EmailLogRepository defines data operations over send-attempt records.
// Entries are append-only apart from the single queued->sent/failed
// transition performed by MarkSent and MarkFailed.
type EmailLogRepository interface {
	Create(ctx context.Context, entry *models.EmailLog) error
	GetByID(ctx context.Context, id string) (*models.EmailLog, error)
	CountSince(ctx context.Context, domainID string, since time.Time) (int64, error)
	CountByStatusSince(ctx context.Context, domainID string, since time.Time) (*StatusCounts, error)
	MarkSent(ctx context.Context, id string, messageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	ListByDomain(ctx context.Context, domainID string, limit, offset int) ([]models.EmailLog, int64, error)
}

type gormEmailLogRepository struct {
	db *gorm.DB
}

func NewEmailLogRepository(db *gorm.DB) EmailLogRepository {
	return &gormEmailLogRepository{db: db}
}

// Create persists the queued entry and reads it back, so the caller holds
// the row exactly as stored before any delivery attempt is made.
func (r *gormEmailLogRepository) Create(ctx context.Context, entry *models.EmailLog) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailLogRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if entry == nil || entry.DomainID == "" {
		return ErrInvalidInput
	}

	if entry.Status == "" {
		entry.Status = enum.LogStatusQueued
	}
	entry.CreatedAt = utils.Now()
	entry.UpdatedAt = entry.CreatedAt

	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	err = r.db.WithContext(ctx).Where("id = ?", entry.ID).First(entry).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	span.LogFields(tracingLog.String("log.id", entry.ID))
	return nil
}

func (r *gormEmailLogRepository) GetByID(ctx context.Context, id string) (*models.EmailLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailLogRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if id == "" {
		return nil, ErrInvalidInput
	}

	var entry models.EmailLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLogEntryNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &entry, nil
}

// CountSince counts entries created in [since, now]. Used by the rate
// limiter for the trailing-hour and calendar-day windows.
func (r *gormEmailLogRepository) CountSince(ctx context.Context, domainID string, since time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailLogRepository.CountSince")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if domainID == "" {
		return 0, ErrInvalidInput
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&models.EmailLog{}).
		Where("domain_id = ? AND created_at >= ?", domainID, since).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

func (r *gormEmailLogRepository) CountByStatusSince(ctx context.Context, domainID string, since time.Time) (*StatusCounts, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailLogRepository.CountByStatusSince")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if domainID == "" {
		return nil, ErrInvalidInput
	}

	var rows []struct {
		Status enum.LogStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.EmailLog{}).
		Select("status, count(*) as count").
		Where("domain_id = ? AND created_at >= ?", domainID, since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	counts := &StatusCounts{}
	for _, row := range rows {
		counts.Total += row.Count
		switch row.Status {
		case enum.LogStatusSent:
			counts.Sent = row.Count
		case enum.LogStatusFailed:
			counts.Failed = row.Count
		case enum.LogStatusQueued:
			counts.Queued = row.Count
		}
	}
	return counts, nil
}

// MarkSent transitions a queued entry to sent. The status guard in the
// WHERE clause makes the terminal transition single-shot.
func (r *gormEmailLogRepository) MarkSent(ctx context.Context, id string, messageID string, sentAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailLogRepository.MarkSent")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if id == "" || messageID == "" {
		return ErrInvalidInput
	}

	result := r.db.WithContext(ctx).Model(&models.EmailLog{}).
		Where("id = ? AND status = ?", id, enum.LogStatusQueued).
		Updates(map[string]interface{}{
			"status":     enum.LogStatusSent,
			"message_id": messageID,
			"sent_at":    sentAt,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.terminalTransitionError(ctx, id)
	}
	return nil
}

// MarkFailed transitions a queued entry to failed with the error recorded.
func (r *gormEmailLogRepository) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailLogRepository.MarkFailed")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if id == "" {
		return ErrInvalidInput
	}

	result := r.db.WithContext(ctx).Model(&models.EmailLog{}).
		Where("id = ? AND status = ?", id, enum.LogStatusQueued).
		Updates(map[string]interface{}{
			"status":        enum.LogStatusFailed,
			"error_message": errorMessage,
			"updated_at":    utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.terminalTransitionError(ctx, id)
	}
	return nil
}

func (r *gormEmailLogRepository) ListByDomain(ctx context.Context, domainID string, limit, offset int) ([]models.EmailLog, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailLogRepository.ListByDomain")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if domainID == "" {
		return nil, 0, ErrInvalidInput
	}

	var totalCount int64
	if err := r.db.WithContext(ctx).Model(&models.EmailLog{}).
		Where("domain_id = ?", domainID).
		Count(&totalCount).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}

	var entries []models.EmailLog
	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return entries, totalCount, nil
}

func (r *gormEmailLogRepository) terminalTransitionError(ctx context.Context, id string) error {
	var count int64
	r.db.WithContext(ctx).Model(&models.EmailLog{}).Where("id = ?", id).Count(&count)
	if count == 0 {
		return ErrLogEntryNotFound
	}
	return ErrLogEntryTerminal
}
