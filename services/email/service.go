// Package email implements the send pipeline: tenant checks, rate
// limiting, template rendering, durable logging and delivery. Every
// accepted send leaves exactly one log entry that ends up sent or
// failed; sends rejected before queueing leave none.
package email

import (
	"context"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
	"github.com/mailgate/mailgate/services/events"
	"github.com/mailgate/mailgate/services/ratelimit"
	"github.com/mailgate/mailgate/services/render"
	"github.com/mailgate/mailgate/services/template"
	"github.com/mailgate/mailgate/services/transport"
)

type SendRequest struct {
	TemplateKey string
	To          string
	Variables   map[string]interface{}
}

type SendResult struct {
	LogID     string         `json:"logId"`
	MessageID string         `json:"messageId"`
	Status    enum.LogStatus `json:"status"`
}

// Stats summarizes a domain's delivery log over a period.
type Stats struct {
	Period string `json:"period"`
	Since  string `json:"since"`
	Total  int64  `json:"total"`
	Sent   int64  `json:"sent"`
	Failed int64  `json:"failed"`
	Queued int64  `json:"queued"`
}

type Service struct {
	templateRepository repository.TemplateRepository
	logRepository      repository.EmailLogRepository
	rateLimiter        *ratelimit.Service
	deliverer          transport.Deliverer
	publisher          events.Publisher
	now                func() time.Time
}

func NewService(
	templateRepository repository.TemplateRepository,
	logRepository repository.EmailLogRepository,
	rateLimiter *ratelimit.Service,
	deliverer transport.Deliverer,
	publisher events.Publisher,
) *Service {
	return &Service{
		templateRepository: templateRepository,
		logRepository:      logRepository,
		rateLimiter:        rateLimiter,
		deliverer:          deliverer,
		publisher:          publisher,
		now:                utils.Now,
	}
}

// Send runs the full pipeline for one message. Rejections before the
// log entry is queued return an error and write nothing; failures after
// queueing mark the entry failed and still return the log id in the
// result.
func (s *Service) Send(ctx context.Context, domain *models.Domain, request SendRequest) (*SendResult, error) {
	ctx = utils.SetDomainInContext(ctx, domain.ID, domain.Domain)
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailService.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTemplateKey(span, request.TemplateKey)

	if !domain.IsActive() {
		tracing.TraceErr(span, ErrDomainInactive)
		return nil, ErrDomainInactive
	}

	validation := mailvalidate.ValidateEmailSyntax(request.To)
	if !validation.IsValid {
		tracing.TraceErr(span, ErrInvalidRecipient)
		return nil, ErrInvalidRecipient
	}

	limit, err := s.rateLimiter.Check(ctx, domain, s.now())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !limit.Allowed {
		rateLimitErr := &RateLimitError{
			Reason:  limit.Reason,
			Limit:   limit.Limit,
			Current: limit.Current,
		}
		tracing.TraceErr(span, rateLimitErr)
		return nil, rateLimitErr
	}

	tpl, err := s.templateRepository.GetActiveByKey(ctx, domain.ID, request.TemplateKey)
	if err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			tracing.TraceErr(span, ErrTemplateNotFound)
			return nil, ErrTemplateNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	bindings, err := template.ValidateBindings(tpl.Variables, render.Bindings(request.Variables))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	subject, err := render.Render(tpl.Subject, bindings, render.WithoutEscaping())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	bodyHTML, err := render.Render(tpl.BodyHTML, bindings)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	// The entry is queued before any delivery attempt so every outcome
	// past this point is recorded.
	entry := &models.EmailLog{
		DomainID:    domain.ID,
		TemplateID:  &tpl.ID,
		FromEmail:   domain.FromEmail,
		ToEmail:     request.To,
		Subject:     subject,
		TemplateKey: tpl.TemplateKey,
		Status:      enum.LogStatusQueued,
		MailerUsed:  transport.MailerFor(domain),
		Variables:   models.JSONMap(bindings),
	}
	if err = s.logRepository.Create(ctx, entry); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("logId", entry.ID)

	message := &transport.Message{
		FromEmail: domain.FromEmail,
		FromName:  domain.FromName,
		To:        request.To,
		Subject:   subject,
		BodyHTML:  bodyHTML,
	}

	messageID, err := s.deliverer.Deliver(ctx, domain, message)
	if err != nil {
		tracing.TraceErr(span, err)
		return s.markFailed(ctx, entry, err)
	}

	sentAt := s.now()
	if err = s.logRepository.MarkSent(ctx, entry.ID, messageID, sentAt); err != nil {
		// The message left the building but the sent state could not be
		// recorded. The entry must not stay queued, so it is marked
		// failed with the recording error.
		tracing.TraceErr(span, err)
		return s.markFailed(ctx, entry, errors.Wrap(err, "delivered but failed to record sent state"))
	}
	entry.Status = enum.LogStatusSent
	entry.MessageID = messageID
	entry.SentAt = &sentAt
	s.publisher.PublishDeliveryEvent(ctx, entry)

	return &SendResult{
		LogID:     entry.ID,
		MessageID: messageID,
		Status:    enum.LogStatusSent,
	}, nil
}

func (s *Service) markFailed(ctx context.Context, entry *models.EmailLog, cause error) (*SendResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailService.markFailed")
	defer span.Finish()

	if err := s.logRepository.MarkFailed(ctx, entry.ID, cause.Error()); err != nil {
		tracing.TraceErr(span, err)
	}
	entry.Status = enum.LogStatusFailed
	entry.ErrorMessage = cause.Error()
	s.publisher.PublishDeliveryEvent(ctx, entry)

	return &SendResult{
		LogID:  entry.ID,
		Status: enum.LogStatusFailed,
	}, cause
}

// GetStats aggregates log counts for the period: today, this week
// (from Monday) or this month, all on UTC boundaries.
func (s *Service) GetStats(ctx context.Context, domainID string, period enum.StatsPeriod) (*Stats, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailService.GetStats")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("period", period)

	now := s.now()
	var since time.Time
	switch period {
	case enum.StatsPeriodToday:
		since = utils.StartOfDayUTC(now)
	case enum.StatsPeriodWeek:
		since = utils.StartOfWeekUTC(now)
	case enum.StatsPeriodMonth:
		since = utils.StartOfMonthUTC(now)
	default:
		tracing.TraceErr(span, ErrInvalidStatsPeriod)
		return nil, ErrInvalidStatsPeriod
	}

	counts, err := s.logRepository.CountByStatusSince(ctx, domainID, since)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &Stats{
		Period: period.String(),
		Since:  since.Format(time.RFC3339),
		Total:  counts.Total,
		Sent:   counts.Sent,
		Failed: counts.Failed,
		Queued: counts.Queued,
	}, nil
}
