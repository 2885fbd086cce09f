package email

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/internal/utils"
	"github.com/mailgate/mailgate/services/ratelimit"
	"github.com/mailgate/mailgate/services/render"
	"github.com/mailgate/mailgate/services/template"
	"github.com/mailgate/mailgate/services/transport"
)

type fakeTemplateRepo struct {
	templates map[string]*models.Template
}

func newFakeTemplateRepo(templates ...*models.Template) *fakeTemplateRepo {
	repo := &fakeTemplateRepo{templates: map[string]*models.Template{}}
	for _, tpl := range templates {
		repo.templates[tpl.DomainID+"/"+tpl.TemplateKey] = tpl
	}
	return repo
}

func (f *fakeTemplateRepo) Create(_ context.Context, tpl *models.Template) error {
	f.templates[tpl.DomainID+"/"+tpl.TemplateKey] = tpl
	return nil
}

func (f *fakeTemplateRepo) GetByKey(_ context.Context, domainID, templateKey string) (*models.Template, error) {
	tpl, ok := f.templates[domainID+"/"+templateKey]
	if !ok {
		return nil, repository.ErrTemplateNotFound
	}
	return tpl, nil
}

func (f *fakeTemplateRepo) GetActiveByKey(ctx context.Context, domainID, templateKey string) (*models.Template, error) {
	tpl, err := f.GetByKey(ctx, domainID, templateKey)
	if err != nil || tpl.Status != enum.TemplateStatusActive {
		return nil, repository.ErrTemplateNotFound
	}
	return tpl, nil
}

func (f *fakeTemplateRepo) List(_ context.Context, _, _ string) ([]models.Template, error) {
	return nil, nil
}

func (f *fakeTemplateRepo) CountByDomain(_ context.Context, _ string) (int64, error) {
	return int64(len(f.templates)), nil
}

func (f *fakeTemplateRepo) Update(_ context.Context, tpl *models.Template) error {
	f.templates[tpl.DomainID+"/"+tpl.TemplateKey] = tpl
	return nil
}

func (f *fakeTemplateRepo) Delete(_ context.Context, domainID, templateKey string) error {
	delete(f.templates, domainID+"/"+templateKey)
	return nil
}

type fakeLogRepo struct {
	mu          sync.Mutex
	entries     []*models.EmailLog
	nextID      int
	markSentErr error
}

func (f *fakeLogRepo) Create(_ context.Context, entry *models.EmailLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry.ID = fmt.Sprintf("log_%016d", f.nextID)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = utils.Now()
	}
	stored := *entry
	f.entries = append(f.entries, &stored)
	return nil
}

func (f *fakeLogRepo) GetByID(_ context.Context, id string) (*models.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, repository.ErrLogEntryNotFound
}

func (f *fakeLogRepo) CountSince(_ context.Context, domainID string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, entry := range f.entries {
		if entry.DomainID == domainID && !entry.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeLogRepo) CountByStatusSince(_ context.Context, domainID string, since time.Time) (*repository.StatusCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := &repository.StatusCounts{}
	for _, entry := range f.entries {
		if entry.DomainID != domainID || entry.CreatedAt.Before(since) {
			continue
		}
		counts.Total++
		switch entry.Status {
		case enum.LogStatusSent:
			counts.Sent++
		case enum.LogStatusFailed:
			counts.Failed++
		case enum.LogStatusQueued:
			counts.Queued++
		}
	}
	return counts, nil
}

func (f *fakeLogRepo) MarkSent(ctx context.Context, id string, messageID string, sentAt time.Time) error {
	if f.markSentErr != nil {
		return f.markSentErr
	}
	entry, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.Status != enum.LogStatusQueued {
		return repository.ErrLogEntryTerminal
	}
	entry.Status = enum.LogStatusSent
	entry.MessageID = messageID
	entry.SentAt = &sentAt
	return nil
}

func (f *fakeLogRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	entry, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.Status != enum.LogStatusQueued {
		return repository.ErrLogEntryTerminal
	}
	entry.Status = enum.LogStatusFailed
	entry.ErrorMessage = errorMessage
	return nil
}

func (f *fakeLogRepo) ListByDomain(_ context.Context, domainID string, limit, offset int) ([]models.EmailLog, int64, error) {
	return nil, 0, nil
}

type fakeDeliverer struct {
	messageID string
	err       error
	delivered []*transport.Message
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ *models.Domain, msg *transport.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.delivered = append(f.delivered, msg)
	return f.messageID, nil
}

type fakePublisher struct {
	published []*models.EmailLog
}

func (f *fakePublisher) PublishDeliveryEvent(_ context.Context, entry *models.EmailLog) {
	stored := *entry
	f.published = append(f.published, &stored)
}

func (f *fakePublisher) Close() error { return nil }

func activeDomain() *models.Domain {
	return &models.Domain{
		ID:          "dom_acme12345678",
		Domain:      "acme.example.com",
		FromEmail:   "hello@acme.example.com",
		FromName:    "Acme",
		Mailer:      enum.MailerSMTP,
		SMTPHost:    "mail.acme.example.com",
		Status:      enum.DomainStatusActive,
		HourlyLimit: 100,
		DailyLimit:  1000,
	}
}

func welcomeTemplate(domainID string) *models.Template {
	return &models.Template{
		ID:          "tpl_welcome4567890a",
		DomainID:    domainID,
		TemplateKey: "welcome",
		Subject:     "Welcome {{ name }}!",
		BodyHTML:    "<p>Hello {{ name }}, your plan is {{ plan }}.</p>",
		Variables: models.VariableList{
			{Name: "name", Type: enum.VariableString, Required: true},
			{Name: "plan", Type: enum.VariableString, Default: "free"},
		},
		Status: enum.TemplateStatusActive,
	}
}

type pipeline struct {
	service   *Service
	logs      *fakeLogRepo
	deliverer *fakeDeliverer
	publisher *fakePublisher
}

func newPipeline(t *testing.T, templates ...*models.Template) *pipeline {
	t.Helper()
	logs := &fakeLogRepo{}
	deliverer := &fakeDeliverer{messageID: "eak_1741608000000000.abcdefgh12345678"}
	publisher := &fakePublisher{}
	service := NewService(
		newFakeTemplateRepo(templates...),
		logs,
		ratelimit.NewService(logs),
		deliverer,
		publisher,
	)
	return &pipeline{service: service, logs: logs, deliverer: deliverer, publisher: publisher}
}

func TestSend_Success(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))

	result, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
		Variables:   map[string]interface{}{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, enum.LogStatusSent, result.Status)
	assert.NotEmpty(t, result.LogID)
	assert.Equal(t, p.deliverer.messageID, result.MessageID)

	require.Len(t, p.logs.entries, 1)
	entry := p.logs.entries[0]
	assert.Equal(t, enum.LogStatusSent, entry.Status)
	assert.Equal(t, "Welcome Ada!", entry.Subject)
	assert.Equal(t, "welcome", entry.TemplateKey)
	assert.Equal(t, enum.MailerSMTP, entry.MailerUsed)
	assert.Equal(t, p.deliverer.messageID, entry.MessageID)
	assert.NotNil(t, entry.SentAt)
	assert.Empty(t, entry.ErrorMessage)
	// the default for the optional variable is recorded with the bindings
	assert.Equal(t, "free", entry.Variables["plan"])

	require.Len(t, p.deliverer.delivered, 1)
	msg := p.deliverer.delivered[0]
	assert.Equal(t, "hello@acme.example.com", msg.FromEmail)
	assert.Equal(t, "<p>Hello Ada, your plan is free.</p>", msg.BodyHTML)

	require.Len(t, p.publisher.published, 1)
	assert.Equal(t, enum.LogStatusSent, p.publisher.published[0].Status)
}

func TestSend_InactiveDomainLeavesNoLog(t *testing.T) {
	domain := activeDomain()
	domain.Status = enum.DomainStatusSuspended
	p := newPipeline(t, welcomeTemplate(domain.ID))

	_, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
		Variables:   map[string]interface{}{"name": "Ada"},
	})
	require.ErrorIs(t, err, ErrDomainInactive)
	assert.Empty(t, p.logs.entries)
	assert.Empty(t, p.publisher.published)
}

func TestSend_InvalidRecipient(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))

	_, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "welcome",
		To:          "not-an-address",
		Variables:   map[string]interface{}{"name": "Ada"},
	})
	require.ErrorIs(t, err, ErrInvalidRecipient)
	assert.Empty(t, p.logs.entries)
}

func TestSend_RateLimited(t *testing.T) {
	domain := activeDomain()
	domain.HourlyLimit = 5
	p := newPipeline(t, welcomeTemplate(domain.ID))

	request := SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
		Variables:   map[string]interface{}{"name": "Ada"},
	}

	for i := 0; i < 5; i++ {
		_, err := p.service.Send(context.Background(), domain, request)
		require.NoError(t, err)
	}

	// the sixth send in the hour is rejected and leaves no log entry
	_, err := p.service.Send(context.Background(), domain, request)
	var rateLimitErr *RateLimitError
	require.ErrorAs(t, err, &rateLimitErr)
	assert.Equal(t, ratelimit.ReasonHourlyLimitExceeded, rateLimitErr.Reason)
	assert.Equal(t, 5, rateLimitErr.Limit)
	assert.Len(t, p.logs.entries, 5)
}

func TestSend_TemplateNotFound(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))

	_, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "missing",
		To:          "ada@example.com",
	})
	require.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Empty(t, p.logs.entries)
}

func TestSend_InactiveTemplateNotUsable(t *testing.T) {
	domain := activeDomain()
	tpl := welcomeTemplate(domain.ID)
	tpl.Status = enum.TemplateStatusInactive
	p := newPipeline(t, tpl)

	_, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
		Variables:   map[string]interface{}{"name": "Ada"},
	})
	require.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Empty(t, p.logs.entries)
}

func TestSend_MissingRequiredVariable(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))

	_, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
	})
	var validationErr *template.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "name", validationErr.Variable)
	assert.Empty(t, p.logs.entries)
}

func TestSend_RenderErrorLeavesNoLog(t *testing.T) {
	domain := activeDomain()
	tpl := welcomeTemplate(domain.ID)
	tpl.BodyHTML = "<p>@unknown(name)</p>"
	p := newPipeline(t, tpl)

	_, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
		Variables:   map[string]interface{}{"name": "Ada"},
	})
	var renderErr *render.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Empty(t, p.logs.entries)
}

func TestSend_DeliveryFailureMarksEntryFailed(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))
	p.deliverer.err = errors.New("connection timed out")

	result, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
		Variables:   map[string]interface{}{"name": "Ada"},
	})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, enum.LogStatusFailed, result.Status)

	require.Len(t, p.logs.entries, 1)
	entry := p.logs.entries[0]
	assert.Equal(t, enum.LogStatusFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "connection timed out")
	assert.Empty(t, entry.MessageID)
	assert.Nil(t, entry.SentAt)

	require.Len(t, p.publisher.published, 1)
	assert.Equal(t, enum.LogStatusFailed, p.publisher.published[0].Status)
}

func TestSend_SentStateWriteFailureMarksEntryFailed(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))
	p.logs.markSentErr = errors.New("connection reset by peer")

	result, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
		Variables:   map[string]interface{}{"name": "Ada"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	require.NotNil(t, result)
	assert.NotEmpty(t, result.LogID)
	assert.Equal(t, enum.LogStatusFailed, result.Status)

	// the entry must not be stranded in the queued state
	require.Len(t, p.logs.entries, 1)
	entry := p.logs.entries[0]
	assert.Equal(t, enum.LogStatusFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "failed to record sent state")

	require.Len(t, p.publisher.published, 1)
	assert.Equal(t, enum.LogStatusFailed, p.publisher.published[0].Status)
}

func TestSend_ConfigErrorMarksEntryFailed(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))
	p.deliverer.err = &transport.ConfigError{Detail: "ses credentials are not configured"}

	result, err := p.service.Send(context.Background(), domain, SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
		Variables:   map[string]interface{}{"name": "Ada"},
	})
	var cfgErr *transport.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.NotNil(t, result)

	require.Len(t, p.logs.entries, 1)
	assert.Equal(t, enum.LogStatusFailed, p.logs.entries[0].Status)
	assert.Contains(t, p.logs.entries[0].ErrorMessage, "ses credentials")
}

func TestSend_EveryAcceptedSendEndsTerminal(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))

	request := SendRequest{
		TemplateKey: "welcome",
		To:          "ada@example.com",
		Variables:   map[string]interface{}{"name": "Ada"},
	}

	for i := 0; i < 10; i++ {
		if i%3 == 0 {
			p.deliverer.err = errors.New("transient failure")
		} else {
			p.deliverer.err = nil
		}
		p.service.Send(context.Background(), domain, request)
	}

	require.Len(t, p.logs.entries, 10)
	for _, entry := range p.logs.entries {
		assert.True(t, entry.IsTerminal(), "entry %s left in status %s", entry.ID, entry.Status)
	}
	assert.Len(t, p.publisher.published, 10)
}

func TestGetStats(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))

	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	p.service.now = func() time.Time { return now }

	seed := []struct {
		status enum.LogStatus
		age    time.Duration
	}{
		{enum.LogStatusSent, time.Hour},
		{enum.LogStatusFailed, 2 * time.Hour},
		{enum.LogStatusSent, 45 * 24 * time.Hour},
	}
	for _, s := range seed {
		p.logs.Create(context.Background(), &models.EmailLog{
			DomainID:  domain.ID,
			Status:    s.status,
			CreatedAt: now.Add(-s.age),
		})
	}

	stats, err := p.service.GetStats(context.Background(), domain.ID, enum.StatsPeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, "month", stats.Period)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Queued)
}

func TestGetStats_InvalidPeriod(t *testing.T) {
	domain := activeDomain()
	p := newPipeline(t, welcomeTemplate(domain.ID))

	_, err := p.service.GetStats(context.Background(), domain.ID, enum.StatsPeriod("year"))
	require.ErrorIs(t, err, ErrInvalidStatsPeriod)
}
