// Package transport delivers rendered messages over the mailer each
// domain has configured: a tenant SMTP server, Amazon SES with tenant
// credentials, or the local sendmail binary. Settings are snapshotted
// into an immutable Config at the start of every send.
package transport

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
)

// Deliverer is what the email pipeline depends on.
type Deliverer interface {
	Deliver(ctx context.Context, domain *models.Domain, msg *Message) (string, error)
}

type Service struct {
	smtp     *smtpSender
	ses      *sesSender
	sendmail *sendmailSender
}

func NewService() *Service {
	return &Service{
		smtp:     &smtpSender{},
		ses:      &sesSender{},
		sendmail: &sendmailSender{},
	}
}

// Deliver resolves the domain's transport settings, builds the MIME
// message and dispatches it. On success it returns the message id to
// record against the delivery log. A *ConfigError means the settings
// were unusable; any other error is a delivery failure.
func (s *Service) Deliver(ctx context.Context, domain *models.Domain, msg *Message) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TransportService.Deliver")
	defer span.Finish()
	tracing.SetDefaultTransportSpanTags(ctx, span)
	tracing.TagDomain(span, domain.Domain)

	cfg, err := Resolve(domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	span.LogKV("mailer", cfg.Mailer)

	if msg.BodyText == "" && msg.BodyHTML != "" {
		msg.BodyText = ExtractPlainText(msg.BodyHTML)
	}

	buffer, err := BuildMIME(msg, utils.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	var messageID string
	switch cfg.Mailer {
	case enum.MailerSES:
		messageID, err = s.ses.Deliver(ctx, cfg, msg, buffer)
	case enum.MailerSendmail:
		messageID, err = s.sendmail.Deliver(ctx, cfg, msg, buffer)
	default:
		messageID, err = s.smtp.Deliver(ctx, cfg, msg, buffer)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return messageID, nil
}

// MailerFor reports which mailer a send for this domain would use,
// after fallbacks are applied. Recorded in the delivery log.
func MailerFor(domain *models.Domain) enum.Mailer {
	if domain.Mailer == enum.MailerSMTP && domain.SMTPHost == "" {
		return enum.MailerSendmail
	}
	return domain.Mailer
}

var _ Deliverer = (*Service)(nil)
