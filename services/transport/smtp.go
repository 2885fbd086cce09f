package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"

	"github.com/opentracing/opentracing-go"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
)

type smtpSender struct{}

// Deliver connects to the configured SMTP server and submits the
// message. Credentials are optional: an internal relay may accept
// anonymous submission.
func (s *smtpSender) Deliver(ctx context.Context, cfg *Config, msg *Message, buffer *bytes.Buffer) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "smtpSender.Deliver")
	defer span.Finish()
	tracing.SetDefaultTransportSpanTags(ctx, span)
	span.LogKV("smtp_host", cfg.SMTP.Host)
	span.LogKV("smtp_port", cfg.SMTP.Port)
	span.LogKV("smtp_security", cfg.SMTP.Security)

	addr := fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port)

	var auth smtp.Auth
	if cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
	}

	var err error
	switch cfg.SMTP.Security {
	case enum.EmailSecurityStartTLS:
		err = s.sendWithSTARTTLS(ctx, cfg, addr, auth, msg, buffer)
	case enum.EmailSecurityNone:
		err = smtp.SendMail(addr, auth, cfg.FromEmail, []string{msg.To}, buffer.Bytes())
	default:
		// ssl and tls both mean implicit TLS from the first byte
		err = s.sendWithImplicitTLS(ctx, cfg, addr, auth, msg, buffer)
	}
	if err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
		tracing.TraceErr(span, err)
		return "", err
	}

	return utils.GenerateMessageID(), nil
}

func (s *smtpSender) sendWithImplicitTLS(ctx context.Context, cfg *Config, addr string, auth smtp.Auth, msg *Message, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "smtpSender.sendWithImplicitTLS")
	defer span.Finish()

	tlsConfig := &tls.Config{
		ServerName: cfg.SMTP.Host,
	}
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.SMTP.Host)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	return s.submit(span, client, auth, cfg.FromEmail, msg.To, buffer)
}

func (s *smtpSender) sendWithSTARTTLS(ctx context.Context, cfg *Config, addr string, auth smtp.Auth, msg *Message, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "smtpSender.sendWithSTARTTLS")
	defer span.Finish()

	// Connect without TLS first, then upgrade
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.SMTP.Host)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: cfg.SMTP.Host,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		err = fmt.Errorf("failed to start TLS: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return s.submit(span, client, auth, cfg.FromEmail, msg.To, buffer)
}

func (s *smtpSender) submit(span opentracing.Span, client *smtp.Client, auth smtp.Auth, from, to string, buffer *bytes.Buffer) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			err = fmt.Errorf("SMTP authentication failed: %w", err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		err = fmt.Errorf("SMTP MAIL command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err := client.Rcpt(to); err != nil {
		err = fmt.Errorf("SMTP RCPT command failed for %s: %w", to, err)
		tracing.TraceErr(span, err)
		return err
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = fmt.Errorf("SMTP DATA command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if _, err = dataWriter.Write(buffer.Bytes()); err != nil {
		err = fmt.Errorf("failed to write email data: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = dataWriter.Close(); err != nil {
		err = fmt.Errorf("failed to close data writer: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}
