package transport

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
)

func TestResolve_SMTPDomain(t *testing.T) {
	domain := &models.Domain{
		Mailer:       enum.MailerSMTP,
		FromEmail:    "hello@acme.example.com",
		FromName:     "Acme",
		SMTPHost:     "mail.acme.example.com",
		SMTPPort:     587,
		SMTPSecurity: enum.EmailSecurityStartTLS,
		SMTPUsername: "mailer",
		SMTPPassword: "secret",
	}

	cfg, err := Resolve(domain)
	require.NoError(t, err)
	assert.Equal(t, enum.MailerSMTP, cfg.Mailer)
	assert.Equal(t, "mail.acme.example.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, enum.EmailSecurityStartTLS, cfg.SMTP.Security)
}

func TestResolve_SMTPDefaults(t *testing.T) {
	domain := &models.Domain{
		Mailer:   enum.MailerSMTP,
		SMTPHost: "mail.acme.example.com",
	}

	cfg, err := Resolve(domain)
	require.NoError(t, err)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, enum.EmailSecuritySSL, cfg.SMTP.Security)
	// anonymous submission is allowed
	assert.Empty(t, cfg.SMTP.Username)
}

func TestResolve_SMTPWithoutHostFallsBackToSendmail(t *testing.T) {
	domain := &models.Domain{
		Mailer:    enum.MailerSMTP,
		FromEmail: "hello@acme.example.com",
	}

	cfg, err := Resolve(domain)
	require.NoError(t, err)
	assert.Equal(t, enum.MailerSendmail, cfg.Mailer)
	assert.Equal(t, enum.MailerSendmail, MailerFor(domain))
}

func TestResolve_SESRequiresCredentials(t *testing.T) {
	domain := &models.Domain{
		Mailer: enum.MailerSES,
		SESKey: "AKIAEXAMPLE",
	}

	cfg, err := Resolve(domain)
	require.Error(t, err)
	assert.Nil(t, cfg)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Detail, "credentials")
}

func TestResolve_SESDefaultRegion(t *testing.T) {
	domain := &models.Domain{
		Mailer:    enum.MailerSES,
		SESKey:    "AKIAEXAMPLE",
		SESSecret: "secret",
	}

	cfg, err := Resolve(domain)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.SES.Region)
}

func TestResolve_SnapshotIsIndependentOfDomain(t *testing.T) {
	domain := &models.Domain{
		Mailer:       enum.MailerSMTP,
		SMTPHost:     "mail.acme.example.com",
		SMTPPassword: "original",
	}

	cfg, err := Resolve(domain)
	require.NoError(t, err)

	domain.SMTPPassword = "rotated"
	assert.Equal(t, "original", cfg.SMTP.Password)
}

func TestResolve_UnknownMailer(t *testing.T) {
	domain := &models.Domain{Mailer: enum.Mailer("pigeon")}

	_, err := Resolve(domain)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestBuildMIME(t *testing.T) {
	msg := &Message{
		FromEmail: "hello@acme.example.com",
		FromName:  "Acme",
		To:        "ada@example.com",
		Subject:   "Welcome aboard",
		BodyHTML:  "<p>Hello Ada</p>",
		BodyText:  "Hello Ada",
	}

	buffer, err := BuildMIME(msg, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	raw := buffer.String()
	assert.Contains(t, raw, "From: Acme <hello@acme.example.com>\r\n")
	assert.Contains(t, raw, "To: ada@example.com\r\n")
	assert.Contains(t, raw, "Subject: Welcome aboard\r\n")
	assert.Contains(t, raw, "Message-ID: <")
	assert.Contains(t, raw, "@acme.example.com>")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "text/plain; charset=UTF-8")
	assert.Contains(t, raw, "text/html; charset=UTF-8")

	// text part must precede the html part
	assert.Less(t, strings.Index(raw, "text/plain"), strings.Index(raw, "text/html"))
}

func TestBuildMIME_RequiresRecipientAndContent(t *testing.T) {
	_, err := BuildMIME(&Message{BodyText: "hi"}, time.Now())
	require.Error(t, err)

	_, err = BuildMIME(&Message{To: "ada@example.com"}, time.Now())
	require.Error(t, err)
}

func TestExtractPlainText(t *testing.T) {
	html := `<html><head><style>p { color: red }</style></head>
	<body><h1>Welcome</h1><p>Hello   Ada,</p><p>Your account is ready.</p>
	<ul><li>First</li><li>Second</li></ul></body></html>`

	text := ExtractPlainText(html)
	assert.Equal(t, "Welcome\nHello Ada,\nYour account is ready.\nFirst\nSecond", text)
}

func TestExtractPlainText_LineBreaks(t *testing.T) {
	text := ExtractPlainText("<p>line one<br>line two</p>")
	assert.Equal(t, "line one\nline two", text)
}
