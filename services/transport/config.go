package transport

import (
	"fmt"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
)

// ConfigError means the domain's transport settings are incomplete or
// inconsistent. It is raised before any connection attempt is made.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("transport configuration error: %s", e.Detail)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Security enum.EmailSecurity
	Username string
	Password string
}

type SESConfig struct {
	AccessKey string
	SecretKey string
	Region    string
}

// Config is an immutable snapshot of a domain's transport settings,
// taken once per send. Edits to the domain while a send is in flight
// do not affect it.
type Config struct {
	Mailer    enum.Mailer
	FromEmail string
	FromName  string
	SMTP      SMTPConfig
	SES       SESConfig
}

// Resolve copies the transport settings out of the domain record. An
// smtp domain without a host falls back to the local sendmail binary;
// an ses domain without credentials fails fast.
func Resolve(domain *models.Domain) (*Config, error) {
	cfg := &Config{
		Mailer:    domain.Mailer,
		FromEmail: domain.FromEmail,
		FromName:  domain.FromName,
	}

	switch domain.Mailer {
	case enum.MailerSMTP:
		if domain.SMTPHost == "" {
			cfg.Mailer = enum.MailerSendmail
			return cfg, nil
		}
		cfg.SMTP = SMTPConfig{
			Host:     domain.SMTPHost,
			Port:     domain.SMTPPort,
			Security: domain.SMTPSecurity,
			Username: domain.SMTPUsername,
			Password: domain.SMTPPassword,
		}
		if cfg.SMTP.Port == 0 {
			cfg.SMTP.Port = 465
		}
		if cfg.SMTP.Security == "" {
			cfg.SMTP.Security = enum.EmailSecuritySSL
		}
	case enum.MailerSES:
		if domain.SESKey == "" || domain.SESSecret == "" {
			return nil, &ConfigError{Detail: "ses credentials are not configured"}
		}
		cfg.SES = SESConfig{
			AccessKey: domain.SESKey,
			SecretKey: domain.SESSecret,
			Region:    domain.SESRegion,
		}
		if cfg.SES.Region == "" {
			cfg.SES.Region = "us-east-1"
		}
	case enum.MailerSendmail:
		// nothing to resolve, the binary path is fixed
	default:
		return nil, &ConfigError{Detail: fmt.Sprintf("unknown mailer %q", domain.Mailer)}
	}

	return cfg, nil
}
