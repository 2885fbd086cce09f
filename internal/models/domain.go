package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/utils"
)

// Domain is a tenant: a registered sending domain with its own API key,
// transport configuration, templates and send history.
type Domain struct {
	ID        string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Domain    string            `gorm:"column:domain;type:varchar(255);NOT NULL;uniqueIndex" json:"domain"`
	FromEmail string            `gorm:"column:from_email;type:varchar(255);NOT NULL" json:"fromEmail"`
	FromName  string            `gorm:"column:from_name;type:varchar(255);NOT NULL" json:"fromName"`
	Mailer    enum.Mailer       `gorm:"column:mailer;type:varchar(50);NOT NULL;default:'smtp'" json:"mailer"`
	Status    enum.DomainStatus `gorm:"column:status;type:varchar(50);index;NOT NULL;default:'active'" json:"status"`

	// Only the sha256 hash of the API key is stored. The plaintext is
	// returned exactly once, at creation or rotation.
	APIKeyHash string `gorm:"column:api_key_hash;type:varchar(64);uniqueIndex;NOT NULL" json:"-"`

	// SMTP configuration (mailer = smtp)
	SMTPHost     string             `gorm:"column:smtp_host;type:varchar(255)" json:"-"`
	SMTPPort     int                `gorm:"column:smtp_port;default:465" json:"-"`
	SMTPSecurity enum.EmailSecurity `gorm:"column:smtp_security;type:varchar(50);default:'ssl'" json:"-"`
	SMTPUsername string             `gorm:"column:smtp_username;type:varchar(255)" json:"-"`
	SMTPPassword string             `gorm:"column:smtp_password;type:varchar(255)" json:"-"`

	// SES configuration (mailer = ses)
	SESKey    string `gorm:"column:ses_key;type:varchar(255)" json:"-"`
	SESSecret string `gorm:"column:ses_secret;type:varchar(255)" json:"-"`
	SESRegion string `gorm:"column:ses_region;type:varchar(50);default:'us-east-1'" json:"-"`

	HourlyLimit int `gorm:"column:hourly_limit;NOT NULL;default:100" json:"hourlyLimit"`
	DailyLimit  int `gorm:"column:daily_limit;NOT NULL;default:1000" json:"dailyLimit"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Domain) TableName() string {
	return "domains"
}

func (m *Domain) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("dom", 16)
	}
	return nil
}

func (m *Domain) IsActive() bool {
	return m.Status == enum.DomainStatusActive
}

func (m *Domain) UsesSES() bool {
	return m.Mailer == enum.MailerSES
}
