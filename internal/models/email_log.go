package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/utils"
)

// EmailLog records one send attempt. A row is created in the queued state
// before the transport attempt and transitions exactly once to sent or
// failed. Rows survive template deletion (template_id is nulled, the
// template_key column keeps the historical key).
type EmailLog struct {
	ID          string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	DomainID    string         `gorm:"column:domain_id;type:varchar(50);index;NOT NULL" json:"domainId"`
	TemplateID  *string        `gorm:"column:template_id;type:varchar(50);index" json:"templateId"`
	FromEmail   string         `gorm:"column:from_email;type:varchar(255);NOT NULL" json:"fromEmail"`
	ToEmail     string         `gorm:"column:to_email;type:varchar(255);index;NOT NULL" json:"toEmail"`
	Subject     string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	TemplateKey string         `gorm:"column:template_key;type:varchar(100)" json:"templateKey"`
	Status      enum.LogStatus `gorm:"column:status;type:varchar(50);index;NOT NULL;default:'queued'" json:"status"`
	MailerUsed  enum.Mailer    `gorm:"column:mailer_used;type:varchar(50);NOT NULL" json:"mailerUsed"`

	// MessageID is set only on successful delivery, ErrorMessage only on
	// failure.
	MessageID    string `gorm:"column:message_id;type:varchar(255)" json:"messageId,omitempty"`
	ErrorMessage string `gorm:"column:error_message;type:text" json:"errorMessage,omitempty"`

	// Variable bindings used for rendering, kept for audit and debugging.
	Variables JSONMap `gorm:"column:variables;type:jsonb" json:"variables"`

	SentAt    *time.Time `gorm:"column:sent_at;type:timestamp" json:"sentAt"`
	CreatedAt time.Time  `gorm:"column:created_at;type:timestamp;index;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`

	Domain   *Domain   `gorm:"foreignKey:DomainID;constraint:OnDelete:CASCADE" json:"-"`
	Template *Template `gorm:"foreignKey:TemplateID;constraint:OnDelete:SET NULL" json:"-"`
}

func (EmailLog) TableName() string {
	return "email_logs"
}

func (m *EmailLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("log", 16)
	}
	return nil
}

func (m *EmailLog) IsTerminal() bool {
	return m.Status == enum.LogStatusSent || m.Status == enum.LogStatusFailed
}
