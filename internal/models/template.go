package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/utils"
)

// Variable is one declared template variable. Default is only applied when
// the binding is absent and the variable is not required.
type Variable struct {
	Name        string            `json:"name"`
	Type        enum.VariableType `json:"type"`
	Description string            `json:"description,omitempty"`
	Required    bool              `json:"required"`
	Default     interface{}       `json:"default,omitempty"`
}

// VariableList is stored as a jsonb column.
type VariableList []Variable

func (v VariableList) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (v *VariableList) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, v)
}

// Template belongs to exactly one domain; (domain_id, template_key) is unique.
type Template struct {
	ID          string              `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	DomainID    string              `gorm:"column:domain_id;type:varchar(50);NOT NULL;uniqueIndex:idx_templates_domain_key" json:"domainId"`
	TemplateKey string              `gorm:"column:template_key;type:varchar(100);NOT NULL;uniqueIndex:idx_templates_domain_key" json:"templateKey"`
	Category    string              `gorm:"column:category;type:varchar(100)" json:"category"`
	Description string              `gorm:"column:description;type:varchar(500)" json:"description"`
	Subject     string              `gorm:"column:subject;type:varchar(255);NOT NULL" json:"subject"`
	BodyHTML    string              `gorm:"column:body_html;type:text;NOT NULL" json:"bodyHtml"`
	Variables   VariableList        `gorm:"column:variables;type:jsonb" json:"variables"`
	Status      enum.TemplateStatus `gorm:"column:status;type:varchar(50);index;NOT NULL;default:'active'" json:"status"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`

	Domain *Domain `gorm:"foreignKey:DomainID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Template) TableName() string {
	return "templates"
}

func (m *Template) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("tpl", 16)
	}
	return nil
}

func (m *Template) IsActive() bool {
	return m.Status == enum.TemplateStatusActive
}
