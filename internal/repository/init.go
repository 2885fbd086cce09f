package repository

import (
	"gorm.io/gorm"

	"github.com/mailgate/mailgate/internal/models"
)

type Repositories struct {
	DomainRepository   DomainRepository
	TemplateRepository TemplateRepository
	EmailLogRepository EmailLogRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DomainRepository:   NewDomainRepository(db),
		TemplateRepository: NewTemplateRepository(db),
		EmailLogRepository: NewEmailLogRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Domain{},
		&models.Template{},
		&models.EmailLog{},
	)
}
