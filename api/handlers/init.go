package handlers

import (
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/services"
)

type APIHandlers struct {
	Emails    *EmailsHandler
	Templates *TemplatesHandler
	Domains   *DomainsHandler
}

func InitHandlers(s *services.Services, repos *repository.Repositories) *APIHandlers {
	return &APIHandlers{
		Emails:    NewEmailsHandler(s.EmailService, repos),
		Templates: NewTemplatesHandler(repos),
		Domains:   NewDomainsHandler(repos, s.TransportService),
	}
}
