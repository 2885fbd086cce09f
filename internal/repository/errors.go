package repository

import "errors"

var (
	ErrDomainNotFound        = errors.New("domain not found")
	ErrTemplateNotFound      = errors.New("template not found")
	ErrTemplateAlreadyExists = errors.New("template already exists")
	ErrLogEntryNotFound      = errors.New("log entry not found")
	ErrLogEntryTerminal      = errors.New("log entry already in a terminal state")
	ErrInvalidInput          = errors.New("invalid input parameters")
)
