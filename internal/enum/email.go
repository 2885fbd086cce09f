package enum

type Mailer string

const (
	MailerSMTP     Mailer = "smtp"
	MailerSES      Mailer = "ses"
	MailerSendmail Mailer = "sendmail"
)

func (t Mailer) String() string {
	return string(t)
}

func (t Mailer) IsValid() bool {
	switch t {
	case MailerSMTP, MailerSES, MailerSendmail:
		return true
	}
	return false
}

type DomainStatus string

const (
	DomainStatusActive    DomainStatus = "active"
	DomainStatusInactive  DomainStatus = "inactive"
	DomainStatusSuspended DomainStatus = "suspended"
)

func (t DomainStatus) String() string {
	return string(t)
}

func (t DomainStatus) IsValid() bool {
	switch t {
	case DomainStatusActive, DomainStatusInactive, DomainStatusSuspended:
		return true
	}
	return false
}

type TemplateStatus string

const (
	TemplateStatusActive   TemplateStatus = "active"
	TemplateStatusInactive TemplateStatus = "inactive"
)

func (t TemplateStatus) String() string {
	return string(t)
}

type LogStatus string

const (
	LogStatusQueued LogStatus = "queued"
	LogStatusSent   LogStatus = "sent"
	LogStatusFailed LogStatus = "failed"
)

func (t LogStatus) String() string {
	return string(t)
}

type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecuritySSL      EmailSecurity = "ssl"
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}

type VariableType string

const (
	VariableString  VariableType = "string"
	VariableNumber  VariableType = "number"
	VariableBoolean VariableType = "boolean"
	VariableDate    VariableType = "date"
	VariableURL     VariableType = "url"
	VariableEmail   VariableType = "email"
)

func (t VariableType) String() string {
	return string(t)
}

func (t VariableType) IsValid() bool {
	switch t {
	case VariableString, VariableNumber, VariableBoolean, VariableDate, VariableURL, VariableEmail:
		return true
	}
	return false
}

type StatsPeriod string

const (
	StatsPeriodToday StatsPeriod = "today"
	StatsPeriodWeek  StatsPeriod = "week"
	StatsPeriodMonth StatsPeriod = "month"
)

func (t StatsPeriod) String() string {
	return string(t)
}

func (t StatsPeriod) IsValid() bool {
	switch t {
	case StatsPeriodToday, StatsPeriodWeek, StatsPeriodMonth:
		return true
	}
	return false
}
