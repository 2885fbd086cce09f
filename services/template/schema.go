package template

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/pkg/errors"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/services/render"
)

var templateKeyPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

var (
	ErrInvalidTemplateKey = errors.New("template key must match ^[a-z0-9_-]+$")
	ErrEmptySubject       = errors.New("template subject is required")
	ErrEmptyBody          = errors.New("template body is required")
)

// ValidationError reports a binding that does not satisfy the declared
// variable schema.
type ValidationError struct {
	Variable string
	Detail   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("variable %q: %s", e.Variable, e.Detail)
}

// ValidateKey checks a template key against the allowed pattern.
func ValidateKey(templateKey string) error {
	if !templateKeyPattern.MatchString(templateKey) {
		return ErrInvalidTemplateKey
	}
	return nil
}

// ValidateSchema checks a declared variable list: known types, unique names.
func ValidateSchema(variables models.VariableList) error {
	seen := make(map[string]struct{}, len(variables))
	for _, v := range variables {
		if v.Name == "" {
			return &ValidationError{Variable: v.Name, Detail: "name is required"}
		}
		if !v.Type.IsValid() {
			return &ValidationError{Variable: v.Name, Detail: fmt.Sprintf("unknown type %q", v.Type)}
		}
		if _, dup := seen[v.Name]; dup {
			return &ValidationError{Variable: v.Name, Detail: "declared twice"}
		}
		seen[v.Name] = struct{}{}
	}
	return nil
}

// ValidateBindings checks caller bindings against the schema and returns the
// effective binding set: declared defaults applied for absent optional
// variables, everything else passed through untouched.
func ValidateBindings(variables models.VariableList, bindings render.Bindings) (render.Bindings, error) {
	effective := make(render.Bindings, len(bindings))
	for k, v := range bindings {
		effective[k] = v
	}

	for _, declared := range variables {
		value, present := effective[declared.Name]
		if !present {
			if declared.Required {
				return nil, &ValidationError{Variable: declared.Name, Detail: "required but not provided"}
			}
			if declared.Default != nil {
				effective[declared.Name] = declared.Default
			}
			continue
		}
		if err := checkType(declared, value); err != nil {
			return nil, err
		}
	}

	return effective, nil
}

func checkType(declared models.Variable, value interface{}) error {
	switch declared.Type {
	case enum.VariableString:
		if _, ok := value.(string); !ok {
			return &ValidationError{Variable: declared.Name, Detail: "expected a string"}
		}
	case enum.VariableNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
		default:
			return &ValidationError{Variable: declared.Name, Detail: "expected a number"}
		}
	case enum.VariableBoolean:
		if _, ok := value.(bool); !ok {
			return &ValidationError{Variable: declared.Name, Detail: "expected a boolean"}
		}
	case enum.VariableDate:
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Variable: declared.Name, Detail: "expected a date string"}
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				return &ValidationError{Variable: declared.Name, Detail: "expected YYYY-MM-DD or RFC3339"}
			}
		}
	case enum.VariableURL:
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Variable: declared.Name, Detail: "expected a URL string"}
		}
		parsed, err := url.Parse(s)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return &ValidationError{Variable: declared.Name, Detail: "expected an absolute URL"}
		}
	case enum.VariableEmail:
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Variable: declared.Name, Detail: "expected an email string"}
		}
		if validation := mailvalidate.ValidateEmailSyntax(s); !validation.IsValid {
			return &ValidationError{Variable: declared.Name, Detail: "expected a valid email address"}
		}
	}
	return nil
}

// SampleBindings produces representative values for each declared variable,
// used to preview templates and to syntax-check them at save time.
func SampleBindings(variables models.VariableList, now time.Time) render.Bindings {
	bindings := make(render.Bindings, len(variables))
	for _, v := range variables {
		bindings[v.Name] = sampleValue(v.Type, now)
	}
	return bindings
}

func sampleValue(variableType enum.VariableType, now time.Time) interface{} {
	switch variableType {
	case enum.VariableNumber:
		return 100
	case enum.VariableBoolean:
		return true
	case enum.VariableDate:
		return now.Format("2006-01-02")
	case enum.VariableURL:
		return "https://example.com"
	case enum.VariableEmail:
		return "test@example.com"
	default:
		return "Sample Text"
	}
}

// CheckSyntax renders subject and body against sample bindings so broken
// templates are rejected at save time instead of at send time.
func CheckSyntax(subject, bodyHTML string, variables models.VariableList, now time.Time) error {
	if strings.TrimSpace(subject) == "" {
		return ErrEmptySubject
	}
	if strings.TrimSpace(bodyHTML) == "" {
		return ErrEmptyBody
	}

	samples := SampleBindings(variables, now)
	if _, err := render.Render(subject, samples, render.WithoutEscaping()); err != nil {
		return err
	}
	if _, err := render.Render(bodyHTML, samples); err != nil {
		return err
	}
	return nil
}
