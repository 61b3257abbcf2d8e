package template

import (
	"fmt"

	"github.com/keepswell/keepswell-api/internal/models"
)

// TemplateNotFoundError means seed data and journal rows disagree. It is an
// integrity violation, not a user error.
type TemplateNotFoundError struct {
	Type models.TemplateType
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template not found for type %q", e.Type)
}

// PremiumRequiredError is returned when a non-premium journal asks for a
// premium template or premium-only feature.
type PremiumRequiredError struct {
	Type    models.TemplateType
	Feature string
}

func (e *PremiumRequiredError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("%s requires a premium subscription", e.Feature)
	}
	return fmt.Sprintf("template %q requires a premium subscription", e.Type)
}

type InvalidConfigValueError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidConfigValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Field, e.Reason)
}

func invalid(field string, value any, format string, args ...any) *InvalidConfigValueError {
	return &InvalidConfigValueError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}
