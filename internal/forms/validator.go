package forms

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	phonePattern = regexp.MustCompile(`^[\d\s\-\(\)\+\.]+$`)

	validateOnce sync.Once
	validate     *validator.Validate
)

// ValidationErrors maps field ids to messages.
type ValidationErrors map[string]string

func (e ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(e))
}

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// IsEmail reports whether s is a syntactically valid email address.
func IsEmail(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	return fieldValidator().Var(s, "required,email") == nil
}

// Validate checks values against defs. Every field is evaluated; the
// returned map holds one message per failing field.
func Validate(defs []FieldDefinition, values map[string]any) (bool, ValidationErrors) {
	errs := ValidationErrors{}

	for _, def := range defs {
		value := values[def.ID]

		if isEmpty(value) {
			if def.Required {
				errs[def.ID] = fmt.Sprintf("%s is required.", Label(defs, def.ID))
			}
			continue
		}

		switch def.Type {
		case Email:
			if !IsEmail(strings.TrimSpace(stringValue(value))) {
				errs[def.ID] = "Please enter a valid email address."
			}
		case Tel:
			if !phonePattern.MatchString(strings.TrimSpace(stringValue(value))) {
				errs[def.ID] = "Please enter a valid phone number."
			}
		}
	}

	return len(errs) == 0, errs
}

// isEmpty treats nil, false, blank strings and empty arrays as no value.
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		return !v
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
