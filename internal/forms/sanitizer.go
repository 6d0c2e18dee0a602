package forms

import (
	"html"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicyOnce sync.Once
	stripPolicy     *bluemonday.Policy

	phoneStrip = regexp.MustCompile(`[^\d\s\-\(\)\+\.]`)
)

func markupStripper() *bluemonday.Policy {
	stripPolicyOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()
	})
	return stripPolicy
}

// Sanitize cleans values according to defs. The result holds exactly one
// key per definition; fields missing from values are sanitized as empty.
func Sanitize(defs []FieldDefinition, values map[string]any) map[string]any {
	out := make(map[string]any, len(defs))
	for _, def := range defs {
		out[def.ID] = SanitizeValue(def.Type, values[def.ID])
	}
	return out
}

// SanitizeValue cleans one value for field type t.
func SanitizeValue(t FieldType, value any) any {
	switch t {
	case Email:
		return SanitizeEmail(stringValue(value))
	case Tel:
		return strings.TrimSpace(phoneStrip.ReplaceAllString(stringValue(value), ""))
	case Textarea:
		return sanitizeTextarea(stringValue(value))
	case Checkbox:
		return toBool(value)
	default:
		if list, ok := value.([]any); ok {
			cleaned := make([]string, 0, len(list))
			for _, item := range list {
				cleaned = append(cleaned, sanitizeText(stringValue(item)))
			}
			return cleaned
		}
		return sanitizeText(stringValue(value))
	}
}

// SanitizeEmail strips characters that cannot appear in an address. The
// result is either a valid address or "".
func SanitizeEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	at := strings.LastIndex(raw, "@")
	if at <= 0 {
		return ""
	}

	local := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (isAlnum(r) || strings.ContainsRune("!#$%&'*+/=?^_`{|}~.-", r)) {
			return r
		}
		return -1
	}, raw[:at])

	domain := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (isAlnum(r) || r == '-' || r == '.') {
			return unicode.ToLower(r)
		}
		return -1
	}, raw[at+1:])
	domain = strings.Trim(domain, ".-")

	email := local + "@" + domain
	if !IsEmail(email) {
		return ""
	}
	return email
}

func sanitizeText(raw string) string {
	cleaned := html.UnescapeString(markupStripper().Sanitize(raw))
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

func sanitizeTextarea(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	cleaned := html.UnescapeString(markupStripper().Sanitize(raw))

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if r != '\t' && unicode.IsControl(r) {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true
		}
		return false
	case float64:
		return v != 0
	case int:
		return v != 0
	case []any:
		return len(v) > 0
	default:
		return false
	}
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
