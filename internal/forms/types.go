package forms

import (
	"fmt"
	"strings"
)

// FormType selects the dispatch path of a submission.
type FormType string

const (
	Contact      FormType = "contact"
	Subscription FormType = "subscription"
)

func (t FormType) Valid() bool {
	return t == Contact || t == Subscription
}

// FieldType is one of the supported input kinds.
type FieldType string

const (
	Text     FieldType = "text"
	Email    FieldType = "email"
	Tel      FieldType = "tel"
	Textarea FieldType = "textarea"
	Select   FieldType = "select"
	Checkbox FieldType = "checkbox"
)

// FieldDefinition describes one input of a form.
type FieldDefinition struct {
	ID       string    `json:"id" yaml:"id"`
	Type     FieldType `json:"type" yaml:"type"`
	Label    string    `json:"label" yaml:"label"`
	Required bool      `json:"required" yaml:"required"`
	Width    string    `json:"width,omitempty" yaml:"width,omitempty"`
	Options  []string  `json:"options,omitempty" yaml:"options,omitempty"`
}

// FormDefinition is the schema and routing configuration of a form.
type FormDefinition struct {
	FormID         string            `json:"formId" yaml:"formId"`
	FormType       FormType          `json:"formType" yaml:"formType"`
	Fields         []FieldDefinition `json:"fields" yaml:"fields"`
	RecipientEmail string            `json:"recipientEmail,omitempty" yaml:"recipientEmail,omitempty"`
	EmailSubject   string            `json:"emailSubject,omitempty" yaml:"emailSubject,omitempty"`
	ESPProvider    string            `json:"espProvider,omitempty" yaml:"espProvider,omitempty"`
	ESPListID      string            `json:"espListId,omitempty" yaml:"espListId,omitempty"`
}

// Label returns the label of field id, or a humanized id when the field is
// unknown or unlabelled.
func Label(defs []FieldDefinition, id string) string {
	for _, def := range defs {
		if def.ID == id && strings.TrimSpace(def.Label) != "" {
			return def.Label
		}
	}
	return Humanize(id)
}

// Humanize turns a field id like "first_name" into "First Name".
func Humanize(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

// ParseFields converts loosely typed block attributes into field
// definitions, skipping entries without an id.
func ParseFields(raw any) []FieldDefinition {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	defs := make([]FieldDefinition, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		def := FieldDefinition{
			ID:       stringAttr(m, "id"),
			Type:     FieldType(stringAttr(m, "type")),
			Label:    stringAttr(m, "label"),
			Required: boolAttr(m, "required"),
			Width:    stringAttr(m, "width"),
		}
		if def.ID == "" {
			continue
		}
		if def.Type == "" {
			def.Type = Text
		}
		if opts, ok := m["options"].([]any); ok {
			for _, o := range opts {
				switch v := o.(type) {
				case string:
					def.Options = append(def.Options, v)
				case map[string]any:
					def.Options = append(def.Options, stringAttr(v, "value"))
				}
			}
		}
		defs = append(defs, def)
	}
	return defs
}

// DefinitionFromAttrs builds a FormDefinition from block attributes.
func DefinitionFromAttrs(attrs map[string]any) FormDefinition {
	def := FormDefinition{
		FormID:         stringAttr(attrs, "formId"),
		FormType:       FormType(stringAttr(attrs, "formType")),
		Fields:         ParseFields(attrs["fields"]),
		RecipientEmail: stringAttr(attrs, "recipientEmail"),
		EmailSubject:   stringAttr(attrs, "emailSubject"),
		ESPProvider:    stringAttr(attrs, "espProvider"),
		ESPListID:      stringAttr(attrs, "espListId"),
	}
	if !def.FormType.Valid() {
		def.FormType = Contact
	}
	return def
}

func stringAttr(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func boolAttr(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}
