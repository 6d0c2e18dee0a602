package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"swish-forms/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry persists form definitions keyed by form id.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Upsert stores def, replacing any definition with the same form id.
func (r *Registry) Upsert(ctx context.Context, def FormDefinition) error {
	if def.FormID == "" {
		return errors.New("form id is required")
	}
	if !def.FormType.Valid() {
		return fmt.Errorf("form %s: invalid form type %q", def.FormID, def.FormType)
	}
	fields, err := json.Marshal(def.Fields)
	if err != nil {
		return err
	}

	record := models.FormRecord{
		FormID:         def.FormID,
		FormType:       string(def.FormType),
		Fields:         fields,
		RecipientEmail: def.RecipientEmail,
		EmailSubject:   def.EmailSubject,
		ESPProvider:    def.ESPProvider,
		ESPListID:      def.ESPListID,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
}

// Get returns the registered definition for formID.
func (r *Registry) Get(ctx context.Context, formID string) (FormDefinition, bool, error) {
	var record models.FormRecord
	err := r.db.WithContext(ctx).Where("form_id = ?", formID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FormDefinition{}, false, nil
	}
	if err != nil {
		return FormDefinition{}, false, err
	}

	def := FormDefinition{
		FormID:         record.FormID,
		FormType:       FormType(record.FormType),
		RecipientEmail: record.RecipientEmail,
		EmailSubject:   record.EmailSubject,
		ESPProvider:    record.ESPProvider,
		ESPListID:      record.ESPListID,
	}
	if len(record.Fields) > 0 {
		if err := json.Unmarshal(record.Fields, &def.Fields); err != nil {
			return FormDefinition{}, false, fmt.Errorf("form %s: decode fields: %w", formID, err)
		}
	}
	return def, true, nil
}

type registryFile struct {
	Forms []FormDefinition `yaml:"forms"`
}

// LoadRegistryFile reads form definitions from a YAML file of the shape
// `forms: [{formId, formType, fields: [...]}, ...]`.
func LoadRegistryFile(path string) ([]FormDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i := range file.Forms {
		if file.Forms[i].FormType == "" {
			file.Forms[i].FormType = Contact
		}
		for j := range file.Forms[i].Fields {
			if file.Forms[i].Fields[j].Type == "" {
				file.Forms[i].Fields[j].Type = Text
			}
		}
	}
	return file.Forms, nil
}

// Seed upserts every definition, stopping at the first failure.
func (r *Registry) Seed(ctx context.Context, defs []FormDefinition) error {
	for _, def := range defs {
		if err := r.Upsert(ctx, def); err != nil {
			return err
		}
	}
	return nil
}
