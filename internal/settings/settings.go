package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"swish-forms/internal/models"
	"swish-forms/internal/secrets"

	"dario.cat/mergo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	EmailKey = "swish_forms_email_settings"
	ESPKey   = "swish_forms_esp_settings"

	// Mask replaces stored secrets in admin responses.
	Mask = "********"

	SMTPScope = "smtp"
)

// ESPScope is the encryption scope of a provider's credentials.
func ESPScope(slug string) string {
	return "esp:" + slug
}

// EmailSettings configures outgoing notification mail.
type EmailSettings struct {
	FromEmail      string `json:"fromEmail"`
	FromName       string `json:"fromName"`
	ToEmail        string `json:"toEmail"`
	SMTPEnabled    bool   `json:"smtpEnabled"`
	SMTPHost       string `json:"smtpHost"`
	SMTPPort       int    `json:"smtpPort"`
	SMTPEncryption string `json:"smtpEncryption"` // none, ssl or tls
	SMTPAuth       bool   `json:"smtpAuth"`
	SMTPUsername   string `json:"smtpUsername"`
	SMTPPassword   string `json:"smtpPassword"` // encrypted
}

// ProviderCredentials holds one provider's credentials, encrypted at rest.
type ProviderCredentials struct {
	APIKey    string `json:"apiKey,omitempty"`
	APISecret string `json:"apiSecret,omitempty"`
	APIURL    string `json:"apiUrl,omitempty"`
	ListID    string `json:"listId,omitempty"`
}

// ESPSettings selects the active provider and stores every provider's
// credentials.
type ESPSettings struct {
	ActiveProvider string                         `json:"activeProvider"`
	DefaultListID  string                         `json:"defaultListId"`
	Providers      map[string]ProviderCredentials `json:"providers"`
}

// Snapshot is the settings state read once per request.
type Snapshot struct {
	Email EmailSettings
	ESP   ESPSettings
}

// Store reads and writes settings rows.
type Store struct {
	db       *gorm.DB
	defaults Snapshot
}

func NewStore(db *gorm.DB, defaults Snapshot) *Store {
	return &Store{db: db, defaults: defaults}
}

// Load reads both settings groups, filling unset fields from defaults.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	snap, err := s.Stored(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if err := mergo.Merge(&snap, s.defaults); err != nil {
		return Snapshot{}, fmt.Errorf("apply settings defaults: %w", err)
	}
	if snap.ESP.Providers == nil {
		snap.ESP.Providers = map[string]ProviderCredentials{}
	}
	return snap, nil
}

// Stored reads both settings groups as saved, without defaults. Writes
// start from here so defaults are never persisted.
func (s *Store) Stored(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := s.get(ctx, EmailKey, &snap.Email); err != nil {
		return Snapshot{}, err
	}
	if err := s.get(ctx, ESPKey, &snap.ESP); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) SaveEmail(ctx context.Context, email EmailSettings) error {
	return s.put(ctx, EmailKey, email)
}

func (s *Store) SaveESP(ctx context.Context, esp ESPSettings) error {
	return s.put(ctx, ESPKey, esp)
}

func (s *Store) get(ctx context.Context, key string, dst any) error {
	var row models.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if row.Value == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(row.Value), dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	row := models.SystemSetting{Key: key, Value: string(data)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// ReencryptAll moves every stored secret onto the current key and returns
// how many values changed.
func (s *Store) ReencryptAll(ctx context.Context, kr *secrets.Keyring) (int, error) {
	snap, err := s.Stored(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	move := func(scope string, value *string) error {
		next, ok, err := kr.Reencrypt(scope, *value)
		if err != nil {
			return fmt.Errorf("%s: %w", scope, err)
		}
		if ok {
			*value = next
			changed++
		}
		return nil
	}

	if err := move(SMTPScope, &snap.Email.SMTPPassword); err != nil {
		return 0, err
	}
	for slug, creds := range snap.ESP.Providers {
		scope := ESPScope(slug)
		if err := move(scope, &creds.APIKey); err != nil {
			return 0, err
		}
		if err := move(scope, &creds.APISecret); err != nil {
			return 0, err
		}
		snap.ESP.Providers[slug] = creds
	}

	if changed == 0 {
		return 0, nil
	}
	if err := s.SaveEmail(ctx, snap.Email); err != nil {
		return 0, err
	}
	if err := s.SaveESP(ctx, snap.ESP); err != nil {
		return 0, err
	}
	return changed, nil
}
