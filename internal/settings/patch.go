package settings

import (
	"encoding/json"
	"fmt"
	"strings"

	"swish-forms/internal/secrets"
)

var encryptions = map[string]bool{"none": true, "ssl": true, "tls": true}

// PatchEmail overlays the JSON body onto current. Keys absent from the body
// keep their value; a blank or masked password keeps the stored one, any
// other password is encrypted.
func PatchEmail(current EmailSettings, body []byte, kr *secrets.Keyring) (EmailSettings, error) {
	next := current
	if err := json.Unmarshal(body, &next); err != nil {
		return current, err
	}

	next.SMTPEncryption = strings.ToLower(strings.TrimSpace(next.SMTPEncryption))
	if next.SMTPEncryption != "" && !encryptions[next.SMTPEncryption] {
		return current, fmt.Errorf("smtpEncryption must be one of none, ssl, tls")
	}
	if next.SMTPPort < 0 || next.SMTPPort > 65535 {
		return current, fmt.Errorf("smtpPort out of range")
	}

	password, err := sealSecret(kr, SMTPScope, next.SMTPPassword, current.SMTPPassword)
	if err != nil {
		return current, err
	}
	next.SMTPPassword = password
	return next, nil
}

// PatchESP overlays the JSON body onto current. Providers present in the
// body replace their stored entry, except that blank or masked secrets keep
// the stored value.
func PatchESP(current ESPSettings, body []byte, kr *secrets.Keyring) (ESPSettings, error) {
	next := ESPSettings{
		ActiveProvider: current.ActiveProvider,
		DefaultListID:  current.DefaultListID,
	}
	if err := json.Unmarshal(body, &next); err != nil {
		return current, err
	}

	merged := make(map[string]ProviderCredentials, len(current.Providers)+len(next.Providers))
	for slug, creds := range current.Providers {
		merged[slug] = creds
	}
	for slug, creds := range next.Providers {
		stored := current.Providers[slug]
		scope := ESPScope(slug)

		key, err := sealSecret(kr, scope, creds.APIKey, stored.APIKey)
		if err != nil {
			return current, err
		}
		secret, err := sealSecret(kr, scope, creds.APISecret, stored.APISecret)
		if err != nil {
			return current, err
		}
		creds.APIKey = key
		creds.APISecret = secret
		merged[slug] = creds
	}
	next.Providers = merged
	return next, nil
}

// Masked hides stored secrets for display.
func (s Snapshot) Masked() Snapshot {
	out := s
	out.Email.SMTPPassword = mask(s.Email.SMTPPassword)
	out.ESP.Providers = make(map[string]ProviderCredentials, len(s.ESP.Providers))
	for slug, creds := range s.ESP.Providers {
		creds.APIKey = mask(creds.APIKey)
		creds.APISecret = mask(creds.APISecret)
		out.ESP.Providers[slug] = creds
	}
	return out
}

func sealSecret(kr *secrets.Keyring, scope, incoming, stored string) (string, error) {
	if incoming == "" || incoming == Mask {
		return stored, nil
	}
	return kr.Seal(scope, incoming)
}

func mask(value string) string {
	if value == "" {
		return ""
	}
	return Mask
}
