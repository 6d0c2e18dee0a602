// Package nonce issues and verifies short action-scoped tokens.
//
// A token is valid for the tick it was issued in and the one after it, so
// its lifetime is between half and all of Lifetime.
package nonce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const DefaultLifetime = 24 * time.Hour

// Manager signs action names with a server secret.
type Manager struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewManager(secret string, lifetime time.Duration) *Manager {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Manager{secret: []byte(secret), lifetime: lifetime, now: time.Now}
}

// FormAction is the nonce action guarding submissions of formID.
func FormAction(formID string) string {
	return "swish_form_submit_" + formID
}

// Create returns the token for action in the current tick.
func (m *Manager) Create(action string) string {
	return m.token(m.tick(), action)
}

// Verify reports whether token was issued for action within the current or
// previous tick.
func (m *Manager) Verify(token, action string) bool {
	if token == "" {
		return false
	}
	tick := m.tick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(token), []byte(m.token(t, action))) {
			return true
		}
	}
	return false
}

func (m *Manager) tick() int64 {
	half := int64(m.lifetime / 2)
	return (m.now().UnixNano() + half - 1) / half
}

func (m *Manager) token(tick int64, action string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(action))
	return hex.EncodeToString(mac.Sum(nil))[:10]
}
