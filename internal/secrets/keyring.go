// Package secrets encrypts stored credentials.
//
// Every value is sealed with AES-256-GCM under a key derived with HKDF from
// one keyring secret and a scope (for example "esp:brevo" or "smtp"), so a
// ciphertext cannot be replayed under another scope. Ciphertexts carry the
// id of the secret that sealed them, which lets old values keep decrypting
// after a new secret is appended to the keyring.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Marker prefixes every encrypted value.
const Marker = "swenc:"

var (
	ErrDecrypt    = errors.New("secrets: unable to decrypt value")
	ErrUnknownKey = errors.New("secrets: unknown key id")
	ErrNoKeys     = errors.New("secrets: keyring is empty")
)

type key struct {
	id     string
	secret []byte
}

// Keyring holds the encryption secrets; the last one is current.
type Keyring struct {
	keys []key
}

// ParseKeyring reads "id:secret,id:secret". When keys is empty, fallback
// becomes the single secret under id "k0".
func ParseKeyring(keys, fallback string) (*Keyring, error) {
	kr := &Keyring{}
	for _, part := range strings.Split(keys, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, secret, ok := strings.Cut(part, ":")
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("secrets: malformed key entry %q", part)
		}
		if strings.Contains(id, ":") {
			return nil, fmt.Errorf("secrets: key id %q must not contain ':'", id)
		}
		for _, k := range kr.keys {
			if k.id == id {
				return nil, fmt.Errorf("secrets: duplicate key id %q", id)
			}
		}
		kr.keys = append(kr.keys, key{id: id, secret: []byte(secret)})
	}
	if len(kr.keys) == 0 {
		if fallback == "" {
			return nil, ErrNoKeys
		}
		kr.keys = append(kr.keys, key{id: "k0", secret: []byte(fallback)})
	}
	return kr, nil
}

// CurrentID is the id new values are sealed with.
func (kr *Keyring) CurrentID() string {
	return kr.keys[len(kr.keys)-1].id
}

// IsEncrypted reports whether value carries the encryption marker.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Marker)
}

// Encrypt seals plain for scope with the current key. Empty input stays
// empty.
func (kr *Keyring) Encrypt(scope, plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	current := kr.keys[len(kr.keys)-1]
	aead, err := newAEAD(current.secret, scope)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), []byte(scope))
	return Marker + current.id + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt for the same scope.
func (kr *Keyring) Decrypt(scope, value string) (string, error) {
	if !IsEncrypted(value) {
		return "", ErrDecrypt
	}
	id, payload, ok := strings.Cut(strings.TrimPrefix(value, Marker), ":")
	if !ok {
		return "", ErrDecrypt
	}
	k, ok := kr.lookup(id)
	if !ok {
		return "", ErrUnknownKey
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrDecrypt
	}
	aead, err := newAEAD(k.secret, scope)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrDecrypt
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], []byte(scope))
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// Reveal decrypts marked values and passes plain values through. A value
// that fails to decrypt reveals as "".
func (kr *Keyring) Reveal(scope, value string) string {
	if !IsEncrypted(value) {
		return value
	}
	plain, err := kr.Decrypt(scope, value)
	if err != nil {
		return ""
	}
	return plain
}

// Seal encrypts plain values and leaves already encrypted ones untouched.
func (kr *Keyring) Seal(scope, value string) (string, error) {
	if value == "" || IsEncrypted(value) {
		return value, nil
	}
	return kr.Encrypt(scope, value)
}

// Reencrypt moves value onto the current key. It reports whether the value
// changed.
func (kr *Keyring) Reencrypt(scope, value string) (string, bool, error) {
	if !IsEncrypted(value) {
		sealed, err := kr.Seal(scope, value)
		return sealed, sealed != value, err
	}
	if strings.HasPrefix(value, Marker+kr.CurrentID()+":") {
		return value, false, nil
	}
	plain, err := kr.Decrypt(scope, value)
	if err != nil {
		return value, false, err
	}
	sealed, err := kr.Encrypt(scope, plain)
	return sealed, err == nil, err
}

func (kr *Keyring) lookup(id string) (key, bool) {
	for _, k := range kr.keys {
		if k.id == id {
			return k, true
		}
	}
	return key{}, false
}

func newAEAD(secret []byte, scope string) (cipher.AEAD, error) {
	derived := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte("swish-forms/"+scope))
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
