package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Purpose isolates sealed values: a value sealed for one purpose never opens under another.
type Purpose string

const (
	PurposeCookie Purpose = "Cookie"
	PurposeToken  Purpose = "Token"
	PurposeExtra  Purpose = "Extra"
)

// Purposes lists every purpose a KeyRing derives keys for.
var Purposes = []Purpose{PurposeCookie, PurposeToken, PurposeExtra}

// ErrInvalidEnvelope is returned by Open for tampered, foreign or malformed values.
var ErrInvalidEnvelope = errors.New("invalid envelope")

const (
	// Versioned prefix to allow future key/algorithm rotations without data migrations.
	sealedPrefixV1 = "v1."
	minSecretLen   = 32
	derivedKeyLen  = 32
)

var (
	keyIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
	b64     = base64.RawURLEncoding.Strict()
)

// Key is a master secret. Per purpose keys are derived from it with HKDF.
type Key struct {
	ID     string
	Secret []byte
}

// NewKey validates id and secret.
func NewKey(id string, secret []byte) (Key, error) {
	if !keyIDRe.MatchString(id) {
		return Key{}, fmt.Errorf("invalid key id %q", id)
	}
	if len(secret) < minSecretLen {
		return Key{}, fmt.Errorf("key secret must be at least %d bytes, got %d", minSecretLen, len(secret))
	}
	return Key{ID: id, Secret: append([]byte(nil), secret...)}, nil
}

// GenerateKey creates a random key with a short random id.
func GenerateKey() (Key, error) {
	secret := make([]byte, minSecretLen)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return Key{}, err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return NewKey(id, secret)
}

// ParseKey parses the "id:base64url-secret" form produced by Key.String.
func ParseKey(s string) (Key, error) {
	id, enc, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Key{}, errors.New("key must have the form id:secret")
	}
	secret, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return Key{}, fmt.Errorf("decode key %q: %w", id, err)
	}
	return NewKey(id, secret)
}

// String encodes the key as "id:base64url-secret".
func (k Key) String() string {
	return k.ID + ":" + base64.RawURLEncoding.EncodeToString(k.Secret)
}

type derivedKey struct {
	id    string
	aeads map[Purpose]cipher.AEAD
}

func deriveKey(k Key) (derivedKey, error) {
	dk := derivedKey{id: k.ID, aeads: make(map[Purpose]cipher.AEAD, len(Purposes))}
	for _, p := range Purposes {
		raw := make([]byte, derivedKeyLen)
		r := hkdf.New(sha256.New, k.Secret, nil, []byte("webfront/"+string(p)))
		if _, err := io.ReadFull(r, raw); err != nil {
			return derivedKey{}, fmt.Errorf("derive %s key: %w", p, err)
		}
		block, err := aes.NewCipher(raw)
		if err != nil {
			return derivedKey{}, err
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return derivedKey{}, err
		}
		dk.aeads[p] = gcm
	}
	return dk, nil
}

// KeyRing seals with its newest key and opens with any of its keys, newest first.
// It is safe for concurrent use; Replace swaps the whole ring atomically.
type KeyRing struct {
	keys atomic.Pointer[[]derivedKey]
}

// NewKeyRing builds a ring from keys ordered newest first.
func NewKeyRing(keys ...Key) (*KeyRing, error) {
	r := &KeyRing{}
	if err := r.Replace(keys); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace installs a new ordered key list. Values sealed with a dropped key stop opening.
func (r *KeyRing) Replace(keys []Key) error {
	if len(keys) == 0 {
		return errors.New("key ring requires at least one key")
	}
	seen := make(map[string]struct{}, len(keys))
	derived := make([]derivedKey, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k.ID]; dup {
			return fmt.Errorf("duplicate key id %q", k.ID)
		}
		seen[k.ID] = struct{}{}
		dk, err := deriveKey(k)
		if err != nil {
			return err
		}
		derived = append(derived, dk)
	}
	r.keys.Store(&derived)
	return nil
}

// IDs returns the key ids, newest first.
func (r *KeyRing) IDs() []string {
	keys := *r.keys.Load()
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.id)
	}
	return ids
}

func additionalData(p Purpose, keyID string) []byte {
	return []byte(sealedPrefixV1 + string(p) + "." + keyID)
}

// Seal encrypts plaintext for purpose p with the newest key.
// The result is URL and cookie safe: "v1.<keyID>.<base64url(nonce||ciphertext)>".
func (r *KeyRing) Seal(p Purpose, plaintext []byte) (string, error) {
	k := (*r.keys.Load())[0]
	gcm, ok := k.aeads[p]
	if !ok {
		return "", fmt.Errorf("unknown purpose %q", p)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	// Store nonce||ciphertext
	buf := gcm.Seal(nonce, nonce, plaintext, additionalData(p, k.id))
	return sealedPrefixV1 + k.id + "." + b64.EncodeToString(buf), nil
}

// Open decrypts a value produced by Seal for the same purpose.
// Every failure wraps ErrInvalidEnvelope.
func (r *KeyRing) Open(p Purpose, sealed string) ([]byte, error) {
	rest, ok := strings.CutPrefix(sealed, sealedPrefixV1)
	if !ok {
		return nil, fmt.Errorf("%w: unknown version", ErrInvalidEnvelope)
	}
	keyID, payload, ok := strings.Cut(rest, ".")
	if !ok || !keyIDRe.MatchString(keyID) {
		return nil, fmt.Errorf("%w: missing key id", ErrInvalidEnvelope)
	}
	data, err := b64.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	for _, k := range *r.keys.Load() {
		if k.id != keyID {
			continue
		}
		gcm, ok := k.aeads[p]
		if !ok {
			return nil, fmt.Errorf("%w: unknown purpose %q", ErrInvalidEnvelope, p)
		}
		if len(data) < gcm.NonceSize() {
			return nil, fmt.Errorf("%w: ciphertext too short", ErrInvalidEnvelope)
		}
		nonce, ct := data[:gcm.NonceSize()], data[gcm.NonceSize():]
		pt, openErr := gcm.Open(nil, nonce, ct, additionalData(p, keyID))
		if openErr == nil {
			return pt, nil
		}
	}
	return nil, fmt.Errorf("%w: no key opens value", ErrInvalidEnvelope)
}
