package token

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/rs/zerolog/log"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// Key is the process-wide symmetric key protecting refresh tokens at rest.
// It is loaded once at startup and fixed for the process lifetime; rotating it
// requires a restart and invalidates the refresh capability of every existing
// session.
type Key [KeySize]byte

// LoadKey decodes a configured base64 key. If the value is empty or does not
// decode to exactly 32 bytes, a fresh random key is generated and a warning is
// logged: every previously issued encrypted refresh token becomes
// undecryptable, forcing affected users to log in again. Access tokens already
// handed out stay valid until their own expiry.
//
// LoadKey never fails - it always returns a usable key.
func LoadKey(configured string) Key {
	if configured == "" {
		log.Warn().Msg("no encryption key configured, generated an ephemeral key; sessions will not survive a restart")
		return generateKey()
	}

	key, err := decodeKey(configured)
	if err != nil {
		log.Warn().Err(err).Msg("configured encryption key is invalid, generated an ephemeral key; existing sessions will require re-login")
		return generateKey()
	}

	return key
}

// decodeKey accepts standard or URL-safe base64, padded or raw.
func decodeKey(encoded string) (Key, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	encoded = strings.TrimSpace(encoded)

	var lastErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(encoded)
		if err != nil {
			lastErr = err
			continue
		}
		if len(raw) != KeySize {
			lastErr = ErrInvalidKeyLength
			continue
		}
		var key Key
		copy(key[:], raw)
		return key, nil
	}
	return Key{}, lastErr
}

// GenerateKey returns a new random key encoded for the ENCRYPTION_KEY
// environment variable. Intended for operators provisioning a deployment.
func GenerateKey() string {
	key := generateKey()
	return base64.RawURLEncoding.EncodeToString(key[:])
}

func generateKey() Key {
	var key Key
	if _, err := rand.Read(key[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic("token: cannot read from crypto/rand: " + err.Error())
	}
	return key
}
