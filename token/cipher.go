package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo binds derived keys to this use so the same master key could later
// serve other purposes without nonce/key reuse across domains.
const hkdfInfo = "bionicpro-auth-gateway/refresh-token"

// Cipher encrypts refresh tokens for storage in the session store using
// AES-256-GCM. The encryption key is derived from the loaded master key via
// HKDF-SHA256. Ciphertexts are authenticated: decrypting with a different key
// or a tampered ciphertext fails with ErrDecryptFailed rather than returning
// wrong plaintext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the encryption key from key and prepares the AEAD.
func NewCipher(key Key) (*Cipher, error) {
	derived := make([]byte, KeySize)
	kdf := hkdf.New(sha256.New, key[:], nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("[NewCipher] key derivation: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("[NewCipher] aes.NewCipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("[NewCipher] cipher.NewGCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// EncryptString encrypts plaintext and returns a base64url string with the
// random nonce prepended to the sealed data.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("[Cipher EncryptString] nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString. Any failure (wrong key, truncated or
// tampered data) is reported as ErrDecryptFailed; callers treat it the same
// way as an upstream refresh rejection.
func (c *Cipher) DecryptString(encrypted string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encrypted)
	if err != nil {
		return "", errors.Join(ErrDecryptFailed, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrDecryptFailed
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", errors.Join(ErrDecryptFailed, err)
	}

	return string(plaintext), nil
}
