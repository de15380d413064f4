package token

import "errors"

var (
	ErrInvalidKeyLength = errors.New("encryption key must be 32 bytes")
	ErrDecryptFailed    = errors.New("ciphertext could not be decrypted")
	ErrMalformedToken   = errors.New("malformed token")
)
