package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// sessionIDBytes is the entropy of a session ID before encoding.
const sessionIDBytes = 32

// Session is one authenticated browser session. The session ID itself is not
// part of the record: it is the store key and the cookie value, and it changes
// on every rotation while the record (minus token updates) is carried over.
//
// The refresh token is only ever stored encrypted; it is decrypted transiently
// inside the lifecycle engine to perform a refresh call.
type Session struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	EncryptedRefreshToken string    `json:"encrypted_refresh_token"`
	IDToken               string    `json:"id_token,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// AccessTokenExpired reports whether the stored access token is past its
// expiry. The lifecycle engine never hands an expired token downstream.
func (s Session) AccessTokenExpired() bool {
	return s.AccessTokenExpiresAt.Before(time.Now())
}

// NewID generates a cryptographically random URL-safe session ID
// (32 bytes of entropy, base64url without padding).
func NewID() string {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		panic("sessions: cannot read from crypto/rand: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
