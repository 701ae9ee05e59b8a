package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// SessionTokenBytes is the entropy budget for bearer tokens: 64 random
// bytes, 512 bits.
const SessionTokenBytes = 64

// GenerateSecureToken returns a base64 URL-safe random string using the
// specified number of random bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateSessionToken returns a fresh opaque bearer token.
func GenerateSessionToken() (string, error) {
	return GenerateSecureToken(SessionTokenBytes)
}

// DigestToken calculates the SHA-256 digest of a token. Stores key sessions
// by this digest so raw bearer tokens never rest at the persistence layer.
func DigestToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// SessionSigner produces and checks integrity tags binding a raw bearer
// token to its owning user. A session row whose user id was rewritten in
// the store no longer verifies against the token the client presents.
type SessionSigner struct {
	secret []byte
}

// NewSessionSigner constructs a signer from the server-held secret.
func NewSessionSigner(secret []byte) (*SessionSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session signer: secret must be at least 32 bytes")
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &SessionSigner{secret: key}, nil
}

// Sign computes the integrity tag over the raw token and user id.
func (s *SessionSigner) Sign(token, userID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	mac.Write([]byte{0x1f})
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the supplied tag matches the token and user id.
func (s *SessionSigner) Verify(token, userID, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	mac.Write([]byte{0x1f})
	mac.Write([]byte(userID))
	return hmac.Equal(mac.Sum(nil), expected)
}

// GenerateSigningSecret creates an ephemeral signer secret for deployments
// that have not configured one. Sessions signed with it do not survive a
// restart.
func GenerateSigningSecret() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}
	return buf, nil
}
