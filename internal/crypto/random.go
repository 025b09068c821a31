package crypto

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"strings"
)

// SessionIDLength is the length of the encoded session identifier.
// 20 random bytes (160 bits) encode to 32 base32 characters.
const SessionIDLength = 32

const sessionIDBytes = 20

var sessionIDEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// GenerateSecureToken creates a cryptographically secure random token.
// Returns a base64 URL-encoded string (256 bits) suitable for use as OAuth state parameters.
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateSessionID creates an opaque session identifier: 160 random bits
// in lowercase base32, safe for cookies, headers and document keys.
func GenerateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return sessionIDEncoding.EncodeToString(b), nil
}

// IsValidSessionID reports whether id has the shape produced by GenerateSessionID.
// It lets lookups of obviously forged ids skip the store.
func IsValidSessionID(id string) bool {
	if len(id) != SessionIDLength {
		return false
	}
	return strings.Trim(id, "abcdefghijklmnopqrstuvwxyz234567") == ""
}
