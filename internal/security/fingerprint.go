package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Fingerprint returns the hex SHA-256 of s. Reset tokens carry the fingerprint of
// the password digest they were issued against, never the digest itself.
func Fingerprint(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// FingerprintMatches reports in constant time whether value fingerprints to stored.
// Empty inputs never match.
func FingerprintMatches(value, stored string) bool {
	if value == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Fingerprint(value)), []byte(stored)) == 1
}
