// Package gravatar derives gravatar identifiers from email addresses.
// Resolution is cosmetic: callers skip silently on failure.
package gravatar

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
)

// Resolve returns the gravatar identifier for an email address: the md5 hex
// digest of the trimmed, lowercased address.
func Resolve(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("empty email")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("invalid email for gravatar: %w", err)
	}
	sum := md5.Sum([]byte(email))
	return hex.EncodeToString(sum[:]), nil
}
