// Package auth holds the fixed credential table and the optional admin
// TOTP gate. Credentials here are a lookup table for a small trusted
// group, not a security boundary.
package auth

import (
	"log"
	"strings"

	"github.com/pquerna/otp/totp"
)

// Credentials is the username → password table plus the optional TOTP
// secret guarding destructive admin actions.
type Credentials struct {
	users           map[string]string
	adminTOTPSecret string
}

// New creates a credential set. An empty totpSecret disables the TOTP
// gate and admin actions pass unchecked.
func New(users map[string]string, totpSecret string) *Credentials {
	return &Credentials{users: users, adminTOTPSecret: totpSecret}
}

// ParseUsers parses a "user:pass,user:pass" spec into a table. Malformed
// pairs are skipped with a log line.
func ParseUsers(spec string) map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, pass, ok := strings.Cut(pair, ":")
		if !ok || name == "" || pass == "" {
			log.Printf("[auth] skipping malformed user spec: %q", pair)
			continue
		}
		users[name] = pass
	}
	return users
}

// Verify checks a username/password pair against the table.
func (c *Credentials) Verify(username, password string) bool {
	pass, ok := c.users[username]
	return ok && pass == password
}

// VerifyAdminAction validates a TOTP code for a destructive action.
// Always true when no secret is configured.
func (c *Credentials) VerifyAdminAction(code string) bool {
	if c.adminTOTPSecret == "" {
		return true
	}
	return totp.Validate(code, c.adminTOTPSecret)
}
