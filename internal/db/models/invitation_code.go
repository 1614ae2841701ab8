// invitation_code.go defines the InvitationCode model and the generator for new
// code values.
package models

import (
	"crypto/rand"
	"fmt"
	"time"
)

// CodeLength is the fixed length of an invitation code value.
const CodeLength = 6

// codeAlphabet excludes characters that are easy to confuse when a code is read
// aloud or transcribed (0/O, 1/I/L). Codes are case-sensitive.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz"

// InvitationCode is a single-use token that binds a new employee account to an
// existing organization. A code transitions from unused to used exactly once;
// consumed codes are never deleted so the redemption trail is auditable.
type InvitationCode struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	OrganizationID string     `json:"organization_id"`
	Used           bool       `json:"used"`
	UsedBy         *string    `json:"used_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
}

// NewCodeValue generates a random invitation code value using crypto/rand.
// Collisions with existing unused codes are possible (the keyspace is large but
// finite) and are handled by the caller retrying on the unique-index violation.
func NewCodeValue() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	code := make([]byte, CodeLength)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}
