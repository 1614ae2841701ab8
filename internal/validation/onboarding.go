// Package validation implements input validation for the provisioning API.
// Handlers pre-validate user input, but everything that backs a persisted
// invariant (non-empty company name, URL shape) is re-checked here so the
// service layer never trusts the transport layer.
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/crewbase/crewbase/internal/db/models"
)

const (
	// MaxCompanyNameLength matches the organizations.name column width.
	MaxCompanyNameLength = 100
	// MaxDepartmentLength matches the accounts.department column width.
	MaxDepartmentLength = 100
)

// CompanyName validates the organization name persisted on the admin path.
func CompanyName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("company name is required")
	}
	if len(trimmed) > MaxCompanyNameLength {
		return fmt.Errorf("company name cannot exceed %d characters", MaxCompanyNameLength)
	}
	return nil
}

// WebURL validates an optional http(s) URL (company website or logo).
// A nil or empty value is allowed.
func WebURL(raw *string) error {
	if raw == nil || *raw == "" {
		return nil
	}
	u, err := url.Parse(*raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL is missing a host")
	}
	return nil
}

// Department validates the optional employee department field.
func Department(department *string) error {
	if department == nil {
		return nil
	}
	if len(*department) > MaxDepartmentLength {
		return fmt.Errorf("department cannot exceed %d characters", MaxDepartmentLength)
	}
	return nil
}

// NormalizeInvitationCode trims surrounding whitespace and reports whether the
// result has the expected fixed length. Codes are case-sensitive, so no case
// folding happens here. A malformed code is not a format error to the caller —
// it simply can never match a stored code, so callers treat ok == false the same
// as a code that was never issued.
func NormalizeInvitationCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	return code, len(code) == models.CodeLength
}
