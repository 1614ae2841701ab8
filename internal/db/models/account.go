// account.go defines the Account model: the application-side record created when a
// principal from the identity directory completes provisioning.
package models

import "time"

// Role is the account role assigned at provisioning time. It is immutable after
// creation.
type Role string

const (
	// RoleAdmin is assigned to the principal that created the organization.
	RoleAdmin Role = "ADMIN"
	// RoleEmployee is assigned to principals that joined via an invitation code.
	RoleEmployee Role = "EMPLOYEE"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// Account represents a provisioned user account. PrincipalID is the identity
// directory identifier and is unique: a principal has at most one account.
// Department is only meaningful for RoleEmployee and stays nil for admins.
//
// MetadataSyncedAt records when the directory metadata projection
// (onboardingCompleted/role/companyId) was last confirmed written. NULL means the
// relational row committed but the directory merge has not succeeded yet; the
// metadata reconciler job retries those rows out-of-band.
type Account struct {
	ID               string     `json:"id"`
	PrincipalID      string     `json:"principal_id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Role             Role       `json:"role"`
	Department       *string    `json:"department,omitempty"`
	OrganizationID   string     `json:"organization_id"`
	MetadataSyncedAt *time.Time `json:"metadata_synced_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
