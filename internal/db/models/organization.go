// Package models defines the persisted domain entities for the Crewbase provisioning
// backend: organizations, accounts, and single-use invitation codes.
package models

import "time"

// Organization represents a company workspace. One organization is created per
// provisioned admin; employees join an existing organization by redeeming an
// invitation code bound to it.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Website   *string   `json:"website,omitempty"`
	LogoURL   *string   `json:"logo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
