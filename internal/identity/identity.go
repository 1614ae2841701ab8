// Package identity implements the client for the external identity directory that
// holds canonical user profiles. The directory is the system of record for who a
// principal is (name, email); the relational database is the system of record for
// what was provisioned. Provisioning writes a small metadata projection
// (onboardingCompleted / role / companyId) back into the directory, and that
// projection is best-effort: it may lag the relational state and is reconciled by
// retry, never the other way around.
package identity

import "context"

// Principal is a resolved directory user. FirstName and LastName come from the
// directory profile and are required for provisioning; a principal missing either
// is treated as not found since the gap cannot be repaired here.
type Principal struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// Directory is the surface of the identity directory the provisioning workflow
// depends on. Implemented by *Client; fakes implement it in tests.
type Directory interface {
	// GetPrincipal resolves a principal by directory ID. Returns (nil, nil) when
	// no such user exists.
	GetPrincipal(ctx context.Context, id string) (*Principal, error)

	// MergeMetadata merges the partial metadata map into the user's metadata bag.
	// Keys absent from the map are preserved in the directory.
	MergeMetadata(ctx context.Context, id string, metadata map[string]any) error
}
