// errors.go defines the stable error taxonomy of the provisioning workflow.
// Handlers map these to machine-readable reasons at the API boundary; anything
// not matched here is a transient store failure and surfaces as a generic error.
package provisioning

import "errors"

var (
	// ErrPrincipalNotFound means the identity directory has no usable profile for
	// the principal (missing user, or missing first/last name). Not retryable with
	// the same input.
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrInvalidCode means no redeemable invitation code matched. Deliberately
	// covers "never issued", "already used", and "typo" uniformly so the API
	// cannot be used to enumerate valid codes.
	ErrInvalidCode = errors.New("invalid invitation code")

	// ErrValidation means a required field was empty or malformed (admin path).
	ErrValidation = errors.New("validation failed")

	// ErrMetadataSync means the relational write committed but the identity
	// directory metadata merge failed. The committed state is authoritative; the
	// caller may retry the whole call (which is idempotent) or rely on the
	// metadata reconciler.
	ErrMetadataSync = errors.New("identity metadata sync failed")
)
