package delegation

import "errors"

// Structural errors are fatal to the operation that raised them and surface
// to the caller unmodified. Soft query failures are handled by the allowance
// service, not here.
var (
	// ErrEmptyPermissionContext means no permission context was configured at
	// all ("" or "0x"). Distinct from a context that decodes to zero
	// delegations.
	ErrEmptyPermissionContext = errors.New("empty permission context")

	// ErrMalformedPermissionContext means the context bytes do not match the
	// delegation tuple-array layout. Decoding never partially succeeds.
	ErrMalformedPermissionContext = errors.New("malformed permission context")

	// ErrNoParentDelegation means a sub-delegation was requested against a
	// context with no delegations to chain from.
	ErrNoParentDelegation = errors.New("no parent delegation in permission context")

	// ErrDelegateMismatch means the signing key's address is not the parent
	// delegation's delegate, so the key was never granted that authority.
	ErrDelegateMismatch = errors.New("signer is not the parent delegation's delegate")

	// ErrMalformedDelegation covers invalid delegation fields caught before
	// hashing, such as a salt wider than 256 bits.
	ErrMalformedDelegation = errors.New("malformed delegation")
)
