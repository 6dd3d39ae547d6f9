package wallet

import "errors"

var (
	// ErrIdentityMissing means no chat identity was resolvable from the
	// transport. Not retryable by the caller.
	ErrIdentityMissing = errors.New("chat identity missing")

	// ErrProvisioningFailed means the custody provider failed while creating
	// chain accounts. Safe to retry: no partial account is ever persisted.
	ErrProvisioningFailed = errors.New("provisioning failed")

	// ErrAccountMissing means an account could not be re-resolved at
	// execution time; the user must register again.
	ErrAccountMissing = errors.New("account missing")
)
