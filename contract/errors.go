package contract

import "errors"

// Failure taxonomy shared by the access-control registry and the credential
// ledger. Operations reject with one of these sentinels, wrapped with
// call-site context, and leave world state untouched; the peer discards the
// write set of a failed transaction, so callers can simply retry with
// corrected input. Match with errors.Is.
var (
	// ErrUnauthorized rejects a caller that is not the administrator (for
	// administrator-only operations) or not a current issuer (for
	// issuer-only operations).
	ErrUnauthorized = errors.New("caller is not authorized for this operation")

	// ErrInvalidTarget rejects the empty identifier, and an administrator
	// transfer to the identity that already holds the role.
	ErrInvalidTarget = errors.New("invalid target identity")

	// ErrAlreadyIssuer rejects granting issuer membership an identity
	// already holds.
	ErrAlreadyIssuer = errors.New("identity is already an active issuer")

	// ErrNotIssuer rejects revoking issuer membership an identity does not
	// hold.
	ErrNotIssuer = errors.New("identity is not an active issuer")

	// ErrTypeAlreadyDefined rejects re-binding a vaccine type code whose
	// name is already set.
	ErrTypeAlreadyDefined = errors.New("vaccine type code is already defined")

	// ErrAlreadyIssued rejects issuing a credential to a subject that
	// already has one.
	ErrAlreadyIssued = errors.New("credential already issued for subject")

	// ErrNotYetIssued rejects recording a dose for a subject that has no
	// credential.
	ErrNotYetIssued = errors.New("no credential issued for subject")
)
