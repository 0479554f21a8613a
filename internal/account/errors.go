package account

import "errors"

// Sentinel errors returned by the account service. Callers match them with
// errors.Is; the HTTP adapter maps each to a status code.
var (
	// ErrValidation covers malformed or missing input.
	ErrValidation = errors.New("invalid input")

	// ErrAccountExists is returned when the username or email is taken.
	ErrAccountExists = errors.New("username or email already in use")

	// ErrNotFound is returned when no account or token matches.
	ErrNotFound = errors.New("account not found")

	// ErrInvalidCredentials covers wrong passwords. Deliberately generic.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers expired, malformed, or mismatched bearer tokens.
	// A previously valid but already-rotated refresh token also gets this;
	// the cases are not distinguished to avoid leaking which check failed.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a verification token was found but is
	// past its expiry. Kept distinct from ErrInvalidToken so callers can
	// offer a fresh link instead of a credential error.
	ErrTokenExpired = errors.New("token has expired")

	// ErrNotVerified gates login until the email is verified.
	ErrNotVerified = errors.New("please verify your email first")

	// ErrDeactivated gates login while the account is deactivated but still
	// restorable.
	ErrDeactivated = errors.New("account is deactivated, restore it to continue")

	// ErrAccountGone is returned once the restoration deadline has passed,
	// whether or not the reaper has physically deleted the record yet.
	ErrAccountGone = errors.New("account has been permanently deleted")

	// ErrStateConflict is returned when an operation is not valid in the
	// account's current lifecycle state.
	ErrStateConflict = errors.New("operation not allowed in current account state")
)
