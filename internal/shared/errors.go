package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("already exists")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the actor lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated indicates a request without usable credentials.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrIncorrectPassword occurs when the current password does not match on change.
	ErrIncorrectPassword = errors.New("current password is incorrect")
	// ErrEmailTaken occurs when registering an email that already has a principal.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidToken covers malformed, badly signed, expired or wrong-type tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRevokedToken occurs when a refresh token verifies but has no allow-record.
	ErrRevokedToken = errors.New("refresh token has been revoked")
	// ErrPrincipalNotFound occurs when a token subject no longer resolves.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPrincipalInactive occurs when the principal has been deactivated.
	ErrPrincipalInactive = errors.New("principal is inactive")
	// ErrOneTimeTokenInvalid occurs when a one-time token is unknown, expired or already used.
	ErrOneTimeTokenInvalid = errors.New("invalid or expired token")
)
