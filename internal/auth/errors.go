package auth

import "errors"

var (
	// ErrInvalidToken covers every token validation failure: bad signature,
	// wrong issuer or audience, malformed segments, expiry. Callers cannot
	// distinguish the cause through this error; internal logs keep detail.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidCredentials is returned for both unknown accounts and wrong
	// passwords so responses never enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountLocked is distinct from ErrInvalidCredentials: the caller
	// should wait out the lockout window instead of retrying.
	ErrAccountLocked = errors.New("auth: account locked")

	// ErrNotSupported marks operations unavailable in the active mode, for
	// example password changes while federated login is in effect.
	ErrNotSupported = errors.New("auth: not supported in this mode")

	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
)
