package client

import "errors"

var (
	// ErrUnavailable marks transport failures: the server could not be
	// reached or answered with a server-side error. Persisted state is
	// untouched and the same operation may be retried by the caller.
	ErrUnavailable = errors.New("server unavailable")

	// ErrSignedOut is the authoritative revocation signal: the server no
	// longer recognizes the session. The session manager reacts with a
	// forced sign-out.
	ErrSignedOut = errors.New("signed out by server")

	// ErrInvalidCredentials is returned when the server rejects the
	// submitted password or assertion.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
