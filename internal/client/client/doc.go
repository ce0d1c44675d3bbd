// Package client contains the remote-service building blocks for SignOn.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface) to talk
//     to the authentication backend: SubmitUsername/SubmitPassword,
//     ListCredentials/RemoveCredential, the register and login
//     challenge/response pairs, and Ping.
//  2. A concrete HTTP/JSON implementation (see HTTPClient) that attaches the
//     session token as a bearer header, retries transient transport failures
//     with a bounded backoff, and maps error responses to sentinel errors.
//  3. Local persistence bootstrap utilities (InitDatabase, RunMigrations),
//     wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// The three-way result shape of the remote contract is expressed through
// sentinel errors matched with errors.Is: ErrSignedOut (authoritative
// revocation), ErrInvalidCredentials (rejected password or assertion), and
// ErrUnavailable (transport failure, safe to retry).
//
// Concurrency & Contexts
//
// HTTPClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation/timeouts.
package client
