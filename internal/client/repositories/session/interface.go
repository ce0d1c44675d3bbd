// Package session persists the durable sign-in session record as a small
// set of named fields behind a key-value contract with atomic multi-key
// updates.
package session

import (
	"context"
)

// Field keys of the persisted session record.
const (
	KeyUsername          = "username"
	KeySessionToken      = "session_token"
	KeyCredentials       = "credentials"
	KeyLocalCredentialID = "local_credential_id"
)

// Batch collects field writes and removals applied as one atomic unit.
type Batch interface {
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Repository is the durable store contract.
//
// Get returns (nil, nil) when the key is absent. Update applies all batch
// operations atomically: readers observe either the pre-update or the
// post-update snapshot, never interleaved fields, and a cancelled context
// leaves nothing applied. Clear removes the whole record in one unit.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, fn func(ctx context.Context, b Batch) error) error
	Clear(ctx context.Context) error
}
