package client

import (
	"context"
	"encoding/json"

	"github.com/vmarchenko/signon/internal/client/models"
)

// Client is the transport-agnostic contract to the remote authentication
// service.
//
// Every operation reports its outcome in a three-way shape:
//   - success, optionally carrying a refreshed session token: a non-empty
//     returned token must overwrite the one the caller holds (rotation);
//   - ErrSignedOut when the server has invalidated the session, after which
//     the caller must force a local sign-out;
//   - any other error for transport or validation failures, leaving the
//     caller's state untouched.
type Client interface {
	Close() error

	// SubmitUsername starts a sign-in attempt and returns the session token
	// issued for it.
	SubmitUsername(ctx context.Context, username string) (string, error)

	// SubmitPassword verifies the password for the pending session.
	// Returns ErrInvalidCredentials when the password is rejected.
	SubmitPassword(ctx context.Context, token string, password []byte) (string, error)

	// ListCredentials fetches the registered credentials in registration
	// order.
	ListCredentials(ctx context.Context, token string) ([]models.Credential, string, error)

	// RemoveCredential deletes one registered credential by id.
	RemoveCredential(ctx context.Context, token string, credentialID string) (string, error)

	// BeginRegistration obtains a challenge/options payload for creating a
	// new credential. The payload is opaque and is handed to the credential
	// provider unchanged.
	BeginRegistration(ctx context.Context, token string) (json.RawMessage, error)

	// FinishRegistration submits the provider-produced artifact and returns
	// the id assigned to the new credential.
	FinishRegistration(ctx context.Context, token string, artifact json.RawMessage) (credentialID string, newToken string, err error)

	// BeginLogin obtains a challenge/options payload for credential sign-in.
	BeginLogin(ctx context.Context, token string) (json.RawMessage, error)

	// FinishLogin submits the assertion artifact, completing the sign-in.
	FinishLogin(ctx context.Context, token string, artifact json.RawMessage) (string, error)

	// Ping checks server liveness.
	Ping(ctx context.Context) error
}
