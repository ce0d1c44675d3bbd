package models

import (
	"context"
	"encoding/json"
)

// Credential is a registered public-key authenticator record associated with
// a signed-in user. Registration order is the slice order wherever a
// []Credential appears; persistence must keep it.
type Credential struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
}

// EncodeCredentials serializes a credential list for the durable store.
// A JSON array is used so the registration order survives the round trip.
func EncodeCredentials(creds []Credential) ([]byte, error) {
	return json.Marshal(creds)
}

// DecodeCredentials restores a credential list written by EncodeCredentials.
// nil or empty input yields an empty list.
func DecodeCredentials(data []byte) ([]Credential, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var creds []Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// CredentialProvider is the external capability that produces public-key
// credential artifacts from server-issued challenge payloads. Payloads are
// opaque to this package and passed through unchanged.
//
// Implementations typically wrap a platform authenticator dialog; tests use
// canned artifacts.
type CredentialProvider interface {
	// Create produces a new credential artifact for a registration challenge.
	Create(ctx context.Context, options json.RawMessage) (json.RawMessage, error)
	// Assert produces an assertion artifact for a sign-in challenge.
	Assert(ctx context.Context, options json.RawMessage) (json.RawMessage, error)
}
