// Package provider contains CredentialProvider implementations.
package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vmarchenko/signon/internal/common"
)

// SoftProvider is a software credential provider. It answers registration
// challenges with a freshly generated public key and assertion challenges
// with the first allowed credential. It holds no private key material and is
// meant for development and tests, not as a real authenticator.
type SoftProvider struct{}

func NewSoftProvider() *SoftProvider {
	return &SoftProvider{}
}

// registrationOptions is the subset of the server's registration challenge
// the provider needs.
type registrationOptions struct {
	Challenge string `json:"challenge"`
}

// assertionOptions is the subset of the server's sign-in challenge the
// provider needs.
type assertionOptions struct {
	Challenge string   `json:"challenge"`
	Allowed   []string `json:"allowed"`
}

// registrationArtifact echoes the challenge and carries the new public key.
type registrationArtifact struct {
	Challenge string `json:"challenge"`
	PublicKey string `json:"public_key"`
}

// assertionArtifact echoes the challenge and names the credential used.
type assertionArtifact struct {
	Challenge    string `json:"challenge"`
	CredentialID string `json:"credential_id"`
}

var ErrNoAllowedCredentials = errors.New("no allowed credentials in challenge")

// Create produces a registration artifact for the given options.
func (p *SoftProvider) Create(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	var opts registrationOptions
	if err := json.Unmarshal(options, &opts); err != nil {
		return nil, err
	}

	publicKey, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, err
	}

	return json.Marshal(registrationArtifact{
		Challenge: opts.Challenge,
		PublicKey: publicKey,
	})
}

// Assert produces a sign-in artifact using the first allowed credential.
func (p *SoftProvider) Assert(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	var opts assertionOptions
	if err := json.Unmarshal(options, &opts); err != nil {
		return nil, err
	}
	if len(opts.Allowed) == 0 {
		return nil, ErrNoAllowedCredentials
	}

	return json.Marshal(assertionArtifact{
		Challenge:    opts.Challenge,
		CredentialID: opts.Allowed[0],
	})
}
