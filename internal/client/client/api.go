package client

import (
	"encoding/json"

	"github.com/vmarchenko/signon/internal/client/models"
)

// Wire types and routes for the HTTP transport. The same definitions are
// used by the development server so the two sides cannot drift.

const (
	RouteSubmitUsername = "/api/v1/session/username"
	RouteSubmitPassword = "/api/v1/session/password"
	RouteCredentials    = "/api/v1/session/credentials"
	RouteRegisterBegin  = "/api/v1/session/register/begin"
	RouteRegisterFinish = "/api/v1/session/register/finish"
	RouteLoginBegin     = "/api/v1/session/login/begin"
	RouteLoginFinish    = "/api/v1/session/login/finish"
	RoutePing           = "/api/v1/ping"

	// RouteAdminRevoke is served by the development server only; it
	// terminates a user's sessions to exercise the forced sign-out path.
	RouteAdminRevoke = "/api/v1/admin/revoke"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeSignedOut          = "signed_out"
	CodeInvalidCredentials = "invalid_credentials"
)

type SubmitUsernameRequest struct {
	Username string `json:"username"`
}

type SubmitPasswordRequest struct {
	Password string `json:"password"`
}

type FinishRequest struct {
	Artifact json.RawMessage `json:"artifact"`
}

// SessionResponse is the common success envelope. SessionToken, when
// non-empty, rotates the caller's stored token.
type SessionResponse struct {
	SessionToken string              `json:"session_token,omitempty"`
	Credentials  []models.Credential `json:"credentials,omitempty"`
	CredentialID string              `json:"credential_id,omitempty"`
	Options      json.RawMessage     `json:"options,omitempty"`
	Status       string              `json:"status,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
