package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vmarchenko/signon/internal/client/client"
	"github.com/vmarchenko/signon/internal/client/models"
	"github.com/vmarchenko/signon/internal/common"
	"github.com/vmarchenko/signon/internal/devserver/auth"
	"github.com/vmarchenko/signon/internal/logging"
)

const (
	signInTokenTTL  = 5 * time.Minute
	sessionTokenTTL = time.Hour
	challengeBytes  = 16
)

// Server implements the auth endpoints of the SignOn API against an
// in-memory account registry. It is a development aid: accounts live only
// for the lifetime of the process.
type Server struct {
	store  *userStore
	secret []byte
	log    logging.Logger
	mux    *http.ServeMux
}

// NewServer builds a Server signing tokens with the given secret.
func NewServer(secret []byte, log logging.Logger) *Server {
	s := &Server{
		store:  newUserStore(),
		secret: secret,
		log:    log,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("POST "+client.RouteSubmitUsername, s.handleSubmitUsername)
	s.mux.HandleFunc("POST "+client.RouteSubmitPassword, s.handleSubmitPassword)
	s.mux.HandleFunc("GET "+client.RouteCredentials, s.handleListCredentials)
	s.mux.HandleFunc("DELETE "+client.RouteCredentials+"/{id}", s.handleRemoveCredential)
	s.mux.HandleFunc("POST "+client.RouteRegisterBegin, s.handleRegisterBegin)
	s.mux.HandleFunc("POST "+client.RouteRegisterFinish, s.handleRegisterFinish)
	s.mux.HandleFunc("POST "+client.RouteLoginBegin, s.handleLoginBegin)
	s.mux.HandleFunc("POST "+client.RouteLoginFinish, s.handleLoginFinish)
	s.mux.HandleFunc("GET "+client.RoutePing, s.handlePing)
	s.mux.HandleFunc("POST "+client.RouteAdminRevoke, s.handleRevoke)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// AddUser registers an account for demo or test use.
func (s *Server) AddUser(username string, password []byte) {
	s.store.add(username, password)
}

// RevokeUser terminates the user's sessions: every subsequent tokened
// request is answered with the signed-out code.
func (s *Server) RevokeUser(username string) {
	s.store.revoke(username)
}

// registrationArtifact and assertionArtifact are the payloads the soft
// credential provider produces.
type registrationArtifact struct {
	Challenge string `json:"challenge"`
	PublicKey string `json:"public_key"`
}

type assertionArtifact struct {
	Challenge    string `json:"challenge"`
	CredentialID string `json:"credential_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, client.ErrorResponse{Code: code, Message: message})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get(common.SessionTokenHeaderName)
	prefix := common.SessionTokenScheme + " "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// authenticate validates the request token for the wanted purpose. A
// missing, expired, or revoked token is reported as signed-out, matching
// the client's forced sign-out mapping.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, purpose string) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, client.CodeSignedOut, "missing token")
		return "", false
	}

	username, err := auth.ParseToken(token, purpose, s.secret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, client.CodeSignedOut, "token expired")
			return "", false
		}
		writeError(w, http.StatusUnauthorized, client.CodeSignedOut, "invalid token")
		return "", false
	}

	if s.store.isRevoked(username) {
		writeError(w, http.StatusUnauthorized, client.CodeSignedOut, "session revoked")
		return "", false
	}
	return username, true
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, username, purpose string, ttl time.Duration) (string, bool) {
	token, err := auth.GenerateToken(username, purpose, s.secret, ttl)
	if err != nil {
		s.log.Error(r.Context(), "failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "", "internal error")
		return "", false
	}
	return token, true
}

func (s *Server) handleSubmitUsername(w http.ResponseWriter, r *http.Request) {
	var req client.SubmitUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	if !s.store.exists(req.Username) {
		writeError(w, http.StatusUnauthorized, client.CodeInvalidCredentials, "unknown user")
		return
	}

	token, ok := s.issueToken(w, r, req.Username, auth.PurposeSignIn, signInTokenTTL)
	if !ok {
		return
	}
	s.log.Info(r.Context(), "sign-in started", "username", req.Username)
	writeJSON(w, http.StatusOK, client.SessionResponse{SessionToken: token})
}

func (s *Server) handleSubmitPassword(w http.ResponseWriter, r *http.Request) {
	username, ok := s.authenticate(w, r, auth.PurposeSignIn)
	if !ok {
		return
	}

	var req client.SubmitPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	if !s.store.checkPassword(username, []byte(req.Password)) {
		writeError(w, http.StatusUnauthorized, client.CodeInvalidCredentials, "wrong password")
		return
	}

	token, ok := s.issueToken(w, r, username, auth.PurposeSession, sessionTokenTTL)
	if !ok {
		return
	}
	s.log.Info(r.Context(), "signed in", "username", username)
	writeJSON(w, http.StatusOK, client.SessionResponse{SessionToken: token})
}

// handleListCredentials returns the credential list in registration order
// and rotates the session token.
func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	username, ok := s.authenticate(w, r, auth.PurposeSession)
	if !ok {
		return
	}

	token, ok := s.issueToken(w, r, username, auth.PurposeSession, sessionTokenTTL)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, client.SessionResponse{
		SessionToken: token,
		Credentials:  s.store.credentials(username),
	})
}

func (s *Server) handleRemoveCredential(w http.ResponseWriter, r *http.Request) {
	username, ok := s.authenticate(w, r, auth.PurposeSession)
	if !ok {
		return
	}

	credentialID := r.PathValue("id")
	if !s.store.removeCredential(username, credentialID) {
		writeError(w, http.StatusNotFound, "", "unknown credential")
		return
	}

	token, ok := s.issueToken(w, r, username, auth.PurposeSession, sessionTokenTTL)
	if !ok {
		return
	}
	s.log.Info(r.Context(), "credential removed", "username", username, "credential_id", credentialID)
	writeJSON(w, http.StatusOK, client.SessionResponse{SessionToken: token})
}

func (s *Server) newChallenge(ctx context.Context, w http.ResponseWriter, username string) (string, bool) {
	challenge, err := common.MakeRandHexString(challengeBytes)
	if err != nil {
		s.log.Error(ctx, "failed to generate challenge", "error", err)
		writeError(w, http.StatusInternalServerError, "", "internal error")
		return "", false
	}
	s.store.setChallenge(username, challenge)
	return challenge, true
}

func (s *Server) handleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	username, ok := s.authenticate(w, r, auth.PurposeSession)
	if !ok {
		return
	}

	challenge, ok := s.newChallenge(r.Context(), w, username)
	if !ok {
		return
	}

	options, _ := json.Marshal(map[string]string{"challenge": challenge})
	writeJSON(w, http.StatusOK, client.SessionResponse{Options: options})
}

func (s *Server) handleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	username, ok := s.authenticate(w, r, auth.PurposeSession)
	if !ok {
		return
	}

	var req client.FinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	var artifact registrationArtifact
	if err := json.Unmarshal(req.Artifact, &artifact); err != nil || artifact.PublicKey == "" {
		writeError(w, http.StatusBadRequest, "", "bad artifact")
		return
	}

	if artifact.Challenge == "" || artifact.Challenge != s.store.takeChallenge(username) {
		writeError(w, http.StatusUnauthorized, client.CodeInvalidCredentials, "challenge mismatch")
		return
	}

	credential := models.Credential{ID: uuid.NewString(), PublicKey: artifact.PublicKey}
	s.store.addCredential(username, credential)

	token, ok := s.issueToken(w, r, username, auth.PurposeSession, sessionTokenTTL)
	if !ok {
		return
	}
	s.log.Info(r.Context(), "credential registered", "username", username, "credential_id", credential.ID)
	writeJSON(w, http.StatusOK, client.SessionResponse{SessionToken: token, CredentialID: credential.ID})
}

func (s *Server) handleLoginBegin(w http.ResponseWriter, r *http.Request) {
	username, ok := s.authenticate(w, r, auth.PurposeSignIn)
	if !ok {
		return
	}

	challenge, ok := s.newChallenge(r.Context(), w, username)
	if !ok {
		return
	}

	allowed := make([]string, 0)
	for _, c := range s.store.credentials(username) {
		allowed = append(allowed, c.ID)
	}

	options, _ := json.Marshal(map[string]any{"challenge": challenge, "allowed": allowed})
	writeJSON(w, http.StatusOK, client.SessionResponse{Options: options})
}

func (s *Server) handleLoginFinish(w http.ResponseWriter, r *http.Request) {
	username, ok := s.authenticate(w, r, auth.PurposeSignIn)
	if !ok {
		return
	}

	var req client.FinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	var artifact assertionArtifact
	if err := json.Unmarshal(req.Artifact, &artifact); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad artifact")
		return
	}

	if artifact.Challenge == "" || artifact.Challenge != s.store.takeChallenge(username) {
		writeError(w, http.StatusUnauthorized, client.CodeInvalidCredentials, "challenge mismatch")
		return
	}
	if !s.store.hasCredential(username, artifact.CredentialID) {
		writeError(w, http.StatusUnauthorized, client.CodeInvalidCredentials, "unknown credential")
		return
	}

	token, ok := s.issueToken(w, r, username, auth.PurposeSession, sessionTokenTTL)
	if !ok {
		return
	}
	s.log.Info(r.Context(), "signed in with credential", "username", username, "credential_id", artifact.CredentialID)
	writeJSON(w, http.StatusOK, client.SessionResponse{SessionToken: token})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, client.SessionResponse{Status: "OK"})
}

// handleRevoke terminates a user's sessions. Unauthenticated on purpose:
// this is the development lever for exercising the forced sign-out path.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req client.SubmitUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	s.store.revoke(req.Username)
	s.log.Info(r.Context(), "user revoked", "username", req.Username)
	writeJSON(w, http.StatusOK, client.SessionResponse{Status: "OK"})
}
