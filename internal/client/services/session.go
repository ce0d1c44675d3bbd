// This file defines the session service: the state machine that owns every
// mutation of the persisted sign-in session, orchestrates the durable store
// and the remote auth client, and republishes the current state.

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vmarchenko/signon/internal/client/client"
	"github.com/vmarchenko/signon/internal/client/models"
	"github.com/vmarchenko/signon/internal/client/repositories/session"
	"github.com/vmarchenko/signon/internal/logging"
)

var (
	// ErrNotInitialized is returned when an operation is invoked before
	// Initialize has published the first state.
	ErrNotInitialized = errors.New("session service not initialized")

	// ErrAlreadyInitialized is returned when Initialize runs twice.
	ErrAlreadyInitialized = errors.New("session service already initialized")

	// ErrPrecondition marks an operation invoked in the wrong state. It is
	// a failed no-op: nothing is persisted and nothing is published.
	ErrPrecondition = errors.New("operation not allowed in current state")

	// ErrNoProvider is returned by the credential convenience flows when no
	// CredentialProvider was configured.
	ErrNoProvider = errors.New("no credential provider configured")
)

// ForcedSignOutMessage is the error-state message published when the server
// rather than the user terminates the session.
const ForcedSignOutMessage = "Signed out by server"

// SessionService drives a user's progress through the sign-in flow.
//
// Contract:
//   - Initialize: restore state from the durable store, exactly once per
//     process, publishing before any other operation is accepted.
//   - SubmitUsername/SubmitPassword: advance the flow against the server.
//   - RefreshCredentials/ClearCredentials/RemoveCredential: reconcile the
//     registered credential list.
//   - SignOut: voluntary sign-out; always succeeds.
//   - RegisterRequest/RegisterResponse and SignInRequest/SignInResponse:
//     challenge/response pairs for public-key credentials; RegisterCredential
//     and SignInWithCredential chain them through the configured provider.
//   - IsSignedIn/CurrentUsername: pure queries, never publish.
//   - Subscribe/Current: observer access to published states.
//
// All methods honor context cancellation; a cancelled call never leaves a
// partially applied durable update behind.
type SessionService interface {
	Initialize(ctx context.Context) error
	SubmitUsername(ctx context.Context, username string) error
	SubmitPassword(ctx context.Context, password []byte) error
	RefreshCredentials(ctx context.Context) error
	ClearCredentials(ctx context.Context) error
	SignOut(ctx context.Context) error
	RemoveCredential(ctx context.Context, credentialID string) error
	Credentials(ctx context.Context) ([]models.Credential, error)
	IsSignedIn(ctx context.Context) (bool, error)
	CurrentUsername(ctx context.Context) (string, error)
	RegisterRequest(ctx context.Context) (json.RawMessage, error)
	RegisterResponse(ctx context.Context, artifact json.RawMessage) error
	SignInRequest(ctx context.Context) (json.RawMessage, error)
	SignInResponse(ctx context.Context, artifact json.RawMessage) error
	RegisterCredential(ctx context.Context) error
	SignInWithCredential(ctx context.Context) error
	Subscribe() (<-chan models.SignInState, func())
	Current() (models.SignInState, bool)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// sessionService is the concrete SessionService backed by a remote Client
// and a durable session repository. The mutex serializes every mutating
// operation so concurrent calls cannot interleave partial field writes.
type sessionService struct {
	client   client.Client
	repo     session.Repository
	provider models.CredentialProvider
	log      logging.Logger

	mu          sync.Mutex
	initialized bool
	states      *StateBroadcaster
}

// NewSessionService constructs a SessionService. provider may be nil when
// the credential flows are not used.
func NewSessionService(c client.Client, repo session.Repository, provider models.CredentialProvider, log logging.Logger) SessionService {
	return &sessionService{
		client:   c,
		repo:     repo,
		provider: provider,
		log:      log,
		states:   NewStateBroadcaster(),
	}
}

// readPersisted loads the username/token pair backing state derivation.
func (s *sessionService) readPersisted(ctx context.Context) (username, token string, err error) {
	u, err := s.repo.Get(ctx, session.KeyUsername)
	if err != nil {
		return "", "", fmt.Errorf("read username: %w", err)
	}
	t, err := s.repo.Get(ctx, session.KeySessionToken)
	if err != nil {
		return "", "", fmt.Errorf("read session token: %w", err)
	}
	return string(u), string(t), nil
}

func (s *sessionService) ensureInitialized() error {
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Initialize restores the persisted session and publishes the derived
// state. When the restored state is signed-in it also refreshes the
// credential list from the server. Runs exactly once per process.
func (s *sessionService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return ErrAlreadyInitialized
	}

	username, token, err := s.readPersisted(ctx)
	if err != nil {
		return err
	}

	s.initialized = true
	state := models.DeriveState(username, token)
	s.states.Publish(state)
	s.log.Info(ctx, "session restored", "state", state.String())

	if state.Phase == models.PhaseSignedIn {
		if err := s.refreshCredentialsLocked(ctx); err != nil {
			s.log.Warn(ctx, "initial credential refresh failed", "error", err)
		}
	}
	return nil
}

// SubmitUsername starts a new sign-in attempt. On success the username and
// the issued session token are persisted atomically and SigningIn is
// published.
func (s *sessionService) SubmitUsername(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	token, err := s.client.SubmitUsername(ctx, username)
	if err != nil {
		if errors.Is(err, client.ErrSignedOut) {
			return s.forceSignOutLocked(ctx)
		}
		return fmt.Errorf("submit username error: %w", err)
	}

	err = s.repo.Update(ctx, func(ctx context.Context, b session.Batch) error {
		if err := b.Set(ctx, session.KeyUsername, []byte(username)); err != nil {
			return err
		}
		if token != "" {
			return b.Set(ctx, session.KeySessionToken, []byte(token))
		}
		// A fresh attempt must not inherit a token from a previous one.
		return b.Delete(ctx, session.KeySessionToken)
	})
	if err != nil {
		return fmt.Errorf("persist username error: %w", err)
	}

	s.states.Publish(models.SigningIn(username))
	return nil
}

// SubmitPassword verifies the password for the pending sign-in. A rejected
// password clears username/token/credentials and publishes an error state:
// the flow must restart from username entry.
func (s *sessionService) SubmitPassword(ctx context.Context, password []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	username, token, err := s.readPersisted(ctx)
	if err != nil {
		return err
	}
	if username == "" || token == "" {
		s.log.Warn(ctx, "password submitted with no pending sign-in")
		return ErrPrecondition
	}

	newToken, err := s.client.SubmitPassword(ctx, token, password)
	switch {
	case errors.Is(err, client.ErrSignedOut):
		return s.forceSignOutLocked(ctx)

	case errors.Is(err, client.ErrInvalidCredentials):
		clearErr := s.repo.Update(ctx, func(ctx context.Context, b session.Batch) error {
			for _, k := range []string{session.KeyUsername, session.KeySessionToken, session.KeyCredentials} {
				if e := b.Delete(ctx, k); e != nil {
					return e
				}
			}
			return nil
		})
		if clearErr != nil {
			return fmt.Errorf("clear session error: %w", clearErr)
		}
		s.states.Publish(models.SignInError(err.Error()))
		return err

	case err != nil:
		return fmt.Errorf("submit password error: %w", err)
	}

	if newToken != "" {
		err = s.repo.Update(ctx, func(ctx context.Context, b session.Batch) error {
			return b.Set(ctx, session.KeySessionToken, []byte(newToken))
		})
		if err != nil {
			return fmt.Errorf("rotate token error: %w", err)
		}
	}

	s.states.Publish(models.SignedIn(username))

	if err := s.refreshCredentialsLocked(ctx); err != nil {
		s.log.Warn(ctx, "credential refresh after sign-in failed", "error", err)
	}
	return nil
}

// RefreshCredentials reconciles the locally cached credential list with the
// server.
func (s *sessionService) RefreshCredentials(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	return s.refreshCredentialsLocked(ctx)
}

func (s *sessionService) refreshCredentialsLocked(ctx context.Context) error {
	_, token, err := s.readPersisted(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrPrecondition
	}

	creds, newToken, err := s.client.ListCredentials(ctx, token)
	if err != nil {
		if errors.Is(err, client.ErrSignedOut) {
			return s.forceSignOutLocked(ctx)
		}
		return fmt.Errorf("list credentials error: %w", err)
	}

	encoded, err := models.EncodeCredentials(creds)
	if err != nil {
		return fmt.Errorf("encode credentials error: %w", err)
	}

	err = s.repo.Update(ctx, func(ctx context.Context, b session.Batch) error {
		if err := b.Set(ctx, session.KeyCredentials, encoded); err != nil {
			return err
		}
		if newToken != "" {
			return b.Set(ctx, session.KeySessionToken, []byte(newToken))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist credentials error: %w", err)
	}
	return nil
}

// ClearCredentials drops only the locally cached credential list and
// republishes SigningIn, forcing re-registration without discarding the
// session.
func (s *sessionService) ClearCredentials(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	username, _, err := s.readPersisted(ctx)
	if err != nil {
		return err
	}
	if username == "" {
		return ErrPrecondition
	}

	err = s.repo.Update(ctx, func(ctx context.Context, b session.Batch) error {
		return b.Delete(ctx, session.KeyCredentials)
	})
	if err != nil {
		return fmt.Errorf("clear credentials error: %w", err)
	}

	s.states.Publish(models.SigningIn(username))
	return nil
}

// SignOut clears the whole persisted session and publishes SignedOut. It
// always succeeds: a storage failure is logged but does not keep the user
// signed in.
func (s *sessionService) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	if err := s.repo.Clear(ctx); err != nil {
		s.log.Error(ctx, "failed to clear session on sign-out", "error", err)
	}
	s.states.Publish(models.SignedOut())
	return nil
}

// forceSignOutLocked clears the same fields as SignOut but publishes an
// error state so observers can tell the sign-out was involuntary. It
// returns client.ErrSignedOut for the caller to propagate.
func (s *sessionService) forceSignOutLocked(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		s.log.Error(ctx, "failed to clear session on forced sign-out", "error", err)
	}
	s.states.Publish(models.SignInError(ForcedSignOutMessage))
	s.log.Warn(ctx, "signed out by server")
	return client.ErrSignedOut
}

// RemoveCredential deletes one registered credential on the server and
// refreshes the local list. On transport failure nothing changes and the
// error is surfaced to the caller.
func (s *sessionService) RemoveCredential(ctx context.Context, credentialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	_, token, err := s.readPersisted(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrPrecondition
	}

	newToken, err := s.client.RemoveCredential(ctx, token, credentialID)
	if err != nil {
		if errors.Is(err, client.ErrSignedOut) {
			return s.forceSignOutLocked(ctx)
		}
		return fmt.Errorf("remove credential error: %w", err)
	}

	if newToken != "" {
		err = s.repo.Update(ctx, func(ctx context.Context, b session.Batch) error {
			return b.Set(ctx, session.KeySessionToken, []byte(newToken))
		})
		if err != nil {
			return fmt.Errorf("rotate token error: %w", err)
		}
	}

	return s.refreshCredentialsLocked(ctx)
}

// Credentials returns the locally cached credential list in registration
// order. Pure read, never publishes.
func (s *sessionService) Credentials(ctx context.Context) ([]models.Credential, error) {
	data, err := s.repo.Get(ctx, session.KeyCredentials)
	if err != nil {
		return nil, err
	}
	return models.DecodeCredentials(data)
}

// IsSignedIn reports whether both username and session token are present in
// durable storage. Pure read, never publishes.
func (s *sessionService) IsSignedIn(ctx context.Context) (bool, error) {
	username, token, err := s.readPersisted(ctx)
	if err != nil {
		return false, err
	}
	return username != "" && token != "", nil
}

// CurrentUsername returns the persisted username, empty when signed out.
// Pure read, never publishes.
func (s *sessionService) CurrentUsername(ctx context.Context) (string, error) {
	username, _, err := s.readPersisted(ctx)
	if err != nil {
		return "", err
	}
	return username, nil
}

// RegisterRequest obtains a registration challenge from the server.
// Callable only while signed in.
func (s *sessionService) RegisterRequest(ctx context.Context) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	token, err := s.requirePhaseLocked(ctx, models.PhaseSignedIn)
	if err != nil {
		return nil, err
	}

	options, err := s.client.BeginRegistration(ctx, token)
	if err != nil {
		if errors.Is(err, client.ErrSignedOut) {
			return nil, s.forceSignOutLocked(ctx)
		}
		return nil, fmt.Errorf("begin registration error: %w", err)
	}
	return options, nil
}

// RegisterResponse submits the provider-produced credential artifact. On
// success the new credential's id is remembered as this device's local
// credential and the list is refreshed.
func (s *sessionService) RegisterResponse(ctx context.Context, artifact json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	token, err := s.requirePhaseLocked(ctx, models.PhaseSignedIn)
	if err != nil {
		return err
	}

	credentialID, newToken, err := s.client.FinishRegistration(ctx, token, artifact)
	if err != nil {
		if errors.Is(err, client.ErrSignedOut) {
			return s.forceSignOutLocked(ctx)
		}
		return fmt.Errorf("finish registration error: %w", err)
	}

	if credentialID == "" {
		credentialID = uuid.NewString()
	}

	err = s.repo.Update(ctx, func(ctx context.Context, b session.Batch) error {
		if err := b.Set(ctx, session.KeyLocalCredentialID, []byte(credentialID)); err != nil {
			return err
		}
		if newToken != "" {
			return b.Set(ctx, session.KeySessionToken, []byte(newToken))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist local credential error: %w", err)
	}

	return s.refreshCredentialsLocked(ctx)
}

// SignInRequest obtains a credential sign-in challenge from the server.
// Callable only while a sign-in is pending.
func (s *sessionService) SignInRequest(ctx context.Context) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	token, err := s.requirePhaseLocked(ctx, models.PhaseSigningIn)
	if err != nil {
		return nil, err
	}

	options, err := s.client.BeginLogin(ctx, token)
	if err != nil {
		if errors.Is(err, client.ErrSignedOut) {
			return nil, s.forceSignOutLocked(ctx)
		}
		return nil, fmt.Errorf("begin login error: %w", err)
	}
	return options, nil
}

// SignInResponse completes credential sign-in with the provider-produced
// assertion artifact.
func (s *sessionService) SignInResponse(ctx context.Context, artifact json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	token, err := s.requirePhaseLocked(ctx, models.PhaseSigningIn)
	if err != nil {
		return err
	}

	username, _, err := s.readPersisted(ctx)
	if err != nil {
		return err
	}

	newToken, err := s.client.FinishLogin(ctx, token, artifact)
	switch {
	case errors.Is(err, client.ErrSignedOut):
		return s.forceSignOutLocked(ctx)
	case errors.Is(err, client.ErrInvalidCredentials):
		s.states.Publish(models.SignInError(err.Error()))
		return err
	case err != nil:
		return fmt.Errorf("finish login error: %w", err)
	}

	if newToken != "" {
		err = s.repo.Update(ctx, func(ctx context.Context, b session.Batch) error {
			return b.Set(ctx, session.KeySessionToken, []byte(newToken))
		})
		if err != nil {
			return fmt.Errorf("rotate token error: %w", err)
		}
	}

	s.states.Publish(models.SignedIn(username))

	if err := s.refreshCredentialsLocked(ctx); err != nil {
		s.log.Warn(ctx, "credential refresh after sign-in failed", "error", err)
	}
	return nil
}

// RegisterCredential chains RegisterRequest → provider → RegisterResponse.
func (s *sessionService) RegisterCredential(ctx context.Context) error {
	if s.provider == nil {
		return ErrNoProvider
	}

	options, err := s.RegisterRequest(ctx)
	if err != nil {
		return err
	}

	artifact, err := s.provider.Create(ctx, options)
	if err != nil {
		return fmt.Errorf("credential provider error: %w", err)
	}

	return s.RegisterResponse(ctx, artifact)
}

// SignInWithCredential chains SignInRequest → provider → SignInResponse.
func (s *sessionService) SignInWithCredential(ctx context.Context) error {
	if s.provider == nil {
		return ErrNoProvider
	}

	options, err := s.SignInRequest(ctx)
	if err != nil {
		return err
	}

	artifact, err := s.provider.Assert(ctx, options)
	if err != nil {
		return fmt.Errorf("credential provider error: %w", err)
	}

	return s.SignInResponse(ctx, artifact)
}

// requirePhaseLocked validates the last published phase and returns the
// stored token. A mismatch is a failed no-op reported as ErrPrecondition.
func (s *sessionService) requirePhaseLocked(ctx context.Context, want models.Phase) (string, error) {
	current, ok := s.states.Current()
	if !ok || current.Phase != want {
		s.log.Warn(ctx, "operation invoked in wrong state", "want", string(want), "got", current.String())
		return "", ErrPrecondition
	}
	_, token, err := s.readPersisted(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrPrecondition
	}
	return token, nil
}

// Subscribe attaches an observer; see StateBroadcaster for semantics.
func (s *sessionService) Subscribe() (<-chan models.SignInState, func()) {
	return s.states.Subscribe()
}

// Current returns the latest published state.
func (s *sessionService) Current() (models.SignInState, bool) {
	return s.states.Current()
}

// Ping probes server reachability through the underlying client.
func (s *sessionService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close releases resources held by the underlying client.
func (s *sessionService) Close(ctx context.Context) error {
	return s.client.Close()
}
