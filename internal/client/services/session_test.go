package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmarchenko/signon/internal/client/client"
	"github.com/vmarchenko/signon/internal/client/models"
	"github.com/vmarchenko/signon/internal/client/repositories/session"
	"github.com/vmarchenko/signon/internal/logging"

	_ "modernc.org/sqlite"
)

// ---- helpers ----

func setupRepo(t *testing.T) session.Repository {
	t.Helper()
	db, err := sql.Open("sqlite", "file:sessionsvc?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS session (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
DELETE FROM session;
`)
	require.NoError(t, err)
	return session.NewSQLiteRepository(db)
}

func seedField(t *testing.T, repo session.Repository, k string, v []byte) {
	t.Helper()
	require.NoError(t, repo.Update(context.Background(), func(ctx context.Context, b session.Batch) error {
		return b.Set(ctx, k, v)
	}))
}

func getField(t *testing.T, repo session.Repository, k string) []byte {
	t.Helper()
	v, err := repo.Get(context.Background(), k)
	require.NoError(t, err)
	return v
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.Default())
}

// ---- fake client ----

// fakeClient implements client.Client for SessionService unit tests.
type fakeClient struct {
	SubmitUsernameTok string
	SubmitUsernameErr error

	SubmitPasswordTok string
	SubmitPasswordErr error

	ListCreds []models.Credential
	ListTok   string
	ListErr   error

	RemoveTok string
	RemoveErr error

	BeginRegOpts json.RawMessage
	BeginRegErr  error

	FinishRegID  string
	FinishRegTok string
	FinishRegErr error

	BeginLoginOpts json.RawMessage
	BeginLoginErr  error

	FinishLoginTok string
	FinishLoginErr error

	PingErr  error
	CloseErr error

	// captured arguments
	LastUsername      string
	LastPasswordToken string
	LastPassword      []byte
	LastListToken     string
	LastRemoveToken   string
	LastRemoveID      string
	LastFinishRegArt  json.RawMessage
	ListCalls         int
}

func (f *fakeClient) Close() error { return f.CloseErr }

func (f *fakeClient) SubmitUsername(ctx context.Context, username string) (string, error) {
	f.LastUsername = username
	return f.SubmitUsernameTok, f.SubmitUsernameErr
}

func (f *fakeClient) SubmitPassword(ctx context.Context, token string, password []byte) (string, error) {
	f.LastPasswordToken = token
	f.LastPassword = append([]byte(nil), password...)
	return f.SubmitPasswordTok, f.SubmitPasswordErr
}

func (f *fakeClient) ListCredentials(ctx context.Context, token string) ([]models.Credential, string, error) {
	f.ListCalls++
	f.LastListToken = token
	return f.ListCreds, f.ListTok, f.ListErr
}

func (f *fakeClient) RemoveCredential(ctx context.Context, token string, credentialID string) (string, error) {
	f.LastRemoveToken = token
	f.LastRemoveID = credentialID
	return f.RemoveTok, f.RemoveErr
}

func (f *fakeClient) BeginRegistration(ctx context.Context, token string) (json.RawMessage, error) {
	return f.BeginRegOpts, f.BeginRegErr
}

func (f *fakeClient) FinishRegistration(ctx context.Context, token string, artifact json.RawMessage) (string, string, error) {
	f.LastFinishRegArt = append(json.RawMessage(nil), artifact...)
	return f.FinishRegID, f.FinishRegTok, f.FinishRegErr
}

func (f *fakeClient) BeginLogin(ctx context.Context, token string) (json.RawMessage, error) {
	return f.BeginLoginOpts, f.BeginLoginErr
}

func (f *fakeClient) FinishLogin(ctx context.Context, token string, artifact json.RawMessage) (string, error) {
	return f.FinishLoginTok, f.FinishLoginErr
}

func (f *fakeClient) Ping(ctx context.Context) error { return f.PingErr }

// ---- fake provider ----

type fakeProvider struct {
	CreateRet json.RawMessage
	CreateErr error
	AssertRet json.RawMessage
	AssertErr error

	LastCreateOpts json.RawMessage
	LastAssertOpts json.RawMessage
}

func (f *fakeProvider) Create(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	f.LastCreateOpts = append(json.RawMessage(nil), options...)
	return f.CreateRet, f.CreateErr
}

func (f *fakeProvider) Assert(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	f.LastAssertOpts = append(json.RawMessage(nil), options...)
	return f.AssertRet, f.AssertErr
}

func newService(t *testing.T, fc *fakeClient, fp models.CredentialProvider) (SessionService, session.Repository) {
	t.Helper()
	repo := setupRepo(t)
	return NewSessionService(fc, repo, fp, testLogger()), repo
}

func currentState(t *testing.T, svc SessionService) models.SignInState {
	t.Helper()
	state, ok := svc.Current()
	require.True(t, ok, "expected a published state")
	return state
}

// ---- initialize ----

func TestInitialize_EmptyStore_SignedOut(t *testing.T) {
	svc, _ := newService(t, &fakeClient{}, nil)

	require.NoError(t, svc.Initialize(context.Background()))
	require.Equal(t, models.SignedOut(), currentState(t, svc))
}

func TestInitialize_UsernameOnly_SigningIn(t *testing.T) {
	fc := &fakeClient{}
	svc, repo := newService(t, fc, nil)
	seedField(t, repo, session.KeyUsername, []byte("alice"))

	require.NoError(t, svc.Initialize(context.Background()))
	require.Equal(t, models.SigningIn("alice"), currentState(t, svc))
	require.Zero(t, fc.ListCalls, "no credential refresh unless signed in")
}

func TestInitialize_UsernameAndToken_SignedInAndRefreshes(t *testing.T) {
	fc := &fakeClient{ListCreds: []models.Credential{{ID: "c1", PublicKey: "pk1"}}}
	svc, repo := newService(t, fc, nil)
	seedField(t, repo, session.KeyUsername, []byte("alice"))
	seedField(t, repo, session.KeySessionToken, []byte("tok1"))

	require.NoError(t, svc.Initialize(context.Background()))
	require.Equal(t, models.SignedIn("alice"), currentState(t, svc))

	require.Equal(t, 1, fc.ListCalls)
	require.Equal(t, "tok1", fc.LastListToken)

	creds, err := models.DecodeCredentials(getField(t, repo, session.KeyCredentials))
	require.NoError(t, err)
	require.Equal(t, fc.ListCreds, creds)
}

func TestInitialize_Twice_Fails(t *testing.T) {
	svc, _ := newService(t, &fakeClient{}, nil)

	require.NoError(t, svc.Initialize(context.Background()))
	require.ErrorIs(t, svc.Initialize(context.Background()), ErrAlreadyInitialized)
}

func TestOperations_BeforeInitialize_Rejected(t *testing.T) {
	svc, _ := newService(t, &fakeClient{}, nil)
	ctx := context.Background()

	require.ErrorIs(t, svc.SubmitUsername(ctx, "alice"), ErrNotInitialized)
	require.ErrorIs(t, svc.SubmitPassword(ctx, []byte("p")), ErrNotInitialized)
	require.ErrorIs(t, svc.RefreshCredentials(ctx), ErrNotInitialized)
	require.ErrorIs(t, svc.SignOut(ctx), ErrNotInitialized)
	require.ErrorIs(t, svc.RemoveCredential(ctx, "c1"), ErrNotInitialized)
}

// ---- submit username ----

func TestSubmitUsername_Success_PersistsAndPublishes(t *testing.T) {
	fc := &fakeClient{SubmitUsernameTok: "tok1"}
	svc, repo := newService(t, fc, nil)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	require.NoError(t, svc.SubmitUsername(ctx, "alice"))

	require.Equal(t, "alice", fc.LastUsername)
	require.Equal(t, []byte("alice"), getField(t, repo, session.KeyUsername))
	require.Equal(t, []byte("tok1"), getField(t, repo, session.KeySessionToken))
	require.Equal(t, models.SigningIn("alice"), currentState(t, svc))
}

func TestSubmitUsername_TransportFailure_NoMutation(t *testing.T) {
	fc := &fakeClient{SubmitUsernameErr: client.ErrUnavailable}
	svc, repo := newService(t, fc, nil)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	err := svc.SubmitUsername(ctx, "alice")
	require.ErrorIs(t, err, client.ErrUnavailable)

	require.Nil(t, getField(t, repo, session.KeyUsername))
	require.Equal(t, models.SignedOut(), currentState(t, svc))
}

func TestSubmitUsername_SignedOutFromServer_ForcedSignOut(t *testing.T) {
	fc := &fakeClient{SubmitUsernameErr: client.ErrSignedOut}
	svc, repo := newService(t, fc, nil)
	ctx := context.Background()
	seedField(t, repo, session.KeyUsername, []byte("stale"))
	require.NoError(t, svc.Initialize(ctx))

	err := svc.SubmitUsername(ctx, "alice")
	require.ErrorIs(t, err, client.ErrSignedOut)

	require.Nil(t, getField(t, repo, session.KeyUsername))
	require.Equal(t, models.SignInError(ForcedSignOutMessage), currentState(t, svc))
}

// ---- submit password ----

func signingInService(t *testing.T, fc *fakeClient) (SessionService, session.Repository) {
	t.Helper()
	svc, repo := newService(t, fc, nil)
	ctx := context.Background()
	seedField(t, repo, session.KeyUsername, []byte("alice"))
	// Seeding only the username keeps Initialize from refreshing credentials.
	require.NoError(t, svc.Initialize(ctx))
	seedField(t, repo, session.KeySessionToken, []byte("tok1"))
	return svc, repo
}

func TestSubmitPassword_NoPendingSignIn_PreconditionNoOp(t *testing.T) {
	svc, _ := newService(t, &fakeClient{}, nil)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	require.ErrorIs(t, svc.SubmitPassword(ctx, []byte("p")), ErrPrecondition)
	require.Equal(t, models.SignedOut(), currentState(t, svc), "precondition failure must not publish")
}

func TestSubmitPassword_Correct_RotatesTokenSignsInAndRefreshes(t *testing.T) {
	fc := &fakeClient{
		SubmitPasswordTok: "tok2",
		ListCreds:         []models.Credential{{ID: "c1", PublicKey: "pk1"}},
	}
	svc, repo := signingInService(t, fc)
	ctx := context.Background()

	require.NoError(t, svc.SubmitPassword(ctx, []byte("correct")))

	require.Equal(t, "tok1", fc.LastPasswordToken)
	require.Equal(t, []byte("correct"), fc.LastPassword)
	require.Equal(t, []byte("tok2"), getField(t, repo, session.KeySessionToken), "token must rotate")
	require.Equal(t, models.SignedIn("alice"), currentState(t, svc))

	require.Equal(t, 1, fc.ListCalls)
	require.Equal(t, "tok2", fc.LastListToken, "refresh must use the rotated token")

	creds, err := models.DecodeCredentials(getField(t, repo, session.KeyCredentials))
	require.NoError(t, err)
	require.Equal(t, []models.Credential{{ID: "c1", PublicKey: "pk1"}}, creds)
}

func TestSubmitPassword_Invalid_ClearsAttemptAndPublishesError(t *testing.T) {
	fc := &fakeClient{SubmitPasswordErr: client.ErrInvalidCredentials}
	svc, repo := signingInService(t, fc)
	ctx := context.Background()
	seedField(t, repo, session.KeyCredentials, []byte(`[{"id":"c1"}]`))
	seedField(t, repo, session.KeyLocalCredentialID, []byte("local-1"))

	err := svc.SubmitPassword(ctx, []byte("wrong"))
	require.ErrorIs(t, err, client.ErrInvalidCredentials)

	require.Nil(t, getField(t, repo, session.KeyUsername))
	require.Nil(t, getField(t, repo, session.KeySessionToken))
	require.Nil(t, getField(t, repo, session.KeyCredentials))
	require.Equal(t, []byte("local-1"), getField(t, repo, session.KeyLocalCredentialID),
		"local credential id survives a failed attempt")

	state := currentState(t, svc)
	require.Equal(t, models.PhaseError, state.Phase)
	require.NotEqual(t, ForcedSignOutMessage, state.Message)
}

func TestSubmitPassword_TransportFailure_NoMutation(t *testing.T) {
	fc := &fakeClient{SubmitPasswordErr: client.ErrUnavailable}
	svc, repo := signingInService(t, fc)
	ctx := context.Background()

	err := svc.SubmitPassword(ctx, []byte("p"))
	require.ErrorIs(t, err, client.ErrUnavailable)

	require.Equal(t, []byte("alice"), getField(t, repo, session.KeyUsername))
	require.Equal(t, []byte("tok1"), getField(t, repo, session.KeySessionToken))
	require.Equal(t, models.SigningIn("alice"), currentState(t, svc))
}

// ---- credentials ----

func TestRefreshCredentials_PreservesRegistrationOrder(t *testing.T) {
	want := []models.Credential{
		{ID: "a", PublicKey: "pk-a"},
		{ID: "b", PublicKey: "pk-b"},
		{ID: "c", PublicKey: "pk-c"},
	}
	fc := &fakeClient{ListCreds: want}
	svc, _ := signingInService(t, fc)
	ctx := context.Background()

	require.NoError(t, svc.RefreshCredentials(ctx))

	got, err := svc.Credentials(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got, "persistence must keep registration order")
}

func TestRefreshCredentials_RotatesTokenWhenProvided(t *testing.T) {
	fc := &fakeClient{ListTok: "tok9"}
	svc, repo := signingInService(t, fc)
	ctx := context.Background()

	require.NoError(t, svc.RefreshCredentials(ctx))
	require.Equal(t, []byte("tok9"), getField(t, repo, session.KeySessionToken))
}

func TestClearCredentials_RemovesOnlyCredentialsAndPublishesSigningIn(t *testing.T) {
	fc := &fakeClient{ListCreds: []models.Credential{{ID: "c1", PublicKey: "pk1"}}}
	svc, repo := newService(t, fc, nil)
	ctx := context.Background()
	seedField(t, repo, session.KeyUsername, []byte("alice"))
	seedField(t, repo, session.KeySessionToken, []byte("tok1"))
	require.NoError(t, svc.Initialize(ctx))

	require.NoError(t, svc.ClearCredentials(ctx))

	require.Nil(t, getField(t, repo, session.KeyCredentials))
	require.Equal(t, []byte("alice"), getField(t, repo, session.KeyUsername), "username unchanged")
	require.Equal(t, []byte("tok1"), getField(t, repo, session.KeySessionToken), "token unchanged")
	require.Equal(t, models.SigningIn("alice"), currentState(t, svc))
}

func TestRemoveCredential_Success_Refreshes(t *testing.T) {
	fc := &fakeClient{ListCreds: []models.Credential{{ID: "c2", PublicKey: "pk2"}}}
	svc, _ := signingInService(t, fc)
	ctx := context.Background()

	require.NoError(t, svc.RemoveCredential(ctx, "c1"))

	require.Equal(t, "tok1", fc.LastRemoveToken)
	require.Equal(t, "c1", fc.LastRemoveID)

	got, err := svc.Credentials(ctx)
	require.NoError(t, err)
	require.Equal(t, fc.ListCreds, got)
}

func TestRemoveCredential_SignedOutFromServer_ClearsEverything(t *testing.T) {
	fc := &fakeClient{RemoveErr: client.ErrSignedOut}
	svc, repo := signingInService(t, fc)
	ctx := context.Background()
	seedField(t, repo, session.KeyCredentials, []byte(`[{"id":"c1"}]`))
	seedField(t, repo, session.KeyLocalCredentialID, []byte("local-1"))

	err := svc.RemoveCredential(ctx, "c1")
	require.ErrorIs(t, err, client.ErrSignedOut)

	for _, k := range []string{session.KeyUsername, session.KeySessionToken, session.KeyCredentials, session.KeyLocalCredentialID} {
		require.Nil(t, getField(t, repo, k), "field %s must be cleared", k)
	}
	require.Equal(t, models.SignInError(ForcedSignOutMessage), currentState(t, svc),
		"forced sign-out publishes an error state, never SignedOut")
}

func TestRemoveCredential_TransportFailure_NoTransition(t *testing.T) {
	fc := &fakeClient{RemoveErr: client.ErrUnavailable}
	svc, repo := signingInService(t, fc)
	ctx := context.Background()

	err := svc.RemoveCredential(ctx, "c1")
	require.ErrorIs(t, err, client.ErrUnavailable)

	require.Equal(t, []byte("alice"), getField(t, repo, session.KeyUsername))
	require.Equal(t, models.SigningIn("alice"), currentState(t, svc))
}

// ---- sign out ----

func TestSignOut_ClearsStoreAndPublishesSignedOut(t *testing.T) {
	fc := &fakeClient{}
	svc, repo := signingInService(t, fc)
	ctx := context.Background()
	seedField(t, repo, session.KeyCredentials, []byte(`[{"id":"c1"}]`))

	require.NoError(t, svc.SignOut(ctx))

	for _, k := range []string{session.KeyUsername, session.KeySessionToken, session.KeyCredentials, session.KeyLocalCredentialID} {
		require.Nil(t, getField(t, repo, k))
	}
	require.Equal(t, models.SignedOut(), currentState(t, svc))
}

func TestSignOut_ThenInitialize_YieldsSignedOut(t *testing.T) {
	fc := &fakeClient{}
	svc, repo := signingInService(t, fc)
	ctx := context.Background()

	require.NoError(t, svc.SignOut(ctx))

	// A fresh process restores from the same store.
	svc2 := NewSessionService(fc, repo, nil, testLogger())
	require.NoError(t, svc2.Initialize(ctx))
	require.Equal(t, models.SignedOut(), currentState(t, svc2))
}

// ---- queries ----

func TestQueries_PureReads(t *testing.T) {
	fc := &fakeClient{}
	svc, repo := newService(t, fc, nil)
	ctx := context.Background()

	signedIn, err := svc.IsSignedIn(ctx)
	require.NoError(t, err)
	require.False(t, signedIn)

	seedField(t, repo, session.KeyUsername, []byte("alice"))
	seedField(t, repo, session.KeySessionToken, []byte("tok1"))

	signedIn, err = svc.IsSignedIn(ctx)
	require.NoError(t, err)
	require.True(t, signedIn)

	name, err := svc.CurrentUsername(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", name)

	_, published := svc.Current()
	require.False(t, published, "queries must never publish")
}

// ---- credential registration / assertion flows ----

func signedInService(t *testing.T, fc *fakeClient, fp models.CredentialProvider) (SessionService, session.Repository) {
	t.Helper()
	svc, repo := newService(t, fc, fp)
	ctx := context.Background()
	seedField(t, repo, session.KeyUsername, []byte("alice"))
	seedField(t, repo, session.KeySessionToken, []byte("tok1"))
	require.NoError(t, svc.Initialize(ctx))
	return svc, repo
}

func TestRegisterRequest_RequiresSignedIn(t *testing.T) {
	fc := &fakeClient{}
	svc, _ := newService(t, fc, nil)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	_, err := svc.RegisterRequest(ctx)
	require.ErrorIs(t, err, ErrPrecondition)
}

func TestRegisterCredential_FullChain(t *testing.T) {
	options := json.RawMessage(`{"challenge":"abc"}`)
	artifact := json.RawMessage(`{"attestation":"xyz"}`)
	fc := &fakeClient{
		BeginRegOpts: options,
		FinishRegID:  "cred-42",
		ListCreds:    []models.Credential{{ID: "cred-42", PublicKey: "pk42"}},
	}
	fp := &fakeProvider{CreateRet: artifact}
	svc, repo := signedInService(t, fc, fp)
	ctx := context.Background()

	require.NoError(t, svc.RegisterCredential(ctx))

	require.JSONEq(t, string(options), string(fp.LastCreateOpts))
	require.JSONEq(t, string(artifact), string(fc.LastFinishRegArt))
	require.Equal(t, []byte("cred-42"), getField(t, repo, session.KeyLocalCredentialID))

	got, err := svc.Credentials(ctx)
	require.NoError(t, err)
	require.Equal(t, fc.ListCreds, got)
}

func TestRegisterCredential_NoProvider(t *testing.T) {
	fc := &fakeClient{}
	svc, _ := signedInService(t, fc, nil)

	require.ErrorIs(t, svc.RegisterCredential(context.Background()), ErrNoProvider)
}

func TestRegisterResponse_AssignsLocalIDWhenServerOmitsIt(t *testing.T) {
	fc := &fakeClient{}
	svc, repo := signedInService(t, fc, nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterResponse(ctx, json.RawMessage(`{}`)))

	id := getField(t, repo, session.KeyLocalCredentialID)
	require.NotEmpty(t, id, "a local identifier must be generated")
}

func TestSignInWithCredential_CompletesSignIn(t *testing.T) {
	fc := &fakeClient{
		BeginLoginOpts: json.RawMessage(`{"challenge":"def"}`),
		FinishLoginTok: "tok3",
	}
	fp := &fakeProvider{AssertRet: json.RawMessage(`{"assertion":"sig"}`)}
	svc, repo := newService(t, fc, fp)
	ctx := context.Background()
	seedField(t, repo, session.KeyUsername, []byte("alice"))
	require.NoError(t, svc.Initialize(ctx))
	seedField(t, repo, session.KeySessionToken, []byte("tok1"))

	require.NoError(t, svc.SignInWithCredential(ctx))

	require.Equal(t, []byte("tok3"), getField(t, repo, session.KeySessionToken))
	require.Equal(t, models.SignedIn("alice"), currentState(t, svc))
}

func TestSignInRequest_RequiresSigningIn(t *testing.T) {
	fc := &fakeClient{}
	svc, _ := signedInService(t, fc, nil)

	_, err := svc.SignInRequest(context.Background())
	require.ErrorIs(t, err, ErrPrecondition)
}
