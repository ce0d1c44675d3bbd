package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmarchenko/signon/internal/client/models"
	"github.com/vmarchenko/signon/internal/common"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c := NewHTTPClient(ts.URL, 2*time.Second)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSubmitUsername_SendsPayloadAndReturnsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, RouteSubmitUsername, r.URL.Path)

		var req SubmitUsernameRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Username)

		_ = json.NewEncoder(w).Encode(SessionResponse{SessionToken: "tok1"})
	})

	token, err := c.SubmitUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)
}

func TestDo_SendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, common.SessionTokenScheme+" tok1", r.Header.Get(common.SessionTokenHeaderName))
		_ = json.NewEncoder(w).Encode(SessionResponse{})
	})

	_, _, err := c.ListCredentials(context.Background(), "tok1")
	require.NoError(t, err)
}

func TestListCredentials_DecodesOrderedList(t *testing.T) {
	want := []models.Credential{{ID: "a", PublicKey: "pk-a"}, {ID: "b", PublicKey: "pk-b"}}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(SessionResponse{Credentials: want, SessionToken: "tok2"})
	})

	creds, token, err := c.ListCredentials(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, want, creds)
	assert.Equal(t, "tok2", token)
}

func TestRemoveCredential_TargetsCredentialPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, RouteCredentials+"/c1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(SessionResponse{})
	})

	_, err := c.RemoveCredential(context.Background(), "tok1", "c1")
	require.NoError(t, err)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		wantErr error
	}{
		{name: "signed out code", status: http.StatusUnauthorized,
			body: ErrorResponse{Code: CodeSignedOut}, wantErr: ErrSignedOut},
		{name: "invalid credentials code", status: http.StatusUnauthorized,
			body: ErrorResponse{Code: CodeInvalidCredentials}, wantErr: ErrInvalidCredentials},
		{name: "bare 401", status: http.StatusUnauthorized,
			body: nil, wantErr: ErrSignedOut},
		{name: "server error", status: http.StatusInternalServerError,
			body: nil, wantErr: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if tt.body != nil {
					_ = json.NewEncoder(w).Encode(tt.body)
				}
			})

			_, err := c.SubmitPassword(context.Background(), "tok1", []byte("pw"))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDo_RetriesGatewayErrors(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(SessionResponse{SessionToken: "tok1"})
	})

	token, err := c.SubmitUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)
	assert.Equal(t, 3, attempts)
}

func TestDo_NoRetryOnRejection(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Code: CodeInvalidCredentials})
	})

	_, err := c.SubmitPassword(context.Background(), "tok1", []byte("pw"))
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, attempts, "rejections must not be retried")
}

func TestPing(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, RoutePing, r.URL.Path)
			_ = json.NewEncoder(w).Encode(SessionResponse{Status: "OK"})
		})
		require.NoError(t, c.Ping(context.Background()))
	})

	t.Run("unexpected status body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(SessionResponse{})
		})
		require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
	})
}
