package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/vmarchenko/signon/internal/client/models"
	"github.com/vmarchenko/signon/internal/common"
)

const (
	defaultRequestTimeout = 12 * time.Second
	transportRetries      = 2
	retryBaseDelay        = 100 * time.Millisecond
)

// HTTPClient is the JSON-over-HTTP implementation of Client.
//
// Transient transport failures (connection errors, gateway errors) are
// retried with a bounded fibonacci backoff. This is the only layer allowed
// to retry: the session manager never does.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

// NewHTTPClient builds a client for the given base URL, e.g.
// "http://127.0.0.1:8080". A zero timeout falls back to the default.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) SubmitUsername(ctx context.Context, username string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, RouteSubmitUsername, "", SubmitUsernameRequest{Username: username})
	if err != nil {
		return "", err
	}
	return resp.SessionToken, nil
}

func (c *HTTPClient) SubmitPassword(ctx context.Context, token string, password []byte) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, RouteSubmitPassword, token, SubmitPasswordRequest{Password: string(password)})
	if err != nil {
		return "", err
	}
	return resp.SessionToken, nil
}

func (c *HTTPClient) ListCredentials(ctx context.Context, token string) ([]models.Credential, string, error) {
	resp, err := c.do(ctx, http.MethodGet, RouteCredentials, token, nil)
	if err != nil {
		return nil, "", err
	}
	return resp.Credentials, resp.SessionToken, nil
}

func (c *HTTPClient) RemoveCredential(ctx context.Context, token string, credentialID string) (string, error) {
	resp, err := c.do(ctx, http.MethodDelete, RouteCredentials+"/"+credentialID, token, nil)
	if err != nil {
		return "", err
	}
	return resp.SessionToken, nil
}

func (c *HTTPClient) BeginRegistration(ctx context.Context, token string) (json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodPost, RouteRegisterBegin, token, nil)
	if err != nil {
		return nil, err
	}
	return resp.Options, nil
}

func (c *HTTPClient) FinishRegistration(ctx context.Context, token string, artifact json.RawMessage) (string, string, error) {
	resp, err := c.do(ctx, http.MethodPost, RouteRegisterFinish, token, FinishRequest{Artifact: artifact})
	if err != nil {
		return "", "", err
	}
	return resp.CredentialID, resp.SessionToken, nil
}

func (c *HTTPClient) BeginLogin(ctx context.Context, token string) (json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodPost, RouteLoginBegin, token, nil)
	if err != nil {
		return nil, err
	}
	return resp.Options, nil
}

func (c *HTTPClient) FinishLogin(ctx context.Context, token string, artifact json.RawMessage) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, RouteLoginFinish, token, FinishRequest{Artifact: artifact})
	if err != nil {
		return "", err
	}
	return resp.SessionToken, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, RoutePing, "", nil)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

// do performs one logical request. Body is marshalled once; every retry
// attempt gets a fresh reader.
func (c *HTTPClient) do(ctx context.Context, method, route, token string, body any) (*SessionResponse, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	var out SessionResponse

	backoff := retry.WithMaxRetries(transportRetries, retry.NewFibonacci(retryBaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(common.SessionTokenHeaderName, common.SessionTokenScheme+" "+token)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			if len(data) > 0 {
				if err := json.Unmarshal(data, &out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
			}
			return nil
		}

		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return retry.RetryableError(fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode))
		}

		return c.mapError(resp.StatusCode, data)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// mapError translates a terminal HTTP error into the package sentinels,
// preserving the three-way result contract.
func (c *HTTPClient) mapError(status int, body []byte) error {
	var er ErrorResponse
	_ = json.Unmarshal(body, &er)

	switch {
	case er.Code == CodeSignedOut:
		return ErrSignedOut
	case er.Code == CodeInvalidCredentials:
		return ErrInvalidCredentials
	case status == http.StatusUnauthorized:
		return ErrSignedOut
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	case er.Message != "":
		return fmt.Errorf("server rejected request: %s", er.Message)
	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}
