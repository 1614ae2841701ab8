// client.go implements the HTTP client for the directory's management API.
// Machine-to-machine authentication uses the OAuth2 client-credentials grant; the
// token source transparently refreshes the access token between requests.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/crewbase/crewbase/internal/config"
)

// Client talks to the identity directory's management API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	retryMax     int
	retryBackoff time.Duration
}

// APIError is a non-2xx response from the directory.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity directory: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("identity directory: status %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a directory client from configuration. The returned client
// applies the configured request timeout and retries transient failures with
// jittered exponential backoff.
func NewClient(cfg *config.IdentityConfig) *Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{"all"},
		EndpointParams: url.Values{
			"resource": {cfg.APIResource},
		},
	}

	httpClient := cc.Client(context.Background())
	httpClient.Timeout = cfg.Timeout

	return &Client{
		baseURL:      cfg.BaseURL,
		httpClient:   httpClient,
		retryMax:     cfg.RetryMax,
		retryBackoff: cfg.RetryBackoff,
	}
}

// newClientWithHTTPClient is used by tests to bypass the OAuth2 transport.
func newClientWithHTTPClient(baseURL string, httpClient *http.Client, retryMax int, retryBackoff time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		retryMax:     retryMax,
		retryBackoff: retryBackoff,
	}
}

// principalPayload is the directory's wire representation of a user.
type principalPayload struct {
	ID           string `json:"id"`
	PrimaryEmail string `json:"primaryEmail"`
	Profile      struct {
		GivenName  string `json:"givenName"`
		FamilyName string `json:"familyName"`
	} `json:"profile"`
}

// GetPrincipal resolves a principal by directory ID. A 404 yields (nil, nil).
func (c *Client) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	endpoint := fmt.Sprintf("%s/api/users/%s", c.baseURL, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("identity directory: create request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var payload principalPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("identity directory: decode user response: %w", err)
	}

	return &Principal{
		ID:        payload.ID,
		FirstName: payload.Profile.GivenName,
		LastName:  payload.Profile.FamilyName,
		Email:     payload.PrimaryEmail,
	}, nil
}

// MergeMetadata merges the partial metadata map into the user's metadata bag.
// The directory applies merge semantics server-side: keys not present in the
// request are preserved.
func (c *Client) MergeMetadata(ctx context.Context, id string, metadata map[string]any) error {
	endpoint := fmt.Sprintf("%s/api/users/%s/custom-data", c.baseURL, url.PathEscape(id))

	body, err := json.Marshal(map[string]any{"customData": metadata})
	if err != nil {
		return fmt.Errorf("identity directory: encode metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("identity directory: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doWithRetry(ctx, req, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// doWithRetry executes an HTTP request, retrying on retryable status codes
// (408, 429, 500, 502, 503, 504) and network errors with exponential backoff
// plus jitter. Waits respect context cancellation.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error
	backoff := c.retryBackoff

	attempts := c.retryMax
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("identity directory: %w", err)
			if !c.waitForRetry(ctx, attempt, attempts, backoff) {
				return nil, lastErr
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			lastErr = &APIError{StatusCode: resp.StatusCode}
			if !c.waitForRetry(ctx, attempt, attempts, backoff) {
				return nil, lastErr
			}
			backoff = nextBackoff(backoff)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// waitForRetry sleeps for the backoff duration unless this was the final attempt
// or the context is cancelled first.
func (c *Client) waitForRetry(ctx context.Context, attempt, attempts int, backoff time.Duration) bool {
	if attempt >= attempts-1 {
		return false
	}

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return 100 * time.Millisecond
	}
	jitter := time.Duration(rand.Int63n(int64(current/2) + 1))
	return current*2 + jitter
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
