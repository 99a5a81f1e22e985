package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"provider-sync/internal/models"
)

// maxResponseSize caps how much of a provider response is read
const maxResponseSize = 1 << 20

// Credentials are the OAuth client credentials stored per integration
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Endpoint locates a provider's OAuth and order APIs
type Endpoint struct {
	TokenURL   string
	APIBaseURL string
	Scope      string
}

// Client performs authenticated order actions against one provider
type Client interface {
	AccessToken(ctx context.Context, creds Credentials) (string, error)
	AcceptOrder(ctx context.Context, token, externalOrderID string) error
	CancelOrder(ctx context.Context, token, externalOrderID, reason string) error
}

// apiRequest describes a provider order call
type apiRequest struct {
	method string
	path   string
	body   interface{}
}

// routes builds the provider-specific requests for each action
type routes struct {
	accept func(externalOrderID string) apiRequest
	cancel func(externalOrderID, reason string) apiRequest
}

var providerRoutes = map[models.Provider]routes{
	models.ProviderUberEats: {
		accept: func(id string) apiRequest {
			return apiRequest{
				method: http.MethodPost,
				path:   "/v1/eats/orders/" + url.PathEscape(id) + "/accept_pos_order",
				body:   map[string]string{"reason": "accepted"},
			}
		},
		cancel: func(id, reason string) apiRequest {
			return apiRequest{
				method: http.MethodPost,
				path:   "/v1/eats/orders/" + url.PathEscape(id) + "/cancel",
				body:   map[string]string{"reason": "OTHER", "details": reason},
			}
		},
	},
	models.ProviderDoorDash: {
		accept: func(id string) apiRequest {
			return apiRequest{
				method: http.MethodPatch,
				path:   "/marketplace/api/v1/orders/" + url.PathEscape(id),
				body:   map[string]string{"order_status": "success"},
			}
		},
		cancel: func(id, reason string) apiRequest {
			return apiRequest{
				method: http.MethodPatch,
				path:   "/marketplace/api/v1/orders/" + url.PathEscape(id),
				body:   map[string]string{"order_status": "fail", "failure_reason": reason},
			}
		},
	},
}

// HTTPClient is the HTTP implementation of Client
type HTTPClient struct {
	provider   models.Provider
	endpoint   Endpoint
	routes     routes
	httpClient *http.Client
}

// NewHTTPClient creates a client for provider p with a request timeout
func NewHTTPClient(p models.Provider, endpoint Endpoint, timeout time.Duration) (*HTTPClient, error) {
	r, ok := providerRoutes[p]
	if !ok {
		return nil, fmt.Errorf("no API routes for provider %q", p)
	}
	return &HTTPClient{
		provider: p,
		endpoint: endpoint,
		routes:   r,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccessToken runs the OAuth client-credentials grant. Tokens are not cached.
func (c *HTTPClient) AccessToken(ctx context.Context, creds Credentials) (string, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return "", &models.ProviderAPIError{Provider: c.provider, Op: "token", Err: fmt.Errorf("missing client credentials")}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	if c.endpoint.Scope != "" {
		form.Set("scope", c.endpoint.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &models.ProviderAPIError{Provider: c.provider, Op: "token", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, "token")
	if err != nil {
		return "", err
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", &models.ProviderAPIError{Provider: c.provider, Op: "token", Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", &models.ProviderAPIError{Provider: c.provider, Op: "token", Err: fmt.Errorf("empty access token")}
	}
	return tok.AccessToken, nil
}

// AcceptOrder tells the provider the merchant accepted the order
func (c *HTTPClient) AcceptOrder(ctx context.Context, token, externalOrderID string) error {
	return c.call(ctx, token, "accept", c.routes.accept(externalOrderID))
}

// CancelOrder tells the provider the merchant cancelled the order
func (c *HTTPClient) CancelOrder(ctx context.Context, token, externalOrderID, reason string) error {
	return c.call(ctx, token, "cancel", c.routes.cancel(externalOrderID, reason))
}

func (c *HTTPClient) call(ctx context.Context, token, op string, r apiRequest) error {
	payload, err := json.Marshal(r.body)
	if err != nil {
		return &models.ProviderAPIError{Provider: c.provider, Op: op, Err: err}
	}

	endpoint := strings.TrimRight(c.endpoint.APIBaseURL, "/") + r.path
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &models.ProviderAPIError{Provider: c.provider, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req, op)
	return err
}

func (c *HTTPClient) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.ProviderAPIError{Provider: c.provider, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &models.ProviderAPIError{Provider: c.provider, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &models.ProviderAPIError{Provider: c.provider, Op: op, StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}
