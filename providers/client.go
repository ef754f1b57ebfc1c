package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-pushsync/core"
)

const (
	defaultRequestTimeout = 30 * time.Second

	maxResponseBodyBytes = int64(1 << 20)
)

// HTTPDoer abstracts the HTTP client so providers can be exercised without a
// network.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the shared transport every provider builds on. It speaks
// form-encoded OAuth2 at the descriptor's token endpoint and bearer-token
// JSON everywhere else, and classifies failures into the credential error
// taxonomy so callers never inspect HTTP status codes themselves.
type Client struct {
	descriptor core.ProviderDescriptor
	httpClient HTTPDoer
	timeout    time.Duration
	now        func() time.Time
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient HTTPDoer) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithNow(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(descriptor core.ProviderDescriptor, opts ...ClientOption) (*Client, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		descriptor: descriptor,
		timeout:    defaultRequestTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.timeout}
	}
	return client, nil
}

func (c *Client) Descriptor() core.ProviderDescriptor {
	if c == nil {
		return core.ProviderDescriptor{}
	}
	return c.descriptor
}

func (c *Client) Now() time.Time {
	if c == nil || c.now == nil {
		return time.Now()
	}
	return c.now()
}

// APIURL joins path segments onto the descriptor's API base, escaping each
// segment individually.
func (c *Client) APIURL(segments ...string) string {
	base := strings.TrimSuffix(c.descriptor.APIBaseURL, "/")
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		trimmed := strings.Trim(strings.TrimSpace(segment), "/")
		if trimmed == "" {
			continue
		}
		escaped := make([]string, 0, 2)
		for _, piece := range strings.Split(trimmed, "/") {
			escaped = append(escaped, url.PathEscape(piece))
		}
		parts = append(parts, strings.Join(escaped, "/"))
	}
	if len(parts) == 0 {
		return base
	}
	return base + "/" + strings.Join(parts, "/")
}

type tokenEndpointPayload struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	ExpiresIn        int64  `json:"expires_in"`
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCode swaps an authorization code for tokens at the descriptor's
// token endpoint.
func (c *Client) ExchangeCode(ctx context.Context, req core.ExchangeCodeRequest) (core.ProviderToken, error) {
	if c == nil {
		return core.ProviderToken{}, fmt.Errorf("providers: client is not configured")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.ProviderToken{}, core.NewValidationError("authorization code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI := strings.TrimSpace(req.RedirectURI); redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	payload, err := c.fetchToken(ctx, form)
	if err != nil {
		return core.ProviderToken{}, err
	}
	return c.tokenFromPayload(payload), nil
}

// RefreshToken trades a refresh secret for a fresh access secret. Providers
// that rotate refresh secrets return the successor in RefreshSecret; callers
// must persist it or the old secret dies with the next rotation.
func (c *Client) RefreshToken(ctx context.Context, req core.RefreshTokenRequest) (core.ProviderToken, error) {
	if c == nil {
		return core.ProviderToken{}, fmt.Errorf("providers: client is not configured")
	}
	refreshSecret := strings.TrimSpace(req.RefreshSecret)
	if refreshSecret == "" {
		return core.ProviderToken{}, core.NewReauthenticationRequiredError(
			fmt.Sprintf("provider %s has no refresh secret on record", c.descriptor.ID),
		)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshSecret)
	if len(c.descriptor.Scopes) > 0 {
		form.Set("scope", strings.Join(c.descriptor.Scopes, " "))
	}

	payload, err := c.fetchToken(ctx, form)
	if err != nil {
		return core.ProviderToken{}, err
	}

	token := c.tokenFromPayload(payload)
	if token.RefreshSecret == "" {
		token.RefreshSecret = refreshSecret
	}
	token.InstallationID = strings.TrimSpace(req.InstallationID)
	return token, nil
}

func (c *Client) tokenFromPayload(payload tokenEndpointPayload) core.ProviderToken {
	token := core.ProviderToken{
		AccessSecret:  strings.TrimSpace(payload.AccessToken),
		RefreshSecret: strings.TrimSpace(payload.RefreshToken),
	}
	if payload.ExpiresIn > 0 {
		token.ExpiresAt = c.Now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token
}

func (c *Client) fetchToken(ctx context.Context, form url.Values) (tokenEndpointPayload, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	form.Set("client_id", c.descriptor.ClientID)
	if c.descriptor.ClientSecret != "" {
		form.Set("client_secret", c.descriptor.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.descriptor.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, core.NewProviderTransientError(
			fmt.Sprintf("provider %s token request failed: %v", c.descriptor.ID, err),
		)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, core.NewProviderTransientError(
			fmt.Sprintf("provider %s token response read failed: %v", c.descriptor.ID, readErr),
		)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token response exceeds %d bytes", maxResponseBodyBytes)
	}

	var payload tokenEndpointPayload
	if len(bytes.TrimSpace(body)) > 0 {
		if parseErr := json.Unmarshal(body, &payload); parseErr != nil && response.StatusCode < 300 {
			return tokenEndpointPayload{}, fmt.Errorf("providers: decode token response: %w", parseErr)
		}
	}

	if err := c.classifyTokenFailure(response.StatusCode, payload); err != nil {
		return tokenEndpointPayload{}, err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, core.NewProviderTransientError(
			fmt.Sprintf("provider %s token response is missing an access token", c.descriptor.ID),
		)
	}
	return payload, nil
}

// classifyTokenFailure splits token endpoint failures into the two outcomes
// that matter downstream. A definitive rejection means the grant is dead and
// stored state must be purged; everything else keeps state untouched for a
// later retry.
func (c *Client) classifyTokenFailure(statusCode int, payload tokenEndpointPayload) error {
	if statusCode < 300 {
		return nil
	}

	detail := strings.TrimSpace(payload.ErrorDescription)
	if detail == "" {
		detail = strings.TrimSpace(payload.ErrorCode)
	}
	if detail == "" {
		detail = http.StatusText(statusCode)
	}

	errorCode := strings.TrimSpace(strings.ToLower(payload.ErrorCode))
	switch {
	case errorCode == "invalid_grant", errorCode == "unauthorized_client", errorCode == "invalid_client":
		return core.NewReauthenticationRequiredError(
			fmt.Sprintf("provider %s rejected the grant: %s", c.descriptor.ID, detail),
		)
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return core.NewReauthenticationRequiredError(
			fmt.Sprintf("provider %s rejected the grant (%d): %s", c.descriptor.ID, statusCode, detail),
		)
	default:
		return core.NewProviderTransientError(
			fmt.Sprintf("provider %s token endpoint returned %d: %s", c.descriptor.ID, statusCode, detail),
		)
	}
}

// APIResponse is the decoded outcome of one bearer-token API call.
type APIResponse struct {
	StatusCode int
	Body       []byte
}

func (r APIResponse) DecodeJSON(out any) error {
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("providers: empty response body")
	}
	return json.Unmarshal(r.Body, out)
}

// DoJSON performs one authenticated API call against the provider. Transport
// failures and 5xx answers come back as transient errors; everything else is
// returned to the caller for operation-specific classification.
func (c *Client) DoJSON(ctx context.Context, method string, requestURL string, accessSecret string, body any) (APIResponse, error) {
	if c == nil {
		return APIResponse{}, fmt.Errorf("providers: client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return APIResponse{}, fmt.Errorf("providers: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, requestURL, reader)
	if err != nil {
		return APIResponse{}, fmt.Errorf("providers: build api request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(accessSecret))

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return APIResponse{}, core.NewProviderTransientError(
			fmt.Sprintf("provider %s api request failed: %v", c.descriptor.ID, err),
		)
	}
	defer response.Body.Close()

	responseBody, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return APIResponse{}, core.NewProviderTransientError(
			fmt.Sprintf("provider %s api response read failed: %v", c.descriptor.ID, readErr),
		)
	}
	if int64(len(responseBody)) > maxResponseBodyBytes {
		return APIResponse{}, fmt.Errorf("providers: api response exceeds %d bytes", maxResponseBodyBytes)
	}

	if response.StatusCode >= http.StatusInternalServerError {
		return APIResponse{}, core.NewProviderTransientError(
			fmt.Sprintf("provider %s: %s %s returned %d", c.descriptor.ID, method, requestURL, response.StatusCode),
		)
	}

	return APIResponse{StatusCode: response.StatusCode, Body: responseBody}, nil
}

// ClassifySubscriptionFailure maps a non-success subscription API answer to
// the error a lifecycle caller expects. 401 means the access secret is dead.
func (c *Client) ClassifySubscriptionFailure(operation string, response APIResponse) error {
	if response.StatusCode < 300 {
		return nil
	}
	if response.StatusCode == http.StatusUnauthorized {
		return core.NewReauthenticationRequiredError(
			fmt.Sprintf("provider %s %s rejected the access secret", c.descriptor.ID, operation),
		)
	}
	detail := apiErrorDetail(response.Body)
	if detail == "" {
		detail = http.StatusText(response.StatusCode)
	}
	return core.NewSubscriptionError(
		fmt.Sprintf("provider %s %s returned %d: %s", c.descriptor.ID, operation, response.StatusCode, detail),
	)
}

// IsTimeout reports whether err carries a deadline or timeout condition.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

func apiErrorDetail(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var envelope struct {
		Error any `json:"error"`
		// SmartThings style
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	switch value := envelope.Error.(type) {
	case string:
		return strings.TrimSpace(value)
	case map[string]any:
		if message, ok := value["message"].(string); ok {
			return strings.TrimSpace(message)
		}
	}
	return strings.TrimSpace(envelope.Message)
}
