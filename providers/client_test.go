package providers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-pushsync/core"
	"github.com/goliatone/go-pushsync/providers"
	"github.com/goliatone/go-pushsync/providers/devkit"
)

func testDescriptor() core.ProviderDescriptor {
	return core.ProviderDescriptor{
		ID:                      "acme",
		TokenURL:                "https://auth.acme.example.com/token",
		APIBaseURL:              "https://api.acme.example.com/v1",
		ClientID:                "client-1",
		ClientSecret:            "client-secret-1",
		Scopes:                  []string{"push.read", "push.manage"},
		MaxSubscriptionLifetime: 24 * time.Hour,
		RefreshBufferWindow:     2 * time.Hour,
	}
}

func newTestClient(t *testing.T, doer providers.HTTPDoer) *providers.Client {
	t.Helper()
	client, err := providers.NewClient(
		testDescriptor(),
		providers.WithHTTPClient(doer),
		providers.WithNow(func() time.Time {
			return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClient_ExchangeCode_SendsFormAndDecodesToken(t *testing.T) {
	doer := devkit.NewFakeDoer(devkit.Script{
		StatusCode: http.StatusOK,
		Body:       `{"access_token":"access-1","refresh_token":"refresh-1","expires_in":3600}`,
	})
	client := newTestClient(t, doer)

	token, err := client.ExchangeCode(context.Background(), core.ExchangeCodeRequest{
		Code:        "auth-code-1",
		RedirectURI: "https://push.example.com/oauth/callback",
	})
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if token.AccessSecret != "access-1" || token.RefreshSecret != "refresh-1" {
		t.Fatalf("unexpected token: %+v", token)
	}
	want := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if !token.ExpiresAt.Equal(want) {
		t.Fatalf("expires at = %v, want %v", token.ExpiresAt, want)
	}

	requests := doer.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests))
	}
	request := requests[0]
	if request.Method != http.MethodPost {
		t.Fatalf("method = %s", request.Method)
	}
	if request.URL != "https://auth.acme.example.com/token" {
		t.Fatalf("url = %s", request.URL)
	}
	form, parseErr := url.ParseQuery(string(request.Body))
	if parseErr != nil {
		t.Fatalf("parse form: %v", parseErr)
	}
	if form.Get("grant_type") != "authorization_code" {
		t.Fatalf("grant_type = %q", form.Get("grant_type"))
	}
	if form.Get("code") != "auth-code-1" {
		t.Fatalf("code = %q", form.Get("code"))
	}
	if form.Get("client_id") != "client-1" || form.Get("client_secret") != "client-secret-1" {
		t.Fatalf("client credentials missing from form: %v", form)
	}
	if form.Get("redirect_uri") != "https://push.example.com/oauth/callback" {
		t.Fatalf("redirect_uri = %q", form.Get("redirect_uri"))
	}
}

func TestClient_RefreshToken_KeepsSecretWhenProviderOmitsIt(t *testing.T) {
	doer := devkit.NewFakeDoer(devkit.Script{
		StatusCode: http.StatusOK,
		Body:       `{"access_token":"access-2","expires_in":1800}`,
	})
	client := newTestClient(t, doer)

	token, err := client.RefreshToken(context.Background(), core.RefreshTokenRequest{
		RefreshSecret:  "refresh-keep",
		InstallationID: "install-1",
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if token.AccessSecret != "access-2" {
		t.Fatalf("access secret = %q", token.AccessSecret)
	}
	if token.RefreshSecret != "refresh-keep" {
		t.Fatalf("refresh secret = %q, want preserved original", token.RefreshSecret)
	}
	if token.InstallationID != "install-1" {
		t.Fatalf("installation id = %q", token.InstallationID)
	}

	form, parseErr := url.ParseQuery(string(doer.Requests()[0].Body))
	if parseErr != nil {
		t.Fatalf("parse form: %v", parseErr)
	}
	if form.Get("grant_type") != "refresh_token" {
		t.Fatalf("grant_type = %q", form.Get("grant_type"))
	}
	if form.Get("refresh_token") != "refresh-keep" {
		t.Fatalf("refresh_token = %q", form.Get("refresh_token"))
	}
	if form.Get("scope") != "push.read push.manage" {
		t.Fatalf("scope = %q", form.Get("scope"))
	}
}

func TestClient_RefreshToken_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		script  devkit.Script
		isFatal bool
	}{
		{
			name: "invalid grant is a definitive rejection",
			script: devkit.Script{
				StatusCode: http.StatusBadRequest,
				Body:       `{"error":"invalid_grant","error_description":"Token has been revoked."}`,
			},
			isFatal: true,
		},
		{
			name: "unauthorized status without error code is a rejection",
			script: devkit.Script{
				StatusCode: http.StatusUnauthorized,
				Body:       `{}`,
			},
			isFatal: true,
		},
		{
			name: "server error is transient",
			script: devkit.Script{
				StatusCode: http.StatusBadGateway,
				Body:       `upstream unavailable`,
			},
			isFatal: false,
		},
		{
			name:    "network failure is transient",
			script:  devkit.Script{Err: fmt.Errorf("dial tcp: connection refused")},
			isFatal: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, devkit.NewFakeDoer(tc.script))
			_, err := client.RefreshToken(context.Background(), core.RefreshTokenRequest{
				RefreshSecret: "refresh-1",
			})
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.isFatal {
				if !core.IsReauthenticationRequired(err) {
					t.Fatalf("expected reauthentication error, got %v", err)
				}
			} else if !core.IsTransient(err) {
				t.Fatalf("expected transient error, got %v", err)
			}
		})
	}
}

func TestClient_RefreshToken_WithoutSecretIsFatal(t *testing.T) {
	doer := devkit.NewFakeDoer()
	client := newTestClient(t, doer)
	_, err := client.RefreshToken(context.Background(), core.RefreshTokenRequest{})
	if err == nil || !core.IsReauthenticationRequired(err) {
		t.Fatalf("expected reauthentication error, got %v", err)
	}
	if len(doer.Requests()) != 0 {
		t.Fatalf("expected no network traffic")
	}
}

func TestClient_DoJSON_SetsBearerAndClassifies(t *testing.T) {
	doer := devkit.NewFakeDoer(devkit.Script{
		StatusCode: http.StatusForbidden,
		Body:       `{"error":{"message":"quota exceeded"}}`,
	})
	client := newTestClient(t, doer)

	response, err := client.DoJSON(
		context.Background(),
		http.MethodPost,
		client.APIURL("subscriptions"),
		"access-1",
		map[string]string{"kind": "watch"},
	)
	if err != nil {
		t.Fatalf("do json: %v", err)
	}

	request := doer.Requests()[0]
	if got := request.Header.Get("Authorization"); got != "Bearer access-1" {
		t.Fatalf("authorization = %q", got)
	}
	if request.URL != "https://api.acme.example.com/v1/subscriptions" {
		t.Fatalf("url = %s", request.URL)
	}

	subErr := client.ClassifySubscriptionFailure("subscriptions.create", response)
	if subErr == nil || !core.IsSubscriptionError(subErr) {
		t.Fatalf("expected subscription error, got %v", subErr)
	}
	if !strings.Contains(subErr.Error(), "quota exceeded") {
		t.Fatalf("expected provider detail in error, got %v", subErr)
	}

	unauthorized := client.ClassifySubscriptionFailure("subscriptions.create", providers.APIResponse{
		StatusCode: http.StatusUnauthorized,
	})
	if !core.IsReauthenticationRequired(unauthorized) {
		t.Fatalf("expected reauthentication error for 401, got %v", unauthorized)
	}
}

func TestClient_APIURL_EscapesSegments(t *testing.T) {
	client := newTestClient(t, devkit.NewFakeDoer())
	got := client.APIURL("calendars", "team calendar@example.com", "events", "watch")
	want := "https://api.acme.example.com/v1/calendars/team%20calendar@example.com/events/watch"
	if got != want {
		t.Fatalf("api url = %q, want %q", got, want)
	}
}
