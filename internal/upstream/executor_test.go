package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/relaylayer/llmcore/internal/model"
)

func TestExecutor_BearerAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inst := model.ProviderInstance{
		Name: "primary", ProviderType: model.ProviderOpenAI,
		BaseURL: srv.URL, Timeout: 2 * time.Second,
		Auth: model.Auth{Kind: model.AuthBearer, Secret: "sk-test"},
	}

	e := NewExecutor(nil)
	resp, err := e.Do(context.Background(), inst, http.MethodPost, "/v1/chat/completions", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
}

func TestExecutor_APIKeyHeaderAuth(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("api-key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inst := model.ProviderInstance{
		Name: "azure", ProviderType: model.ProviderAzureOpenAI,
		BaseURL: srv.URL, Timeout: 2 * time.Second,
		Auth: model.Auth{Kind: model.AuthAPIKeyHeader, Secret: "abc123", HeaderName: "api-key"},
	}

	e := NewExecutor(nil)
	resp, err := e.Do(context.Background(), inst, http.MethodPost, "/openai/deployments/x", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if gotHeader != "abc123" {
		t.Errorf("api-key header = %q, want abc123", gotHeader)
	}
}

func TestExecutor_SigV4AddsAuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inst := model.ProviderInstance{
		Name: "bedrock-primary", ProviderType: model.ProviderBedrock,
		BaseURL: srv.URL, Timeout: 2 * time.Second,
		Auth: model.Auth{
			Kind: model.AuthSigV4, AccessKeyID: "AKIA", SecretAccessKey: "secret", Region: "us-east-1",
		},
	}

	e := NewExecutor(nil)
	resp, err := e.Do(context.Background(), inst, http.MethodPost, "/model/x/converse", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AKIA/") {
		t.Errorf("Authorization = %q, want AWS4-HMAC-SHA256 signature", gotAuth)
	}
}

type stubOAuth struct{ token string }

func (s stubOAuth) Resolve(ctx context.Context, providerID string) (string, error) {
	return s.token, nil
}

func TestExecutor_OAuthResolvesToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inst := model.ProviderInstance{
		Name: "oauth-instance", ProviderType: model.ProviderCustom,
		BaseURL: srv.URL, Timeout: 2 * time.Second,
		Auth: model.Auth{Kind: model.AuthOAuth, OAuthProviderID: "my-idp"},
	}

	e := NewExecutor(stubOAuth{token: "live-token"})
	resp, err := e.Do(context.Background(), inst, http.MethodPost, "/chat", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if gotAuth != "Bearer live-token" {
		t.Errorf("Authorization = %q, want Bearer live-token", gotAuth)
	}
}
