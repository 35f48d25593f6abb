package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/relaylayer/llmcore/internal/model"
)

// OAuthResolver hands back a live access token for an OAuth-authenticated
// instance. The core never sees the long-lived credential; only an opaque
// provider id flows through model.Auth.OAuthProviderID to this collaborator.
// Token refresh itself is out of scope here (see SPEC_FULL.md Non-goals).
type OAuthResolver interface {
	Resolve(ctx context.Context, providerID string) (token string, err error)
}

// applyAuth sets the headers (or signs the request, for SigV4) needed by
// inst.Auth. body is required only for SigV4, whose signature covers the
// payload hash.
func applyAuth(ctx context.Context, req *http.Request, inst model.ProviderInstance, body []byte, oauth OAuthResolver) error {
	auth := inst.Auth
	switch auth.Kind {
	case model.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Secret)
		return nil

	case model.AuthAPIKeyHeader:
		name := auth.HeaderName
		if name == "" {
			name = "Authorization"
		}
		value := auth.Secret
		if auth.HeaderValue != "" {
			value = auth.HeaderValue + " " + auth.Secret
		}
		req.Header.Set(name, value)
		return nil

	case model.AuthOAuth:
		if oauth == nil {
			return fmt.Errorf("%s: oauth authentication configured but no resolver available", inst.Key())
		}
		token, err := oauth.Resolve(ctx, auth.OAuthProviderID)
		if err != nil {
			return fmt.Errorf("%s: resolve oauth token: %w", inst.Key(), err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil

	case model.AuthSigV4:
		return signSigV4(req, auth, body)

	default:
		return fmt.Errorf("%s: unknown auth kind %q", inst.Key(), auth.Kind)
	}
}
