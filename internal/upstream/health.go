package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	anthropicOption "github.com/anthropics/anthropic-sdk-go/option"
	openaiSDK "github.com/openai/openai-go/v3"
	openaiOption "github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"

	"github.com/relaylayer/llmcore/internal/model"
)

// HealthProber checks that one instance is reachable and authenticated.
// This generalizes the teacher's HealthChecker (internal/proxy/healthchecker.go
// in the reference tree), which probed once per provider TYPE, to one probe
// per provider INSTANCE, since load balancing fans out across many
// instances sharing a type.
type HealthProber struct {
	timeout time.Duration
}

// NewHealthProber builds a prober with a bounded per-probe timeout.
func NewHealthProber(timeout time.Duration) *HealthProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HealthProber{timeout: timeout}
}

// Probe checks one instance using the vendor SDK appropriate to its wire
// protocol, exactly as the teacher's per-provider HealthCheck methods do
// (anthropic.go/openai.go/gemini.go's Models.List-style calls).
func (p *HealthProber) Probe(ctx context.Context, inst model.ProviderInstance) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	secret := inst.Auth.Secret

	switch inst.WireProtocol() {
	case model.ProviderAnthropic:
		opts := []anthropicOption.RequestOption{anthropicOption.WithAPIKey(secret)}
		if inst.BaseURL != "" {
			opts = append(opts, anthropicOption.WithBaseURL(inst.BaseURL))
		}
		client := anthropicSDK.NewClient(opts...)
		_, err := client.Models.List(ctx, anthropicSDK.ModelListParams{Limit: anthropicSDK.Int(1)})
		if err != nil {
			return fmt.Errorf("%s: health check: %w", inst.Key(), err)
		}
		return nil

	case model.ProviderOpenAI:
		opts := []openaiOption.RequestOption{
			openaiOption.WithAPIKey(secret),
			openaiOption.WithHTTPClient(&http.Client{Timeout: p.timeout}),
		}
		if inst.BaseURL != "" {
			opts = append(opts, openaiOption.WithBaseURL(inst.BaseURL))
		}
		client := openaiSDK.NewClient(opts...)
		_, err := client.Models.List(ctx)
		if err != nil {
			return fmt.Errorf("%s: health check: %w", inst.Key(), err)
		}
		return nil

	case model.ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  secret,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return fmt.Errorf("%s: health check: client init: %w", inst.Key(), err)
		}
		_, err = client.Models.List(ctx, nil)
		if err != nil {
			return fmt.Errorf("%s: health check: %w", inst.Key(), err)
		}
		return nil

	default:
		return fmt.Errorf("%s: health check: unsupported wire protocol %q", inst.Key(), inst.WireProtocol())
	}
}
