package config

import (
	"testing"
	"time"

	"github.com/relaylayer/llmcore/internal/model"
)

func TestToRouterRules(t *testing.T) {
	c := &Config{Routing: []RouteRule{
		{Prefix: "gpt-", ProviderType: "openai", Priority: 0},
		{Prefix: "claude-", ProviderType: "anthropic", Priority: 0},
	}}
	rules := c.ToRouterRules()
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2", len(rules))
	}
	if rules[0].Prefix != "gpt-" || rules[0].ProviderType != model.ProviderOpenAI {
		t.Errorf("rules[0] = %+v", rules[0])
	}
	if rules[1].Prefix != "claude-" || rules[1].ProviderType != model.ProviderAnthropic {
		t.Errorf("rules[1] = %+v", rules[1])
	}
}

func TestToProviderInstances_ExplicitOverridesLegacy(t *testing.T) {
	c := &Config{
		OpenAI: ProviderConfig{APIKey: "legacy-key"},
		Instances: map[string][]InstanceConfig{
			"openai": {
				{Name: "primary", Enabled: true, BaseURL: "https://a.example", Weight: 100, APIKey: "k1"},
				{Name: "secondary", Enabled: true, BaseURL: "https://b.example", Weight: 50, Priority: 1, APIKey: "k2"},
			},
		},
	}

	out, err := c.ToProviderInstances()
	if err != nil {
		t.Fatalf("ToProviderInstances() error = %v", err)
	}
	instances := out[model.ProviderOpenAI]
	if len(instances) != 2 {
		t.Fatalf("len(instances) = %d, want 2 (explicit config must not be merged with the legacy fallback)", len(instances))
	}
	if instances[0].Name != "primary" || instances[0].Auth.Secret != "k1" {
		t.Errorf("instances[0] = %+v", instances[0])
	}
}

func TestToProviderInstances_LegacyFallback(t *testing.T) {
	c := &Config{
		OpenAI:    ProviderConfig{APIKey: "sk-legacy"},
		Anthropic: ProviderConfig{}, // no key, no fallback instance expected
	}

	out, err := c.ToProviderInstances()
	if err != nil {
		t.Fatalf("ToProviderInstances() error = %v", err)
	}
	instances := out[model.ProviderOpenAI]
	if len(instances) != 1 {
		t.Fatalf("len(instances) = %d, want 1", len(instances))
	}
	if instances[0].Auth.Kind != model.AuthBearer || instances[0].Auth.Secret != "sk-legacy" {
		t.Errorf("instances[0].Auth = %+v", instances[0].Auth)
	}
	if instances[0].Weight != 100 {
		t.Errorf("instances[0].Weight = %d, want 100 (zero weight defaults to 100)", instances[0].Weight)
	}
	if _, ok := out[model.ProviderAnthropic]; ok {
		t.Error("anthropic instance should not exist without an API key")
	}
}

func TestInstanceConfig_ToAuthVariants(t *testing.T) {
	tests := []struct {
		name string
		ic   InstanceConfig
		want model.AuthKind
	}{
		{"default is bearer", InstanceConfig{APIKey: "k"}, model.AuthBearer},
		{"explicit bearer", InstanceConfig{AuthKind: "bearer", APIKey: "k"}, model.AuthBearer},
		{"api key header", InstanceConfig{AuthKind: "api_key_header", APIKey: "k", HeaderName: "api-key"}, model.AuthAPIKeyHeader},
		{"oauth", InstanceConfig{AuthKind: "oauth", OAuthProviderID: "p1"}, model.AuthOAuth},
		{"sigv4", InstanceConfig{AuthKind: "sigv4", AWSAccessKey: "ak", AWSSecretKey: "sk"}, model.AuthSigV4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := tt.ic.toAuth()
			if err != nil {
				t.Fatalf("toAuth() error = %v", err)
			}
			if auth.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", auth.Kind, tt.want)
			}
		})
	}
}

func TestInstanceConfig_ToAuth_UnknownKind(t *testing.T) {
	_, err := InstanceConfig{AuthKind: "bogus"}.toAuth()
	if err == nil {
		t.Error("expected an error for an unknown auth_kind")
	}
}

func TestInstanceConfig_ToProviderInstance_BadDuration(t *testing.T) {
	ic := InstanceConfig{Name: "x", Timeout: "not-a-duration"}
	if _, err := ic.toProviderInstance(model.ProviderOpenAI); err == nil {
		t.Error("expected an error for an invalid timeout string")
	}
}

// validConfig returns a Config that satisfies validate() with nothing
// exercised beyond the defaults Load() would otherwise set.
func validConfig() *Config {
	return &Config{
		OpenAI:         ProviderConfig{APIKey: "sk-test"},
		LogLevel:       "info",
		Cache:          CacheConfig{Mode: "none"},
		CircuitBreaker: CircuitBreakerConfig{ErrorThreshold: 3, TimeWindow: 60 * time.Second},
		Failover:       FailoverConfig{MaxRetries: 3},
		Sink:           SinkConfig{Kind: "slog"},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}
}

func TestValidate_ClickHouseSinkRequiresAddr(t *testing.T) {
	c := validConfig()
	c.Sink.Kind = "clickhouse"
	if err := c.validate(); err == nil {
		t.Error("expected an error when SINK_KIND=clickhouse has no CLICKHOUSE_ADDR")
	}

	c.Sink.ClickHouse.Addr = []string{"localhost:9000"}
	if err := c.validate(); err != nil {
		t.Errorf("validate() = %v, want nil once CLICKHOUSE_ADDR is set", err)
	}
}

func TestValidate_UnknownSinkKind(t *testing.T) {
	c := validConfig()
	c.Sink.Kind = "bogus"
	if err := c.validate(); err == nil {
		t.Error("expected an error for an unknown sink kind")
	}
}

func TestValidate_UnknownInstanceProviderType(t *testing.T) {
	c := validConfig()
	c.Instances = map[string][]InstanceConfig{
		"not-a-real-provider": {{Name: "a"}},
	}
	if err := c.validate(); err == nil {
		t.Error("expected an error for an unknown instances provider_type")
	}
}

func TestValidate_DuplicateInstanceName(t *testing.T) {
	c := validConfig()
	c.Instances = map[string][]InstanceConfig{
		"openai": {{Name: "primary"}, {Name: "primary"}},
	}
	if err := c.validate(); err == nil {
		t.Error("expected an error for a duplicate instance name within a provider type")
	}
}

func TestValidate_InstanceMissingName(t *testing.T) {
	c := validConfig()
	c.Instances = map[string][]InstanceConfig{
		"openai": {{Name: ""}},
	}
	if err := c.validate(); err == nil {
		t.Error("expected an error for an instance with no name")
	}
}
