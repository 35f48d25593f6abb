// Package config loads and validates all runtime configuration for the gateway.
//
// Configuration is read from environment variables (preferred for containers)
// or from a config.yaml file in the working directory. Environment variables
// take precedence over the YAML file.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the YAML file uses the
// same names in lower_snake_case. For example OPENAI_API_KEY becomes
// openai_api_key in YAML.
//
// Only one LLM provider key is strictly required for the gateway to start.
// Redis is optional — set CACHE_MODE=memory to use the built-in in-process
// cache with no external dependencies.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/relaylayer/llmcore/internal/model"
	"github.com/relaylayer/llmcore/internal/router"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	LogLevel string

	// Provider API keys — at least one must be non-empty.
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gemini    ProviderConfig
	Mistral   ProviderConfig

	// OpenAI-compatible providers.
	XAI        ProviderConfig
	DeepSeek   ProviderConfig
	Groq       ProviderConfig
	Together   ProviderConfig
	Perplexity ProviderConfig
	Cerebras   ProviderConfig
	Moonshot   ProviderConfig
	MiniMax    ProviderConfig
	Qwen       ProviderConfig
	Nebius     ProviderConfig
	NovitaAI   ProviderConfig
	ByteDance  ProviderConfig
	ZAI        ProviderConfig
	CanopyWave ProviderConfig
	Inference  ProviderConfig
	NanoGPT    ProviderConfig

	// Google Vertex AI (uses ADC instead of an API key).
	VertexAI VertexAIConfig

	// AWS Bedrock.
	Bedrock BedrockConfig

	// Azure OpenAI.
	Azure AzureConfig

	// Redis holds the connection URL for the Redis-backed cache and rate limiter.
	// Required when CacheMode is "redis" or RateLimit.RPMLimit is above 0.
	Redis RedisConfig

	// Cache controls caching behaviour.
	Cache CacheConfig

	// CircuitBreaker holds circuit breaker settings. They are loaded and
	// validated, but internal/breaker does not read them: it uses its own
	// fixed threshold, failure window and backoff schedule.
	CircuitBreaker CircuitBreakerConfig

	// RateLimit controls request-rate limiting.
	RateLimit RateLimitConfig

	// Failover controls multi-provider fallback behaviour.
	Failover FailoverConfig

	// CORSOrigins is the list of allowed CORS origins.
	// Use ["*"] to allow any origin (default). Set to specific origins in prod.
	CORSOrigins []string

	// AppBaseURL is used to construct absolute URLs (e.g. in webhook callbacks).
	AppBaseURL string

	// AllowClientAPIKeys enables forwarding client-supplied Authorization headers
	// directly to the upstream provider. When false (default) the gateway only
	// uses the API keys configured in this file/.env.
	AllowClientAPIKeys bool

	// Routing holds the model-name-prefix to provider-type rules of section
	// 4.1. Populated from the "routing" key in config.yaml; empty
	// unless a YAML file is present, since env vars have no natural way to
	// express an ordered rule list.
	Routing []RouteRule

	// DefaultProvider is the provider type used when no routing rule
	// matches a model name. Empty means no default: unmatched models fail
	// with no_route_for_model.
	DefaultProvider string

	// Sink controls which EventSink backend records request/failover
	// observability data.
	Sink SinkConfig

	// Instances holds the per-provider-type instance pools of section 3,
	// keyed by provider type ("openai", "anthropic", "gemini",
	// "azure_openai", "bedrock", "custom"). Populated from the "instances"
	// key in config.yaml. When a provider type has no YAML entry,
	// ToProviderInstances synthesizes a single instance from that
	// provider's legacy *ProviderConfig/*Config fields above, so a bare
	// .env setup with one key per provider still works without YAML.
	Instances map[string][]InstanceConfig
}

// RouteRule binds a model-name prefix to a provider type, matching
// router.Rule one-for-one.
type RouteRule struct {
	Prefix       string `mapstructure:"prefix"`
	ProviderType string `mapstructure:"provider_type"`
	Priority     int    `mapstructure:"priority"`
}

// InstanceConfig describes one upstream endpoint within a provider type's
// pool: its routing weight, auth, and wire-protocol-specific settings.
// Fields irrelevant to Kind/ProviderType are left zero.
type InstanceConfig struct {
	Name     string `mapstructure:"name"`
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	Timeout  string `mapstructure:"timeout"` // parsed with time.ParseDuration
	Priority int    `mapstructure:"priority"`
	Weight   int    `mapstructure:"weight"`

	// Auth.
	AuthKind        string `mapstructure:"auth_kind"` // bearer|oauth|api_key_header|sigv4
	APIKey          string `mapstructure:"api_key"`
	HeaderName      string `mapstructure:"header_name"`
	HeaderValue     string `mapstructure:"header_value"`
	OAuthProviderID string `mapstructure:"oauth_provider_id"`
	AWSAccessKey    string `mapstructure:"aws_access_key"`
	AWSSecretKey    string `mapstructure:"aws_secret_key"`
	AWSSessionToken string `mapstructure:"aws_session_token"`
	AWSRegion       string `mapstructure:"aws_region"`
	AWSService      string `mapstructure:"aws_service"`

	// Wire-protocol-specific.
	AnthropicVersion         string `mapstructure:"anthropic_version"`
	AutoCacheThresholdTokens int    `mapstructure:"auto_cache_threshold_tokens"`
	AutoCacheTools           bool   `mapstructure:"auto_cache_tools"`
	AzureAPIVersion          string `mapstructure:"azure_api_version"`
	CustomWireProtocol       string `mapstructure:"custom_wire_protocol"`

	// RecoveryTimeout sets the circuit breaker's initial open duration for
	// this instance (model.ProviderInstance.FailureTimeout), the base of
	// its exponential backoff schedule.
	RecoveryTimeout string `mapstructure:"recovery_timeout"`
}

// ProviderConfig holds configuration for a single LLM provider.
type ProviderConfig struct {
	// APIKey is the provider API key. Leave empty to disable the provider.
	APIKey string

	// BaseURL overrides the provider's default API endpoint.
	// Useful for local mocks and development. Leave empty to use the default.
	BaseURL string
}

// VertexAIConfig holds Google Vertex AI configuration.
// Auth is resolved via Application Default Credentials (ADC).
type VertexAIConfig struct {
	// Project is the Google Cloud project ID. Required.
	Project string
	// Location is the Vertex AI region. Default: "us-central1".
	Location string
}

// BedrockConfig holds AWS Bedrock configuration.
type BedrockConfig struct {
	// AccessKey is the AWS access key ID.
	AccessKey string
	// SecretKey is the AWS secret access key.
	SecretKey string
	// SessionToken is the optional STS session token for temporary credentials.
	SessionToken string
	// Region is the AWS region, e.g. "us-east-1".
	Region string
	// EndpointURL overrides the Bedrock runtime endpoint. Useful for local mocks.
	EndpointURL string
}

// AzureConfig holds Azure OpenAI configuration.
type AzureConfig struct {
	// Endpoint is the Azure OpenAI resource URL,
	// e.g. "https://myresource.openai.azure.com".
	Endpoint string
	// APIKey is the Azure OpenAI resource key.
	APIKey string
	// APIVersion is the API version string, e.g. "2024-12-01-preview".
	APIVersion string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Mode selects the cache backend:
	//   "redis"  — Redis-backed cache (requires REDIS_URL). Recommended for production.
	//   "memory" — In-process TTL cache. No external deps; not shared across replicas.
	//   "none"   — Cache disabled entirely.
	// Default: "memory".
	Mode string

	// TTL is the default time-to-live for cached responses. Default: 1h.
	TTL time.Duration

	// ExcludeExact is a list of exact model names that must never be cached.
	// Example: ["gpt-4o-realtime", "claude-3-haiku"]
	ExcludeExact []string

	// ExcludePatterns is a list of Go regular expressions matched against model
	// names. Requests whose model matches any pattern are not cached.
	// Example: ["^ft:", ".*-preview$"]
	ExcludePatterns []string
}

// CircuitBreakerConfig controls per-provider circuit breaker settings.
type CircuitBreakerConfig struct {
	// ErrorThreshold is the number of consecutive errors that trip the breaker.
	// Default: 5.
	ErrorThreshold int

	// TimeWindow is the rolling window over which errors are counted.
	// Default: 60s.
	TimeWindow time.Duration

	// HalfOpenTimeout is how long the breaker stays open before allowing a
	// single probe request. Default: 30s.
	HalfOpenTimeout time.Duration
}

// RateLimitConfig controls request-rate limiting.
type RateLimitConfig struct {
	// RPMLimit is the maximum requests per minute allowed globally.
	// 0 disables rate limiting. Default: 0.
	RPMLimit int
}

// SinkConfig selects the EventSink backend for request/failover records.
type SinkConfig struct {
	// Kind is "slog" (default — structured logs, no external dependency)
	// or "clickhouse" (batched async inserts for durable analytics).
	Kind       string
	ClickHouse ClickHouseSinkConfig
}

// ClickHouseSinkConfig holds connection settings for the ClickHouse event
// sink. Only read when Sink.Kind == "clickhouse".
type ClickHouseSinkConfig struct {
	Addr           []string
	Database       string
	Username       string
	Password       string
	RequestsTable  string
	FailoversTable string
	DialTimeout    time.Duration
}

// FailoverConfig controls multi-provider failover.
type FailoverConfig struct {
	// MaxRetries is loaded from MAX_RETRIES and validated (at least 1), but
	// internal/orchestrator does not read it: its retry loop uses its own
	// fixed maxRetries limit of 3. Default: 3.
	MaxRetries int

	// ProviderTimeout is the per-provider HTTP timeout. Default: 30s.
	ProviderTimeout time.Duration
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
//
// At least one provider API key must be configured.
// REDIS_URL is only required when CACHE_MODE=redis.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CACHE_MODE", "memory")
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	// Circuit breaker defaults.
	v.SetDefault("CB_ERROR_THRESHOLD", 5)
	v.SetDefault("CB_TIME_WINDOW", "60s")
	v.SetDefault("CB_HALF_OPEN_TIMEOUT", "30s")

	// Failover defaults.
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("PROVIDER_TIMEOUT", "30s")

	// Rate limit: 0 = disabled.
	v.SetDefault("RPM_LIMIT", 0)

	// Client API key mode disabled by default.
	v.SetDefault("ALLOW_CLIENT_API_KEYS", false)

	// Event sink defaults.
	v.SetDefault("SINK_KIND", "slog")
	v.SetDefault("CLICKHOUSE_REQUESTS_TABLE", "gateway_requests")
	v.SetDefault("CLICKHOUSE_FAILOVERS_TABLE", "gateway_failovers")
	v.SetDefault("CLICKHOUSE_DIAL_TIMEOUT", "5s")

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		OpenAI:    ProviderConfig{APIKey: v.GetString("OPENAI_API_KEY"), BaseURL: v.GetString("OPENAI_BASE_URL")},
		Anthropic: ProviderConfig{APIKey: v.GetString("ANTHROPIC_API_KEY"), BaseURL: v.GetString("ANTHROPIC_BASE_URL")},
		Gemini:    ProviderConfig{APIKey: v.GetString("GOOGLE_API_KEY"), BaseURL: v.GetString("GEMINI_BASE_URL")},
		Mistral:   ProviderConfig{APIKey: v.GetString("MISTRAL_API_KEY"), BaseURL: v.GetString("MISTRAL_BASE_URL")},

		// OpenAI-compatible providers
		XAI:        ProviderConfig{APIKey: v.GetString("XAI_API_KEY")},
		DeepSeek:   ProviderConfig{APIKey: v.GetString("DEEPSEEK_API_KEY")},
		Groq:       ProviderConfig{APIKey: v.GetString("GROQ_API_KEY")},
		Together:   ProviderConfig{APIKey: v.GetString("TOGETHER_API_KEY")},
		Perplexity: ProviderConfig{APIKey: v.GetString("PERPLEXITY_API_KEY")},
		Cerebras:   ProviderConfig{APIKey: v.GetString("CEREBRAS_API_KEY")},
		Moonshot:   ProviderConfig{APIKey: v.GetString("MOONSHOT_API_KEY")},
		MiniMax:    ProviderConfig{APIKey: v.GetString("MINIMAX_API_KEY")},
		Qwen:       ProviderConfig{APIKey: v.GetString("QWEN_API_KEY")},
		Nebius:     ProviderConfig{APIKey: v.GetString("NEBIUS_API_KEY")},
		NovitaAI:   ProviderConfig{APIKey: v.GetString("NOVITA_API_KEY")},
		ByteDance:  ProviderConfig{APIKey: v.GetString("BYTEDANCE_API_KEY")},
		ZAI:        ProviderConfig{APIKey: v.GetString("ZAI_API_KEY")},
		CanopyWave: ProviderConfig{APIKey: v.GetString("CANOPYWAVE_API_KEY")},
		Inference:  ProviderConfig{APIKey: v.GetString("INFERENCE_API_KEY")},
		NanoGPT:    ProviderConfig{APIKey: v.GetString("NANOGPT_API_KEY")},

		// Google Vertex AI
		VertexAI: VertexAIConfig{
			Project:  v.GetString("VERTEX_PROJECT"),
			Location: v.GetString("VERTEX_LOCATION"),
		},

		// AWS Bedrock
		Bedrock: BedrockConfig{
			AccessKey:    v.GetString("AWS_ACCESS_KEY_ID"),
			SecretKey:    v.GetString("AWS_SECRET_ACCESS_KEY"),
			SessionToken: v.GetString("AWS_SESSION_TOKEN"),
			Region:       v.GetString("AWS_REGION"),
			EndpointURL:  v.GetString("BEDROCK_ENDPOINT_URL"),
		},

		// Azure OpenAI
		Azure: AzureConfig{
			Endpoint:   v.GetString("AZURE_OPENAI_ENDPOINT"),
			APIKey:     v.GetString("AZURE_OPENAI_API_KEY"),
			APIVersion: v.GetString("AZURE_OPENAI_API_VERSION"),
		},

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Cache: CacheConfig{
			Mode:            strings.ToLower(v.GetString("CACHE_MODE")),
			TTL:             v.GetDuration("CACHE_TTL"),
			ExcludeExact:    v.GetStringSlice("CACHE_EXCLUDE_EXACT"),
			ExcludePatterns: v.GetStringSlice("CACHE_EXCLUDE_PATTERNS"),
		},

		CircuitBreaker: CircuitBreakerConfig{
			ErrorThreshold:  v.GetInt("CB_ERROR_THRESHOLD"),
			TimeWindow:      v.GetDuration("CB_TIME_WINDOW"),
			HalfOpenTimeout: v.GetDuration("CB_HALF_OPEN_TIMEOUT"),
		},

		RateLimit: RateLimitConfig{
			RPMLimit: v.GetInt("RPM_LIMIT"),
		},

		Failover: FailoverConfig{
			MaxRetries:      v.GetInt("MAX_RETRIES"),
			ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),
		},

		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),
		AppBaseURL:  v.GetString("APP_BASE_URL"),

		AllowClientAPIKeys: v.GetBool("ALLOW_CLIENT_API_KEYS"),
		DefaultProvider:    v.GetString("DEFAULT_PROVIDER"),

		Sink: SinkConfig{
			Kind: strings.ToLower(v.GetString("SINK_KIND")),
			ClickHouse: ClickHouseSinkConfig{
				Addr:           v.GetStringSlice("CLICKHOUSE_ADDR"),
				Database:       v.GetString("CLICKHOUSE_DATABASE"),
				Username:       v.GetString("CLICKHOUSE_USERNAME"),
				Password:       v.GetString("CLICKHOUSE_PASSWORD"),
				RequestsTable:  v.GetString("CLICKHOUSE_REQUESTS_TABLE"),
				FailoversTable: v.GetString("CLICKHOUSE_FAILOVERS_TABLE"),
				DialTimeout:    v.GetDuration("CLICKHOUSE_DIAL_TIMEOUT"),
			},
		},
	}

	if err := v.UnmarshalKey("routing", &cfg.Routing); err != nil {
		return nil, fmt.Errorf("config: parse routing rules: %w", err)
	}
	if err := v.UnmarshalKey("instances", &cfg.Instances); err != nil {
		return nil, fmt.Errorf("config: parse instances: %w", err)
	}

	// ── Validation ────────────────────────────────────────────────────────────
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ToRouterRules converts the configured routing rules into router.Rule,
// the shape internal/router.New expects.
func (c *Config) ToRouterRules() []router.Rule {
	rules := make([]router.Rule, len(c.Routing))
	for i, r := range c.Routing {
		rules[i] = router.Rule{
			Prefix:       r.Prefix,
			ProviderType: model.ProviderType(r.ProviderType),
			Priority:     r.Priority,
		}
	}
	return rules
}

// ToProviderInstances builds the balancer's per-provider-type instance
// pools. Provider types with an explicit "instances" YAML entry use it
// verbatim; the rest fall back to a single instance synthesized from the
// matching legacy *ProviderConfig/*Config field, so a single-key .env setup
// keeps working without any YAML.
func (c *Config) ToProviderInstances() (map[model.ProviderType][]model.ProviderInstance, error) {
	out := make(map[model.ProviderType][]model.ProviderInstance, len(c.Instances))

	for ptRaw, instances := range c.Instances {
		pt := model.ProviderType(ptRaw)
		built := make([]model.ProviderInstance, 0, len(instances))
		for _, ic := range instances {
			inst, err := ic.toProviderInstance(pt)
			if err != nil {
				return nil, fmt.Errorf("config: instance %q/%q: %w", ptRaw, ic.Name, err)
			}
			built = append(built, inst)
		}
		out[pt] = built
	}

	for pt, fallback := range c.legacyFallbackInstances() {
		if _, explicit := out[pt]; explicit {
			continue
		}
		if fallback.Name == "" {
			continue
		}
		out[pt] = []model.ProviderInstance{fallback}
	}

	return out, nil
}

// legacyFallbackInstances synthesizes one default instance per legacy
// single-key provider field, used only when that provider type has no
// explicit "instances" YAML entry.
func (c *Config) legacyFallbackInstances() map[model.ProviderType]model.ProviderInstance {
	timeout := c.Failover.ProviderTimeout
	mk := func(key string, pc ProviderConfig) model.ProviderInstance {
		if pc.APIKey == "" {
			return model.ProviderInstance{}
		}
		return model.ProviderInstance{
			Name:    key + "-default",
			Enabled: true,
			BaseURL: pc.BaseURL,
			Timeout: timeout,
			Weight:  100,
			Auth:    model.Auth{Kind: model.AuthBearer, Secret: pc.APIKey},
		}
	}

	out := map[model.ProviderType]model.ProviderInstance{
		model.ProviderOpenAI:    mk("openai", c.OpenAI),
		model.ProviderAnthropic: mk("anthropic", c.Anthropic),
		model.ProviderGemini:    mk("gemini", c.Gemini),
	}

	if c.Azure.APIKey != "" {
		out[model.ProviderAzureOpenAI] = model.ProviderInstance{
			Name:            "azure-default",
			Enabled:         true,
			BaseURL:         c.Azure.Endpoint,
			Timeout:         timeout,
			Weight:          100,
			Auth:            model.Auth{Kind: model.AuthAPIKeyHeader, Secret: c.Azure.APIKey, HeaderName: "api-key"},
			AzureAPIVersion: c.Azure.APIVersion,
		}
	}
	if c.Bedrock.AccessKey != "" {
		out[model.ProviderBedrock] = model.ProviderInstance{
			Name:    "bedrock-default",
			Enabled: true,
			BaseURL: c.Bedrock.EndpointURL,
			Timeout: timeout,
			Weight:  100,
			Auth: model.Auth{
				Kind:            model.AuthSigV4,
				AccessKeyID:     c.Bedrock.AccessKey,
				SecretAccessKey: c.Bedrock.SecretKey,
				SessionToken:    c.Bedrock.SessionToken,
				Region:          c.Bedrock.Region,
				Service:         "bedrock",
			},
		}
	}

	return out
}

func (ic InstanceConfig) toProviderInstance(pt model.ProviderType) (model.ProviderInstance, error) {
	timeout, err := parseOptionalDuration(ic.Timeout, 30*time.Second)
	if err != nil {
		return model.ProviderInstance{}, fmt.Errorf("timeout: %w", err)
	}
	recovery, err := parseOptionalDuration(ic.RecoveryTimeout, 0)
	if err != nil {
		return model.ProviderInstance{}, fmt.Errorf("recovery_timeout: %w", err)
	}

	auth, err := ic.toAuth()
	if err != nil {
		return model.ProviderInstance{}, err
	}

	inst := model.ProviderInstance{
		Name:                     ic.Name,
		ProviderType:             pt,
		Enabled:                  ic.Enabled,
		BaseURL:                  ic.BaseURL,
		Timeout:                  timeout,
		Priority:                 ic.Priority,
		Weight:                   ic.Weight,
		FailureTimeout:           recovery,
		Auth:                     auth,
		AnthropicVersion:         ic.AnthropicVersion,
		AutoCacheThresholdTokens: ic.AutoCacheThresholdTokens,
		AutoCacheTools:           ic.AutoCacheTools,
		AzureAPIVersion:          ic.AzureAPIVersion,
		CustomProtocol:           model.ProviderType(ic.CustomWireProtocol),
	}
	if ic.Weight == 0 {
		inst.Weight = 100
	}
	return inst, nil
}

func (ic InstanceConfig) toAuth() (model.Auth, error) {
	switch strings.ToLower(ic.AuthKind) {
	case "", "bearer":
		return model.Auth{Kind: model.AuthBearer, Secret: ic.APIKey}, nil
	case "api_key_header":
		return model.Auth{Kind: model.AuthAPIKeyHeader, Secret: ic.APIKey, HeaderName: ic.HeaderName, HeaderValue: ic.HeaderValue}, nil
	case "oauth":
		return model.Auth{Kind: model.AuthOAuth, OAuthProviderID: ic.OAuthProviderID}, nil
	case "sigv4":
		service := ic.AWSService
		if service == "" {
			service = "bedrock"
		}
		return model.Auth{
			Kind:            model.AuthSigV4,
			AccessKeyID:     ic.AWSAccessKey,
			SecretAccessKey: ic.AWSSecretKey,
			SessionToken:    ic.AWSSessionToken,
			Region:          ic.AWSRegion,
			Service:         service,
		}, nil
	default:
		return model.Auth{}, fmt.Errorf("unknown auth_kind %q", ic.AuthKind)
	}
}

func parseOptionalDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	// At least one provider must be configured unless client-supplied keys are enabled.
	if !c.AllowClientAPIKeys && !c.AtLeastOneProviderKey() {
		return fmt.Errorf(
			"config: at least one provider API key is required " +
				"(OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, MISTRAL_API_KEY, " +
				"XAI_API_KEY, DEEPSEEK_API_KEY, GROQ_API_KEY, TOGETHER_API_KEY, " +
				"PERPLEXITY_API_KEY, CEREBRAS_API_KEY, MOONSHOT_API_KEY, MINIMAX_API_KEY, " +
				"QWEN_API_KEY, NEBIUS_API_KEY, NOVITA_API_KEY, BYTEDANCE_API_KEY, " +
				"ZAI_API_KEY, CANOPYWAVE_API_KEY, INFERENCE_API_KEY, NANOGPT_API_KEY, " +
				"VERTEX_PROJECT, AWS_ACCESS_KEY_ID, or AZURE_OPENAI_API_KEY). " +
				"Set ALLOW_CLIENT_API_KEYS=true to require clients to supply their own keys.",
		)
	}

	// Redis URL is required when cache mode is "redis".
	if c.Cache.Mode == "redis" && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: REDIS_URL is required when CACHE_MODE=redis; " +
				"set CACHE_MODE=memory to use the built-in in-process cache",
		)
	}

	// Validate cache mode value.
	switch c.Cache.Mode {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf(
			"config: invalid CACHE_MODE %q; must be one of: redis, memory, none",
			c.Cache.Mode,
		)
	}

	// Validate log level.
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	// Circuit breaker sanity checks.
	if c.CircuitBreaker.ErrorThreshold < 1 {
		return fmt.Errorf("config: CB_ERROR_THRESHOLD must be ≥ 1, got %d", c.CircuitBreaker.ErrorThreshold)
	}
	if c.CircuitBreaker.TimeWindow <= 0 {
		return fmt.Errorf("config: CB_TIME_WINDOW must be a positive duration")
	}
	if c.Failover.MaxRetries < 1 {
		return fmt.Errorf("config: MAX_RETRIES must be ≥ 1, got %d", c.Failover.MaxRetries)
	}

	switch c.Sink.Kind {
	case "slog":
	case "clickhouse":
		if len(c.Sink.ClickHouse.Addr) == 0 {
			return fmt.Errorf("config: CLICKHOUSE_ADDR is required when SINK_KIND=clickhouse")
		}
	default:
		return fmt.Errorf("config: invalid SINK_KIND %q; must be one of: slog, clickhouse", c.Sink.Kind)
	}

	for pt, instances := range c.Instances {
		switch model.ProviderType(pt) {
		case model.ProviderOpenAI, model.ProviderAnthropic, model.ProviderGemini,
			model.ProviderAzureOpenAI, model.ProviderBedrock, model.ProviderCustom:
		default:
			return fmt.Errorf("config: instances: unknown provider_type %q", pt)
		}
		seen := make(map[string]bool, len(instances))
		for _, ic := range instances {
			if ic.Name == "" {
				return fmt.Errorf("config: instances[%q]: every instance needs a name", pt)
			}
			if seen[ic.Name] {
				return fmt.Errorf("config: instances[%q]: duplicate instance name %q", pt, ic.Name)
			}
			seen[ic.Name] = true
		}
	}

	return nil
}

// AtLeastOneProviderKey returns true if at least one provider is configured.
func (c *Config) AtLeastOneProviderKey() bool {
	return c.OpenAI.APIKey != "" ||
		c.Anthropic.APIKey != "" ||
		c.Gemini.APIKey != "" ||
		c.Mistral.APIKey != "" ||
		c.XAI.APIKey != "" ||
		c.DeepSeek.APIKey != "" ||
		c.Groq.APIKey != "" ||
		c.Together.APIKey != "" ||
		c.Perplexity.APIKey != "" ||
		c.Cerebras.APIKey != "" ||
		c.Moonshot.APIKey != "" ||
		c.MiniMax.APIKey != "" ||
		c.Qwen.APIKey != "" ||
		c.Nebius.APIKey != "" ||
		c.NovitaAI.APIKey != "" ||
		c.ByteDance.APIKey != "" ||
		c.ZAI.APIKey != "" ||
		c.CanopyWave.APIKey != "" ||
		c.Inference.APIKey != "" ||
		c.NanoGPT.APIKey != "" ||
		c.VertexAI.Project != "" ||
		c.Bedrock.AccessKey != "" ||
		c.Azure.APIKey != ""
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
