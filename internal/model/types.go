// Package model holds the provider-agnostic data types shared by the router,
// balancer, breaker, and protocol converters: the intermediate representation
// every upstream protocol is translated into and out of, plus the provider
// and health types described in spec section 3 of the design.
package model

import (
	"encoding/json"
	"time"
)

// ProviderType is a closed enumeration of supported upstream families. Only
// OpenAI, Anthropic, and Gemini participate in prefix-based model routing;
// the rest are selected by URL/config and share the same downstream
// machinery (load balancing, circuit breaking, retries).
type ProviderType string

const (
	ProviderOpenAI      ProviderType = "openai"
	ProviderAnthropic   ProviderType = "anthropic"
	ProviderGemini      ProviderType = "gemini"
	ProviderAzureOpenAI ProviderType = "azure_openai"
	ProviderBedrock     ProviderType = "bedrock"
	ProviderCustom      ProviderType = "custom"
)

// AuthKind selects which credential shape an instance uses.
type AuthKind string

const (
	AuthBearer       AuthKind = "bearer"
	AuthOAuth        AuthKind = "oauth"
	AuthAPIKeyHeader AuthKind = "api_key_header"
	AuthSigV4        AuthKind = "sigv4"
)

// Auth describes how requests to one instance are authenticated. Only the
// fields relevant to Kind are populated; secrets are opaque strings resolved
// by the upstream-authentication collaborator (see internal/upstream).
type Auth struct {
	Kind AuthKind

	// Bearer / ApiKeyHeader
	Secret      string
	HeaderName  string // for ApiKeyHeader; defaults to "Authorization" otherwise irrelevant
	HeaderValue string // optional static prefix override, e.g. "api-key"

	// OAuth — the core never sees the long-lived secret, only an opaque
	// provider id it hands to the authentication collaborator at call time.
	OAuthProviderID string

	// SigV4
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Service         string // defaults to "bedrock"
}

// ProviderInstance is immutable after config load. name is unique within a
// provider type; health-state lookups use "provider_type/name" as the
// globally unique key (see Instance.Key).
type ProviderInstance struct {
	Name         string
	ProviderType ProviderType
	Enabled      bool

	BaseURL string
	Timeout time.Duration

	Auth Auth

	// Priority: lower number = more preferred. Ties within a priority are
	// broken by weighted random selection.
	Priority int
	// Weight: positive integer for intra-priority random selection.
	// Zero/negative is treated as the default (100) by the balancer.
	Weight int

	// FailureTimeout is the initial circuit-breaker open duration (the base
	// of the backoff schedule, i.e. backoff(1)).
	FailureTimeout time.Duration

	// AnthropicVersion is the "anthropic-version" header value sent to
	// Anthropic-family instances. Ignored for other provider types.
	AnthropicVersion string

	// AutoCacheThresholdTokens enables Anthropic prompt-cache injection once
	// the estimated system-prompt token count reaches this value. Zero
	// disables auto-caching for this instance.
	AutoCacheThresholdTokens int
	AutoCacheTools           bool

	// AzureAPIVersion is required for ProviderAzureOpenAI instances.
	AzureAPIVersion string

	// CustomProtocol names which of {openai,anthropic,gemini} wire protocol
	// a ProviderCustom instance speaks, since Custom is selected by
	// configuration rather than by name prefix.
	CustomProtocol ProviderType
}

// Key returns the globally unique health-state key for this instance,
// "provider_type/name" by convention.
func (p ProviderInstance) Key() string {
	return string(p.ProviderType) + "/" + p.Name
}

// WireProtocol returns the wire protocol an instance actually speaks on the
// network: for AzureOpenAI this is OpenAI's wire shape, for Bedrock it is
// Anthropic's Converse-adjacent shape, for Custom it is whatever was
// configured.
func (p ProviderInstance) WireProtocol() ProviderType {
	switch p.ProviderType {
	case ProviderAzureOpenAI:
		return ProviderOpenAI
	case ProviderBedrock:
		return ProviderAnthropic
	case ProviderCustom:
		if p.CustomProtocol != "" {
			return p.CustomProtocol
		}
		return ProviderOpenAI
	default:
		return p.ProviderType
	}
}

// ── Content model ───────────────────────────────────────────────────────────

// ImageSourceKind distinguishes how image bytes are referenced.
type ImageSourceKind string

const (
	ImageSourceBase64 ImageSourceKind = "base64"
	ImageSourceURL    ImageSourceKind = "url"
)

// ImageSource is the content of an Image block.
type ImageSource struct {
	Kind ImageSourceKind
	// Data holds base64-encoded bytes when Kind == ImageSourceBase64.
	Data string
	// URL holds the HTTP(S) URL when Kind == ImageSourceURL.
	URL string
	// MIME is the sniffed/declared media type, e.g. "image/png".
	MIME string
	// Detail is OpenAI's optional "low"/"high"/"auto" hint; passed through
	// unchanged where the target protocol has no equivalent.
	Detail string
}

// BlockKind enumerates the content block variants of MessageContent.
type BlockKind string

const (
	BlockText        BlockKind = "text"
	BlockImage       BlockKind = "image"
	BlockToolUse     BlockKind = "tool_use"
	BlockToolResult  BlockKind = "tool_result"
	BlockPassthrough BlockKind = "passthrough"
)

// ContentBlock is one element of an ordered MessageContent sequence. Only
// the fields relevant to Kind are populated.
type ContentBlock struct {
	Kind BlockKind

	// Text
	Text string

	// Image
	Image ImageSource

	// ToolUse
	ToolUseID   string
	ToolName    string
	ToolInput   json.RawMessage // arguments, as JSON
	CacheMarked bool            // true once an ephemeral cache_control marker has been attached

	// ToolResult
	ToolResultForID string
	ToolResultText  string
	ToolResultError bool

	// Passthrough — an opaque JSON subtree forwarded without interpretation,
	// e.g. Anthropic "thinking" or Gemini "safetyRatings".
	PassthroughKind  string
	PassthroughValue json.RawMessage
	// PassthroughSignature mirrors Anthropic's "thinking" signature field
	// when present, so the request-path sanitation in §4.4.1 can detect its
	// absence without parsing PassthroughValue.
	PassthroughSignature string
}

// MessageContent is either a plain string or an ordered sequence of content
// blocks. Exactly one of Text/Blocks is meaningful, selected by IsBlocks.
type MessageContent struct {
	IsBlocks bool
	Text     string
	Blocks   []ContentBlock
}

// PlainText returns a MessageContent holding a bare string.
func PlainText(s string) MessageContent { return MessageContent{Text: s} }

// ConcatText returns the concatenation of all Text blocks (or the bare
// string form), matching §4.4.2's "concatenate all text blocks" rule.
func (m MessageContent) ConcatText() string {
	if !m.IsBlocks {
		return m.Text
	}
	var out string
	for _, b := range m.Blocks {
		if b.Kind == BlockText {
			out += b.Text
		}
	}
	return out
}

// Role is a conversation turn role, normalized across protocols.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the intermediate conversation representation.
type Message struct {
	Role    Role
	Content MessageContent
	// Name, when set, is a tool/function name associated with a tool-role
	// message (OpenAI "tool" messages carry this).
	Name string
}

// ToolDefinition is a provider-agnostic function/tool declaration.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// ToolChoiceMode selects how the model is directed to use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceNamed    ToolChoiceMode = "named"
)

// ToolChoice selects tool-use behavior; Name is populated only when
// Mode == ToolChoiceNamed.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// Usage counters, per spec section 3.
type Usage struct {
	InputTokens              int
	OutputTokens             int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
}

// WarningLevel classifies a conversion Warning's severity.
type WarningLevel string

const (
	WarningInfo WarningLevel = "info"
	WarningWarn WarningLevel = "warn"
)

// Warning is a structured record of a lossy protocol conversion, surfaced to
// clients via the X-LLM-Gateway-Warnings header and to the event sink.
type Warning struct {
	Level     WarningLevel `json:"level"`
	Message   string       `json:"message"`
	Parameter string       `json:"parameter,omitempty"`
}

// ChatRequest is the provider-agnostic request the orchestrator builds from
// whichever client endpoint it arrived on, and that converters translate.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Stream      bool
	Temperature float64
	HasTemp     bool
	MaxTokens   int
	TopP        float64
	HasTopP     bool

	Tools      []ToolDefinition
	ToolChoice *ToolChoice

	// JSONMode requests a JSON-constrained response (OpenAI
	// response_format: {type: "json_object"}).
	JSONMode bool

	// Dropped-with-warning OpenAI parameters, carried through only so the
	// converter can detect & warn on them; never forwarded upstream.
	Seed              *int
	LogProbs          bool
	TopLogProbs       *int
	LogitBias         map[string]int
	ServiceTier       string
	PresencePenalty   *float64
	FrequencyPenalty  *float64
	N                 int

	RequestID   string
	APIKeyID    string
}

// ToolCall is a model-issued function invocation, normalized.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON text, concatenated/unparsed for streaming deltas
}

// FinishReason is the normalized completion reason.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength         FinishReason = "length"
	FinishToolCalls      FinishReason = "tool_calls"
	FinishContentFilter  FinishReason = "content_filter"
)

// ChatResponse is the provider-agnostic non-streaming response.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
}

// ChunkKind enumerates the normalized streaming event shapes emitted by
// §4.4.3's SSE converter, used as the wire-agnostic intermediate before
// the target protocol's own SSE framing is written.
type ChunkKind string

const (
	ChunkRoleStart  ChunkKind = "role_start"
	ChunkTextDelta  ChunkKind = "text_delta"
	ChunkToolStart  ChunkKind = "tool_start"
	ChunkToolDelta  ChunkKind = "tool_delta"
	ChunkFinish     ChunkKind = "finish"
	ChunkDone       ChunkKind = "done"
)

// StreamChunk is one normalized streaming event.
type StreamChunk struct {
	Kind ChunkKind

	TextDelta string

	ToolIndex int
	ToolID    string
	ToolName  string
	ToolArgsDelta string

	FinishReason FinishReason
	Usage        *Usage
}
