package router

import (
	"errors"
	"testing"

	"github.com/relaylayer/llmcore/internal/model"
)

func testRules() []Rule {
	return []Rule{
		{Prefix: "gpt-", ProviderType: model.ProviderOpenAI, Priority: 0},
		{Prefix: "claude-", ProviderType: model.ProviderAnthropic, Priority: 0},
		{Prefix: "gemini-", ProviderType: model.ProviderGemini, Priority: 0},
	}
}

func TestResolve_PrefixTable(t *testing.T) {
	r := New(testRules(), model.ProviderOpenAI)

	cases := []struct {
		model string
		want  model.ProviderType
	}{
		{"gpt-4", model.ProviderOpenAI},
		{"claude-3-5-sonnet", model.ProviderAnthropic},
		{"gemini-1.5-pro", model.ProviderGemini},
		{"llama3", model.ProviderOpenAI}, // falls through to default
	}
	for _, c := range cases {
		got, err := r.Resolve(c.model)
		if err != nil {
			t.Fatalf("Resolve(%q): unexpected error: %v", c.model, err)
		}
		if got != c.want {
			t.Errorf("Resolve(%q) = %q, want %q", c.model, got, c.want)
		}
	}
}

func TestResolve_InvalidModelName(t *testing.T) {
	r := New(testRules(), model.ProviderOpenAI)

	_, err := r.Resolve("../etc/passwd")
	if err == nil {
		t.Fatal("expected error for path-injection model name")
	}
	var gerr *model.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *model.GatewayError, got %T", err)
	}
	if gerr.Kind != model.KindInvalidModelName {
		t.Errorf("Kind = %v, want %v", gerr.Kind, model.KindInvalidModelName)
	}
}

func TestResolve_NoRouteForModel(t *testing.T) {
	r := New(testRules(), "")

	_, err := r.Resolve("llama3")
	if err == nil {
		t.Fatal("expected error when no rule matches and no default is set")
	}
	var gerr *model.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *model.GatewayError, got %T", err)
	}
	if gerr.Kind != model.KindNoRouteForModel {
		t.Errorf("Kind = %v, want %v", gerr.Kind, model.KindNoRouteForModel)
	}
}

func TestResolve_EmptyModelName(t *testing.T) {
	r := New(testRules(), model.ProviderOpenAI)
	if _, err := r.Resolve(""); err == nil {
		t.Fatal("expected error for empty model name")
	}
}

func TestResolve_LongestPrefixWins(t *testing.T) {
	rules := []Rule{
		{Prefix: "gpt-", ProviderType: model.ProviderOpenAI, Priority: 0},
		{Prefix: "gpt-4-", ProviderType: model.ProviderAzureOpenAI, Priority: 0},
	}
	r := New(rules, "")

	got, err := r.Resolve("gpt-4-turbo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != model.ProviderAzureOpenAI {
		t.Errorf("got %q, want longer prefix match %q", got, model.ProviderAzureOpenAI)
	}
}

func TestResolve_TiesByPriorityThenInsertionOrder(t *testing.T) {
	rules := []Rule{
		{Prefix: "custom-", ProviderType: model.ProviderCustom, Priority: 5},
		{Prefix: "custom-", ProviderType: model.ProviderOpenAI, Priority: 1},
		{Prefix: "custom-", ProviderType: model.ProviderAnthropic, Priority: 1},
	}
	r := New(rules, "")

	got, err := r.Resolve("custom-model")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Equal length prefixes; lowest priority wins (1), and among the two
	// priority-1 rules, insertion order (openai registered before
	// anthropic) breaks the tie.
	if got != model.ProviderOpenAI {
		t.Errorf("got %q, want %q (priority+insertion-order tiebreak)", got, model.ProviderOpenAI)
	}
}
