// Package router implements the model name to provider type resolution
// described in the design's model router component: longest configured
// prefix wins, ties broken by rule priority then insertion order.
package router

import (
	"regexp"
	"strings"

	"github.com/relaylayer/llmcore/internal/model"
)

var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// Rule binds a model-name prefix to a provider type. Rules are evaluated in
// the order given to New, which doubles as the insertion-order tie-breaker.
type Rule struct {
	Prefix       string
	ProviderType model.ProviderType
	Priority     int
}

// Router resolves model names to provider types by longest-prefix match.
// It holds no mutable state after construction and has no side effects on
// Resolve, matching the "no side effects" requirement: lookups don't
// mutate shared state, record metrics, or touch the clock.
type Router struct {
	rules   []Rule
	indexed []indexedRule
	def     model.ProviderType
	hasDef  bool
}

type indexedRule struct {
	Rule
	order int
}

// New builds a Router from an ordered rule list and an optional default
// provider type (defaultProvider == "" means no default is configured).
func New(rules []Rule, defaultProvider model.ProviderType) *Router {
	indexed := make([]indexedRule, len(rules))
	for i, r := range rules {
		indexed[i] = indexedRule{Rule: r, order: i}
	}
	return &Router{
		rules:   rules,
		indexed: indexed,
		def:     defaultProvider,
		hasDef:  defaultProvider != "",
	}
}

// Resolve validates modelName and returns the provider type selected for it.
func (r *Router) Resolve(modelName string) (model.ProviderType, error) {
	if err := ValidateModelName(modelName); err != nil {
		return "", err
	}

	var (
		best      *indexedRule
		bestLen   int
		bestPrio  int
		bestOrder int
	)
	for i := range r.indexed {
		rule := &r.indexed[i]
		if len(rule.Prefix) == 0 || len(rule.Prefix) > len(modelName) {
			continue
		}
		if modelName[:len(rule.Prefix)] != rule.Prefix {
			continue
		}
		if best == nil {
			best, bestLen, bestPrio, bestOrder = rule, len(rule.Prefix), rule.Priority, rule.order
			continue
		}
		switch {
		case len(rule.Prefix) > bestLen:
			best, bestLen, bestPrio, bestOrder = rule, len(rule.Prefix), rule.Priority, rule.order
		case len(rule.Prefix) == bestLen && rule.Priority < bestPrio:
			best, bestLen, bestPrio, bestOrder = rule, len(rule.Prefix), rule.Priority, rule.order
		case len(rule.Prefix) == bestLen && rule.Priority == bestPrio && rule.order < bestOrder:
			best, bestLen, bestPrio, bestOrder = rule, len(rule.Prefix), rule.Priority, rule.order
		}
	}

	if best != nil {
		return best.ProviderType, nil
	}
	if r.hasDef {
		return r.def, nil
	}
	return "", model.NewNoRouteForModel(modelName)
}

// ValidateModelName enforces the 1-256 byte length bound and the
// [A-Za-z0-9._/-]+ character class, and rejects any ".." sequence so a name
// cannot walk up the path of an upstream request URL. A single "/" is
// allowed.
func ValidateModelName(modelName string) error {
	if len(modelName) < 1 || len(modelName) > 256 {
		return model.NewInvalidModelName("model name must be 1-256 bytes")
	}
	if !modelNamePattern.MatchString(modelName) {
		return model.NewInvalidModelName("model name contains invalid characters")
	}
	if strings.Contains(modelName, "..") {
		return model.NewInvalidModelName("model name must not contain \"..\"")
	}
	return nil
}
