package app

import (
	"sort"

	"github.com/relaylayer/llmcore/internal/config"
	"github.com/relaylayer/llmcore/internal/httpapi"
)

// modelCatalog implements httpapi.ModelLister by deriving a flat model list
// from the configured routing rules, so /v1/models reflects whatever
// prefixes route to an enabled provider without a separate model registry.
type modelCatalog struct {
	models []httpapi.ModelInfo
}

func newModelCatalog(cfg *config.Config) *modelCatalog {
	seen := make(map[string]bool, len(cfg.Routing))
	mc := &modelCatalog{}
	for _, rule := range cfg.Routing {
		if rule.Prefix == "" || seen[rule.Prefix] {
			continue
		}
		seen[rule.Prefix] = true
		mc.models = append(mc.models, httpapi.ModelInfo{
			ID:      rule.Prefix,
			OwnedBy: rule.ProviderType,
		})
	}
	sort.Slice(mc.models, func(i, j int) bool { return mc.models[i].ID < mc.models[j].ID })
	return mc
}

func (mc *modelCatalog) ListModels() []httpapi.ModelInfo {
	return mc.models
}
