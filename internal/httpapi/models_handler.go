package httpapi

import (
	"github.com/valyala/fasthttp"
)

type modelsListResponse struct {
	Object string           `json:"object"`
	Data   []modelsListItem `json:"data"`
}

type modelsListItem struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// handleModels serves GET /v1/models in the OpenAI-compatible shape,
// listing whatever the configured ModelLister reports.
func (s *Server) handleModels(ctx *fasthttp.RequestCtx) {
	resp := modelsListResponse{Object: "list"}
	if s.models != nil {
		for _, m := range s.models.ListModels() {
			resp.Data = append(resp.Data, modelsListItem{
				ID:      m.ID,
				Object:  "model",
				Created: m.Created,
				OwnedBy: m.OwnedBy,
			})
		}
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}
