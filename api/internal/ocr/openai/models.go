package openai

import (
	"context"
	"errors"
	"sort"

	goopenai "github.com/sashabaranov/go-openai"

	"jlpt-snap/api/internal/apperr"
	"jlpt-snap/api/internal/routing"
)

// ListModels returns the sorted model ids served by an endpoint. It only
// feeds suggestion lists, so entries without an id are skipped.
func (e *Engine) ListModels(ctx context.Context, ep routing.Endpoint) ([]string, error) {
	const op = "openai.ListModels"

	cfg := goopenai.DefaultConfig(ep.APIKey)
	cfg.BaseURL = ep.BaseURL
	cfg.HTTPClient = e.httpc
	client := goopenai.NewClientWithConfig(cfg)

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, modelsError(op, err)
	}

	ids := make([]string, 0, len(list.Models))
	seen := make(map[string]struct{}, len(list.Models))
	for _, m := range list.Models {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func modelsError(op string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apperr.Upstream(apperr.StageModels, op, "获取模型列表失败", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return apperr.Upstream(apperr.StageModels, op, "获取模型列表失败", reqErr.HTTPStatusCode, body)
	}
	return apperr.Transport(apperr.StageModels, op, err)
}
