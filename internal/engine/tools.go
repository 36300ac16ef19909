package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sublimeassistant/engine/internal/contextbuild"
	"sublimeassistant/engine/internal/llm"
)

// toolHandler executes model tool calls. The single tool is fetch_url,
// which shares the fetcher (and its limits) with context building.
type toolHandler struct {
	fetcher contextbuild.Fetcher
}

func newToolHandler(fetcher contextbuild.Fetcher) *toolHandler {
	return &toolHandler{fetcher: fetcher}
}

func (h *toolHandler) Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        "fetch_url",
				Description: "Fetch the content of a web page as plain text. Use this when the user asks about a URL or when documentation from the web would help answer the question.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"url": {
							"type": "string",
							"description": "The absolute http or https URL to fetch"
						}
					},
					"required": ["url"]
				}`),
			},
		},
	}
}

func (h *toolHandler) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Function.Name {
	case "fetch_url":
		return h.fetchURL(ctx, call.Function.Arguments)
	default:
		return "", fmt.Errorf("unknown tool %q", call.Function.Name)
	}
}

func (h *toolHandler) fetchURL(ctx context.Context, arguments string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("fetch_url: invalid arguments: %w", err)
	}
	if strings.TrimSpace(args.URL) == "" {
		return "", fmt.Errorf("fetch_url: url is required")
	}
	if h.fetcher == nil {
		return "", fmt.Errorf("fetch_url: fetching disabled")
	}
	result := h.fetcher.Fetch(ctx, args.URL)
	return result.Content, nil
}
