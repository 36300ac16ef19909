package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"sublimeassistant/engine/internal/llm"
)

const (
	userAgent         = "SublimeAssistant/1.0"
	maxErrorBodyBytes = 2048
)

// Client speaks the OpenAI-compatible /v1/chat/completions protocol, which
// is what Ollama, Mistral and friends expose. The endpoint comes in per
// request so preset switches take effect without rebuilding the client.
type Client struct {
	client *http.Client
}

// Request carries the per-turn resolved endpoint configuration.
type Request struct {
	Endpoint string
	APIKey   string
	Model    string
}

func NewClient() *Client {
	// The outer bound is protective only; callers set the real deadline
	// on the context.
	return &Client{client: &http.Client{Timeout: 600 * time.Second}}
}

type chatRequest struct {
	Model    string            `json:"model"`
	Messages []json.RawMessage `json:"messages"`
	Stream   bool              `json:"stream"`
	Tools    []llm.Tool        `json:"tools,omitempty"`
}

type chatEnvelope struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireMessage struct {
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// Chat sends a plain completion request without tools.
func (c *Client) Chat(ctx context.Context, req Request, messages []llm.Message) (string, error) {
	raw := make([]json.RawMessage, 0, len(messages))
	for _, msg := range messages {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return "", err
		}
		raw = append(raw, encoded)
	}
	resp, err := c.complete(ctx, req, raw, nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", errors.New("empty completion response")
	}
	return resp.Content, nil
}

// ChatWithTools sends a completion request advertising tools and returns
// the assistant message including any tool calls.
func (c *Client) ChatWithTools(ctx context.Context, req Request, messages []llm.ChatMessage, tools []llm.Tool) (llm.ChatResponse, error) {
	raw := make([]json.RawMessage, 0, len(messages))
	for _, msg := range messages {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return llm.ChatResponse{}, err
		}
		raw = append(raw, encoded)
	}
	resp, err := c.complete(ctx, req, raw, tools)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	if strings.TrimSpace(resp.Content) == "" && len(resp.ToolCalls) == 0 {
		return llm.ChatResponse{}, errors.New("empty completion response")
	}
	return resp, nil
}

func (c *Client) complete(ctx context.Context, req Request, messages []json.RawMessage, tools []llm.Tool) (llm.ChatResponse, error) {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return llm.ChatResponse{}, errors.New("endpoint not configured")
	}
	body, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
		Tools:    tools,
	})
	if err != nil {
		return llm.ChatResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return llm.ChatResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if key := strings.TrimSpace(req.APIKey); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return llm.ChatResponse{}, mapTransportError(err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return llm.ChatResponse{}, fmt.Errorf("%w: status=%s body=%q", llm.ErrUnauthorized, resp.Status, readErrorBody(resp))
	case resp.StatusCode == http.StatusTooManyRequests:
		return llm.ChatResponse{}, llm.ErrRateLimited
	case resp.StatusCode >= 500:
		return llm.ChatResponse{}, llm.ErrUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return llm.ChatResponse{}, fmt.Errorf("completion error: %s endpoint=%s - %s", resp.Status, endpoint, readErrorBody(resp))
	}
	var envelope chatEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return llm.ChatResponse{}, err
	}
	if len(envelope.Choices) == 0 {
		return llm.ChatResponse{}, errors.New("completion response with no choices")
	}
	choice := envelope.Choices[0]
	out := llm.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for i, call := range choice.Message.ToolCalls {
		id := strings.TrimSpace(call.ID)
		if id == "" {
			id = fmt.Sprintf("call-%d", i)
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   id,
			Type: "function",
			Function: llm.ToolCallFunction{
				Name:      call.Function.Name,
				Arguments: normalizeArguments(call.Function.Arguments),
			},
		})
	}
	if out.FinishReason == "" {
		out.FinishReason = "stop"
		if len(out.ToolCalls) > 0 {
			out.FinishReason = "tool_calls"
		}
	}
	return out, nil
}

// Some servers send tool arguments as a JSON object instead of an
// encoded string. Normalize both shapes to the string form.
func normalizeArguments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	return string(raw)
}

func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return llm.ErrTimeout
	}
	return err
}

func readErrorBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return strings.TrimSpace(string(body))
}
