package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sublimeassistant/engine/internal/llm"
	"sublimeassistant/engine/internal/openai"
)

const fakeNetworkMarker = "[network-error]"
const fakeAuthMarker = "[auth-error]"
const fakeFetchMarker = "[fetch]"
const fakeToolLoopMarker = "[tool-loop]"
const fakeCodeMarker = "[code]"

// newFakeClient returns a marker-driven client used when
// ASSISTANT_FAKE_OPENAI is set and throughout the tests. Behavior keys
// off markers in the last user message so no network is involved.
func newFakeClient() LLMClient {
	return &fakeClient{}
}

type fakeClient struct{}

type fakeNetErr struct{}

func (fakeNetErr) Error() string   { return "network unavailable" }
func (fakeNetErr) Timeout() bool   { return true }
func (fakeNetErr) Temporary() bool { return true }

func (f *fakeClient) Chat(_ context.Context, _ openai.Request, messages []llm.Message) (string, error) {
	lastUser := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			lastUser = messages[i].Content
			break
		}
	}
	if strings.Contains(lastUser, fakeNetworkMarker) {
		return "", fakeNetErr{}
	}
	if strings.Contains(lastUser, fakeAuthMarker) {
		return "", llm.ErrUnauthorized
	}
	return buildFakeResponse(lastUser), nil
}

func (f *fakeClient) ChatWithTools(_ context.Context, _ openai.Request, messages []llm.ChatMessage, tools []llm.Tool) (llm.ChatResponse, error) {
	lastUser := lastUserMessageChat(messages)
	if strings.Contains(lastUser, fakeNetworkMarker) {
		return llm.ChatResponse{}, fakeNetErr{}
	}
	if strings.Contains(lastUser, fakeAuthMarker) {
		return llm.ChatResponse{}, llm.ErrUnauthorized
	}
	if strings.Contains(lastUser, fakeToolLoopMarker) {
		// Always request another round; exercises the loop bound.
		return llm.ChatResponse{
			ToolCalls:    []llm.ToolCall{buildFakeToolCall("call-loop", "https://example.com/loop")},
			FinishReason: "tool_calls",
		}, nil
	}
	if strings.Contains(lastUser, fakeFetchMarker) && !hasToolResultAfterLastUser(messages) {
		return llm.ChatResponse{
			ToolCalls:    []llm.ToolCall{buildFakeToolCall("call-fetch", "https://example.com/doc")},
			FinishReason: "tool_calls",
		}, nil
	}
	return llm.ChatResponse{
		Content:      buildFakeResponse(lastUser),
		FinishReason: "stop",
	}, nil
}

func buildFakeResponse(lastUser string) string {
	if strings.Contains(lastUser, fakeCodeMarker) {
		return "Here is the change:\n\n```py:a/b.py\nprint(\"hello\")\n```\n"
	}
	return fmt.Sprintf("Assistant response: %s", lastUser)
}

func buildFakeToolCall(id, url string) llm.ToolCall {
	arguments, _ := json.Marshal(map[string]string{"url": url})
	return llm.ToolCall{
		ID:   id,
		Type: "function",
		Function: llm.ToolCallFunction{
			Name:      "fetch_url",
			Arguments: string(arguments),
		},
	}
}

func lastUserMessageChat(messages []llm.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func hasToolResultAfterLastUser(messages []llm.ChatMessage) bool {
	lastUserIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			lastUserIdx = i
			break
		}
	}
	if lastUserIdx < 0 {
		return false
	}
	for i := lastUserIdx + 1; i < len(messages); i++ {
		if messages[i].Role == "tool" {
			return true
		}
	}
	return false
}
