package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"sublimeassistant/engine/internal/contextbuild"
	"sublimeassistant/engine/internal/errinfo"
	"sublimeassistant/engine/internal/extract"
	"sublimeassistant/engine/internal/llm"
	"sublimeassistant/engine/internal/lookup"
	"sublimeassistant/engine/internal/openai"
)

// Message is one entry in a conversation transcript. Tool messages carry
// the ToolCallID they answer.
type Message struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Conversation is the append-only transcript for one editor window, held
// in memory for the life of the engine process.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// runConfig is the request configuration resolved once per turn so a
// settings change mid-run cannot alter an in-flight loop.
type runConfig struct {
	request        openai.Request
	systemPrompt   string
	requestTimeout time.Duration
	fetchTimeout   time.Duration
	maxToolRounds  int
	maxFetchChars  int
}

func (e *Engine) resolveRunConfig(presetOverride, modelOverride string) (runConfig, *errinfo.ErrorInfo) {
	loaded, err := e.settings.Load()
	if err != nil {
		return runConfig{}, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	preset := loaded.Active()
	if presetOverride != "" {
		named, ok := loaded.Presets[presetOverride]
		if !ok {
			return runConfig{}, errinfo.ValidationFailed(errinfo.PhaseSettings, fmt.Sprintf("unknown preset %q", presetOverride))
		}
		preset = named
	}
	model := preset.Model
	if modelOverride != "" {
		model = modelOverride
	}
	apiKey := ""
	if preset.APIKeyEnv != "" {
		apiKey = strings.TrimSpace(os.Getenv(preset.APIKeyEnv))
	}
	return runConfig{
		request: openai.Request{
			Endpoint: preset.BaseURL,
			APIKey:   apiKey,
			Model:    model,
		},
		systemPrompt:   loaded.SystemPrompt,
		requestTimeout: time.Duration(loaded.RequestTimeoutSeconds) * time.Second,
		fetchTimeout:   time.Duration(loaded.FetchTimeoutSeconds) * time.Second,
		maxToolRounds:  loaded.MaxToolRounds,
		maxFetchChars:  loaded.MaxFetchChars,
	}, nil
}

func (e *Engine) conversation(id string, systemPrompt string) *Conversation {
	e.convMu.Lock()
	defer e.convMu.Unlock()
	if conv, ok := e.conversations[id]; ok {
		return conv
	}
	conv := &Conversation{
		ID:        id,
		CreatedAt: time.Now().UTC(),
	}
	if systemPrompt != "" {
		conv.Messages = append(conv.Messages, Message{
			ID:        fmt.Sprintf("s-%d", time.Now().UnixNano()),
			Role:      "system",
			Content:   systemPrompt,
			CreatedAt: time.Now().UTC(),
		})
	}
	e.conversations[id] = conv
	return conv
}

func (e *Engine) appendMessage(conv *Conversation, msg Message) {
	e.convMu.Lock()
	defer e.convMu.Unlock()
	conv.Messages = append(conv.Messages, msg)
}

func (e *Engine) chatHistory(conv *Conversation) []llm.ChatMessage {
	e.convMu.Lock()
	defer e.convMu.Unlock()
	history := make([]llm.ChatMessage, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		history = append(history, llm.ChatMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		})
	}
	return history
}

// ConversationSubmit runs one user turn: context assembly, the bounded
// tool loop, and the final assistant message.
func (e *Engine) ConversationSubmit(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		Query          string `json:"query"`
		ActiveFile     string `json:"active_file"`
		ActiveFilename string `json:"active_filename"`
		Selection      string `json:"selection"`
		ProjectRoot    string `json:"project_root"`
		Preset         string `json:"preset"`
		Model          string `json:"model"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConversation, "invalid params")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConversation, "query must not be empty")
	}

	cfg, errInfo := e.resolveRunConfig(req.Preset, req.Model)
	if errInfo != nil {
		return nil, errInfo
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	conv := e.conversation(conversationID, cfg.systemPrompt)

	runCtx, runID, errInfo := e.beginRun(ctx, conversationID)
	if errInfo != nil {
		return nil, errInfo
	}
	defer e.endRun(conversationID, runID)

	fetcher := e.newFetcher(cfg.fetchTimeout, cfg.maxFetchChars)
	builder := contextbuild.NewBuilder(lookup.NewResolver(req.ProjectRoot), fetcher)
	built := builder.Build(runCtx, contextbuild.Input{
		Query:          req.Query,
		ActiveFile:     req.ActiveFile,
		ActiveFilename: req.ActiveFilename,
		Selection:      req.Selection,
	})

	userID := fmt.Sprintf("u-%d", time.Now().UnixNano())
	e.appendMessage(conv, Message{
		ID:        userID,
		Role:      "user",
		Content:   built.Content,
		CreatedAt: time.Now().UTC(),
	})
	e.logger.Info("conversation.submit", "conversation_id", conversationID, "message_id", userID, "hints", built.Hints)

	result := e.runToolLoop(runCtx, conv, cfg, fetcher)
	if result.err != nil {
		return nil, result.err
	}

	assistantID := fmt.Sprintf("a-%d", time.Now().UnixNano())
	if runCtx.Err() != nil {
		// Canceled after the loop resolved: drop the assistant reply.
		e.logger.Info("conversation.canceled", "conversation_id", conversationID)
		return nil, errinfo.UserCanceled(errinfo.PhaseConversation, "run canceled")
	}
	e.appendMessage(conv, Message{
		ID:        assistantID,
		Role:      "assistant",
		Content:   result.finalText,
		CreatedAt: time.Now().UTC(),
	})
	if e.notify != nil {
		e.notify("AssistantMessageComplete", map[string]any{
			"conversation_id": conversationID,
			"message_id":      assistantID,
		})
	}

	blocks := extract.Blocks(assistantID, result.finalText)
	response := map[string]any{
		"conversation_id":    conversationID,
		"message_id":         assistantID,
		"text":               result.finalText,
		"code_blocks":        blocks,
		"hints":              built.Hints,
		"loop_limit_reached": result.loopLimitReached,
	}
	if result.loopLimitReached {
		response["loop_limit_error"] = errinfo.ToolLoopLimit(conversationID, cfg.maxToolRounds)
	}
	return response, nil
}

type loopResult struct {
	finalText        string
	loopLimitReached bool
	toolRounds       int
	err              *errinfo.ErrorInfo
}

// runToolLoop drives ChatWithTools until the model answers with text or
// the round limit is hit. Tool results are appended to the transcript as
// tool messages so later rounds (and later turns) see them.
func (e *Engine) runToolLoop(ctx context.Context, conv *Conversation, cfg runConfig, fetcher contextbuild.Fetcher) loopResult {
	handler := newToolHandler(fetcher)
	var lastText string

	for round := 0; round < cfg.maxToolRounds; round++ {
		if ctx.Err() != nil {
			return loopResult{err: errinfo.UserCanceled(errinfo.PhaseConversation, "run canceled")}
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.requestTimeout)
		resp, err := e.client.ChatWithTools(callCtx, cfg.request, e.chatHistory(conv), handler.Definitions())
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return loopResult{err: errinfo.UserCanceled(errinfo.PhaseConversation, "run canceled")}
			}
			e.logger.Warn("conversation.chat_error", "conversation_id", conv.ID, "round", round, "error", err.Error())
			return loopResult{err: mapLLMError(errinfo.PhaseConversation, cfg.request.Model, err)}
		}
		e.logger.Info("conversation.chat_response", "conversation_id", conv.ID, "round", round,
			"tool_calls", len(resp.ToolCalls), "finish_reason", resp.FinishReason, "content_length", len(resp.Content))

		if len(resp.ToolCalls) == 0 {
			return loopResult{finalText: strings.TrimSpace(resp.Content), toolRounds: round}
		}
		lastText = resp.Content

		e.appendMessage(conv, Message{
			ID:        fmt.Sprintf("a-%d", time.Now().UnixNano()),
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
			CreatedAt: time.Now().UTC(),
		})

		for _, call := range resp.ToolCalls {
			if e.notify != nil {
				e.notify("AssistantToolExecuting", map[string]any{
					"conversation_id": conv.ID,
					"tool_name":       call.Function.Name,
					"tool_call_id":    call.ID,
				})
			}
			toolStart := time.Now()
			toolResult, toolErr := handler.Execute(ctx, call)
			if toolErr != nil {
				toolResult = fmt.Sprintf("Error: %s", toolErr.Error())
				e.logger.Warn("conversation.tool_error", "tool", call.Function.Name, "error", toolErr.Error())
			}
			e.logger.Info("conversation.tool_complete", "tool", call.Function.Name,
				"elapsed_ms", time.Since(toolStart).Milliseconds(), "result_bytes", len(toolResult))
			e.appendMessage(conv, Message{
				ID:         fmt.Sprintf("t-%d", time.Now().UnixNano()),
				Role:       "tool",
				Content:    toolResult,
				ToolCallID: call.ID,
				CreatedAt:  time.Now().UTC(),
			})
			if e.notify != nil {
				e.notify("AssistantToolComplete", map[string]any{
					"conversation_id": conv.ID,
					"tool_name":       call.Function.Name,
					"tool_call_id":    call.ID,
					"success":         toolErr == nil,
				})
			}
		}
	}

	e.logger.Warn("conversation.tool_loop_limit", "conversation_id", conv.ID, "max_rounds", cfg.maxToolRounds)
	return loopResult{
		finalText:        strings.TrimSpace(lastText),
		loopLimitReached: true,
		toolRounds:       cfg.maxToolRounds,
	}
}

// ConversationCancel requests cooperative cancellation of the active run.
func (e *Engine) ConversationCancel(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConversation, "invalid params")
	}
	canceled := e.cancelRun(req.ConversationID)
	e.logger.Info("conversation.cancel", "conversation_id", req.ConversationID, "had_run", canceled)
	return map[string]any{"canceled": canceled}, nil
}

// ConversationGet returns the ordered transcript for rendering.
func (e *Engine) ConversationGet(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConversation, "invalid params")
	}
	e.convMu.Lock()
	defer e.convMu.Unlock()
	conv, ok := e.conversations[req.ConversationID]
	if !ok {
		return nil, errinfo.ValidationFailed(errinfo.PhaseConversation, "unknown conversation")
	}
	messages := make([]Message, len(conv.Messages))
	copy(messages, conv.Messages)
	return map[string]any{
		"conversation_id": conv.ID,
		"created_at":      conv.CreatedAt,
		"messages":        messages,
	}, nil
}
