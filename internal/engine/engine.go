package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sublimeassistant/engine/internal/appdirs"
	"sublimeassistant/engine/internal/contextbuild"
	"sublimeassistant/engine/internal/envutil"
	"sublimeassistant/engine/internal/errinfo"
	"sublimeassistant/engine/internal/fetch"
	"sublimeassistant/engine/internal/llm"
	"sublimeassistant/engine/internal/logging"
	"sublimeassistant/engine/internal/openai"
	"sublimeassistant/engine/internal/proposal"
	"sublimeassistant/engine/internal/settings"
	"sublimeassistant/engine/internal/storage"
)

const (
	EngineVersion = "1.0.0"
	APIVersion    = "1"
)

type Notifier func(method string, params any)

// LLMClient is the chat endpoint seam; openai.Client is the production
// implementation, the fake drives tests.
type LLMClient interface {
	Chat(ctx context.Context, req openai.Request, messages []llm.Message) (string, error)
	ChatWithTools(ctx context.Context, req openai.Request, messages []llm.ChatMessage, tools []llm.Tool) (llm.ChatResponse, error)
}

type runHandle struct {
	runID  string
	cancel context.CancelFunc
}

type Engine struct {
	dataDir       string
	settings      *settings.Store
	client        LLMClient
	files         storage.Store
	proposals     *proposal.Store
	notify        Notifier
	logger        *slog.Logger
	newFetcher    func(timeout time.Duration, maxChars int) contextbuild.Fetcher
	convMu        sync.Mutex
	conversations map[string]*Conversation
	runMu         sync.Mutex
	runs          map[string]runHandle
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithLLMClient(client LLMClient) Option {
	return func(e *Engine) {
		if client != nil {
			e.client = client
		}
	}
}

func WithStorage(files storage.Store) Option {
	return func(e *Engine) {
		if files != nil {
			e.files = files
		}
	}
}

func WithFetcherFactory(factory func(timeout time.Duration, maxChars int) contextbuild.Fetcher) Option {
	return func(e *Engine) {
		if factory != nil {
			e.newFetcher = factory
		}
	}
}

func New(opts ...Option) (*Engine, error) {
	engine := &Engine{logger: logging.Nop()}
	for _, opt := range opts {
		opt(engine)
	}
	dataDir, err := appdirs.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	engine.dataDir = dataDir
	engine.settings = settings.NewStore(filepath.Join(dataDir, "settings.json"))
	if engine.client == nil {
		if envutil.Bool("ASSISTANT_FAKE_OPENAI") {
			engine.client = newFakeClient()
		} else {
			engine.client = openai.NewClient()
		}
	}
	if engine.files == nil {
		engine.files = storage.NewOS()
	}
	engine.proposals = proposal.NewStore(engine.files)
	if engine.newFetcher == nil {
		engine.newFetcher = func(timeout time.Duration, maxChars int) contextbuild.Fetcher {
			return fetch.New(timeout, maxChars)
		}
	}
	engine.conversations = make(map[string]*Conversation)
	engine.runs = make(map[string]runHandle)
	engine.logger.Debug("engine.init", "data_dir", dataDir, "fake_openai", envutil.Bool("ASSISTANT_FAKE_OPENAI"))
	return engine, nil
}

func (e *Engine) SetNotifier(notify Notifier) {
	e.notify = notify
}

func (e *Engine) EngineGetInfo(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
	}, nil
}

// beginRun claims the single run slot for a conversation. A second
// submit while one is in flight is rejected rather than queued.
func (e *Engine) beginRun(parent context.Context, conversationID string) (context.Context, string, *errinfo.ErrorInfo) {
	runCtx, cancel := context.WithCancel(parent)
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())

	e.runMu.Lock()
	defer e.runMu.Unlock()
	if _, exists := e.runs[conversationID]; exists {
		cancel()
		return nil, "", errinfo.ConversationBusy(conversationID)
	}
	e.runs[conversationID] = runHandle{runID: runID, cancel: cancel}
	return runCtx, runID, nil
}

func (e *Engine) endRun(conversationID, runID string) {
	var cancel context.CancelFunc

	e.runMu.Lock()
	handle, ok := e.runs[conversationID]
	if ok && handle.runID == runID {
		cancel = handle.cancel
		delete(e.runs, conversationID)
	}
	e.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (e *Engine) cancelRun(conversationID string) bool {
	e.runMu.Lock()
	handle, ok := e.runs[conversationID]
	e.runMu.Unlock()
	if !ok || handle.cancel == nil {
		return false
	}
	handle.cancel()
	return true
}
