package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const schemaVersion = 1

const (
	DefaultBaseURL        = "http://localhost:11434/v1/chat/completions"
	DefaultModel          = "devstral-small-2:latest"
	DefaultPresetName     = "local"
	defaultRequestTimeout = 30
	defaultFetchTimeout   = 30
	defaultToolRounds     = 5
	defaultFetchChars     = 80000
)

const defaultSystemPrompt = "You are a coding assistant inside a text editor. " +
	"When you propose file changes, emit them as fenced code blocks whose info " +
	"string is language:path, for example ```python:src/app.py. Keep answers " +
	"concise and only include complete file contents inside fences."

// Preset names an OpenAI-compatible endpoint and the model to use there.
// APIKeyEnv is the environment variable holding the key, not the key
// itself; keys never land in settings.json.
type Preset struct {
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
}

type Settings struct {
	SchemaVersion         int               `json:"schema_version"`
	ActivePreset          string            `json:"active_preset"`
	Presets               map[string]Preset `json:"presets"`
	SystemPrompt          string            `json:"system_prompt,omitempty"`
	RequestTimeoutSeconds int               `json:"request_timeout_seconds"`
	FetchTimeoutSeconds   int               `json:"fetch_timeout_seconds"`
	MaxToolRounds         int               `json:"max_tool_rounds"`
	MaxFetchChars         int               `json:"max_fetch_chars"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSettings(), nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	backfillSettings(&settings)
	return &settings, nil
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backfillSettings(settings)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	return settings, s.Save(settings)
}

// Active returns the preset selected by ActivePreset, falling back to the
// default preset when the name does not resolve.
func (s *Settings) Active() Preset {
	if preset, ok := s.Presets[s.ActivePreset]; ok {
		return preset
	}
	return defaultPreset()
}

func defaultSettings() *Settings {
	return &Settings{
		SchemaVersion: schemaVersion,
		ActivePreset:  DefaultPresetName,
		Presets: map[string]Preset{
			DefaultPresetName: defaultPreset(),
		},
		SystemPrompt:          defaultSystemPrompt,
		RequestTimeoutSeconds: defaultRequestTimeout,
		FetchTimeoutSeconds:   defaultFetchTimeout,
		MaxToolRounds:         defaultToolRounds,
		MaxFetchChars:         defaultFetchChars,
	}
}

func defaultPreset() Preset {
	return Preset{BaseURL: DefaultBaseURL, Model: DefaultModel}
}

func backfillSettings(settings *Settings) {
	if settings.SchemaVersion == 0 {
		settings.SchemaVersion = schemaVersion
	}
	if settings.Presets == nil {
		settings.Presets = map[string]Preset{}
	}
	if _, ok := settings.Presets[DefaultPresetName]; !ok {
		settings.Presets[DefaultPresetName] = defaultPreset()
	}
	for name, preset := range settings.Presets {
		settings.Presets[name] = backfillPreset(preset)
	}
	if strings.TrimSpace(settings.ActivePreset) == "" {
		settings.ActivePreset = DefaultPresetName
	}
	if strings.TrimSpace(settings.SystemPrompt) == "" {
		settings.SystemPrompt = defaultSystemPrompt
	}
	if settings.RequestTimeoutSeconds <= 0 {
		settings.RequestTimeoutSeconds = defaultRequestTimeout
	}
	if settings.FetchTimeoutSeconds <= 0 {
		settings.FetchTimeoutSeconds = defaultFetchTimeout
	}
	if settings.MaxToolRounds <= 0 {
		settings.MaxToolRounds = defaultToolRounds
	}
	if settings.MaxFetchChars <= 0 {
		settings.MaxFetchChars = defaultFetchChars
	}
}

func backfillPreset(preset Preset) Preset {
	if strings.TrimSpace(preset.BaseURL) == "" {
		preset.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(preset.Model) == "" {
		preset.Model = DefaultModel
	}
	return preset
}
