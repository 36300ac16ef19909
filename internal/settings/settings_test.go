package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettingsRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.ActivePreset != DefaultPresetName {
		t.Fatalf("expected active preset %q, got %q", DefaultPresetName, settings.ActivePreset)
	}
	local := settings.Presets[DefaultPresetName]
	if local.BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", local.BaseURL)
	}
	if local.Model != DefaultModel {
		t.Fatalf("expected default model, got %q", local.Model)
	}
	if settings.MaxToolRounds != 5 {
		t.Fatalf("expected 5 tool rounds default, got %d", settings.MaxToolRounds)
	}
	if settings.MaxFetchChars != 80000 {
		t.Fatalf("expected 80000 fetch chars default, got %d", settings.MaxFetchChars)
	}

	settings.Presets["remote"] = Preset{
		BaseURL:   "https://api.mistral.ai/v1/chat/completions",
		Model:     "devstral-small-latest",
		APIKeyEnv: "MISTRAL_API_KEY",
	}
	settings.ActivePreset = "remote"
	settings.RequestTimeoutSeconds = 60
	if err := store.Save(settings); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.ActivePreset != "remote" {
		t.Fatalf("expected remote active, got %q", loaded.ActivePreset)
	}
	active := loaded.Active()
	if active.Model != "devstral-small-latest" {
		t.Fatalf("expected remote model, got %q", active.Model)
	}
	if active.APIKeyEnv != "MISTRAL_API_KEY" {
		t.Fatalf("expected api key env to round trip, got %q", active.APIKeyEnv)
	}
	if loaded.RequestTimeoutSeconds != 60 {
		t.Fatalf("expected 60s request timeout, got %d", loaded.RequestTimeoutSeconds)
	}
}

func TestLoadBackfillsPartialSettings(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "settings.json")
	partial := `{
  "schema_version": 1,
  "active_preset": "remote",
  "presets": {
    "remote": {"base_url": "https://example.test/v1/chat/completions"}
  }
}`
	if err := os.WriteFile(path, []byte(partial), 0o600); err != nil {
		t.Fatalf("write partial settings: %v", err)
	}

	store := NewStore(path)
	settings, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := settings.Presets[DefaultPresetName]; !ok {
		t.Fatalf("expected local preset to be backfilled")
	}
	remote := settings.Presets["remote"]
	if remote.Model != DefaultModel {
		t.Fatalf("expected missing model to backfill, got %q", remote.Model)
	}
	if settings.FetchTimeoutSeconds != 30 {
		t.Fatalf("expected fetch timeout backfill, got %d", settings.FetchTimeoutSeconds)
	}
	if settings.SystemPrompt == "" {
		t.Fatalf("expected system prompt backfill")
	}
}

func TestActiveFallsBackWhenPresetMissing(t *testing.T) {
	settings := defaultSettings()
	settings.ActivePreset = "ghost"
	active := settings.Active()
	if active.BaseURL != DefaultBaseURL {
		t.Fatalf("expected fallback to default preset, got %q", active.BaseURL)
	}
}
