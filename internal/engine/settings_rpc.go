package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"sublimeassistant/engine/internal/errinfo"
	"sublimeassistant/engine/internal/settings"
)

func (e *Engine) SettingsGet(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	loaded, err := e.settings.Load()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	return loaded, nil
}

// SettingsUpdate merges the provided fields into the stored settings.
// Absent fields keep their current values; presets are replaced by name.
func (e *Engine) SettingsUpdate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		SystemPrompt          *string                    `json:"system_prompt"`
		RequestTimeoutSeconds *int                       `json:"request_timeout_seconds"`
		FetchTimeoutSeconds   *int                       `json:"fetch_timeout_seconds"`
		MaxToolRounds         *int                       `json:"max_tool_rounds"`
		MaxFetchChars         *int                       `json:"max_fetch_chars"`
		Presets               map[string]settings.Preset `json:"presets"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	updated, err := e.settings.Update(func(s *settings.Settings) {
		if req.SystemPrompt != nil {
			s.SystemPrompt = *req.SystemPrompt
		}
		if req.RequestTimeoutSeconds != nil {
			s.RequestTimeoutSeconds = *req.RequestTimeoutSeconds
		}
		if req.FetchTimeoutSeconds != nil {
			s.FetchTimeoutSeconds = *req.FetchTimeoutSeconds
		}
		if req.MaxToolRounds != nil {
			s.MaxToolRounds = *req.MaxToolRounds
		}
		if req.MaxFetchChars != nil {
			s.MaxFetchChars = *req.MaxFetchChars
		}
		for name, preset := range req.Presets {
			s.Presets[name] = preset
		}
	})
	if err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Info("settings.update")
	return updated, nil
}

func (e *Engine) SettingsSetActivePreset(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Preset string `json:"preset"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	loaded, err := e.settings.Load()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	if _, ok := loaded.Presets[req.Preset]; !ok {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, fmt.Sprintf("unknown preset %q", req.Preset))
	}
	updated, err := e.settings.Update(func(s *settings.Settings) {
		s.ActivePreset = req.Preset
	})
	if err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Info("settings.set_active_preset", "preset", req.Preset)
	return updated, nil
}
