package engine

import (
	"context"
	"errors"
	"net"

	"sublimeassistant/engine/internal/errinfo"
	"sublimeassistant/engine/internal/llm"
)

func mapLLMError(phase, modelID string, err error) *errinfo.ErrorInfo {
	if errors.Is(err, llm.ErrUnauthorized) {
		info := errinfo.ProviderAuthFailed(phase)
		info.ModelID = modelID
		return info
	}
	if errors.Is(err, llm.ErrUnavailable) {
		info := errinfo.ProviderUnavailable(phase, err.Error())
		info.ModelID = modelID
		return info
	}
	if errors.Is(err, llm.ErrRateLimited) {
		info := errinfo.ProviderUnavailable(phase, err.Error())
		info.ModelID = modelID
		return info
	}
	if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		info := errinfo.NetworkTimeout(phase, errinfo.SubphaseChat, err.Error())
		info.ModelID = modelID
		return info
	}
	if errors.Is(err, context.Canceled) {
		info := errinfo.UserCanceled(phase, err.Error())
		info.ModelID = modelID
		return info
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		info := errinfo.NetworkUnavailable(phase, err.Error())
		info.ModelID = modelID
		return info
	}
	info := errinfo.ValidationFailed(phase, err.Error())
	info.ModelID = modelID
	return info
}
