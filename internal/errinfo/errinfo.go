package errinfo

import "fmt"

// ErrorInfo is the structured error payload surfaced over RPC.
type ErrorInfo struct {
	ErrorCode      string   `json:"error_code"`
	Phase          string   `json:"phase,omitempty"`
	Subphase       string   `json:"subphase,omitempty"`
	Retryable      bool     `json:"retryable"`
	Actions        []string `json:"actions,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	ProposalID     string   `json:"proposal_id,omitempty"`
	ModelID        string   `json:"model_id,omitempty"`
	Detail         string   `json:"detail,omitempty"`
}

const (
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderAuthFailed    = "PROVIDER_AUTH_FAILED"
	CodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeNetworkUnavailable    = "NETWORK_UNAVAILABLE"
	CodeNetworkTimeout        = "NETWORK_TIMEOUT"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeFileReadFailed        = "FILE_READ_FAILED"
	CodeFileWriteFailed       = "FILE_WRITE_FAILED"
	CodeUserCanceled          = "USER_CANCELED"
	CodeConversationBusy      = "CONVERSATION_BUSY"
	CodeToolLoopLimit         = "TOOL_LOOP_LIMIT_EXCEEDED"
	CodeStaleBaseline         = "STALE_BASELINE"
	CodeTargetUnwritable      = "TARGET_UNWRITABLE"
)

const (
	ActionRetry        = "retry"
	ActionOpenSettings = "open_settings"
	ActionRePreview    = "re_preview"
)

const (
	PhaseConversation = "conversation"
	PhaseContext      = "context"
	PhaseApply        = "apply"
	PhaseSettings     = "settings"
)

const (
	SubphaseChat     = "chat"
	SubphaseToolCall = "tool_call"
	SubphaseFetch    = "fetch"
	SubphasePreview  = "preview"
	SubphaseWrite    = "write"
)

func ProviderNotConfigured(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderNotConfigured,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderAuthFailed(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderAuthFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func NetworkUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNetworkUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func NetworkTimeout(phase, subphase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNetworkTimeout,
		Phase:     phase,
		Subphase:  subphase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func ValidationFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func FileReadFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileReadFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func FileWriteFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileWriteFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func UserCanceled(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeUserCanceled,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func ConversationBusy(conversationID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:      CodeConversationBusy,
		Phase:          PhaseConversation,
		Retryable:      true,
		Actions:        []string{ActionRetry},
		ConversationID: conversationID,
		Detail:         "a run is already in progress for this conversation",
	}
}

func ToolLoopLimit(conversationID string, rounds int) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:      CodeToolLoopLimit,
		Phase:          PhaseConversation,
		Subphase:       SubphaseToolCall,
		Retryable:      false,
		ConversationID: conversationID,
		Detail:         fmt.Sprintf("tool loop stopped after %d rounds", rounds),
	}
}

func StaleBaseline(proposalID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:  CodeStaleBaseline,
		Phase:      PhaseApply,
		Retryable:  true,
		Actions:    []string{ActionRePreview},
		ProposalID: proposalID,
		Detail:     "target file changed since the proposal was created",
	}
}

func TargetUnwritable(proposalID, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:  CodeTargetUnwritable,
		Phase:      PhaseApply,
		Subphase:   SubphaseWrite,
		Retryable:  true,
		Actions:    []string{ActionRetry},
		ProposalID: proposalID,
		Detail:     detail,
	}
}
