package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"sublimeassistant/engine/internal/errinfo"
	"sublimeassistant/engine/internal/extract"
	"sublimeassistant/engine/internal/proposal"
)

// ProposalCreate turns one code block from an assistant message into a
// tracked proposal against a concrete file on disk.
func (e *Engine) ProposalCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		MessageID      string `json:"message_id"`
		Ordinal        int    `json:"ordinal"`
		ActivePath     string `json:"active_path"`
		ProjectRoot    string `json:"project_root"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseApply, "invalid params")
	}

	text, errInfo := e.messageContent(req.ConversationID, req.MessageID)
	if errInfo != nil {
		return nil, errInfo
	}
	blocks := extract.Blocks(req.MessageID, text)
	if req.Ordinal < 0 || req.Ordinal >= len(blocks) {
		return nil, errinfo.ValidationFailed(errinfo.PhaseApply,
			fmt.Sprintf("message has %d code blocks, ordinal %d out of range", len(blocks), req.Ordinal))
	}
	block := blocks[req.Ordinal]

	targetPath, errInfo := resolveTarget(block.Path, req.ProjectRoot, req.ActivePath)
	if errInfo != nil {
		return nil, errInfo
	}

	prop, err := e.proposals.Create(targetPath, block.Content, req.MessageID, req.Ordinal)
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseApply, err.Error())
	}
	e.logger.Info("proposal.create", "proposal_id", prop.ID, "target", targetPath, "message_id", req.MessageID, "ordinal", req.Ordinal)
	return prop, nil
}

// resolveTarget picks the file a proposal applies to: the block's own
// path wins, relative paths are anchored at the project root (or used as
// given when there is none), and a pathless block falls back to the
// active file.
func resolveTarget(blockPath, projectRoot, activePath string) (string, *errinfo.ErrorInfo) {
	if blockPath != "" {
		if filepath.IsAbs(blockPath) || projectRoot == "" {
			return blockPath, nil
		}
		return filepath.Join(projectRoot, blockPath), nil
	}
	if activePath != "" {
		return activePath, nil
	}
	return "", errinfo.ValidationFailed(errinfo.PhaseApply, "block has no path and no active file is open")
}

func (e *Engine) messageContent(conversationID, messageID string) (string, *errinfo.ErrorInfo) {
	e.convMu.Lock()
	defer e.convMu.Unlock()
	conv, ok := e.conversations[conversationID]
	if !ok {
		return "", errinfo.ValidationFailed(errinfo.PhaseApply, "unknown conversation")
	}
	for _, msg := range conv.Messages {
		if msg.ID == messageID {
			return msg.Content, nil
		}
	}
	return "", errinfo.ValidationFailed(errinfo.PhaseApply, "unknown message")
}

func (e *Engine) ProposalPreview(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	id, errInfo := proposalID(params)
	if errInfo != nil {
		return nil, errInfo
	}
	prop, err := e.proposals.Preview(id)
	if err != nil {
		return nil, mapProposalError(id, err)
	}
	e.logger.Info("proposal.preview", "proposal_id", id, "hunks", len(prop.Diff.Hunks))
	return prop, nil
}

func (e *Engine) ProposalAccept(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	id, errInfo := proposalID(params)
	if errInfo != nil {
		return nil, errInfo
	}
	prop, err := e.proposals.Accept(id)
	if err != nil {
		return nil, mapProposalError(id, err)
	}
	e.logger.Info("proposal.accept", "proposal_id", id, "target", prop.TargetPath)
	if e.notify != nil {
		e.notify("ProposalApplied", map[string]any{
			"proposal_id": prop.ID,
			"target_path": prop.TargetPath,
		})
	}
	return prop, nil
}

func (e *Engine) ProposalReject(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	id, errInfo := proposalID(params)
	if errInfo != nil {
		return nil, errInfo
	}
	prop, err := e.proposals.Reject(id)
	if err != nil {
		return nil, mapProposalError(id, err)
	}
	e.logger.Info("proposal.reject", "proposal_id", id)
	return prop, nil
}

func (e *Engine) ProposalGet(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	id, errInfo := proposalID(params)
	if errInfo != nil {
		return nil, errInfo
	}
	prop, err := e.proposals.Get(id)
	if err != nil {
		return nil, mapProposalError(id, err)
	}
	return prop, nil
}

func (e *Engine) ProposalList(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{"proposals": e.proposals.List()}, nil
}

func proposalID(params json.RawMessage) (string, *errinfo.ErrorInfo) {
	var req struct {
		ProposalID string `json:"proposal_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return "", errinfo.ValidationFailed(errinfo.PhaseApply, "invalid params")
	}
	if req.ProposalID == "" {
		return "", errinfo.ValidationFailed(errinfo.PhaseApply, "proposal_id is required")
	}
	return req.ProposalID, nil
}

func mapProposalError(id string, err error) *errinfo.ErrorInfo {
	switch {
	case errors.Is(err, proposal.ErrStale):
		return errinfo.StaleBaseline(id)
	case errors.Is(err, proposal.ErrUnwritable):
		return errinfo.TargetUnwritable(id, err.Error())
	case errors.Is(err, proposal.ErrNotFound):
		return errinfo.ValidationFailed(errinfo.PhaseApply, "unknown proposal")
	default:
		return errinfo.ValidationFailed(errinfo.PhaseApply, err.Error())
	}
}
