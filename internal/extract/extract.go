// Package extract pulls fenced code blocks out of assistant replies.
package extract

import "strings"

// Block is one fenced code block from an assistant message. Path is empty
// when the fence info string carried no ":path" part. Ordinal is the
// block's position within its source message, starting at zero.
type Block struct {
	SourceMessageID string `json:"source_message_id"`
	Language        string `json:"language"`
	Path            string `json:"path,omitempty"`
	Content         string `json:"content"`
	Ordinal         int    `json:"ordinal"`
}

const fence = "```"

// Blocks scans text for fenced code blocks. The info string is split on
// the first ':' into language and target path. Content is taken verbatim
// between the info line and the closing fence, with at most one trailing
// newline stripped. An unterminated fence yields nothing. The scan is
// pure: calling it twice on the same input returns the same blocks.
func Blocks(messageID, text string) []Block {
	var blocks []Block
	for len(text) > 0 {
		start := strings.Index(text, fence)
		if start < 0 {
			break
		}
		remaining := text[start+len(fence):]
		newline := strings.Index(remaining, "\n")
		if newline < 0 {
			break
		}
		info := strings.TrimSpace(remaining[:newline])
		contentAndTail := remaining[newline+1:]
		end := strings.Index(contentAndTail, fence)
		if end < 0 {
			break
		}
		content := contentAndTail[:end]
		content = strings.TrimSuffix(content, "\n")
		language, path := splitInfo(info)
		blocks = append(blocks, Block{
			SourceMessageID: messageID,
			Language:        language,
			Path:            path,
			Content:         content,
			Ordinal:         len(blocks),
		})
		text = contentAndTail[end+len(fence):]
	}
	return blocks
}

func splitInfo(info string) (language, path string) {
	idx := strings.Index(info, ":")
	if idx < 0 {
		return info, ""
	}
	return strings.TrimSpace(info[:idx]), strings.TrimSpace(info[idx+1:])
}
