package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

// Hunk is a contiguous run of changed lines with surrounding context.
// OldStart/NewStart are 1-based; a pure insertion has OldLines == 0 and
// OldStart pointing at the old line the insertion precedes.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldLines int    `json:"old_lines"`
	NewStart int    `json:"new_start"`
	NewLines int    `json:"new_lines"`
	Lines    []Line `json:"lines"`
}

// FileDiff is the full diff between a baseline and a proposed content.
type FileDiff struct {
	Hunks           []Hunk `json:"hunks"`
	TrailingNewline bool   `json:"trailing_newline"`
}

const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

const contextRadius = 3

// Compute diffs baseline against proposed at line granularity and groups
// the result into hunks with three lines of context.
func Compute(baseline, proposed string) FileDiff {
	return FileDiff{
		Hunks:           group(classify(baseline, proposed)),
		TrailingNewline: proposed == "" || strings.HasSuffix(proposed, "\n"),
	}
}

// NewFile builds the diff for a proposal with no baseline: one hunk with
// every proposed line added.
func NewFile(proposed string) FileDiff {
	lines := splitLines(proposed)
	hunk := Hunk{OldStart: 1, OldLines: 0, NewStart: 1, NewLines: len(lines)}
	for i, text := range lines {
		hunk.Lines = append(hunk.Lines, Line{Type: LineAdded, Text: text, NewLine: i + 1})
	}
	fd := FileDiff{TrailingNewline: proposed == "" || strings.HasSuffix(proposed, "\n")}
	if len(hunk.Lines) > 0 {
		fd.Hunks = []Hunk{hunk}
	}
	return fd
}

// Apply replays fd against baseline and returns the reconstructed proposed
// content. Context and removed lines are verified against the baseline; a
// mismatch means the baseline is not the one the diff was computed from.
func Apply(baseline string, fd FileDiff) (string, error) {
	base := splitLines(baseline)
	var out []string
	cursor := 1
	for _, hunk := range fd.Hunks {
		if hunk.OldStart < cursor {
			return "", fmt.Errorf("hunk starts at line %d before cursor %d", hunk.OldStart, cursor)
		}
		for cursor < hunk.OldStart {
			if cursor-1 >= len(base) {
				return "", fmt.Errorf("hunk starts past end of baseline at line %d", hunk.OldStart)
			}
			out = append(out, base[cursor-1])
			cursor++
		}
		for _, line := range hunk.Lines {
			switch line.Type {
			case LineContext, LineRemoved:
				if cursor-1 >= len(base) {
					return "", fmt.Errorf("baseline ended before line %d", cursor)
				}
				if base[cursor-1] != line.Text {
					return "", fmt.Errorf("baseline mismatch at line %d", cursor)
				}
				if line.Type == LineContext {
					out = append(out, line.Text)
				}
				cursor++
			case LineAdded:
				out = append(out, line.Text)
			default:
				return "", fmt.Errorf("unknown line type %q", line.Type)
			}
		}
	}
	for cursor-1 < len(base) {
		out = append(out, base[cursor-1])
		cursor++
	}
	if len(out) == 0 {
		return "", nil
	}
	joined := strings.Join(out, "\n")
	if fd.TrailingNewline {
		joined += "\n"
	}
	return joined, nil
}

func classify(baseline, proposed string) []Line {
	var lines []Line
	oldLine := 1
	newLine := 1
	for _, chunk := range diffLines(splitLines(baseline), splitLines(proposed)) {
		for _, line := range chunk.lines {
			switch chunk.op {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: line, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: line, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: line, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

type lineChunk struct {
	op    diffmatchpatch.Operation
	lines []string
}

// diffLines aligns two line slices by mapping each distinct line to a
// unique rune and diffing the rune sequences. The library's own line
// encoding packs decimal indices into a string, and the character diff
// then matches fragments of one index against another, yielding lines
// that exist in neither input.
func diffLines(oldLines, newLines []string) []lineChunk {
	tokens := map[string]rune{}
	byToken := map[rune]string{}
	next := rune(1)
	encode := func(lines []string) []rune {
		encoded := make([]rune, len(lines))
		for i, line := range lines {
			token, ok := tokens[line]
			if !ok {
				token = next
				tokens[line] = token
				byToken[token] = line
				next++
				if next == 0xD800 {
					// Surrogates do not survive the rune-to-string
					// conversion inside the diff.
					next = 0xE000
				}
			}
			encoded[i] = token
		}
		return encoded
	}
	encodedOld := encode(oldLines)
	encodedNew := encode(newLines)

	dmp := diffmatchpatch.New()
	var chunks []lineChunk
	for _, diff := range dmp.DiffMainRunes(encodedOld, encodedNew, false) {
		chunk := lineChunk{op: diff.Type}
		for _, token := range diff.Text {
			chunk.lines = append(chunk.lines, byToken[token])
		}
		if len(chunk.lines) > 0 {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// group collapses a flat classified line list into hunks, merging change
// runs whose context gap is at most twice the radius.
func group(lines []Line) []Hunk {
	var changed []int
	for i, line := range lines {
		if line.Type != LineContext {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	var hunks []Hunk
	start := changed[0]
	end := changed[0]
	flush := func() {
		lo := start - contextRadius
		if lo < 0 {
			lo = 0
		}
		hi := end + contextRadius
		if hi > len(lines)-1 {
			hi = len(lines) - 1
		}
		hunks = append(hunks, makeHunk(lines[lo:hi+1]))
	}
	for _, idx := range changed[1:] {
		if idx-end > 2*contextRadius {
			flush()
			start = idx
		}
		end = idx
	}
	flush()
	return hunks
}

func makeHunk(lines []Line) Hunk {
	hunk := Hunk{Lines: append([]Line(nil), lines...)}
	oldStart := 0
	newStart := 0
	for _, line := range lines {
		if line.OldLine > 0 {
			if oldStart == 0 {
				oldStart = line.OldLine
			}
			hunk.OldLines++
		}
		if line.NewLine > 0 {
			if newStart == 0 {
				newStart = line.NewLine
			}
			hunk.NewLines++
		}
	}
	if oldStart == 0 {
		// Pure insertion: anchor on the old side right where the new
		// lines land.
		oldStart = newStart
		if oldStart == 0 {
			oldStart = 1
		}
	}
	if newStart == 0 {
		newStart = oldStart
	}
	hunk.OldStart = oldStart
	hunk.NewStart = newStart
	return hunk
}

func splitLines(value string) []string {
	if value == "" {
		return nil
	}
	lines := strings.Split(value, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
