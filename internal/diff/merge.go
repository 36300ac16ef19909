package diff

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var defPattern = regexp.MustCompile(`(?m)^(?:async\s+)?(?:def|class)\s+(\w+)`)
var defLinePattern = regexp.MustCompile(`^(?:async\s+)?(?:def|class)\s`)

// MergeSnippet folds a possibly-partial code block into the baseline.
// A block that rewrites a single def/class and is clearly shorter than
// the file replaces just that region; inside the region, baseline lines
// the block stops short of are kept, since models often truncate their
// output. Any other block replaces the file wholesale.
func MergeSnippet(baseline, snippet string) string {
	origLines := splitLines(baseline)
	snippetLines := splitLines(snippet)
	if len(origLines) == 0 {
		return snippet
	}
	if float64(len(snippetLines)) < float64(len(origLines))*0.85 {
		if start, end, ok := findSnippetRegion(origLines, snippet); ok {
			merged := mergeLines(origLines[start:end], snippetLines)
			out := make([]string, 0, len(origLines)+len(merged))
			out = append(out, origLines[:start]...)
			out = append(out, merged...)
			out = append(out, origLines[end:]...)
			if len(out) == 0 {
				return ""
			}
			joined := strings.Join(out, "\n")
			if strings.HasSuffix(baseline, "\n") {
				joined += "\n"
			}
			return joined
		}
	}
	return snippet
}

// mergeLines merges snippet lines over a region of the original.
// Equal runs keep the original, replaced and inserted runs take the
// snippet, and removed runs are dropped unless they trail everything the
// snippet covered, in which case they are kept as truncation.
func mergeLines(orig, snippet []string) []string {
	type span struct {
		op        diffmatchpatch.Operation
		lines     []string
		origStart int
		origEnd   int
	}

	chunks := diffLines(orig, snippet)
	var spans []span
	origIdx := 0
	for i := 0; i < len(chunks); i++ {
		chunk := chunks[i]
		switch chunk.op {
		case diffmatchpatch.DiffEqual:
			spans = append(spans, span{op: chunk.op, lines: chunk.lines, origStart: origIdx, origEnd: origIdx + len(chunk.lines)})
			origIdx += len(chunk.lines)
		case diffmatchpatch.DiffDelete:
			if i+1 < len(chunks) && chunks[i+1].op == diffmatchpatch.DiffInsert {
				// Delete plus insert is a replacement, not a removal.
				spans = append(spans, span{op: diffmatchpatch.DiffInsert, lines: chunks[i+1].lines, origStart: origIdx, origEnd: origIdx + len(chunk.lines)})
				origIdx += len(chunk.lines)
				i++
				continue
			}
			spans = append(spans, span{op: chunk.op, lines: chunk.lines, origStart: origIdx, origEnd: origIdx + len(chunk.lines)})
			origIdx += len(chunk.lines)
		case diffmatchpatch.DiffInsert:
			spans = append(spans, span{op: chunk.op, lines: chunk.lines, origStart: origIdx, origEnd: origIdx})
		}
	}

	lastCovered := 0
	for _, s := range spans {
		if s.op != diffmatchpatch.DiffDelete {
			lastCovered = s.origEnd
		}
	}

	var result []string
	for _, s := range spans {
		if s.op == diffmatchpatch.DiffDelete {
			if s.origStart >= lastCovered {
				result = append(result, orig[s.origStart:s.origEnd]...)
			}
			continue
		}
		result = append(result, s.lines...)
	}
	return result
}

// findSnippetRegion locates the def/class the snippet rewrites: the
// region runs from the matching definition in the original to the next
// definition at the same or lesser indent.
func findSnippetRegion(origLines []string, snippet string) (int, int, bool) {
	match := defPattern.FindStringSubmatch(snippet)
	if match == nil {
		return 0, 0, false
	}
	name := match[1]
	namePattern, err := regexp.Compile(`^(?:async\s+)?(?:def|class)\s+` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return 0, 0, false
	}

	start := -1
	indent := 0
	for i, line := range origLines {
		stripped := strings.TrimLeft(line, " \t")
		if namePattern.MatchString(stripped) {
			start = i
			indent = len(line) - len(stripped)
			break
		}
	}
	if start < 0 {
		return 0, 0, false
	}

	end := len(origLines)
	for i := start + 1; i < len(origLines); i++ {
		line := origLines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		stripped := strings.TrimLeft(line, " \t")
		if len(line)-len(stripped) <= indent && defLinePattern.MatchString(stripped) {
			end = i
			break
		}
	}
	return start, end, true
}
