package extract

import "testing"

func TestBlocksLanguageAndPath(t *testing.T) {
	text := "Here you go:\n```py:a/b.py\nprint('hi')\n```\nDone."
	blocks := Blocks("m-1", text)
	if len(blocks) != 1 {
		t.Fatalf("expected one block, got %d", len(blocks))
	}
	block := blocks[0]
	if block.Language != "py" {
		t.Fatalf("expected language py, got %q", block.Language)
	}
	if block.Path != "a/b.py" {
		t.Fatalf("expected path a/b.py, got %q", block.Path)
	}
	if block.Content != "print('hi')" {
		t.Fatalf("unexpected content %q", block.Content)
	}
	if block.SourceMessageID != "m-1" || block.Ordinal != 0 {
		t.Fatalf("unexpected block identity %+v", block)
	}
}

func TestBlocksLanguageOnly(t *testing.T) {
	blocks := Blocks("m-1", "```go\npackage main\n```")
	if len(blocks) != 1 {
		t.Fatalf("expected one block, got %d", len(blocks))
	}
	if blocks[0].Language != "go" || blocks[0].Path != "" {
		t.Fatalf("expected bare language, got %+v", blocks[0])
	}
}

func TestBlocksBareFence(t *testing.T) {
	blocks := Blocks("m-1", "```\nplain text\n```")
	if len(blocks) != 1 {
		t.Fatalf("expected one block, got %d", len(blocks))
	}
	if blocks[0].Language != "" || blocks[0].Path != "" {
		t.Fatalf("expected empty language and path, got %+v", blocks[0])
	}
}

func TestBlocksOrdinalOrder(t *testing.T) {
	text := "```py:one.py\n1\n```\nmiddle\n```py:two.py\n2\n```"
	blocks := Blocks("m-1", text)
	if len(blocks) != 2 {
		t.Fatalf("expected two blocks, got %d", len(blocks))
	}
	if blocks[0].Path != "one.py" || blocks[0].Ordinal != 0 {
		t.Fatalf("unexpected first block %+v", blocks[0])
	}
	if blocks[1].Path != "two.py" || blocks[1].Ordinal != 1 {
		t.Fatalf("unexpected second block %+v", blocks[1])
	}
}

func TestBlocksUnterminatedFence(t *testing.T) {
	blocks := Blocks("m-1", "```py:a.py\nno closing fence here")
	if len(blocks) != 0 {
		t.Fatalf("expected no blocks for unterminated fence, got %d", len(blocks))
	}
}

func TestBlocksUnterminatedAfterComplete(t *testing.T) {
	text := "```py:done.py\nok\n```\ntrailing ```py:half.py\nnope"
	blocks := Blocks("m-1", text)
	if len(blocks) != 1 {
		t.Fatalf("expected one complete block, got %d", len(blocks))
	}
	if blocks[0].Path != "done.py" {
		t.Fatalf("unexpected block %+v", blocks[0])
	}
}

func TestBlocksNoFences(t *testing.T) {
	if blocks := Blocks("m-1", "just prose, nothing fenced"); len(blocks) != 0 {
		t.Fatalf("expected empty result, got %d", len(blocks))
	}
}

func TestBlocksPreservesInteriorWhitespace(t *testing.T) {
	text := "```txt:notes.txt\nline one\n\n  indented\n```"
	blocks := Blocks("m-1", text)
	if len(blocks) != 1 {
		t.Fatalf("expected one block, got %d", len(blocks))
	}
	if blocks[0].Content != "line one\n\n  indented" {
		t.Fatalf("content not verbatim: %q", blocks[0].Content)
	}
}

func TestBlocksIdempotent(t *testing.T) {
	text := "```py:a.py\nx = 1\n```"
	first := Blocks("m-1", text)
	second := Blocks("m-1", text)
	if len(first) != len(second) {
		t.Fatalf("extraction not stable: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("block %d differs between runs", i)
		}
	}
}
