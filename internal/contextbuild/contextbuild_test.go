package contextbuild

import (
	"context"
	"strings"
	"testing"

	"sublimeassistant/engine/internal/fetch"
)

type fakeResolver struct {
	files map[string]string
}

func (f *fakeResolver) Resolve(name string) (string, bool, error) {
	content, ok := f.files[name]
	return content, ok, nil
}

type fakeFetcher struct {
	calls   int
	results map[string]fetch.Result
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) fetch.Result {
	f.calls++
	if result, ok := f.results[url]; ok {
		return result
	}
	return fetch.Result{URL: url, Content: "fetched " + url}
}

func TestBuildSectionOrder(t *testing.T) {
	builder := NewBuilder(
		&fakeResolver{files: map[string]string{"util.py": "def util(): pass"}},
		&fakeFetcher{},
	)
	result := builder.Build(context.Background(), Input{
		Query:          "explain @util.py and https://example.com/doc",
		ActiveFile:     "print('main')",
		ActiveFilename: "main.py",
		Selection:      "print('sel')",
	})

	content := result.Content
	order := []string{
		"--- ACTIVE FILE (main.py) ---",
		"--- REFERENCED FILE: util.py ---",
		"--- FETCHED URL: https://example.com/doc ---",
		"--- SELECTED CODE ---",
		"--- QUERY ---",
	}
	last := -1
	for _, banner := range order {
		idx := strings.Index(content, banner)
		if idx < 0 {
			t.Fatalf("missing section %q in:\n%s", banner, content)
		}
		if idx < last {
			t.Fatalf("section %q out of order", banner)
		}
		last = idx
	}
	if !strings.Contains(content, "def util(): pass") {
		t.Fatalf("referenced file content missing")
	}
	if !strings.HasSuffix(content, "explain @util.py and https://example.com/doc") {
		t.Fatalf("query must be the final section")
	}
}

func TestBuildHints(t *testing.T) {
	builder := NewBuilder(
		&fakeResolver{files: map[string]string{"found.go": "package found"}},
		&fakeFetcher{results: map[string]fetch.Result{
			"https://bad.example.com": {URL: "https://bad.example.com", Content: "[Error fetching https://bad.example.com: HTTP 500]", Failed: true},
		}},
	)
	result := builder.Build(context.Background(), Input{
		Query:     "see @found.go @missing.go https://bad.example.com",
		Selection: "x := 1",
	})

	want := []string{"@found.go", "@missing.go (not found)", "url:https://bad.example.com (failed)", "selection"}
	if len(result.Hints) != len(want) {
		t.Fatalf("expected hints %v, got %v", want, result.Hints)
	}
	for i, hint := range want {
		if result.Hints[i] != hint {
			t.Fatalf("hint %d: expected %q, got %q", i, hint, result.Hints[i])
		}
	}
}

func TestBuildMissingReferenceInline(t *testing.T) {
	builder := NewBuilder(&fakeResolver{}, &fakeFetcher{})
	result := builder.Build(context.Background(), Input{Query: "use @ghost.txt please"})
	if !strings.Contains(result.Content, "--- REFERENCED FILE: ghost.txt (NOT FOUND) ---") {
		t.Fatalf("expected inline not-found marker:\n%s", result.Content)
	}
}

func TestBuildFetchesDistinctURLOnce(t *testing.T) {
	fetcher := &fakeFetcher{}
	builder := NewBuilder(&fakeResolver{}, fetcher)
	builder.Build(context.Background(), Input{
		Query: "compare https://example.com/a with https://example.com/a",
	})
	if fetcher.calls != 1 {
		t.Fatalf("expected one fetch for duplicate URL, got %d", fetcher.calls)
	}
}

func TestBuildFailedFetchKeepsErrorMarker(t *testing.T) {
	builder := NewBuilder(&fakeResolver{}, &fakeFetcher{results: map[string]fetch.Result{
		"https://down.example.com": {URL: "https://down.example.com", Content: "[Error fetching https://down.example.com: request timed out]", Failed: true},
	}})
	result := builder.Build(context.Background(), Input{Query: "read https://down.example.com"})
	if !strings.Contains(result.Content, "[Error fetching https://down.example.com: request timed out]") {
		t.Fatalf("expected error marker in content:\n%s", result.Content)
	}
}

func TestBuildQueryOnly(t *testing.T) {
	builder := NewBuilder(&fakeResolver{}, &fakeFetcher{})
	result := builder.Build(context.Background(), Input{Query: "just a question"})
	if result.Content != "--- QUERY ---\njust a question" {
		t.Fatalf("unexpected content %q", result.Content)
	}
	if len(result.Hints) != 0 {
		t.Fatalf("expected no hints, got %v", result.Hints)
	}
}
