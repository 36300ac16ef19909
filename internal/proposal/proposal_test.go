package proposal

import (
	"errors"
	"fmt"
	"testing"

	"sublimeassistant/engine/internal/diff"
)

type memStore struct {
	files    map[string]string
	failPath string
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string]string)}
}

func (m *memStore) Read(path string) (string, bool, error) {
	content, ok := m.files[path]
	return content, ok, nil
}

func (m *memStore) Write(path, content string) error {
	if path == m.failPath {
		return fmt.Errorf("permission denied")
	}
	m.files[path] = content
	return nil
}

func TestAcceptWritesProposedContent(t *testing.T) {
	files := newMemStore()
	files.files["a.py"] = "old\n"
	store := NewStore(files)

	prop, err := store.Create("a.py", "new\n", "m-1", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if prop.Status != StatusProposed {
		t.Fatalf("expected proposed, got %s", prop.Status)
	}

	prop, err = store.Preview(prop.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if prop.Status != StatusPreviewed {
		t.Fatalf("expected previewed, got %s", prop.Status)
	}

	prop, err = store.Accept(prop.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if prop.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", prop.Status)
	}
	if files.files["a.py"] != "new\n" {
		t.Fatalf("target not written: %q", files.files["a.py"])
	}
}

func TestStalenessForcesRePreview(t *testing.T) {
	files := newMemStore()
	files.files["a.py"] = "v1\n"
	store := NewStore(files)

	prop, err := store.Create("a.py", "proposed\n", "m-1", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Preview(prop.ID); err != nil {
		t.Fatalf("preview: %v", err)
	}

	// Target drifts between preview and accept.
	files.files["a.py"] = "v2\n"

	got, err := store.Accept(prop.ID)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale error, got %v", err)
	}
	if got.Status != StatusProposed {
		t.Fatalf("expected drop back to proposed, got %s", got.Status)
	}
	if _, ok := files.files["a.py"]; files.files["a.py"] != "v2\n" || !ok {
		t.Fatalf("accept must not write on staleness")
	}

	// Second preview succeeds against the refreshed baseline.
	got, err = store.Preview(prop.ID)
	if err != nil {
		t.Fatalf("re-preview: %v", err)
	}
	if got.Status != StatusPreviewed {
		t.Fatalf("expected previewed after refresh, got %s", got.Status)
	}
	if _, err := store.Accept(prop.ID); err != nil {
		t.Fatalf("accept after re-preview: %v", err)
	}
	if files.files["a.py"] != "proposed\n" {
		t.Fatalf("target not written after re-preview")
	}
}

func TestPreviewDetectsDrift(t *testing.T) {
	files := newMemStore()
	files.files["a.py"] = "v1\n"
	store := NewStore(files)

	prop, _ := store.Create("a.py", "proposed\n", "m-1", 0)
	files.files["a.py"] = "v2\n"

	got, err := store.Preview(prop.ID)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale on preview, got %v", err)
	}
	if got.Status != StatusProposed {
		t.Fatalf("expected proposed, got %s", got.Status)
	}

	got, err = store.Preview(prop.ID)
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}
	if got.Status != StatusPreviewed {
		t.Fatalf("expected previewed, got %s", got.Status)
	}
}

func TestPreviewIdempotent(t *testing.T) {
	files := newMemStore()
	files.files["a.py"] = "v1\n"
	store := NewStore(files)

	prop, _ := store.Create("a.py", "new\n", "m-1", 0)
	first, err := store.Preview(prop.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	second, err := store.Preview(prop.ID)
	if err != nil {
		t.Fatalf("repeat preview: %v", err)
	}
	if first.Status != second.Status || len(first.Diff.Hunks) != len(second.Diff.Hunks) {
		t.Fatalf("preview not idempotent")
	}
}

func TestNewFileProposal(t *testing.T) {
	files := newMemStore()
	store := NewStore(files)

	prop, err := store.Create("fresh.py", "content\n", "m-1", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if prop.BaselineExists {
		t.Fatalf("expected new-file proposal")
	}
	if len(prop.Diff.Hunks) != 1 {
		t.Fatalf("expected one hunk, got %d", len(prop.Diff.Hunks))
	}
	for _, line := range prop.Diff.Hunks[0].Lines {
		if line.Type != diff.LineAdded {
			t.Fatalf("expected all lines added, got %s", line.Type)
		}
	}

	if _, err := store.Preview(prop.ID); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if _, err := store.Accept(prop.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if files.files["fresh.py"] != "content\n" {
		t.Fatalf("new file not created")
	}
}

func TestNewFileStaleWhenTargetAppears(t *testing.T) {
	files := newMemStore()
	store := NewStore(files)

	prop, _ := store.Create("fresh.py", "content\n", "m-1", 0)
	if _, err := store.Preview(prop.ID); err != nil {
		t.Fatalf("preview: %v", err)
	}

	// Someone creates the file before accept.
	files.files["fresh.py"] = "surprise\n"

	got, err := store.Accept(prop.ID)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale when target appeared, got %v", err)
	}
	if !got.BaselineExists {
		t.Fatalf("expected refreshed baseline to exist")
	}
}

func TestAcceptRequiresPreview(t *testing.T) {
	files := newMemStore()
	files.files["a.py"] = "v1\n"
	store := NewStore(files)

	prop, _ := store.Create("a.py", "new\n", "m-1", 0)
	if _, err := store.Accept(prop.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for accept without preview, got %v", err)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	files := newMemStore()
	files.files["a.py"] = "v1\n"
	store := NewStore(files)

	prop, _ := store.Create("a.py", "new\n", "m-1", 0)
	if _, err := store.Preview(prop.ID); err != nil {
		t.Fatalf("preview: %v", err)
	}
	got, err := store.Reject(prop.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
	if files.files["a.py"] != "v1\n" {
		t.Fatalf("reject must not write")
	}
	if _, err := store.Accept(prop.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state after reject, got %v", err)
	}
	if _, err := store.Preview(prop.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state preview after reject, got %v", err)
	}
}

func TestWriteFailureKeepsProposalAcceptable(t *testing.T) {
	files := newMemStore()
	files.files["a.py"] = "v1\n"
	files.failPath = "a.py"
	store := NewStore(files)

	prop, _ := store.Create("a.py", "new\n", "m-1", 0)
	if _, err := store.Preview(prop.ID); err != nil {
		t.Fatalf("preview: %v", err)
	}
	got, err := store.Accept(prop.ID)
	if !errors.Is(err, ErrUnwritable) {
		t.Fatalf("expected unwritable error, got %v", err)
	}
	if got.Status != StatusPreviewed {
		t.Fatalf("expected to stay previewed for retry, got %s", got.Status)
	}

	files.failPath = ""
	if _, err := store.Accept(prop.ID); err != nil {
		t.Fatalf("retry accept: %v", err)
	}
	if files.files["a.py"] != "new\n" {
		t.Fatalf("retry did not write")
	}
}

func TestUnknownProposal(t *testing.T) {
	store := NewStore(newMemStore())
	if _, err := store.Preview("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateMergesPartialSnippet(t *testing.T) {
	files := newMemStore()
	files.files["app.py"] = "def a():\n    x = 1\n    return x\n\n\ndef b():\n    return 2\n"
	store := NewStore(files)

	// The block rewrites only def a; def b must survive the accept.
	prop, err := store.Create("app.py", "def a():\n    x = 10\n    return x\n", "m-1", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Preview(prop.ID); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if _, err := store.Accept(prop.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	want := "def a():\n    x = 10\n    return x\n\n\ndef b():\n    return 2\n"
	if files.files["app.py"] != want {
		t.Fatalf("merged accept:\n got %q\nwant %q", files.files["app.py"], want)
	}
}

func TestStaleRefreshRemergesSnippet(t *testing.T) {
	files := newMemStore()
	files.files["app.py"] = "def a():\n    return 1\n\n\ndef b():\n    return 2\n"
	store := NewStore(files)

	prop, err := store.Create("app.py", "def a():\n    return 10\n", "m-1", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// def b changes on disk before preview; the refreshed merge must
	// carry the new def b, not the one captured at create time.
	files.files["app.py"] = "def a():\n    return 1\n\n\ndef b():\n    return 22\n"

	if _, err := store.Preview(prop.ID); !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale, got %v", err)
	}
	if _, err := store.Preview(prop.ID); err != nil {
		t.Fatalf("re-preview: %v", err)
	}
	if _, err := store.Accept(prop.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	want := "def a():\n    return 10\ndef b():\n    return 22\n"
	if files.files["app.py"] != want {
		t.Fatalf("re-merged accept:\n got %q\nwant %q", files.files["app.py"], want)
	}
}

func TestListCreationOrder(t *testing.T) {
	files := newMemStore()
	store := NewStore(files)

	var ids []string
	for _, path := range []string{"one.py", "two.py", "three.py"} {
		prop, err := store.Create(path, "content\n", "m-1", 0)
		if err != nil {
			t.Fatalf("create %s: %v", path, err)
		}
		ids = append(ids, prop.ID)
	}

	listed := store.List()
	if len(listed) != len(ids) {
		t.Fatalf("listed %d, want %d", len(listed), len(ids))
	}
	for i, prop := range listed {
		if prop.ID != ids[i] {
			t.Fatalf("position %d: got %s, want %s", i, prop.ID, ids[i])
		}
	}
}
