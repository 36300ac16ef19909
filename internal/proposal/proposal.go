// Package proposal tracks file-change proposals from creation through
// preview to accept or reject, guarding against the target drifting on
// disk in between.
package proposal

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sublimeassistant/engine/internal/diff"
	"sublimeassistant/engine/internal/storage"
)

type Status string

const (
	StatusProposed  Status = "proposed"
	StatusPreviewed Status = "previewed"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

var (
	ErrNotFound     = errors.New("proposal not found")
	ErrStale        = errors.New("target changed since baseline was captured")
	ErrInvalidState = errors.New("operation not allowed in this state")
	ErrUnwritable   = errors.New("target could not be written")
)

// Proposal is one pending change to a single target file. Baseline is the
// target content captured at creation (or at the last refresh after a
// staleness hit); BaselineExists false means this is a new-file proposal.
// Snippet is the code block as extracted; Proposed is the full file after
// merging the snippet into the baseline.
type Proposal struct {
	ID              string        `json:"id"`
	TargetPath      string        `json:"target_path"`
	SourceMessageID string        `json:"source_message_id,omitempty"`
	Ordinal         int           `json:"ordinal"`
	Baseline        string        `json:"-"`
	BaselineExists  bool          `json:"baseline_exists"`
	Snippet         string        `json:"-"`
	Proposed        string        `json:"-"`
	Status          Status        `json:"status"`
	Diff            diff.FileDiff `json:"diff"`
	CreatedAt       time.Time     `json:"created_at"`
}

type Store struct {
	mu        sync.Mutex
	files     storage.Store
	proposals map[string]*Proposal
	newID     func() string
}

func NewStore(files storage.Store) *Store {
	return &Store{
		files:     files,
		proposals: make(map[string]*Proposal),
		newID:     uuid.NewString,
	}
}

// Create captures the target's current content as the baseline, merges
// the snippet into it and registers a new proposal in the Proposed state.
func (s *Store) Create(targetPath, snippet, sourceMessageID string, ordinal int) (Proposal, error) {
	baseline, exists, err := s.files.Read(targetPath)
	if err != nil {
		return Proposal{}, fmt.Errorf("read target %s: %w", targetPath, err)
	}
	proposed := computeProposed(baseline, exists, snippet)
	s.mu.Lock()
	defer s.mu.Unlock()
	prop := &Proposal{
		ID:              s.newID(),
		TargetPath:      targetPath,
		SourceMessageID: sourceMessageID,
		Ordinal:         ordinal,
		Baseline:        baseline,
		BaselineExists:  exists,
		Snippet:         snippet,
		Proposed:        proposed,
		Status:          StatusProposed,
		Diff:            computeDiff(baseline, exists, proposed),
		CreatedAt:       time.Now().UTC(),
	}
	s.proposals[prop.ID] = prop
	return *prop, nil
}

// Preview recomputes the diff against the target's current content and
// moves the proposal to Previewed. If the target drifted from the stored
// baseline, the baseline is refreshed, the proposal drops back to
// Proposed and ErrStale is returned; the next Preview then succeeds
// against the fresh baseline. Preview of an already-previewed proposal
// is idempotent.
func (s *Store) Preview(id string) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prop, ok := s.proposals[id]
	if !ok {
		return Proposal{}, ErrNotFound
	}
	if prop.Status == StatusAccepted || prop.Status == StatusRejected {
		return *prop, fmt.Errorf("%w: proposal is %s", ErrInvalidState, prop.Status)
	}

	current, exists, err := s.files.Read(prop.TargetPath)
	if err != nil {
		return *prop, fmt.Errorf("read target %s: %w", prop.TargetPath, err)
	}
	if stale(prop, current, exists) {
		prop.Baseline = current
		prop.BaselineExists = exists
		prop.Status = StatusProposed
		prop.Proposed = computeProposed(current, exists, prop.Snippet)
		prop.Diff = computeDiff(current, exists, prop.Proposed)
		return *prop, ErrStale
	}
	prop.Diff = computeDiff(prop.Baseline, prop.BaselineExists, prop.Proposed)
	prop.Status = StatusPreviewed
	return *prop, nil
}

// Accept writes the proposed content to the target. Only a Previewed
// proposal can be accepted; a baseline drift since preview refreshes the
// baseline and forces another preview. A write failure leaves the
// proposal in Previewed so accept can be retried.
func (s *Store) Accept(id string) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prop, ok := s.proposals[id]
	if !ok {
		return Proposal{}, ErrNotFound
	}
	if prop.Status != StatusPreviewed {
		return *prop, fmt.Errorf("%w: accept requires a previewed proposal, got %s", ErrInvalidState, prop.Status)
	}

	current, exists, err := s.files.Read(prop.TargetPath)
	if err != nil {
		return *prop, fmt.Errorf("read target %s: %w", prop.TargetPath, err)
	}
	if stale(prop, current, exists) {
		prop.Baseline = current
		prop.BaselineExists = exists
		prop.Status = StatusProposed
		prop.Proposed = computeProposed(current, exists, prop.Snippet)
		prop.Diff = computeDiff(current, exists, prop.Proposed)
		return *prop, ErrStale
	}

	if err := s.files.Write(prop.TargetPath, prop.Proposed); err != nil {
		return *prop, fmt.Errorf("%w: %s", ErrUnwritable, err.Error())
	}
	prop.Status = StatusAccepted
	return *prop, nil
}

// Reject marks a previewed proposal rejected. Nothing is written.
func (s *Store) Reject(id string) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prop, ok := s.proposals[id]
	if !ok {
		return Proposal{}, ErrNotFound
	}
	if prop.Status != StatusPreviewed {
		return *prop, fmt.Errorf("%w: reject requires a previewed proposal, got %s", ErrInvalidState, prop.Status)
	}
	prop.Status = StatusRejected
	return *prop, nil
}

func (s *Store) Get(id string) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prop, ok := s.proposals[id]
	if !ok {
		return Proposal{}, ErrNotFound
	}
	return *prop, nil
}

// List returns all proposals in creation order.
func (s *Store) List() []Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Proposal, 0, len(s.proposals))
	for _, prop := range s.proposals {
		out = append(out, *prop)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func stale(prop *Proposal, current string, exists bool) bool {
	if exists != prop.BaselineExists {
		return true
	}
	return exists && current != prop.Baseline
}

func computeDiff(baseline string, baselineExists bool, proposed string) diff.FileDiff {
	if !baselineExists {
		return diff.NewFile(proposed)
	}
	return diff.Compute(baseline, proposed)
}

func computeProposed(baseline string, baselineExists bool, snippet string) string {
	if !baselineExists {
		return snippet
	}
	return diff.MergeSnippet(baseline, snippet)
}
