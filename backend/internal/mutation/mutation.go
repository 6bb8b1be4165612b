package mutation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"composer/backend/internal/doc"
	"composer/backend/internal/ot/delta"
)

var (
	ErrBadPath        = errors.New("mutation: bad path")
	ErrSegmentMissing = errors.New("mutation: segment not found")
)

// Action addresses one composed delta inside a document.
type Action struct {
	Path []string    `json:"path"`
	Ops  delta.Delta `json:"ops"`
}

// Mutation is what a command hands to the application layer.
type Mutation struct {
	ID         string          `json:"id"`
	UnitID     string          `json:"unitId"`
	Actions    []Action        `json:"actions"`
	TextRanges []doc.TextRange `json:"textRanges,omitempty"`
	// NoHistory keeps the mutation out of undo/redo, e.g. for intermediate
	// IME keystrokes.
	NoHistory        bool `json:"noHistory,omitempty"`
	IsCompositionEnd bool `json:"isCompositionEnd,omitempty"`
}

func New(unitID string) Mutation {
	return Mutation{ID: uuid.NewString(), UnitID: unitID}
}

// EditPath is the path of a segment's body: ["body"] for the main body,
// ["headers", id, "body"] or ["footers", id, "body"] otherwise.
func EditPath(d *doc.Document, segmentID string) ([]string, bool) {
	kind, ok := d.Segment(segmentID)
	if !ok {
		return nil, false
	}
	if kind == doc.SegmentMain {
		return []string{string(doc.SegmentMain)}, true
	}
	return []string{string(kind), segmentID, string(doc.SegmentMain)}, true
}

// EditOp wraps ops for the body at path.
func EditOp(ops delta.Delta, path []string) []Action {
	if len(ops) == 0 {
		return nil
	}
	return []Action{{Path: path, Ops: ops}}
}

func segmentOf(path []string) (string, error) {
	switch {
	case len(path) == 1 && path[0] == string(doc.SegmentMain):
		return "", nil
	case len(path) == 3 && path[2] == string(doc.SegmentMain) &&
		(path[0] == string(doc.SegmentHeader) || path[0] == string(doc.SegmentFooter)):
		return path[1], nil
	}
	return "", fmt.Errorf("%w: %v", ErrBadPath, path)
}

// Apply replays every action against a copy of d and returns the copy. d is
// untouched when an action fails.
func (m Mutation) Apply(d *doc.Document) (*doc.Document, error) {
	out := d.Clone()
	for _, a := range m.Actions {
		segmentID, err := segmentOf(a.Path)
		if err != nil {
			return nil, err
		}
		body, ok := out.SegmentBody(segmentID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrSegmentMissing, segmentID)
		}
		next, err := delta.Apply(body, a.Ops)
		if err != nil {
			return nil, fmt.Errorf("apply %v: %w", a.Path, err)
		}
		out.SetSegmentBody(segmentID, next)
	}
	return out, nil
}
