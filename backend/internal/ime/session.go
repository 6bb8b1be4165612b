package ime

import (
	"composer/backend/internal/doc"
	"composer/backend/internal/mutation"
	"composer/backend/internal/ot/delta"
	"composer/backend/internal/ot/textx"
)

type State string

const (
	Idle      State = "idle"
	Composing State = "composing"
)

// Session follows one input-method composition. Range is the selection the
// composition started from, moved to a caret once the selection has been
// replaced.
type Session struct {
	State State          `json:"state"`
	Range *doc.TextRange `json:"range,omitempty"`
}

func NewSession() *Session {
	return &Session{State: Idle}
}

// Start records the selection a composition begins at.
func (s *Session) Start(sel doc.TextRange) {
	r := sel
	s.State = Composing
	s.Range = &r
}

func (s *Session) Active() (doc.TextRange, bool) {
	if s == nil || s.Range == nil {
		return doc.TextRange{}, false
	}
	return *s.Range, true
}

func (s *Session) Reset() {
	s.State = Idle
	s.Range = nil
}

type InputParams struct {
	UnitID             string `json:"unitId"`
	NewText            string `json:"newText"`
	OldTextLen         int    `json:"oldTextLen"`
	IsCompositionStart bool   `json:"isCompositionStart"`
	IsCompositionEnd   bool   `json:"isCompositionEnd"`
}

// Input composes one composition update. The previously composed text
// (OldTextLen runes at the caret) is replaced by NewText. A non-collapsed
// selection is deleted only on the start event. Intermediate updates are
// marked NoHistory so only the commit becomes an undo step.
func (s *Session) Input(d *doc.Document, p InputParams) (mutation.Mutation, bool) {
	active, ok := s.Active()
	if !ok || p.OldTextLen < 0 {
		return mutation.Mutation{}, false
	}
	body, ok := d.SegmentBody(active.SegmentID)
	if !ok {
		return mutation.Mutation{}, false
	}
	path, _ := mutation.EditPath(d, active.SegmentID)

	sel := textx.InsertSelection(active, body)
	start := sel.StartOffset
	n := len([]rune(p.NewText))

	b := delta.NewBuilder()
	caret := start + n
	if !sel.Collapsed && p.IsCompositionStart {
		ops, retained := textx.DeleteActions(sel, 0, body)
		b.Push(ops...)
		caret += retained
		start += retained
	} else {
		b.Push(delta.Retain(start))
	}
	if !replaceable(body, b.Serialize().Consumed(), p.OldTextLen) {
		return mutation.Mutation{}, false
	}
	if p.OldTextLen > 0 {
		b.Push(delta.Delete(p.OldTextLen))
	}

	insert := doc.NewBody(p.NewText)
	if run, ok := body.TextRunAt(sel.StartOffset + p.OldTextLen); ok && n > 0 {
		insert.TextRuns = []doc.TextRun{{St: 0, Ed: n, Style: run.Style}}
	}
	b.Push(delta.Insert(insert))

	m := mutation.New(p.UnitID)
	m.Actions = mutation.EditOp(b.Serialize(), path)
	c := doc.Caret(caret, active.SegmentID)
	c.Style = active.Style
	m.TextRanges = []doc.TextRange{c}
	m.NoHistory = !p.IsCompositionEnd
	m.IsCompositionEnd = p.IsCompositionEnd

	if p.IsCompositionEnd {
		s.Reset()
	} else {
		next := doc.Caret(start, active.SegmentID)
		next.Style = active.Style
		s.Range = &next
		s.State = Composing
	}
	return m, true
}

// replaceable reports whether n composed runes starting at from can be
// replaced: the span must end before the trailing breaks and hold no sentinel.
// A stale session (another user shrank the text) fails here.
func replaceable(body *doc.Body, from, n int) bool {
	if from+n > body.EditableEnd() {
		return false
	}
	stream := body.Runes()
	for i := from; i < from+n; i++ {
		if doc.IsSentinel(stream[i]) {
			return false
		}
	}
	return true
}
