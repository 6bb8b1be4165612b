package textx

import (
	"fmt"

	"composer/backend/internal/doc"
	"composer/backend/internal/ot/delta"
)

type Direction int

const (
	DeleteLeft Direction = iota
	DeleteRight
)

// ParseDirection accepts "left" (the default for "") and "right".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "left":
		return DeleteLeft, nil
	case "right":
		return DeleteRight, nil
	}
	return DeleteLeft, fmt.Errorf("unknown delete direction %q", s)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// expandWholeEntities grows [s, e) until it no longer cuts through a
// whole-entity range.
func expandWholeEntities(body *doc.Body, s, e int) (int, int) {
	for changed := true; changed; {
		changed = false
		for _, r := range body.CustomRanges {
			if !r.WholeEntity || !IsIntersecting(r.Start(), r.End(), s, e-1) {
				continue
			}
			if r.Start() < s {
				s, changed = r.Start(), true
			}
			if r.End()+1 > e {
				e, changed = r.End()+1, true
			}
		}
	}
	return s, e
}

func withOffsets(sel doc.TextRange, s, e int) doc.TextRange {
	sel.StartOffset, sel.EndOffset, sel.Collapsed = s, e, s == e
	return sel
}

// DeleteSelection turns sel into the span a deletion removes: clamped to the
// editable part of the body and widened over whole-entity ranges it touches.
// A collapsed selection stays collapsed.
func DeleteSelection(sel doc.TextRange, body *doc.Body) doc.TextRange {
	limit := body.EditableEnd()
	s := clamp(sel.StartOffset, 0, limit)
	e := clamp(sel.EndOffset, s, limit)
	if sel.Collapsed || s == e {
		return withOffsets(sel, s, s)
	}
	s, e = expandWholeEntities(body, s, e)
	return withOffsets(sel, s, e)
}

// DeleteDirectional resolves a backspace (DeleteLeft) or forward delete
// (DeleteRight) at a caret into the span to remove. Annotation sentinels are
// stepped over so the keystroke always removes content. It returns false when
// there is nothing deletable in that direction. Non-collapsed selections are
// handled like DeleteSelection.
func DeleteDirectional(sel doc.TextRange, body *doc.Body, dir Direction) (doc.TextRange, bool) {
	if !sel.Collapsed && sel.StartOffset != sel.EndOffset {
		out := DeleteSelection(sel, body)
		return out, !out.Collapsed
	}
	stream := body.Runes()
	limit := body.EditableEnd()
	caret := clamp(sel.StartOffset, 0, limit)
	isMarker := func(r rune) bool {
		return r == doc.CustomRangeStart || r == doc.CustomRangeEnd
	}

	i := caret
	if dir == DeleteLeft {
		i--
		for i >= 0 && isMarker(stream[i]) {
			i--
		}
		if i < 0 {
			return sel, false
		}
	} else {
		for i < limit && isMarker(stream[i]) {
			i++
		}
		if i >= limit {
			return sel, false
		}
	}
	s, e := expandWholeEntities(body, i, i+1)
	return withOffsets(sel, s, e), true
}

// SelectionForAddCustomRange normalizes sel into the span an annotation will
// wrap. Trailing and leading paragraph or section breaks are trimmed and
// whole-entity ranges are never cut. It fails for empty selections.
func SelectionForAddCustomRange(sel doc.TextRange, body *doc.Body) (doc.TextRange, bool) {
	if body == nil || sel.Collapsed {
		return sel, false
	}
	stream := body.Runes()
	s := clamp(sel.StartOffset, 0, len(stream))
	e := clamp(sel.EndOffset, s, len(stream))
	isBreak := func(r rune) bool {
		return r == doc.ParagraphBreak || r == doc.SectionBreak
	}
	for s < e && isBreak(stream[s]) {
		s++
	}
	for e > s && isBreak(stream[e-1]) {
		e--
	}
	if s >= e {
		return sel, false
	}
	s, e = expandWholeEntities(body, s, e)
	return withOffsets(sel, s, e), true
}

// InsertSelection moves offsets that sit inside a whole-entity range to just
// past its end sentinel, so typed text never lands inside an entity.
func InsertSelection(sel doc.TextRange, body *doc.Body) doc.TextRange {
	n := body.Len()
	s := clamp(sel.StartOffset, 0, n)
	e := clamp(sel.EndOffset, s, n)
	for _, r := range body.CustomRanges {
		if !r.WholeEntity {
			continue
		}
		if r.Start() < s && s <= r.End() {
			s = r.End() + 1
		}
		if r.Start() < e && e <= r.End() {
			e = r.End() + 1
		}
	}
	if sel.Collapsed || e < s {
		e = s
	}
	return withOffsets(sel, s, e)
}

// DeleteActions returns the structure-preserving deletion for sel and how
// many runes inside it survive as retained islands; text inserted after the
// ops lands that many runes past the selection start.
func DeleteActions(sel doc.TextRange, memoryCursor int, body *doc.Body) (delta.Delta, int) {
	return retainAndDelete(sel, body, memoryCursor, true)
}
