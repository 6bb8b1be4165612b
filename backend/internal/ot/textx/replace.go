package textx

import (
	"maps"
	"slices"

	"composer/backend/internal/doc"
	"composer/backend/internal/ot/delta"
)

// RetainAndDeleteExcludeLineBreak deletes the content of sel while keeping
// the structure that must survive: a sentinel of an annotation that is only
// partly deleted is retained, and so are paragraph breaks strictly inside the
// selection when preserveLineBreak is set. Without preserveLineBreak the
// paragraph following the deletion is re-stamped with the list metadata of
// the first paragraph the deletion swallowed, so merged paragraphs keep it.
//
// memoryCursor is subtracted from every offset, for callers that compose
// several deletions against one body.
func RetainAndDeleteExcludeLineBreak(sel doc.TextRange, body *doc.Body, memoryCursor int, preserveLineBreak bool) delta.Delta {
	ops, _ := retainAndDelete(sel, body, memoryCursor, preserveLineBreak)
	return ops
}

func retainAndDelete(sel doc.TextRange, body *doc.Body, memoryCursor int, preserveLineBreak bool) (delta.Delta, int) {
	norm := DeleteSelection(sel, body)
	startOffset, endOffset := norm.StartOffset, norm.EndOffset
	stream := body.Runes()

	local := func(i int) int { return i - memoryCursor }
	textStart, textEnd := local(startOffset), local(endOffset)

	var swallowed *doc.Paragraph
	for i := range body.Paragraphs {
		if at := local(body.Paragraphs[i].StartIndex); at >= textStart && at < textEnd {
			swallowed = &body.Paragraphs[i]
			break
		}
	}

	retain := make(map[int]bool)
	for _, r := range body.CustomRanges {
		if !IsIntersecting(r.Start(), r.End(), startOffset, endOffset-1) {
			continue
		}
		if ShouldDeleteCustomRange(startOffset, endOffset-startOffset, r, stream) {
			continue
		}
		// a sentinel on textEnd still counts: text inserted after the ops must
		// land outside the surviving range
		s, e := local(r.Start()), local(r.End())
		if s >= textStart && s <= textEnd && e > textEnd {
			retain[s] = true
		}
		if e >= textStart && e <= textEnd && s < textStart {
			retain[e] = true
		}
	}
	if preserveLineBreak {
		for _, p := range body.Paragraphs {
			if at := local(p.StartIndex); at > textStart && at < textEnd {
				retain[at] = true
			}
		}
	}
	points := slices.Sorted(maps.Keys(retain))

	b := delta.NewBuilder()
	if textStart > 0 {
		b.Push(delta.Retain(textStart))
	}
	cursor := textStart
	for _, at := range points {
		b.Push(delta.Delete(at-cursor), delta.Retain(1))
		cursor = at + 1
	}
	if cursor < textEnd {
		b.Push(delta.Delete(textEnd - cursor))
		cursor = textEnd
	}

	if !preserveLineBreak {
		for _, p := range body.Paragraphs {
			at := local(p.StartIndex)
			if at < textEnd {
				continue
			}
			next := p.Clone()
			next.StartIndex = 0
			if swallowed != nil {
				next.Bullet = swallowed.Clone().Bullet
			}
			b.Push(
				delta.Retain(at-cursor),
				delta.RetainCover(1, &doc.Body{Paragraphs: []doc.Paragraph{next}}, delta.CoverReplace),
			)
			break
		}
	}
	return b.Serialize(), len(points)
}

type ReplaceSelectionParams struct {
	// Selection is the range to be replaced; its SegmentID picks the body.
	Selection doc.TextRange
	// Body is inserted in place of the selection. It must not end with the
	// trailing "\r\n" of a segment.
	Body *doc.Body
	Doc  *doc.Document
}

// ReplaceSelection deletes the selection, keeping paragraph breaks and
// surviving annotation sentinels, and inserts Body after it. It returns false
// when the selection's segment does not exist.
func ReplaceSelection(p ReplaceSelectionParams) (delta.Delta, bool) {
	body, ok := p.Doc.SegmentBody(p.Selection.SegmentID)
	if !ok {
		return nil, false
	}
	b := delta.NewBuilder()
	b.Push(RetainAndDeleteExcludeLineBreak(p.Selection, body, 0, true)...)
	if p.Body != nil {
		b.Push(delta.Insert(p.Body))
	}
	return b.Serialize(), true
}
