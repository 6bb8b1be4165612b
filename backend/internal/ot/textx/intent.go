package textx

import (
	"composer/backend/internal/doc"
	"composer/backend/internal/ot/delta"
)

// Edit is a composed intent and the caret it leaves behind.
type Edit struct {
	Ops   delta.Delta
	Caret doc.TextRange
}

// ReplaceWithBody is ReplaceSelection plus the resulting caret, which sits
// after the inserted body and any islands the deletion had to keep.
func ReplaceWithBody(d *doc.Document, sel doc.TextRange, insert *doc.Body) (Edit, bool) {
	body, ok := d.SegmentBody(sel.SegmentID)
	if !ok {
		return Edit{}, false
	}
	if sel.Collapsed || sel.StartOffset == sel.EndOffset {
		sel = InsertSelection(sel, body)
	}
	norm := DeleteSelection(sel, body)
	ops, retained := retainAndDelete(norm, body, 0, true)

	b := delta.NewBuilder().Push(ops...)
	if insert != nil {
		b.Push(delta.Insert(insert))
	}
	caret := norm.StartOffset + retained + insert.Len()
	return Edit{Ops: b.Serialize(), Caret: withStyle(doc.Caret(caret, sel.SegmentID), sel.Style)}, true
}

// InsertText replaces the selection with text, styled with style when given.
func InsertText(d *doc.Document, sel doc.TextRange, text string, style *doc.TextStyle) (Edit, bool) {
	insert := doc.NewBody(text)
	if style != nil && insert.Len() > 0 {
		insert.TextRuns = []doc.TextRun{{St: 0, Ed: insert.Len(), Style: *style}}
	}
	return ReplaceWithBody(d, sel, insert)
}

// DeleteText removes the selection, or one rune in dir from a caret. Paragraph
// breaks inside the span are removed and the paragraphs merged.
func DeleteText(d *doc.Document, sel doc.TextRange, dir Direction) (Edit, bool) {
	body, ok := d.SegmentBody(sel.SegmentID)
	if !ok {
		return Edit{}, false
	}
	span, ok := DeleteDirectional(sel, body, dir)
	if !ok {
		return Edit{}, false
	}
	ops := RetainAndDeleteExcludeLineBreak(span, body, 0, false)
	return Edit{Ops: ops, Caret: withStyle(doc.Caret(span.StartOffset, sel.SegmentID), sel.Style)}, true
}

func withStyle(r doc.TextRange, style *doc.TextStyle) doc.TextRange {
	r.Style = style
	return r
}
