package textx

import (
	"fmt"
	"math"
	"slices"

	"composer/backend/internal/doc"
	"composer/backend/internal/ot/delta"
)

type DeleteCustomRangeParams struct {
	RangeID   string
	SegmentID string
	Doc       *doc.Document
	// Insert, when set, is placed where the end sentinel was.
	Insert *doc.Body
	// Cursor is an optional caret index to carry across the edit.
	Cursor *int
}

type DeleteCustomRangeResult struct {
	Ops delta.Delta
	// Cursor is the adjusted caret, nil when none was passed in.
	Cursor *int
}

// DeleteCustomRange removes both sentinels of the range with the given id,
// keeping its content. It returns false when the segment or range is missing.
func DeleteCustomRange(p DeleteCustomRangeParams) (DeleteCustomRangeResult, bool) {
	body, ok := p.Doc.SegmentBody(p.SegmentID)
	if !ok {
		return DeleteCustomRangeResult{}, false
	}
	r, ok := body.FindCustomRange(p.RangeID)
	if !ok {
		return DeleteCustomRangeResult{}, false
	}
	start, end := r.Start(), r.End()

	b := delta.NewBuilder().Push(
		delta.Retain(start),
		delta.Delete(1),
		delta.Retain(r.Len()-2),
		delta.Delete(1),
	)
	if p.Insert != nil {
		b.Push(delta.Insert(p.Insert))
	}

	res := DeleteCustomRangeResult{Ops: b.Serialize()}
	if p.Cursor != nil {
		c := *p.Cursor
		if start < *p.Cursor {
			c--
		}
		if end < *p.Cursor {
			c--
			if p.Insert != nil {
				c += p.Insert.Len()
			}
		}
		res.Cursor = &c
	}
	return res, true
}

type AddCustomRangeParams struct {
	Range       doc.TextRange
	SegmentID   string
	RangeID     string
	RangeType   doc.CustomRangeType
	Properties  doc.Properties
	WholeEntity bool
	Body        *doc.Body
}

// AddCustomRange wraps the selection in a new annotation. A selection that
// crosses paragraph breaks gets one annotation per paragraph, with ids
// RangeID, RangeID-1, RangeID-2, ... Existing annotations of the same type
// that intersect a piece are dissolved and the piece is widened over them.
// It returns false when the body is missing or the selection is empty.
func AddCustomRange(p AddCustomRangeParams) (delta.Delta, bool) {
	if p.Body == nil {
		return nil, false
	}
	sel, ok := SelectionForAddCustomRange(p.Range, p.Body)
	if !ok {
		return nil, false
	}
	start, end := sel.StartOffset, sel.EndOffset

	var breaks []int
	for _, para := range p.Body.Paragraphs {
		if para.StartIndex > start && para.StartIndex < end {
			breaks = append(breaks, para.StartIndex)
		}
	}

	b := delta.NewBuilder()
	cursor := 0
	for i, piece := range ExcludePoints([2]int{start, end - 1}, breaks) {
		lo, hi := paragraphWindow(breaks, piece[0], piece[1])
		cursor = wrapPiece(b, p, piece[0], piece[1], lo, hi, i, cursor)
	}
	return b.Serialize(), true
}

// paragraphWindow bounds the piece [start, end] by the selection's interior
// paragraph breaks around it. The first and last pieces are open-ended.
func paragraphWindow(breaks []int, start, end int) (int, int) {
	lo, hi := math.MinInt, math.MaxInt
	for _, at := range breaks {
		if at < start {
			lo = at + 1
		} else if at > end {
			hi = at - 1
			break
		}
	}
	return lo, hi
}

// wrapPiece emits the ops annotating the inclusive span [start, end] and
// returns the advanced cursor. Only sentinels within [lo, hi] are dissolved
// here: a range crossing a paragraph break loses each sentinel in the piece
// of its own paragraph.
func wrapPiece(b *delta.Builder, p AddCustomRangeParams, start, end, lo, hi, index, cursor int) int {
	var deletes []int
	for _, r := range p.Body.CustomRanges {
		if r.RangeType != p.RangeType || !IsIntersecting(r.Start(), r.End(), start, end) {
			continue
		}
		for _, at := range []int{r.Start(), r.End()} {
			if at >= lo && at <= hi {
				deletes = append(deletes, at)
			}
		}
	}
	slices.Sort(deletes)

	from, to := start, end+1
	if len(deletes) > 0 {
		from = min(deletes[0], start)
		to = max(deletes[len(deletes)-1]+1, end+1)
	}

	b.Push(
		delta.Retain(from-cursor),
		delta.Insert(&doc.Body{DataStream: string(doc.CustomRangeStart)}),
	)
	cursor = from
	for _, i := range deletes {
		b.Push(delta.Retain(i-cursor), delta.Delete(1))
		cursor = i + 1
	}
	b.Push(delta.Retain(to - cursor))
	cursor = to

	id := p.RangeID
	if index > 0 {
		id = fmt.Sprintf("%s-%d", p.RangeID, index)
	}
	b.Push(delta.Insert(&doc.Body{
		DataStream: string(doc.CustomRangeEnd),
		CustomRanges: []doc.CustomRange{{
			RangeID:     id,
			RangeType:   p.RangeType,
			StartIndex:  doc.FromEnd(-(to - from - len(deletes) + 1)),
			EndIndex:    doc.FromEnd(0),
			WholeEntity: p.WholeEntity,
			Properties:  p.Properties.Clone(),
		}},
	}))
	return cursor
}
