package delta

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"composer/backend/internal/doc"
)

var ErrOutOfRange = errors.New("op runs past the end of the body")

// cell is one rune of a body together with the metadata anchored on it.
type cell struct {
	r     rune
	para  *doc.Paragraph
	style *doc.TextStyle
}

func cellsOf(b *doc.Body) []cell {
	stream := b.Runes()
	cells := make([]cell, len(stream))
	for i, r := range stream {
		cells[i].r = r
	}
	for _, p := range b.Paragraphs {
		if p.StartIndex >= 0 && p.StartIndex < len(cells) {
			q := p.Clone()
			cells[p.StartIndex].para = &q
		}
	}
	for _, run := range b.TextRuns {
		st := run.Style
		for i := max(run.St, 0); i < run.Ed && i < len(cells); i++ {
			cells[i].style = &st
		}
	}
	return cells
}

// Apply replays d against b from left to right and returns the resulting body.
// b itself is not modified. Source runes not reached by d are retained.
func Apply(b *doc.Body, d Delta) (*doc.Body, error) {
	src := cellsOf(b)
	out := make([]cell, 0, len(src))
	// moved[i] is the new index of source rune i, or -1 once it is deleted.
	moved := make([]int, len(src))
	var inserted []doc.CustomRange

	pos := 0
	retain := func(n int) {
		for i := pos; i < pos+n; i++ {
			moved[i] = len(out)
			out = append(out, src[i])
		}
		pos += n
	}

	for _, op := range d {
		op.Validate()
		switch op.Kind {
		case KindRetain:
			if pos+op.Len > len(src) {
				return nil, fmt.Errorf("%w: retain %d at %d of %d", ErrOutOfRange, op.Len, pos, len(src))
			}
			base := len(out)
			retain(op.Len)
			if op.Cover != nil {
				cover(out[base:], op.Cover)
			}

		case KindDelete:
			if pos+op.Len > len(src) {
				return nil, fmt.Errorf("%w: delete %d at %d of %d", ErrOutOfRange, op.Len, pos, len(src))
			}
			for i := pos; i < pos+op.Len; i++ {
				moved[i] = -1
			}
			pos += op.Len

		case KindInsert:
			base := len(out)
			out = append(out, cellsOf(op.Body)...)
			for _, r := range op.Body.CustomRanges {
				r = r.Clone()
				r.StartIndex = doc.Abs(r.StartIndex.Resolve(base, op.Len))
				r.EndIndex = doc.Abs(r.EndIndex.Resolve(base, op.Len))
				inserted = append(inserted, r)
			}
		}
	}
	retain(len(src) - pos)

	res := &doc.Body{}
	var sb strings.Builder
	for i, c := range out {
		sb.WriteRune(c.r)
		if c.r == doc.ParagraphBreak {
			p := doc.Paragraph{}
			if c.para != nil {
				p = c.para.Clone()
			}
			p.StartIndex = i
			res.Paragraphs = append(res.Paragraphs, p)
		}
	}
	res.DataStream = sb.String()
	res.TextRuns = compactRuns(out)

	for _, r := range b.CustomRanges {
		s, e := r.Start(), r.End()
		if s < 0 || e >= len(moved) || moved[s] < 0 || moved[e] < 0 {
			continue
		}
		r = r.Clone()
		r.StartIndex, r.EndIndex = doc.Abs(moved[s]), doc.Abs(moved[e])
		res.CustomRanges = append(res.CustomRanges, r)
	}
	res.CustomRanges = append(res.CustomRanges, inserted...)
	slices.SortStableFunc(res.CustomRanges, func(a, b doc.CustomRange) int {
		return a.Start() - b.Start()
	})
	return res, nil
}

func cover(span []cell, c *Cover) {
	if c.Body == nil {
		return
	}
	for _, p := range c.Body.Paragraphs {
		i := p.StartIndex
		if i < 0 || i >= len(span) || span[i].r != doc.ParagraphBreak {
			continue
		}
		q := p.Clone()
		if c.Type == CoverMerge && span[i].para != nil {
			merged := span[i].para.Clone()
			if q.Bullet != nil {
				merged.Bullet = q.Bullet
			}
			if q.ParagraphStyle != nil {
				merged.ParagraphStyle = q.ParagraphStyle
			}
			q = merged
		}
		span[i].para = &q
	}
	if c.Body.TextRuns == nil {
		return
	}
	if c.Type == CoverReplace {
		for i := range span {
			span[i].style = nil
		}
	}
	for _, run := range c.Body.TextRuns {
		st := run.Style
		for i := max(run.St, 0); i < run.Ed && i < len(span); i++ {
			span[i].style = &st
		}
	}
}

func compactRuns(cells []cell) []doc.TextRun {
	var runs []doc.TextRun
	for i, c := range cells {
		if c.style == nil {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].Ed == i && runs[n-1].Style == *c.style {
			runs[n-1].Ed++
			continue
		}
		runs = append(runs, doc.TextRun{St: i, Ed: i + 1, Style: *c.style})
	}
	return runs
}
