package doc

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidBody = errors.New("invalid body")

// Validate checks that every structure anchored in the stream points at the
// right sentinel and that annotations of one type never overlap.
func (b *Body) Validate() error {
	stream := b.Runes()
	n := len(stream)

	seen := make(map[int]bool, len(b.Paragraphs))
	for i, p := range b.Paragraphs {
		if p.StartIndex < 0 || p.StartIndex >= n || stream[p.StartIndex] != ParagraphBreak {
			return fmt.Errorf("%w: paragraph %d at %d is not a paragraph break", ErrInvalidBody, i, p.StartIndex)
		}
		if i > 0 && b.Paragraphs[i-1].StartIndex >= p.StartIndex {
			return fmt.Errorf("%w: paragraphs out of order at %d", ErrInvalidBody, p.StartIndex)
		}
		seen[p.StartIndex] = true
	}
	for i, r := range stream {
		if r == ParagraphBreak && !seen[i] {
			return fmt.Errorf("%w: paragraph break at %d has no paragraph", ErrInvalidBody, i)
		}
	}

	byType := make(map[CustomRangeType][]CustomRange)
	for _, r := range b.CustomRanges {
		if r.StartIndex.Relative() || r.EndIndex.Relative() {
			return fmt.Errorf("%w: range %q has unresolved positions", ErrInvalidBody, r.RangeID)
		}
		s, e := r.Start(), r.End()
		if s < 0 || e >= n || s >= e {
			return fmt.Errorf("%w: range %q spans [%d,%d]", ErrInvalidBody, r.RangeID, s, e)
		}
		if stream[s] != CustomRangeStart || stream[e] != CustomRangeEnd {
			return fmt.Errorf("%w: range %q is not delimited by sentinels", ErrInvalidBody, r.RangeID)
		}
		byType[r.RangeType] = append(byType[r.RangeType], r)
	}
	for _, ranges := range byType {
		slices.SortFunc(ranges, func(a, b CustomRange) int { return a.Start() - b.Start() })
		for i := 1; i < len(ranges); i++ {
			if ranges[i].Start() <= ranges[i-1].End() {
				return fmt.Errorf("%w: ranges %q and %q of the same type overlap",
					ErrInvalidBody, ranges[i-1].RangeID, ranges[i].RangeID)
			}
		}
	}

	for i, run := range b.TextRuns {
		if run.St < 0 || run.Ed > n || run.St >= run.Ed {
			return fmt.Errorf("%w: text run [%d,%d)", ErrInvalidBody, run.St, run.Ed)
		}
		if i > 0 && b.TextRuns[i-1].Ed > run.St {
			return fmt.Errorf("%w: text runs overlap at %d", ErrInvalidBody, run.St)
		}
	}
	return nil
}
