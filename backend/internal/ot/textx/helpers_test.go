package textx

import (
	"testing"

	"composer/backend/internal/doc"
	"composer/backend/internal/ot/delta"
)

func apply(t *testing.T, b *doc.Body, d delta.Delta) *doc.Body {
	t.Helper()
	out, err := delta.Apply(b, d)
	if err != nil {
		t.Fatalf("Apply(%v) error = %v", d, err)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("Validate() after %v = %v", d, err)
	}
	return out
}

func rangeAt(id string, typ doc.CustomRangeType, start, end int) doc.CustomRange {
	return doc.CustomRange{RangeID: id, RangeType: typ, StartIndex: doc.Abs(start), EndIndex: doc.Abs(end)}
}

func countKind(d delta.Delta, k delta.Kind, n int) int {
	c := 0
	for _, op := range d {
		if op.Kind == k && op.Len == n {
			c++
		}
	}
	return c
}
