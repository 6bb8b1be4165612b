package textx

import (
	"testing"

	"composer/backend/internal/doc"
	"composer/backend/internal/ot/delta"
)

func TestDeleteCustomRange_AdjacentSentinels(t *testing.T) {
	d := doc.NewDocument("d1", "Hello\x1f\x1e World")
	d.Body.CustomRanges = []doc.CustomRange{rangeAt("p", doc.RangeComment, 5, 6)}
	cursor := 10

	res, ok := DeleteCustomRange(DeleteCustomRangeParams{RangeID: "p", Doc: d, Cursor: &cursor})
	if !ok {
		t.Fatalf("DeleteCustomRange() = false")
	}
	if got := res.Ops.String(); got != "r5 d2" {
		t.Fatalf("Ops = %v, want r5 d2", got)
	}
	if res.Ops.Consumed() != 7 {
		t.Fatalf("Consumed() = %d, want 7", res.Ops.Consumed())
	}
	if res.Cursor == nil || *res.Cursor != 8 {
		t.Fatalf("Cursor = %v, want 8", res.Cursor)
	}
	if cursor != 10 {
		t.Fatalf("input cursor mutated to %d", cursor)
	}
	out := apply(t, d.Body, res.Ops)
	if out.DataStream != "Hello World\r\n" || len(out.CustomRanges) != 0 {
		t.Fatalf("after delete = %q %+v", out.DataStream, out.CustomRanges)
	}
}

func TestDeleteCustomRange_WithInterior(t *testing.T) {
	d := doc.NewDocument("d1", "ab\x1fcd\x1eef")
	d.Body.CustomRanges = []doc.CustomRange{rangeAt("l", doc.RangeHyperlink, 2, 5)}

	cases := []struct {
		name       string
		insert     *doc.Body
		cursor     int
		wantOps    string
		wantCursor int
		wantText   string
	}{
		{"plain", nil, 7, "r2 d1 r2 d1", 5, "abcdef\r\n"},
		{"cursor inside", nil, 4, "r2 d1 r2 d1", 3, "abcdef\r\n"},
		{"cursor before", nil, 1, "r2 d1 r2 d1", 1, "abcdef\r\n"},
		{"replacement", doc.NewBody("XY"), 7, `r2 d1 r2 d1 i"XY"`, 7, "abcdXYef\r\n"},
		{"replacement after cursor", doc.NewBody("XY"), 5, `r2 d1 r2 d1 i"XY"`, 4, "abcdXYef\r\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cursor := c.cursor
			res, ok := DeleteCustomRange(DeleteCustomRangeParams{RangeID: "l", Doc: d, Insert: c.insert, Cursor: &cursor})
			if !ok {
				t.Fatalf("DeleteCustomRange() = false")
			}
			if got := res.Ops.String(); got != c.wantOps {
				t.Fatalf("Ops = %v, want %v", got, c.wantOps)
			}
			if countKind(res.Ops, delta.KindDelete, 1) != 2 {
				t.Fatalf("Ops = %v, want exactly two d1", res.Ops)
			}
			if res.Ops.Consumed() != 6 {
				t.Fatalf("Consumed() = %d, want 6", res.Ops.Consumed())
			}
			if *res.Cursor != c.wantCursor {
				t.Fatalf("Cursor = %d, want %d", *res.Cursor, c.wantCursor)
			}
			if out := apply(t, d.Body, res.Ops); out.DataStream != c.wantText {
				t.Fatalf("DataStream = %q, want %q", out.DataStream, c.wantText)
			}
		})
	}
}

func TestDeleteCustomRange_NotFound(t *testing.T) {
	d := doc.NewDocument("d1", "abc")
	if _, ok := DeleteCustomRange(DeleteCustomRangeParams{RangeID: "missing", Doc: d}); ok {
		t.Fatalf("DeleteCustomRange(missing range) = true")
	}
	if _, ok := DeleteCustomRange(DeleteCustomRangeParams{RangeID: "x", SegmentID: "header-1", Doc: d}); ok {
		t.Fatalf("DeleteCustomRange(missing segment) = true")
	}
	if _, ok := DeleteCustomRange(DeleteCustomRangeParams{RangeID: "x"}); ok {
		t.Fatalf("DeleteCustomRange(nil doc) = true")
	}
}

func TestAddCustomRange_Simple(t *testing.T) {
	body := doc.NewBody("hello world\r\n")
	ops, ok := AddCustomRange(AddCustomRangeParams{
		Range:      doc.Span(0, 5, ""),
		RangeID:    "link",
		RangeType:  doc.RangeHyperlink,
		Properties: doc.Properties{URL: "https://example.com"},
		Body:       body,
	})
	if !ok {
		t.Fatalf("AddCustomRange() = false")
	}
	if want := `i"\x1f" r5 i"\x1e"`; ops.String() != want {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	end := ops[len(ops)-1].Body.CustomRanges[0]
	if !end.StartIndex.Relative() || end.StartIndex.Resolve(0, 1) != -6 || end.EndIndex.Resolve(0, 1) != 0 {
		t.Fatalf("end fragment range = %v..%v, want end-6..end+0", end.StartIndex, end.EndIndex)
	}

	out := apply(t, body, ops)
	if out.DataStream != "\x1fhello\x1e world\r\n" {
		t.Fatalf("DataStream = %q", out.DataStream)
	}
	r, ok := out.FindCustomRange("link")
	if !ok || r.Start() != 0 || r.End() != 6 || r.Properties.URL != "https://example.com" {
		t.Fatalf("range = %+v", r)
	}
}

func TestAddCustomRange_RoundTrip(t *testing.T) {
	original := doc.NewBody("one two three\r\n")
	for _, sel := range []doc.TextRange{doc.Span(0, 3, ""), doc.Span(4, 7, ""), doc.Span(2, 12, "")} {
		ops, ok := AddCustomRange(AddCustomRangeParams{Range: sel, RangeID: "c", RangeType: doc.RangeComment, Body: original})
		if !ok {
			t.Fatalf("AddCustomRange(%+v) = false", sel)
		}
		wrapped := apply(t, original, ops)

		d := &doc.Document{ID: "d", Body: wrapped}
		res, ok := DeleteCustomRange(DeleteCustomRangeParams{RangeID: "c", Doc: d})
		if !ok {
			t.Fatalf("DeleteCustomRange() = false")
		}
		restored := apply(t, wrapped, res.Ops)
		if restored.DataStream != original.DataStream || len(restored.CustomRanges) != 0 {
			t.Fatalf("round trip for %+v = %q %+v", sel, restored.DataStream, restored.CustomRanges)
		}
	}
}

func TestAddCustomRange_SplitsAtParagraphBreaks(t *testing.T) {
	body := doc.NewBody("ab\rcd\r\n")
	ops, ok := AddCustomRange(AddCustomRangeParams{Range: doc.Span(0, 5, ""), RangeID: "x", RangeType: doc.RangeComment, Body: body})
	if !ok {
		t.Fatalf("AddCustomRange() = false")
	}
	out := apply(t, body, ops)
	if out.DataStream != "\x1fab\x1e\r\x1fcd\x1e\r\n" {
		t.Fatalf("DataStream = %q", out.DataStream)
	}
	if len(out.CustomRanges) != 2 {
		t.Fatalf("CustomRanges = %+v, want 2", out.CustomRanges)
	}
	brk := out.Paragraphs[0].StartIndex
	for _, r := range out.CustomRanges {
		if r.Start() <= brk && brk <= r.End() {
			t.Fatalf("range %q [%d,%d] spans the paragraph break at %d", r.RangeID, r.Start(), r.End(), brk)
		}
	}
	if _, ok := out.FindCustomRange("x"); !ok {
		t.Fatalf("missing range x")
	}
	if _, ok := out.FindCustomRange("x-1"); !ok {
		t.Fatalf("missing range x-1")
	}
}

func TestAddCustomRange_DissolvesRangeCrossingParagraphBreak(t *testing.T) {
	// a \x1f b \r c \x1e d: the link was split by a typed paragraph break
	body := doc.NewBody("a\x1fb\rc\x1ed\r\n")
	body.CustomRanges = []doc.CustomRange{rangeAt("l", doc.RangeHyperlink, 1, 5)}
	if err := body.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	ops, ok := AddCustomRange(AddCustomRangeParams{Range: doc.Span(0, 7, ""), RangeID: "n", RangeType: doc.RangeHyperlink, Body: body})
	if !ok {
		t.Fatalf("AddCustomRange() = false")
	}
	if n := countKind(ops, delta.KindDelete, 1); n != 2 {
		t.Fatalf("ops = %v, want each old sentinel deleted once", ops)
	}
	out := apply(t, body, ops)
	if out.DataStream != "\x1fab\x1e\r\x1fcd\x1e\r\n" {
		t.Fatalf("DataStream = %q", out.DataStream)
	}
	want := map[string][2]int{"n": {0, 3}, "n-1": {5, 8}}
	if len(out.CustomRanges) != len(want) {
		t.Fatalf("CustomRanges = %+v", out.CustomRanges)
	}
	for _, r := range out.CustomRanges {
		if w, ok := want[r.RangeID]; !ok || r.Start() != w[0] || r.End() != w[1] {
			t.Fatalf("range %q = [%d,%d], want %v", r.RangeID, r.Start(), r.End(), w)
		}
	}
}

func TestAddCustomRange_ResolvesSameTypeOverlap(t *testing.T) {
	body := doc.NewBody("abcdefgh\r\n")
	first, ok := AddCustomRange(AddCustomRangeParams{Range: doc.Span(1, 4, ""), RangeID: "l1", RangeType: doc.RangeHyperlink, Body: body})
	if !ok {
		t.Fatalf("AddCustomRange(l1) = false")
	}
	body = apply(t, body, first)
	// a \x1f b c d \x1e e f g h
	if r, _ := body.FindCustomRange("l1"); r.Start() != 1 || r.End() != 5 {
		t.Fatalf("l1 = [%d,%d], want [1,5]", r.Start(), r.End())
	}

	second, ok := AddCustomRange(AddCustomRangeParams{Range: doc.Span(4, 8, ""), RangeID: "l2", RangeType: doc.RangeHyperlink, Body: body})
	if !ok {
		t.Fatalf("AddCustomRange(l2) = false")
	}
	if want := `r1 i"\x1f" d1 r3 d1 r2 i"\x1e"`; second.String() != want {
		t.Fatalf("ops = %v, want %v", second, want)
	}
	out := apply(t, body, second)
	if out.DataStream != "a\x1fbcdef\x1egh\r\n" {
		t.Fatalf("DataStream = %q", out.DataStream)
	}
	if len(out.CustomRanges) != 1 || out.CustomRanges[0].RangeID != "l2" {
		t.Fatalf("CustomRanges = %+v, want only l2", out.CustomRanges)
	}
}

func TestAddCustomRange_IgnoresOtherTypes(t *testing.T) {
	body := doc.NewBody("a\x1fbc\x1ed\r\n")
	body.CustomRanges = []doc.CustomRange{rangeAt("m", doc.RangeComment, 1, 4)}

	ops, ok := AddCustomRange(AddCustomRangeParams{Range: doc.Span(2, 4, ""), RangeID: "l", RangeType: doc.RangeHyperlink, Body: body})
	if !ok {
		t.Fatalf("AddCustomRange() = false")
	}
	out := apply(t, body, ops)
	if len(out.CustomRanges) != 2 {
		t.Fatalf("CustomRanges = %+v, want comment and link", out.CustomRanges)
	}
}

func TestAddCustomRange_Fails(t *testing.T) {
	body := doc.NewBody("abc\r\n")
	if _, ok := AddCustomRange(AddCustomRangeParams{Range: doc.Caret(1, ""), RangeID: "x", Body: body}); ok {
		t.Fatalf("AddCustomRange(collapsed) = true")
	}
	if _, ok := AddCustomRange(AddCustomRangeParams{Range: doc.Span(0, 2, ""), RangeID: "x"}); ok {
		t.Fatalf("AddCustomRange(nil body) = true")
	}
	if _, ok := AddCustomRange(AddCustomRangeParams{Range: doc.Span(3, 5, ""), RangeID: "x", Body: body}); ok {
		t.Fatalf("AddCustomRange(only breaks) = true")
	}
}
