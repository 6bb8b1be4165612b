package textx

import (
	"testing"

	"composer/backend/internal/doc"
	"composer/backend/internal/ot/delta"
)

func TestRetainAndDelete_PreservesLineBreak(t *testing.T) {
	body := doc.NewBody("ab\rcd\r\n")
	ops := RetainAndDeleteExcludeLineBreak(doc.Span(1, 4, ""), body, 0, true)
	if got := ops.String(); got != "r1 d1 r1 d1" {
		t.Fatalf("ops = %v, want r1 d1 r1 d1", got)
	}
	for _, op := range ops {
		if op.Kind == delta.KindInsert {
			t.Fatalf("ops contain an insert: %v", ops)
		}
	}
	if out := apply(t, body, ops); out.DataStream != "a\rd\r\n" {
		t.Fatalf("DataStream = %q", out.DataStream)
	}
}

func TestRetainAndDelete_MergesParagraphs(t *testing.T) {
	body := doc.NewBody("ab\rcd\r\n")
	body.Paragraphs[0].Bullet = &doc.Bullet{ListID: "list", ListType: doc.ListBullet}

	ops := RetainAndDeleteExcludeLineBreak(doc.Span(1, 4, ""), body, 0, false)
	if got := ops.String(); got != "r1 d3 r1 r1*" {
		t.Fatalf("ops = %v, want r1 d3 r1 r1*", got)
	}
	last := ops[len(ops)-1]
	if last.Cover.Type != delta.CoverReplace || last.Cover.Body.Paragraphs[0].StartIndex != 0 {
		t.Fatalf("cover = %+v", last.Cover)
	}

	out := apply(t, body, ops)
	if out.DataStream != "ad\r\n" {
		t.Fatalf("DataStream = %q", out.DataStream)
	}
	if b := out.Paragraphs[0].Bullet; b == nil || b.ListID != "list" {
		t.Fatalf("merged paragraph bullet = %+v, want list", b)
	}
}

func TestRetainAndDelete_KeepsOwnBulletWithoutMerge(t *testing.T) {
	body := doc.NewBody("ab\rcd\r\n")
	body.Paragraphs[0].Bullet = &doc.Bullet{ListID: "own"}

	ops := RetainAndDeleteExcludeLineBreak(doc.Span(0, 1, ""), body, 0, false)
	if got := ops.String(); got != "d1 r1 r1*" {
		t.Fatalf("ops = %v, want d1 r1 r1*", got)
	}
	out := apply(t, body, ops)
	if b := out.Paragraphs[0].Bullet; b == nil || b.ListID != "own" {
		t.Fatalf("bullet = %+v, want own", b)
	}
}

func TestRetainAndDelete_AnnotationBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		sel       doc.TextRange
		wantOps   string
		wantText  string
		wantRange [2]int
		kept      bool
	}{
		{"start sentinel retained", doc.Span(0, 2, ""), "d1 r1", "\x1fbc\x1ed\r\n", [2]int{0, 3}, true},
		{"end sentinel retained", doc.Span(2, 6, ""), "r2 d2 r1 d1", "a\x1f\x1e\r\n", [2]int{1, 2}, true},
		{"end sentinel on selection end", doc.Span(2, 4, ""), "r2 d2 r1", "a\x1f\x1ed\r\n", [2]int{1, 2}, true},
		{"interior only", doc.Span(2, 3, ""), "r2 d1", "a\x1fc\x1ed\r\n", [2]int{1, 3}, true},
		{"fully deleted", doc.Span(0, 6, ""), "d6", "\r\n", [2]int{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			body := doc.NewBody("a\x1fbc\x1ed\r\n")
			body.CustomRanges = []doc.CustomRange{rangeAt("c", doc.RangeComment, 1, 4)}

			ops := RetainAndDeleteExcludeLineBreak(c.sel, body, 0, true)
			if got := ops.String(); got != c.wantOps {
				t.Fatalf("ops = %v, want %v", got, c.wantOps)
			}
			out := apply(t, body, ops)
			if out.DataStream != c.wantText {
				t.Fatalf("DataStream = %q, want %q", out.DataStream, c.wantText)
			}
			r, ok := out.FindCustomRange("c")
			if ok != c.kept {
				t.Fatalf("range kept = %v, want %v", ok, c.kept)
			}
			if ok && (r.Start() != c.wantRange[0] || r.End() != c.wantRange[1]) {
				t.Fatalf("range = [%d,%d], want %v", r.Start(), r.End(), c.wantRange)
			}
		})
	}
}

func TestRetainAndDelete_MemoryCursor(t *testing.T) {
	body := doc.NewBody("abcdefgh\r\n")
	ops := RetainAndDeleteExcludeLineBreak(doc.Span(5, 7, ""), body, 3, true)
	if got := ops.String(); got != "r2 d2" {
		t.Fatalf("ops = %v, want r2 d2", got)
	}
}

func TestReplaceSelection(t *testing.T) {
	d := doc.NewDocument("d1", "hello")
	ops, ok := ReplaceSelection(ReplaceSelectionParams{Selection: doc.Span(1, 3, ""), Body: doc.NewBody("EY"), Doc: d})
	if !ok {
		t.Fatalf("ReplaceSelection() = false")
	}
	if got := ops.String(); got != `r1 d2 i"EY"` {
		t.Fatalf("ops = %v", got)
	}
	if out := apply(t, d.Body, ops); out.DataStream != "hEYlo\r\n" {
		t.Fatalf("DataStream = %q", out.DataStream)
	}
}

func TestReplaceSelection_InsertsAfterRangeEndingAtSelectionEnd(t *testing.T) {
	d := doc.NewDocument("d1", "ab\x1fcde\x1efg")
	d.Body.CustomRanges = []doc.CustomRange{rangeAt("l", doc.RangeHyperlink, 2, 6)}

	ops, ok := ReplaceSelection(ReplaceSelectionParams{Selection: doc.Span(4, 6, ""), Body: doc.NewBody("X"), Doc: d})
	if !ok {
		t.Fatalf("ReplaceSelection() = false")
	}
	if got := ops.String(); got != `r4 d2 r1 i"X"` {
		t.Fatalf("ops = %v, want r4 d2 r1 i\"X\"", got)
	}
	out := apply(t, d.Body, ops)
	if out.DataStream != "ab\x1fc\x1eXfg\r\n" {
		t.Fatalf("DataStream = %q", out.DataStream)
	}
	if r, _ := out.FindCustomRange("l"); r.Start() != 2 || r.End() != 4 {
		t.Fatalf("range = [%d,%d], want [2,4]", r.Start(), r.End())
	}

	edit, ok := ReplaceWithBody(d, doc.Span(4, 6, ""), doc.NewBody("X"))
	if !ok || edit.Caret.StartOffset != 6 {
		t.Fatalf("ReplaceWithBody caret = %+v, %v; want 6", edit.Caret, ok)
	}
}

func TestReplaceSelection_Segments(t *testing.T) {
	d := doc.NewDocument("d1", "body")
	d.Headers = map[string]*doc.Body{"h1": doc.NewBody("top\r\n")}

	ops, ok := ReplaceSelection(ReplaceSelectionParams{Selection: doc.Span(0, 3, "h1"), Body: doc.NewBody("X"), Doc: d})
	if !ok {
		t.Fatalf("ReplaceSelection(h1) = false")
	}
	if got := ops.String(); got != `d3 i"X"` {
		t.Fatalf("ops = %v", got)
	}
	if _, ok := ReplaceSelection(ReplaceSelectionParams{Selection: doc.Span(0, 1, "f9"), Body: doc.NewBody("X"), Doc: d}); ok {
		t.Fatalf("ReplaceSelection(missing segment) = true")
	}
}

func TestReplaceWithBody_CaretSkipsIslands(t *testing.T) {
	d := doc.NewDocument("d1", "a\x1fbc\x1ed")
	d.Body.CustomRanges = []doc.CustomRange{rangeAt("c", doc.RangeComment, 1, 4)}

	edit, ok := ReplaceWithBody(d, doc.Span(0, 2, ""), doc.NewBody("XY"))
	if !ok {
		t.Fatalf("ReplaceWithBody() = false")
	}
	if got := edit.Ops.String(); got != `d1 r1 i"XY"` {
		t.Fatalf("ops = %v", got)
	}
	if edit.Caret.StartOffset != 3 || !edit.Caret.Collapsed {
		t.Fatalf("caret = %+v, want collapsed at 3", edit.Caret)
	}
}

func TestInsertText(t *testing.T) {
	d := doc.NewDocument("d1", "abc")
	edit, ok := InsertText(d, doc.Caret(2, ""), "Z", &doc.TextStyle{Bold: true})
	if !ok {
		t.Fatalf("InsertText() = false")
	}
	if got := edit.Ops.String(); got != `r2 i"Z"` {
		t.Fatalf("ops = %v", got)
	}
	if edit.Caret.StartOffset != 3 {
		t.Fatalf("caret = %d, want 3", edit.Caret.StartOffset)
	}
	out := apply(t, d.Body, edit.Ops)
	if len(out.TextRuns) != 1 || out.TextRuns[0].St != 2 || !out.TextRuns[0].Style.Bold {
		t.Fatalf("TextRuns = %+v", out.TextRuns)
	}
}

func TestDeleteText(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		ranges    []doc.CustomRange
		sel       doc.TextRange
		dir       Direction
		wantOps   string
		wantCaret int
		wantOK    bool
	}{
		{"backspace merges paragraphs", "ab\rcd", nil, doc.Caret(3, ""), DeleteLeft, "r2 d1 r2 r1*", 2, true},
		{"backspace skips end sentinel", "ab\x1fcd\x1e", []doc.CustomRange{rangeAt("l", doc.RangeHyperlink, 2, 5)}, doc.Caret(6, ""), DeleteLeft, "r4 d1 r1 r1*", 4, true},
		{"forward delete", "abcd", nil, doc.Caret(1, ""), DeleteRight, "r1 d1 r2 r1*", 1, true},
		{"forward delete at end", "abcd", nil, doc.Caret(4, ""), DeleteRight, "", 0, false},
		{"backspace at start", "abcd", nil, doc.Caret(0, ""), DeleteLeft, "", 0, false},
		{"selection", "abcd", nil, doc.Span(1, 3, ""), DeleteLeft, "r1 d2 r1 r1*", 1, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := doc.NewDocument("d1", c.text)
			d.Body.CustomRanges = c.ranges
			edit, ok := DeleteText(d, c.sel, c.dir)
			if ok != c.wantOK {
				t.Fatalf("DeleteText() ok = %v, want %v", ok, c.wantOK)
			}
			if !ok {
				return
			}
			if got := edit.Ops.String(); got != c.wantOps {
				t.Fatalf("ops = %v, want %v", got, c.wantOps)
			}
			if edit.Caret.StartOffset != c.wantCaret {
				t.Fatalf("caret = %d, want %d", edit.Caret.StartOffset, c.wantCaret)
			}
			apply(t, d.Body, edit.Ops)
		})
	}
}
