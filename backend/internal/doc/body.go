package doc

import (
	"maps"
	"slices"
	"unicode/utf8"
)

type CustomRangeType int

const (
	RangeHyperlink CustomRangeType = iota
	RangeField
	RangeMention
	RangeComment
	RangeCustom
)

// Properties is the closed set of annotation attributes, plus Extra for
// anything a plugin wants to carry along.
type Properties struct {
	URL       string         `json:"url,omitempty"`
	MentionID string         `json:"mentionId,omitempty"`
	CommentID string         `json:"commentId,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func (p Properties) Clone() Properties {
	p.Extra = maps.Clone(p.Extra)
	return p
}

// CustomRange is an inline annotation delimited by a CustomRangeStart rune at
// StartIndex and a CustomRangeEnd rune at EndIndex (both inclusive).
type CustomRange struct {
	RangeID     string          `json:"rangeId"`
	RangeType   CustomRangeType `json:"rangeType"`
	StartIndex  Position        `json:"startIndex"`
	EndIndex    Position        `json:"endIndex"`
	WholeEntity bool            `json:"wholeEntity,omitempty"`
	Properties  Properties      `json:"properties"`
}

func (r CustomRange) Start() int { return r.StartIndex.Index() }
func (r CustomRange) End() int   { return r.EndIndex.Index() }

// Len counts both sentinels.
func (r CustomRange) Len() int { return r.End() - r.Start() + 1 }

func (r CustomRange) Clone() CustomRange {
	r.Properties = r.Properties.Clone()
	return r
}

type ListType string

const (
	ListBullet  ListType = "bullet"
	ListOrdered ListType = "ordered"
	ListCheck   ListType = "check"
)

type Bullet struct {
	ListID       string   `json:"listId"`
	ListType     ListType `json:"listType"`
	NestingLevel int      `json:"nestingLevel"`
}

type Alignment int

const (
	AlignUnspecified Alignment = iota
	AlignLeft
	AlignCenter
	AlignRight
	AlignJustified
)

type ParagraphStyle struct {
	Alignment   Alignment `json:"alignment,omitempty"`
	IndentStart float64   `json:"indentStart,omitempty"`
	SpaceAbove  float64   `json:"spaceAbove,omitempty"`
	SpaceBelow  float64   `json:"spaceBelow,omitempty"`
}

// Paragraph is anchored at the stream offset of its ParagraphBreak rune.
type Paragraph struct {
	StartIndex     int             `json:"startIndex"`
	Bullet         *Bullet         `json:"bullet,omitempty"`
	ParagraphStyle *ParagraphStyle `json:"paragraphStyle,omitempty"`
}

func (p Paragraph) Clone() Paragraph {
	if p.Bullet != nil {
		b := *p.Bullet
		p.Bullet = &b
	}
	if p.ParagraphStyle != nil {
		s := *p.ParagraphStyle
		p.ParagraphStyle = &s
	}
	return p
}

type TextStyle struct {
	Bold       bool    `json:"bl,omitempty"`
	Italic     bool    `json:"it,omitempty"`
	Underline  bool    `json:"ul,omitempty"`
	Strike     bool    `json:"st,omitempty"`
	FontSize   float64 `json:"fs,omitempty"`
	FontFamily string  `json:"ff,omitempty"`
	Color      string  `json:"cl,omitempty"`
}

// TextRun applies Style to the half-open span [St, Ed).
type TextRun struct {
	St    int       `json:"st"`
	Ed    int       `json:"ed"`
	Style TextStyle `json:"ts"`
}

// Body is a character stream plus the structures anchored into it. Insertion
// fragments use the same shape, with indices local to the fragment.
type Body struct {
	DataStream   string        `json:"dataStream"`
	Paragraphs   []Paragraph   `json:"paragraphs,omitempty"`
	CustomRanges []CustomRange `json:"customRanges,omitempty"`
	TextRuns     []TextRun     `json:"textRuns,omitempty"`
}

// NewBody wraps plain text. Paragraph metadata is created for every
// ParagraphBreak it contains.
func NewBody(text string) *Body {
	b := &Body{DataStream: text}
	for i, r := range []rune(text) {
		if r == ParagraphBreak {
			b.Paragraphs = append(b.Paragraphs, Paragraph{StartIndex: i})
		}
	}
	return b
}

// Len is the stream length in runes.
func (b *Body) Len() int {
	if b == nil {
		return 0
	}
	return utf8.RuneCountInString(b.DataStream)
}

func (b *Body) Runes() []rune { return []rune(b.DataStream) }

// EditableEnd is the offset of the trailing "\r\n" every segment ends with;
// nothing at or past it may be deleted.
func (b *Body) EditableEnd() int {
	stream := b.Runes()
	n := len(stream)
	if n >= 2 && stream[n-2] == ParagraphBreak && stream[n-1] == SectionBreak {
		return n - 2
	}
	return n
}

func (b *Body) Clone() *Body {
	if b == nil {
		return nil
	}
	out := &Body{
		DataStream: b.DataStream,
		TextRuns:   slices.Clone(b.TextRuns),
	}
	for _, p := range b.Paragraphs {
		out.Paragraphs = append(out.Paragraphs, p.Clone())
	}
	for _, r := range b.CustomRanges {
		out.CustomRanges = append(out.CustomRanges, r.Clone())
	}
	return out
}

func (b *Body) FindCustomRange(rangeID string) (CustomRange, bool) {
	for _, r := range b.CustomRanges {
		if r.RangeID == rangeID {
			return r, true
		}
	}
	return CustomRange{}, false
}

// TextRunAt returns the run that styles text typed at caret pos: the run
// ending at the caret wins, otherwise the run containing it.
func (b *Body) TextRunAt(pos int) (TextRun, bool) {
	for _, run := range b.TextRuns {
		if run.St < pos && pos <= run.Ed {
			return run, true
		}
	}
	for _, run := range b.TextRuns {
		if run.St <= pos && pos < run.Ed {
			return run, true
		}
	}
	return TextRun{}, false
}
