package doc

// Document owns the main body plus header and footer segments. An empty
// segment id addresses the main body.
type Document struct {
	ID      string           `json:"id"`
	Body    *Body            `json:"body"`
	Headers map[string]*Body `json:"headers,omitempty"`
	Footers map[string]*Body `json:"footers,omitempty"`
}

type SegmentKind string

const (
	SegmentMain   SegmentKind = "body"
	SegmentHeader SegmentKind = "headers"
	SegmentFooter SegmentKind = "footers"
)

// NewDocument returns a document whose main body holds text followed by the
// mandatory trailing paragraph and section breaks.
func NewDocument(id, text string) *Document {
	return &Document{
		ID:   id,
		Body: NewBody(text + string(ParagraphBreak) + string(SectionBreak)),
	}
}

// Segment reports which collection segmentID lives in.
func (d *Document) Segment(segmentID string) (SegmentKind, bool) {
	if segmentID == "" {
		return SegmentMain, d.Body != nil
	}
	if _, ok := d.Headers[segmentID]; ok {
		return SegmentHeader, true
	}
	if _, ok := d.Footers[segmentID]; ok {
		return SegmentFooter, true
	}
	return "", false
}

// SegmentBody is the read accessor every composition starts from.
func (d *Document) SegmentBody(segmentID string) (*Body, bool) {
	if d == nil {
		return nil, false
	}
	kind, ok := d.Segment(segmentID)
	if !ok {
		return nil, false
	}
	switch kind {
	case SegmentHeader:
		return d.Headers[segmentID], true
	case SegmentFooter:
		return d.Footers[segmentID], true
	default:
		return d.Body, true
	}
}

// SetSegmentBody replaces an existing segment. It returns false if the segment
// does not exist.
func (d *Document) SetSegmentBody(segmentID string, b *Body) bool {
	kind, ok := d.Segment(segmentID)
	if !ok {
		return false
	}
	switch kind {
	case SegmentHeader:
		d.Headers[segmentID] = b
	case SegmentFooter:
		d.Footers[segmentID] = b
	default:
		d.Body = b
	}
	return true
}

func (d *Document) Clone() *Document {
	out := &Document{ID: d.ID, Body: d.Body.Clone()}
	if d.Headers != nil {
		out.Headers = make(map[string]*Body, len(d.Headers))
		for id, b := range d.Headers {
			out.Headers[id] = b.Clone()
		}
	}
	if d.Footers != nil {
		out.Footers = make(map[string]*Body, len(d.Footers))
		for id, b := range d.Footers {
			out.Footers[id] = b.Clone()
		}
	}
	return out
}

// TextRange is a user selection in stream coordinates at edit time.
type TextRange struct {
	StartOffset int        `json:"startOffset"`
	EndOffset   int        `json:"endOffset"`
	Collapsed   bool       `json:"collapsed"`
	SegmentID   string     `json:"segmentId,omitempty"`
	Style       *TextStyle `json:"style,omitempty"`
}

// Caret returns a collapsed range at offset.
func Caret(offset int, segmentID string) TextRange {
	return TextRange{StartOffset: offset, EndOffset: offset, Collapsed: true, SegmentID: segmentID}
}

// Span returns a range over [start, end); it is collapsed when start == end.
func Span(start, end int, segmentID string) TextRange {
	return TextRange{StartOffset: start, EndOffset: end, Collapsed: start == end, SegmentID: segmentID}
}
