package doc

// Reserved runes inside a data stream.
const (
	ParagraphBreak   rune = '\r'
	SectionBreak     rune = '\n'
	CustomRangeStart rune = '\x1f'
	CustomRangeEnd   rune = '\x1e'
)

// IsSentinel reports whether r marks structure rather than content.
func IsSentinel(r rune) bool {
	switch r {
	case ParagraphBreak, SectionBreak, CustomRangeStart, CustomRangeEnd:
		return true
	}
	return false
}
