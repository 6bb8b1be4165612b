package doc

import (
	"encoding/json"
	"fmt"
)

// Position locates a custom range sentinel. Ranges attached to a live body are
// absolute; ranges carried by a freshly built insertion fragment may instead be
// relative to the fragment's last rune until the fragment is spliced in.
type Position struct {
	fromEnd bool
	n       int
}

// Abs is an absolute index into the body holding the range.
func Abs(n int) Position { return Position{n: n} }

// FromEnd is an offset (<= 0) from the last rune of the enclosing fragment.
func FromEnd(k int) Position {
	if k > 0 {
		panic(fmt.Sprintf("doc: FromEnd offset must be <= 0, got %d", k))
	}
	return Position{fromEnd: true, n: k}
}

func (p Position) Relative() bool { return p.fromEnd }

// Index returns the absolute index. Calling it on a fragment-relative position
// is a programming error.
func (p Position) Index() int {
	if p.fromEnd {
		panic("doc: unresolved fragment-relative position")
	}
	return p.n
}

// Resolve maps p into the coordinates of the stream the fragment was spliced
// into: base is the fragment's first index there, length its rune count.
func (p Position) Resolve(base, length int) int {
	if p.fromEnd {
		return base + length - 1 + p.n
	}
	return base + p.n
}

func (p Position) String() string {
	if p.fromEnd {
		return fmt.Sprintf("end%+d", p.n)
	}
	return fmt.Sprintf("%d", p.n)
}

type relativeJSON struct {
	FromEnd int `json:"fromEnd"`
}

// MarshalJSON writes absolute positions as plain numbers and relative ones as
// {"fromEnd": k}, so the two phases never share a representation.
func (p Position) MarshalJSON() ([]byte, error) {
	if p.fromEnd {
		return json.Marshal(relativeJSON{FromEnd: p.n})
	}
	return json.Marshal(p.n)
}

func (p *Position) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*p = Abs(n)
		return nil
	}
	var rel relativeJSON
	if err := json.Unmarshal(b, &rel); err != nil {
		return fmt.Errorf("doc: invalid position %s: %w", b, err)
	}
	if rel.FromEnd > 0 {
		return fmt.Errorf("doc: invalid position %s: fromEnd must be <= 0", b)
	}
	*p = FromEnd(rel.FromEnd)
	return nil
}
