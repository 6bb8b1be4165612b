package delta

import (
	"fmt"
	"strings"

	"composer/backend/internal/doc"
)

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// CoverType says how a retain's cover body overwrites the retained content.
type CoverType int

const (
	// CoverMerge overlays only the fields the cover body sets.
	CoverMerge CoverType = iota
	// CoverReplace swaps the retained metadata for the cover body's.
	CoverReplace
)

type Cover struct {
	Body *doc.Body `json:"body"`
	Type CoverType `json:"coverType"`
}

// Op is one step of a composed edit. Only inserts carry Body and only retains
// carry Cover.
type Op struct {
	Kind  Kind      `json:"kind"`           // "retain" / "insert" / "delete"
	Len   int       `json:"len"`            // consumed (retain/delete) or produced (insert) runes
	Body  *doc.Body `json:"body,omitempty"` // insert payload
	Cover *Cover    `json:"cover,omitempty"`
}

type Delta []Op

func Retain(n int) Op { return Op{Kind: KindRetain, Len: n} }

func RetainCover(n int, body *doc.Body, t CoverType) Op {
	return Op{Kind: KindRetain, Len: n, Cover: &Cover{Body: body, Type: t}}
}

func Delete(n int) Op { return Op{Kind: KindDelete, Len: n} }

// Insert takes its length from the fragment's stream.
func Insert(body *doc.Body) Op {
	return Op{Kind: KindInsert, Len: body.Len(), Body: body}
}

// Validate panics when op could only have come from a composition bug.
func (op Op) Validate() {
	if op.Len < 0 {
		panic(fmt.Sprintf("delta: negative %s length %d", op.Kind, op.Len))
	}
	switch op.Kind {
	case KindRetain:
		if op.Body != nil {
			panic("delta: retain carries an insert body")
		}
	case KindDelete:
		if op.Body != nil || op.Cover != nil {
			panic("delta: delete carries a payload")
		}
	case KindInsert:
		if op.Body == nil {
			panic("delta: insert without body")
		}
		if op.Cover != nil {
			panic("delta: insert carries a cover")
		}
		if op.Len != op.Body.Len() {
			panic(fmt.Sprintf("delta: insert length %d does not match body length %d", op.Len, op.Body.Len()))
		}
	default:
		panic(fmt.Sprintf("delta: unknown op kind %q", op.Kind))
	}
}

// Consumed is how many source runes d walks over.
func (d Delta) Consumed() int {
	n := 0
	for _, op := range d {
		if op.Kind != KindInsert {
			n += op.Len
		}
	}
	return n
}

// String renders d compactly, e.g. `r5 d2 i"ab"`.
func (d Delta) String() string {
	parts := make([]string, 0, len(d))
	for _, op := range d {
		switch op.Kind {
		case KindRetain:
			if op.Cover != nil {
				parts = append(parts, fmt.Sprintf("r%d*", op.Len))
			} else {
				parts = append(parts, fmt.Sprintf("r%d", op.Len))
			}
		case KindDelete:
			parts = append(parts, fmt.Sprintf("d%d", op.Len))
		case KindInsert:
			parts = append(parts, fmt.Sprintf("i%q", op.Body.DataStream))
		}
	}
	return strings.Join(parts, " ")
}
