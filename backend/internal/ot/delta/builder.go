package delta

// Builder accumulates ops in order. It tracks no cursor: callers emit the
// retains that walk over unedited content themselves.
type Builder struct {
	ops Delta
}

func NewBuilder() *Builder { return &Builder{} }

// Push appends ops. Zero-length ops are dropped; a retain without cover or a
// delete directly following an op of the same shape is merged into it.
// Inserts are appended where they are pushed and never merged.
func (b *Builder) Push(ops ...Op) *Builder {
	for _, op := range ops {
		op.Validate()
		if op.Len == 0 {
			continue
		}
		if n := len(b.ops); n > 0 && mergeable(b.ops[n-1], op) {
			b.ops[n-1].Len += op.Len
			continue
		}
		b.ops = append(b.ops, op)
	}
	return b
}

func mergeable(last, op Op) bool {
	if last.Kind != op.Kind {
		return false
	}
	switch op.Kind {
	case KindRetain:
		return last.Cover == nil && op.Cover == nil
	case KindDelete:
		return true
	}
	return false
}

func (b *Builder) Len() int { return len(b.ops) }

// Serialize returns the composed ops. Coalescing already happened on Push.
func (b *Builder) Serialize() Delta {
	out := make(Delta, len(b.ops))
	copy(out, b.ops)
	return out
}
