package collab

import (
	"time"

	"composer/backend/internal/mutation"
)

const EventMutationApplied = "MUTATION_APPLIED"

// MutationEvent is what downstream consumers (history, search indexing) see
// for every applied mutation.
type MutationEvent struct {
	EventType  string            `json:"eventType"`
	DocID      string            `json:"docId"`
	MutationID string            `json:"mutationId"`
	Revision   uint64            `json:"revision"`
	AuthorID   uint64            `json:"authorId"`
	ClientID   string            `json:"clientId,omitempty"`
	Actions    []mutation.Action `json:"actions"`
	// NoHistory events are intermediate IME states; undo stacks skip them.
	NoHistory bool      `json:"noHistory,omitempty"`
	AppliedAt time.Time `json:"appliedAt"`
}

func newMutationEvent(docID string, a Applied) MutationEvent {
	return MutationEvent{
		EventType:  EventMutationApplied,
		DocID:      docID,
		MutationID: a.Mutation.ID,
		Revision:   a.Revision,
		AuthorID:   a.AuthorID,
		ClientID:   a.ClientID,
		Actions:    a.Mutation.Actions,
		NoHistory:  a.Mutation.NoHistory,
		AppliedAt:  a.AppliedAt,
	}
}
