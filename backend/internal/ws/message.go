package ws

import (
	"encoding/json"
	"time"

	"composer/backend/internal/cache"
	"composer/backend/internal/collab"
	"composer/backend/internal/doc"
	"composer/backend/internal/mutation"
)

// Client message types.
const (
	TypeHeartbeat = "heartbeat"
	TypeCommand   = "command"
	TypeSync      = "sync"
	TypeLoad      = "load"
)

// Commands carried by a "command" message.
const (
	CmdInsertText  = "insert-text"
	CmdDelete      = "delete"
	CmdReplace     = "replace"
	CmdAddRange    = "add-range"
	CmdDeleteRange = "delete-range"
	CmdIMEStart    = "ime-start"
	CmdIMEInput    = "ime-input"
)

type ClientMessage struct {
	Type string `json:"type"`
	// RequestID is echoed back so clients can match acks to commands.
	RequestID string          `json:"requestId,omitempty"`
	Command   string          `json:"command,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	// FromRevision is used by "sync".
	FromRevision uint64 `json:"fromRevision,omitempty"`
}

type OutboundMessage interface {
	MessageType() string
}

type ServerMessage struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"requestId,omitempty"`
	UserID    uint64                 `json:"userId,omitempty"`
	DocID     string                 `json:"docId,omitempty"`
	Revision  uint64                 `json:"revision,omitempty"`
	Members   []cache.PresenceMember `json:"members,omitempty"`
	Content   string                 `json:"content,omitempty"`
}

// CommandAppliedMessage acks a command to the connection that sent it.
type CommandAppliedMessage struct {
	Type       string            `json:"type"` // "command_applied"
	RequestID  string            `json:"requestId,omitempty"`
	DocID      string            `json:"docId"`
	Revision   uint64            `json:"revision"`
	MutationID string            `json:"mutationId"`
	Actions    []mutation.Action `json:"actions"`
	TextRanges []doc.TextRange   `json:"textRanges,omitempty"`
	NoHistory  bool              `json:"noHistory"`
	Cursor     *int              `json:"cursor,omitempty"`
}

// MutationBroadcastMessage pushes an applied mutation to the other members of
// the document room, including other tabs of the same user.
type MutationBroadcastMessage struct {
	Type      string            `json:"type"` // "mutation_broadcast"
	DocID     string            `json:"docId"`
	Revision  uint64            `json:"revision"`
	AuthorID  uint64            `json:"authorId"`
	Mutation  mutation.Mutation `json:"mutation"`
	AppliedAt time.Time         `json:"appliedAt"`
}

type SnapshotMessage struct {
	Type     string        `json:"type"` // "snapshot"
	DocID    string        `json:"docId"`
	Revision uint64        `json:"revision"`
	Document *doc.Document `json:"document"`
}

func (m ServerMessage) MessageType() string            { return m.Type }
func (m CommandAppliedMessage) MessageType() string    { return m.Type }
func (m MutationBroadcastMessage) MessageType() string { return m.Type }
func (m SnapshotMessage) MessageType() string          { return m.Type }

func appliedMessage(requestID, docID string, a collab.Applied) CommandAppliedMessage {
	return CommandAppliedMessage{
		Type:       "command_applied",
		RequestID:  requestID,
		DocID:      docID,
		Revision:   a.Revision,
		MutationID: a.Mutation.ID,
		Actions:    a.Mutation.Actions,
		TextRanges: a.Mutation.TextRanges,
		NoHistory:  a.Mutation.NoHistory,
		Cursor:     a.Cursor,
	}
}

func broadcastMessage(docID string, a collab.Applied) MutationBroadcastMessage {
	return MutationBroadcastMessage{
		Type:      "mutation_broadcast",
		DocID:     docID,
		Revision:  a.Revision,
		AuthorID:  a.AuthorID,
		Mutation:  a.Mutation,
		AppliedAt: a.AppliedAt,
	}
}
