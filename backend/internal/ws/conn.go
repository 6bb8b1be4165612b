package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"composer/backend/internal/collab"
	"composer/backend/internal/doc"
	"composer/backend/internal/ime"
	"composer/backend/internal/logger"
	"composer/backend/internal/ot/textx"
)

const (
	commandTimeout = 200 * time.Millisecond
	sendQueue      = 32
	syncLimit      = 500
)

var errInternal = errors.New("internal error")

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	id       string
	docID    string
	userID   uint64
	username string
	send     chan OutboundMessage
	svc      collab.Service
	sem      *collab.SemaphoreControl
	presence time.Duration
	log      *zap.Logger
}

func NewConn(ws *websocket.Conn, hub *Hub, docID string, userID uint64, username string, svc collab.Service, sem *collab.SemaphoreControl, log *zap.Logger) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		id:       uuid.NewString(),
		docID:    docID,
		userID:   userID,
		username: username,
		send:     make(chan OutboundMessage, sendQueue),
		svc:      svc,
		sem:      sem,
		presence: 10 * time.Minute,
		log:      logger.OrNop(log),
	}
}

func (c *Conn) origin() collab.Origin {
	return collab.Origin{AuthorID: c.userID, ClientID: c.id}
}

// Enqueue drops the message when the client is too slow to drain its queue.
func (c *Conn) Enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("send queue full, message dropped", zap.String("type", msg.MessageType()))
	}
}

func (c *Conn) fail(requestID string, err error) {
	c.Enqueue(ServerMessage{Type: "error", RequestID: requestID, DocID: c.docID, Content: err.Error()})
}

type selectionPayload struct {
	Selection doc.TextRange `json:"selection"`
}

type insertTextPayload struct {
	Selection doc.TextRange `json:"selection"`
	Text      string        `json:"text"`
}

type deletePayload struct {
	Selection doc.TextRange `json:"selection"`
	Direction string        `json:"direction"`
}

type replacePayload struct {
	Selection doc.TextRange `json:"selection"`
	Body      *doc.Body     `json:"body"`
}

// runCommand decodes and executes one command; IME start has no mutation and
// returns a zero Applied with ok=false.
func (c *Conn) runCommand(ctx context.Context, msg ClientMessage) (collab.Applied, bool, error) {
	decode := func(v any) error {
		if len(msg.Payload) == 0 {
			return fmt.Errorf("command %s: missing payload", msg.Command)
		}
		return json.Unmarshal(msg.Payload, v)
	}
	o := c.origin()

	switch msg.Command {
	case CmdInsertText:
		var p insertTextPayload
		if err := decode(&p); err != nil {
			return collab.Applied{}, false, err
		}
		a, err := c.svc.InsertText(ctx, c.docID, o, p.Selection, p.Text)
		return a, true, err
	case CmdDelete:
		var p deletePayload
		if err := decode(&p); err != nil {
			return collab.Applied{}, false, err
		}
		dir, err := textx.ParseDirection(p.Direction)
		if err != nil {
			return collab.Applied{}, false, err
		}
		a, err := c.svc.Delete(ctx, c.docID, o, p.Selection, dir)
		return a, true, err
	case CmdReplace:
		var p replacePayload
		if err := decode(&p); err != nil {
			return collab.Applied{}, false, err
		}
		a, err := c.svc.Replace(ctx, c.docID, o, p.Selection, p.Body)
		return a, true, err
	case CmdAddRange:
		var p collab.AddRangeRequest
		if err := decode(&p); err != nil {
			return collab.Applied{}, false, err
		}
		a, err := c.svc.AddRange(ctx, c.docID, o, p)
		return a, true, err
	case CmdDeleteRange:
		var p collab.DeleteRangeRequest
		if err := decode(&p); err != nil {
			return collab.Applied{}, false, err
		}
		a, err := c.svc.DeleteRange(ctx, c.docID, o, p)
		return a, true, err
	case CmdIMEStart:
		var p selectionPayload
		if err := decode(&p); err != nil {
			return collab.Applied{}, false, err
		}
		return collab.Applied{}, false, c.svc.IMEStart(ctx, c.docID, o, p.Selection)
	case CmdIMEInput:
		var p ime.InputParams
		if err := decode(&p); err != nil {
			return collab.Applied{}, false, err
		}
		a, err := c.svc.IMEInput(ctx, c.docID, o, p)
		return a, true, err
	}
	return collab.Applied{}, false, fmt.Errorf("unknown command %q", msg.Command)
}

func (c *Conn) handleCommand(ctx context.Context, msg ClientMessage) {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := c.sem.Acquire(cmdCtx); err != nil {
		c.fail(msg.RequestID, err)
		return
	}
	defer c.sem.Release()
	// a composition bug must not take the connection down
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("command panicked", zap.String("command", msg.Command), zap.Any("panic", r))
			c.fail(msg.RequestID, errInternal)
		}
	}()

	a, applied, err := c.runCommand(cmdCtx, msg)
	if err != nil {
		c.log.Debug("command failed", zap.String("command", msg.Command), zap.Error(err))
		c.fail(msg.RequestID, err)
		return
	}
	if !applied {
		c.Enqueue(ServerMessage{Type: "command_accepted", RequestID: msg.RequestID, DocID: c.docID})
		return
	}
	c.Enqueue(appliedMessage(msg.RequestID, c.docID, a))
}

func (c *Conn) heartbeat(ctx context.Context) {
	if c.hub.presence == nil {
		c.Enqueue(ServerMessage{Type: "feedback", Content: "Heartbeat received"})
		return
	}
	if err := c.hub.presence.AddMember(ctx, c.docID, c.userID, c.username, c.presence); err != nil {
		c.log.Warn("add member failed", zap.Error(err))
	}
	members, err := c.hub.presence.GetAliveMembersWithNames(ctx, c.docID)
	if err != nil {
		c.log.Warn("get members failed", zap.Error(err))
	} else {
		c.hub.BroadcastPresence(c.docID, members)
	}
	c.Enqueue(ServerMessage{Type: "feedback", Content: "Heartbeat received"})
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read json failed", zap.Error(err))
			}
			return
		}
		switch msg.Type {
		case TypeHeartbeat:
			c.heartbeat(ctx)

		case TypeCommand:
			c.handleCommand(ctx, msg)

		case TypeLoad:
			snap, err := c.svc.Load(ctx, c.docID)
			if err != nil {
				c.fail(msg.RequestID, err)
				continue
			}
			c.Enqueue(SnapshotMessage{Type: "snapshot", DocID: c.docID, Revision: snap.Revision, Document: snap.Document})

		case TypeSync:
			missed, err := c.svc.MutationsSince(ctx, c.docID, msg.FromRevision, syncLimit)
			if err != nil {
				c.fail(msg.RequestID, err)
				continue
			}
			for _, a := range missed {
				c.Enqueue(broadcastMessage(c.docID, a))
			}

		default:
			c.Enqueue(ServerMessage{Type: "ignored", RequestID: msg.RequestID, Content: "Unknown message type"})
		}
	}
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			c.log.Debug("write json failed", zap.Error(err))
		}
	}
}
