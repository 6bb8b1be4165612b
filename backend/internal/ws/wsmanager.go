package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"composer/backend/internal/collab"
	"composer/backend/internal/logger"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// some clients send no Origin, or "null"
	if origin == "" || origin == "null" {
		return true
	}
	for _, p := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	h           *Hub
	svc         collab.Service
	sem         *collab.SemaphoreControl
	presenceTTL time.Duration
	log         *zap.Logger
}

func NewManager(h *Hub, svc collab.Service, sem *collab.SemaphoreControl, presenceTTL time.Duration, log *zap.Logger) *Manager {
	return &Manager{h: h, svc: svc, sem: sem, presenceTTL: presenceTTL, log: logger.OrNop(log)}
}

// WebSocketConnect upgrades an authenticated request for ?docId= and serves
// the connection until the client goes away.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")
	docID := c.Query("docId")
	if docID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing docId"})
		return
	}
	snap, err := m.svc.Load(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.log.Warn("websocket upgrade failed", zap.String("origin", c.Request.Header.Get("Origin")), zap.Error(err))
		return
	}
	defer wsConn.Close()

	conn := NewConn(wsConn, m.h, docID, userID, username, m.svc, m.sem, m.log)
	conn.log = logger.WithDoc(logger.WithConn(m.log, conn.id, userID), docID)
	if m.presenceTTL > 0 {
		conn.presence = m.presenceTTL
	}

	m.h.Join(docID, conn)
	go conn.writeLoop()
	conn.Enqueue(ServerMessage{Type: "welcome", DocID: docID, UserID: userID, Revision: snap.Revision, Content: conn.id})

	conn.readLoop(c.Request.Context())

	// leave before closing send so Notify never writes to a closed channel
	m.h.Leave(docID, conn)
	close(conn.send)
}
