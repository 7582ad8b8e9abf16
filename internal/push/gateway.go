// Package push fans out push events to connected websocket clients.
package push

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"scenarioflow/internal/state"
	"scenarioflow/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenVerifier resolves a bearer credential to a user ID
type TokenVerifier func(token string) (string, error)

// Gateway holds the websocket connections of authenticated users and
// broadcasts each push event to every connection its owner has open.
type Gateway struct {
	verify TokenVerifier
	log    *logrus.Logger

	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]bool
}

// NewGateway creates a gateway that authenticates sockets with verify
func NewGateway(verify TokenVerifier, log *logrus.Logger) *Gateway {
	return &Gateway{
		verify: verify,
		log:    log,
		conns:  make(map[string]map[*websocket.Conn]bool),
	}
}

// HandleWebSocket upgrades the request and registers the connection
// under its authenticated user. The credential comes from either the
// Authorization header or the token query parameter; browsers cannot
// set headers on websocket dials.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	userID, err := g.verify(token)
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	g.mu.Lock()
	if g.conns[userID] == nil {
		g.conns[userID] = make(map[*websocket.Conn]bool)
	}
	g.conns[userID][conn] = true
	total := len(g.conns[userID])
	g.mu.Unlock()

	g.log.WithFields(logrus.Fields{"user": userID, "connections": total}).Debug("push client connected")
	go g.readPump(userID, conn)
}

// readPump discards inbound frames and drops the connection on error.
// The channel is server-to-client only.
func (g *Gateway) readPump(userID string, conn *websocket.Conn) {
	defer func() {
		g.mu.Lock()
		if set := g.conns[userID]; set != nil {
			delete(set, conn)
			if len(set) == 0 {
				delete(g.conns, userID)
			}
		}
		g.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.WithField("user", userID).WithError(err).Debug("push client read error")
			}
			return
		}
	}
}

// Broadcast sends one event to every open connection of the user.
// Connections that fail to accept the write are closed and dropped.
func (g *Gateway) Broadcast(userID string, event models.PushEvent) {
	g.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(g.conns[userID]))
	for conn := range g.conns[userID] {
		targets = append(targets, conn)
	}
	g.mu.RUnlock()

	for _, conn := range targets {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			g.log.WithField("user", userID).WithError(err).Debug("dropping dead push connection")
			g.mu.Lock()
			if set := g.conns[userID]; set != nil {
				delete(set, conn)
				if len(set) == 0 {
					delete(g.conns, userID)
				}
			}
			g.mu.Unlock()
			conn.Close()
		}
	}
}

// ConnectionCount reports how many sockets the user has open
func (g *Gateway) ConnectionCount(userID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns[userID])
}

// Run consumes the Redis push channel and fans each envelope out to its
// owner's sockets. It blocks until the context is cancelled.
func (g *Gateway) Run(ctx context.Context, publisher *state.RedisPublisher) error {
	return publisher.Subscribe(ctx, func(env state.Envelope) {
		g.Broadcast(env.UserID, env.Event)
	})
}

// CloseAll closes every connection; used during shutdown
func (g *Gateway) CloseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for userID, set := range g.conns {
		for conn := range set {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			conn.Close()
		}
		delete(g.conns, userID)
	}
}
