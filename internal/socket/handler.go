// internal/socket/handler.go
package socket

import (
	"net/http"
	"strings"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler upgrades authenticated requests into account sessions
type Handler struct {
	Hub      *Hub
	Auth     service.AuthService
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. allowedOrigins empty or "*"
// accepts any origin.
func NewHandler(hub *Hub, auth service.AuthService, allowedOrigins []string) *Handler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimSuffix(o, "/")] = true
	}

	return &Handler{
		Hub:  hub,
		Auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleWebSocket validates the token from the query string, since browser
// WebSocket clients cannot set headers, and falls back to the bearer header.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}

	caller, err := h.Auth.ValidateToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Hub.log.Warn().Err(err).Msg("[WebSocket] upgrade error")
		return
	}

	client := NewClient(h.Hub, caller.AccountID, conn)
	select {
	case h.Hub.register <- client:
	case <-h.Hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// NewClient creates a new session for an account
func NewClient(hub *Hub, accountID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Conn:      conn,
		Hub:       hub,
		Send:      make(chan []byte, 256),
		lastPing:  time.Now(),
	}
}
