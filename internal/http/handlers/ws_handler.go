// Websocket entry point.
//
// GET /ws upgrades the connection, registers a session for the authenticated
// principal (auto-joining its principal and role rooms), sends a hello frame,
// and then serves room join/leave commands until the client goes away.
//
// Browsers cannot set an Authorization header on a websocket handshake, so
// the auth middleware also accepts a `token` query parameter on this route.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/http/middleware"
	"github.com/leadops/go-leads-backend/internal/realtime"
)

// sessionHello is the payload of the first frame pushed to a new session.
type sessionHello struct {
	SessionID   string   `json:"sessionId"`
	PrincipalID string   `json:"principalId"`
	Role        string   `json:"role"`
	Rooms       []string `json:"rooms"`
}

// wsCommand is an inbound client frame. Only room management is accepted;
// domain events flow server→client exclusively.
type wsCommand struct {
	Action string `json:"action"` // "join" | "leave"
	Room   string `json:"room"`
}

// Websocket godoc
// @ID          websocket
// @Summary     Realtime event stream
// @Description Upgrades to a websocket session for the authenticated principal. The session
// @Description auto-joins its principal and role rooms and then receives domain events as
// @Description JSON frames. Clients may send {"action":"join"|"leave","room":"..."} frames.
// @Tags        Realtime
//
// @Param       token  query  string  false "Bearer token (header alternative for browsers)"
//
// @Success     101  {string} string "Switching Protocols"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /ws [get]
func (h *Handlers) Websocket(c *gin.Context) {
	pid := principalID(c)
	role := middleware.Role(c)
	if role == "" {
		role = domain.RoleAgent
	}

	ws, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeUpgradeFailed, "websocket upgrade failed")
		return
	}

	ctx := c.Request.Context()
	conn := realtime.NewWSConn(ctx, ws)
	sess := h.registry.Connect(pid, role, conn)
	if sess == nil { // registry shut down
		conn.Close()
		return
	}
	defer h.registry.Disconnect(sess)

	h.sendHello(sess, pid, role)

	// Serve join/leave until the peer disconnects or the server shuts down.
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		room := strings.TrimSpace(cmd.Room)
		if room == "" || !roomJoinable(room, pid) {
			continue
		}
		switch cmd.Action {
		case "join":
			h.registry.Join(sess, room)
		case "leave":
			h.registry.Leave(sess, room)
		}
	}
}

// roomJoinable rejects attempts to enter another principal's private room.
// Role rooms are granted at connect time only, never via a client frame.
func roomJoinable(room, pid string) bool {
	if strings.HasPrefix(room, realtime.RoomPrefixPrincipal) {
		return room == realtime.PrincipalRoom(pid)
	}
	if strings.HasPrefix(room, realtime.RoomPrefixRole) {
		return false
	}
	return true
}

func (h *Handlers) sendHello(sess *realtime.Session, pid, role string) {
	payload, err := json.Marshal(sessionHello{
		SessionID:   sess.ID,
		PrincipalID: pid,
		Role:        role,
		Rooms:       []string{realtime.PrincipalRoom(pid), realtime.RoleRoom(role)},
	})
	if err != nil {
		return
	}
	sess.Deliver(realtime.Event{
		Kind:      realtime.EventSessionHello,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}
