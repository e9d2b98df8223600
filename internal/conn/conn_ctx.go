package conn

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JAssertz/better-convex-sub001/internal/auth"
)

const maxConnAttempts = 3

type ConnCtx struct {
	ws       *websocket.Conn
	attempts int
	isAuthed bool

	User *auth.User
}

// New connections have a 30 second deadline. If the deadline is reached
// before the connection authenticates, the connection is closed.
func NewConnCtx(ws *websocket.Conn) *ConnCtx {
	ws.SetReadDeadline(time.Now().Add(30 * time.Second))
	return &ConnCtx{ws: ws}
}

// SetAuthed marks the connection as authenticated and removes the deadline.
func (ctx *ConnCtx) SetAuthed() {
	ctx.isAuthed = true
	ctx.ws.SetReadDeadline(time.Time{})
}

func (ctx *ConnCtx) Read() ([]byte, error) {
	kind, buf, err := ctx.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
		return nil, errors.New("unexpected message type")
	}
	return buf, nil
}

func (ctx *ConnCtx) WriteResponse(r Response) error {
	return ctx.ws.WriteJSON(r)
}
