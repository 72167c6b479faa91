package realtime

import (
	"context"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// outboxSize bounds the per-session send queue. The writer goroutine drains
// it in FIFO order, which is what gives per-session delivery its publish
// ordering guarantee.
const outboxSize = 64

// WSConn adapts a coder/websocket connection to the Conn interface. Writes
// go through a buffered outbox drained by a single goroutine so publishers
// never block on a slow socket.
type WSConn struct {
	ws     *websocket.Conn
	outbox chan []byte
	cancel context.CancelFunc
	lg     zerolog.Logger
}

// NewWSConn wraps ws and starts the writer goroutine. The connection is
// closed when the parent ctx is canceled, Close is called, or a write fails.
func NewWSConn(ctx context.Context, ws *websocket.Conn) *WSConn {
	ctx, cancel := context.WithCancel(ctx)
	c := &WSConn{
		ws:     ws,
		outbox: make(chan []byte, outboxSize),
		cancel: cancel,
		lg:     log.With().Str("component", "realtime.ws").Logger(),
	}
	go c.writeLoop(ctx)
	return c
}

func (c *WSConn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
			return
		case data := <-c.outbox:
			if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
				c.lg.Debug().Err(err).Msg("ws write failed, closing")
				c.cancel()
				_ = c.ws.Close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

// Send implements Conn. A full outbox drops the event and reports false.
func (c *WSConn) Send(data []byte) bool {
	select {
	case c.outbox <- data:
		return true
	default:
		return false
	}
}

// Close implements Conn. Safe to call more than once.
func (c *WSConn) Close() {
	c.cancel()
}
