package internal

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"timekeeper/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 8192
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn wraps a single websocket connection and its buffered send queue.
type Conn struct {
	id     string
	hub    *Hub
	ws     *websocket.Conn
	send   chan []byte
	logger zerolog.Logger
}

func newConn(hub *Hub, ws *websocket.Conn, logger zerolog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		hub:    hub,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With().Str("connection_id", id).Logger(),
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	conn := newConn(s.hub, ws, s.logger)
	if !s.hub.enqueueRegister(conn) {
		_ = ws.Close()
		return
	}
	conn.logger.Info().Str("remote", s.clientIP(r)).Msg("connection opened")

	go conn.writePump()
	go conn.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.enqueueUnregister(c)
		_ = c.ws.Close()
		c.logger.Info().Msg("connection closed")
	}()
	c.ws.SetReadLimit(maxMsgSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("read")
			}
			return
		}
		env, err := protocol.Decode(payload)
		if err != nil {
			c.logger.Debug().Err(err).Msg("ignoring undecodable message")
			continue
		}
		snap, err := env.Presence()
		if err != nil {
			c.logger.Debug().Str("type", string(env.Type)).Msg("ignoring message")
			continue
		}
		c.hub.enqueueAnnounce(c, snap)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
