package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Whole code buffers travel in a single frame.
	maxMessageSize = 1 << 20

	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is wide open, matching the CORS policy of the rest
	// of the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is one websocket connection. roomID and userName are owned by
// the hub loop and must not be touched elsewhere.
type Session struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	roomID   string
	userName string
}

// ServeWS upgrades an HTTP request and hands the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &Session{
		id:   ulid.Make().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register <- s

	go s.writePump()
	go s.readPump()
}

// readPump reads events from the connection into the hub until the
// connection drops. An abrupt drop follows the same path as an explicit
// leave, via the unregister channel.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Debug().Err(err).Str("session", s.id).Msg("read error")
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			// Garbage frames are dropped, not fatal.
			s.hub.logger.Debug().Err(err).Str("session", s.id).Msg("malformed frame")
			continue
		}
		s.hub.events <- inboundEvent{sess: s, ev: ev}
	}
}

// writePump drains the send queue to the connection and keeps the
// connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
