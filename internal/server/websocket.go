package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// client is one live connection: the gateway-side identity the registry
// keys players on.
type client struct {
	id   string
	conn *websocket.Conn
}

type wsHub struct {
	mu     sync.Mutex
	groups map[string]map[*websocket.Conn]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		groups: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *wsHub) Add(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[roomID]
	if group == nil {
		group = make(map[*websocket.Conn]struct{})
		h.groups[roomID] = group
	}
	group[conn] = struct{}{}
}

func (h *wsHub) Remove(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[roomID]
	if group == nil {
		return
	}
	delete(group, conn)
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
}

func (h *wsHub) Send(conn *websocket.Conn, payload any) {
	if conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (h *wsHub) Broadcast(roomID string, payload any) {
	h.BroadcastExcept(roomID, nil, payload)
}

// BroadcastExcept sends to every connection in the room but skip.
func (h *wsHub) BroadcastExcept(roomID string, skip *websocket.Conn, payload any) {
	h.mu.Lock()
	group := h.groups[roomID]
	conns := make([]*websocket.Conn, 0, len(group))
	for conn := range group {
		if conn == skip {
			continue
		}
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.Remove(roomID, conn)
		}
	}
}

// wsRequest is the inbound envelope; Data decodes per request type.
type wsRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	log.Printf("ws connected conn_id=%s remote=%s", c.id, r.RemoteAddr)
	go s.readWS(c)
}

func (s *Server) readWS(c *client) {
	defer s.handleDisconnect(c)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("ws disconnected conn_id=%s error=%v", c.id, err)
			return
		}
		var req wsRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			continue
		}
		s.dispatch(c, req)
	}
}

func (s *Server) handleDisconnect(c *client) {
	room, remaining, destroyed := s.registry.Disconnect(c.id)
	if room != nil {
		s.hub.Remove(room.ID, c.conn)
	}
	_ = c.conn.Close()
	if room == nil {
		return
	}
	if destroyed {
		s.cancelCountdown(room.ID)
		s.persistEvent(room, "room_closed", EventPayload{RoomID: room.ID})
		log.Printf("room closed room_id=%s reason=empty", room.ID)
		return
	}
	log.Printf("player left room_id=%s conn_id=%s members=%d", room.ID, c.id, remaining)
	s.broadcastRoomUpdate(room.ID)
}
