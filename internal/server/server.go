package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"prompt-rush/internal/config"

	"gorm.io/gorm"
)

type Server struct {
	registry *Registry
	db       *gorm.DB
	hub      *wsHub
	images   ImageProvider
	cfg      config.Config
	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

func New(conn *gorm.DB, cfg config.Config) *Server {
	srv := &Server{
		registry: NewRegistry(),
		db:       conn,
		hub:      newWSHub(),
		cfg:      cfg,
		timers:   make(map[string]*time.Timer),
	}
	if cfg.StabilityAPIKey != "" {
		srv.images = NewStabilityProvider(cfg)
	} else {
		srv.images = MockProvider{}
	}
	return srv
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/rooms/", s.handleRoomSnapshot)
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  s.registry.RoomCount(),
	})
}

// handleRoomSnapshot serves the same read model the gateway broadcasts, for
// clients re-querying state over plain HTTP.
func (s *Server) handleRoomSnapshot(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	if roomID == "" || strings.Contains(roomID, "/") {
		http.NotFound(w, r)
		return
	}
	var payload map[string]any
	_, err := s.registry.UpdateRoom(strings.ToUpper(roomID), func(room *Room) error {
		payload = roomSnapshot(room)
		return nil
	})
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
