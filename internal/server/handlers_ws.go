package server

import (
	"encoding/json"
	"errors"
	"log"
)

type createRoomRequest struct {
	PlayerName string `json:"playerName"`
}

type joinRoomRequest struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
}

type updateSettingsRequest struct {
	Settings Settings `json:"settings"`
}

type setPromptsRequest struct {
	Prompts []string `json:"prompts"`
}

type submitAnswerRequest struct {
	Answer string `json:"answer"`
}

type sendHintRequest struct {
	Text string `json:"text"`
}

type createRoomReply struct {
	RoomID string `json:"roomId"`
}

type joinRoomReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type roomStateReply struct {
	Room         map[string]any `json:"room"`
	GameImage    *ShowImageData `json:"gameImage"`
	ClaimedCount int            `json:"claimedCount"`
}

// dispatch routes one inbound request. Misuse (wrong actor, wrong state,
// malformed payload) falls through silently; only join failures and image
// errors ever surface to a client.
func (s *Server) dispatch(c *client, req wsRequest) {
	switch req.Type {
	case "room:create":
		var data createRoomRequest
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return
		}
		s.handleCreateRoom(c, data)
	case "room:join":
		var data joinRoomRequest
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return
		}
		s.handleJoinRoom(c, data)
	case "room:get":
		s.handleGetRoom(c)
	case "room:update-settings":
		var data updateSettingsRequest
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return
		}
		s.handleUpdateSettings(c, data.Settings)
	case "game:set-prompts":
		var data setPromptsRequest
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return
		}
		s.startRound(c, data.Prompts)
	case "game:submit-answer":
		var data submitAnswerRequest
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return
		}
		s.submitAnswer(c, data.Answer)
	case "game:send-hint":
		var data sendHintRequest
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return
		}
		s.sendHint(c, data.Text)
	case "game:next-round":
		s.nextRound(c)
	case "game:reset":
		s.resetGame(c)
	}
}

func (s *Server) handleCreateRoom(c *client, data createRoomRequest) {
	name, err := validateName(data.PlayerName)
	if err != nil {
		return
	}
	if _, joined := s.registry.RoomForConn(c.id); joined {
		return
	}
	room := s.registry.CreateRoom(c.id, name, Settings{
		TargetScore:      s.cfg.TargetScore,
		TimeLimitSeconds: s.cfg.TimeLimitSeconds,
	})
	s.hub.Add(room.ID, c.conn)
	log.Printf("room created room_id=%s player=%s", room.ID, name)
	s.persistRoom(room)
	s.hub.Send(c.conn, wsEvent{Type: eventRoomCreated, Data: createRoomReply{RoomID: room.ID}})
	s.broadcastRoomUpdate(room.ID)
}

func (s *Server) handleJoinRoom(c *client, data joinRoomRequest) {
	name, err := validateName(data.PlayerName)
	if err != nil {
		s.hub.Send(c.conn, wsEvent{Type: eventJoinResult, Data: joinRoomReply{Error: "name is required"}})
		return
	}
	if _, joined := s.registry.RoomForConn(c.id); joined {
		return
	}
	room, err := s.registry.JoinRoom(data.RoomID, c.id, name)
	if err != nil {
		reply := joinRoomReply{Error: "room not found"}
		if errors.Is(err, errGameStarted) {
			reply.Error = "game already started"
		}
		s.hub.Send(c.conn, wsEvent{Type: eventJoinResult, Data: reply})
		return
	}
	s.hub.Add(room.ID, c.conn)
	var joined *Player
	members := 0
	if _, err := s.registry.UpdateRoom(room.ID, func(room *Room) error {
		joined = room.Players[c.id]
		members = len(room.Players)
		return nil
	}); err == nil && joined != nil {
		log.Printf("player joined room_id=%s player=%s members=%d", room.ID, name, members)
		s.persistPlayer(room, joined)
	}
	s.hub.Send(c.conn, wsEvent{Type: eventJoinResult, Data: joinRoomReply{Success: true}})
	s.broadcastRoomUpdate(room.ID)
}

func (s *Server) handleGetRoom(c *client) {
	room, ok := s.registry.RoomForConn(c.id)
	if !ok {
		s.hub.Send(c.conn, wsEvent{Type: eventRoomState, Data: roomStateReply{}})
		return
	}
	var reply roomStateReply
	_, err := s.registry.UpdateRoom(room.ID, func(room *Room) error {
		image, claimed := roundImage(room)
		reply = roomStateReply{
			Room:         roomSnapshot(room),
			GameImage:    image,
			ClaimedCount: claimed,
		}
		return nil
	})
	if err != nil {
		s.hub.Send(c.conn, wsEvent{Type: eventRoomState, Data: roomStateReply{}})
		return
	}
	s.hub.Send(c.conn, wsEvent{Type: eventRoomState, Data: reply})
}

func (s *Server) handleUpdateSettings(c *client, settings Settings) {
	if settings.TargetScore <= 0 || settings.TimeLimitSeconds <= 0 {
		return
	}
	room, err := s.registry.UpdateRoomForConn(c.id, func(room *Room) error {
		if !room.isMaster(c.id) {
			return errStateChanged
		}
		room.Settings = settings
		return nil
	})
	if err != nil {
		return
	}
	log.Printf("settings updated room_id=%s target_score=%d time_limit=%d", room.ID, settings.TargetScore, settings.TimeLimitSeconds)
	s.persistEvent(room, "settings_updated", EventPayload{RoomID: room.ID})
	s.broadcastRoomUpdate(room.ID)
}
