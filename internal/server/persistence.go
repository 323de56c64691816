package server

import (
	"encoding/json"
	"log"
	"time"

	"prompt-rush/internal/db"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// History persistence is write-only: rows record what happened, nothing is
// ever loaded back into a live room. Every helper is a no-op without a
// database and failures are logged rather than surfaced, so the game never
// stalls on the history log.

func (s *Server) persistRoom(room *Room) {
	if s.db == nil {
		return
	}
	record := db.Room{
		Code:  room.ID,
		State: room.State,
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		log.Printf("persist room failed room_id=%s error=%v", room.ID, err)
		return
	}
	room.DBID = record.ID
	s.persistEvent(room, "room_created", EventPayload{RoomID: room.ID})
	if founder := room.master(); founder != nil {
		s.persistPlayer(room, founder)
	}
}

func (s *Server) persistPlayer(room *Room, player *Player) {
	if s.db == nil || player == nil {
		return
	}
	if !s.ensureRoomDBID(room) {
		return
	}
	record := db.Player{
		RoomID:   room.DBID,
		Name:     player.Name,
		IsMaster: player.IsGameMaster,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		log.Printf("persist player failed room_id=%s player=%s error=%v", room.ID, player.Name, err)
		return
	}
	player.DBID = record.ID
	s.persistEvent(room, "player_joined", EventPayload{RoomID: room.ID, PlayerName: player.Name})
}

func (s *Server) persistRound(room *Room) {
	if s.db == nil || room.Round == nil {
		return
	}
	if !s.ensureRoomDBID(room) {
		return
	}
	record := db.Round{
		RoomID:       room.DBID,
		Number:       room.RoundNumber,
		CombinedText: room.Round.CombinedText,
		KeywordCount: len(room.Round.Keywords),
	}
	if err := s.db.Create(&record).Error; err != nil {
		log.Printf("persist round failed room_id=%s round=%d error=%v", room.ID, room.RoundNumber, err)
		return
	}
	room.Round.DBID = record.ID
	s.persistEvent(room, "round_started", EventPayload{
		RoomID:       room.ID,
		RoundNumber:  room.RoundNumber,
		KeywordCount: len(room.Round.Keywords),
	})
}

func (s *Server) persistClaim(room *Room, keyword, playerName string, order int) {
	if s.db == nil || room.Round == nil || room.Round.DBID == 0 {
		return
	}
	record := db.Claim{
		RoundID:    room.Round.DBID,
		Keyword:    keyword,
		PlayerName: playerName,
		ClaimOrder: order,
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		log.Printf("persist claim failed room_id=%s keyword=%s error=%v", room.ID, keyword, err)
		return
	}
	s.persistEvent(room, "keyword_claimed", EventPayload{
		RoomID:       room.ID,
		PlayerName:   playerName,
		Keyword:      keyword,
		ClaimedCount: order,
	})
}

func (s *Server) persistRoundOutcome(room *Room, outcome *roundOutcome, reason string) {
	if s.db == nil || room.Round == nil {
		return
	}
	if room.Round.DBID != 0 {
		if err := s.db.Model(&db.Round{}).
			Where("id = ?", room.Round.DBID).
			Update("outcome", reason).Error; err != nil {
			log.Printf("persist outcome failed room_id=%s error=%v", room.ID, err)
		}
	}
	payload := EventPayload{
		RoomID:      room.ID,
		RoundNumber: room.RoundNumber,
		State:       room.State,
		Reason:      reason,
	}
	if outcome.finished != nil {
		payload.Winner = outcome.finished.Winner.Name
	}
	s.persistEvent(room, "round_resolved", payload)
}

func (s *Server) persistEvent(room *Room, eventType string, payload EventPayload) {
	if s.db == nil {
		return
	}
	if !s.ensureRoomDBID(room) {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	record := db.Event{
		RoomID:  room.DBID,
		Type:    eventType,
		Payload: datatypes.JSON(data),
	}
	if room.Round != nil && room.Round.DBID != 0 {
		roundID := room.Round.DBID
		record.RoundID = &roundID
	}
	if err := s.db.Create(&record).Error; err != nil {
		log.Printf("persist event failed room_id=%s type=%s error=%v", room.ID, eventType, err)
	}
}

func (s *Server) ensureRoomDBID(room *Room) bool {
	if room.DBID != 0 {
		return true
	}
	var record db.Room
	if err := s.db.Where("code = ?", room.ID).First(&record).Error; err != nil {
		return false
	}
	room.DBID = record.ID
	return true
}
