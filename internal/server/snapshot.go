package server

// roomSnapshot is the canonical read model: what room:get returns and what
// every room:updated broadcast carries.
func roomSnapshot(room *Room) map[string]any {
	ordered := room.orderedPlayers()
	players := make([]PlayerData, 0, len(ordered))
	for _, player := range ordered {
		players = append(players, PlayerData{
			ID:           player.ConnID,
			Name:         player.Name,
			Score:        player.Score,
			IsGameMaster: player.IsGameMaster,
		})
	}
	return map[string]any{
		"id":           room.ID,
		"players":      players,
		"gameMasterId": room.GameMasterID,
		"gameState":    room.State,
		"settings":     room.Settings,
		"roundNumber":  room.RoundNumber,
	}
}

// roundImage reports the in-flight round's image metadata for re-querying
// clients, or nil before the image resolves.
func roundImage(room *Room) (*ShowImageData, int) {
	if room.Round == nil || room.Round.Image == "" {
		return nil, 0
	}
	return &ShowImageData{
		ImageData:   room.Round.Image,
		PromptCount: len(room.Round.Keywords),
		TimeLimit:   room.Settings.TimeLimitSeconds,
		RoundNumber: room.RoundNumber,
	}, len(room.Round.Claims)
}

// broadcastRoomUpdate rebuilds the snapshot under the registry lock before
// pushing it, so membership churn on other goroutines never races the read.
func (s *Server) broadcastRoomUpdate(roomID string) {
	if s.hub == nil {
		return
	}
	var payload map[string]any
	if _, err := s.registry.UpdateRoom(roomID, func(room *Room) error {
		payload = roomSnapshot(room)
		return nil
	}); err != nil {
		return
	}
	s.hub.Broadcast(roomID, wsEvent{Type: eventRoomUpdated, Data: payload})
}
