package server

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"
)

// startRound moves the room from waiting to preparing and kicks off the
// image fetch. Non-master callers and wrong-state submissions are dropped
// without mutation or broadcast.
func (s *Server) startRound(c *client, keywords []string) {
	valid, err := validateKeywords(keywords)
	if err != nil {
		return
	}
	combined := strings.Join(valid, ", ")
	var round *Round
	room, err := s.registry.UpdateRoomForConn(c.id, func(room *Room) error {
		if !room.isMaster(c.id) || room.State != stateWaiting {
			return errStateChanged
		}
		room.RoundNumber++
		room.State = statePreparing
		round = &Round{
			Keywords:     valid,
			CombinedText: combined,
			Claims:       make(map[string]Claim),
		}
		room.Round = round
		return nil
	})
	if err != nil {
		return
	}
	log.Printf("round preparing room_id=%s round=%d keywords=%d", room.ID, room.RoundNumber, len(valid))
	s.broadcastRoomUpdate(room.ID)
	go s.fetchRoundImage(c, room.ID, round, combined)
}

// fetchRoundImage awaits the image provider while the room sits in
// preparing. Failure reverts the attempted round and notifies only the game
// master. Both closures require the room to still hold the exact round this
// fetch was started for, so a reset (or a reset plus a fresh submission)
// arriving mid-flight wins and the stale result is dropped.
func (s *Server) fetchRoundImage(c *client, roomID string, round *Round, combined string) {
	image, genErr := s.images.Generate(context.Background(), combined)
	if genErr != nil {
		log.Printf("image generation failed room_id=%s error=%v", roomID, genErr)
		room, err := s.registry.UpdateRoom(roomID, func(room *Room) error {
			if room.State != statePreparing || room.Round != round {
				return errStateChanged
			}
			room.State = stateWaiting
			room.RoundNumber--
			room.Round = nil
			return nil
		})
		if err != nil {
			return
		}
		s.hub.Send(c.conn, wsEvent{Type: eventError, Data: ErrorData{Message: "image generation failed"}})
		s.broadcastRoomUpdate(room.ID)
		return
	}

	var show ShowImageData
	room, err := s.registry.UpdateRoom(roomID, func(room *Room) error {
		if room.State != statePreparing || room.Round != round {
			return errStateChanged
		}
		room.Round.Image = image
		room.Round.Remaining = room.Settings.TimeLimitSeconds
		room.State = stateAnswering
		show = ShowImageData{
			ImageData:   image,
			PromptCount: len(room.Round.Keywords),
			TimeLimit:   room.Settings.TimeLimitSeconds,
			RoundNumber: room.RoundNumber,
		}
		return nil
	})
	if err != nil {
		return
	}
	s.persistRound(room)
	log.Printf("round started room_id=%s round=%d time_limit=%d", room.ID, show.RoundNumber, show.TimeLimit)
	s.hub.Broadcast(room.ID, wsEvent{Type: eventShowImage, Data: show})
	s.broadcastRoomUpdate(room.ID)
	s.scheduleCountdown(room.ID)
}

func (s *Server) scheduleCountdown(roomID string) {
	s.timersMu.Lock()
	if existing, ok := s.timers[roomID]; ok {
		existing.Stop()
	}
	s.timers[roomID] = time.AfterFunc(time.Second, func() {
		s.countdownTick(roomID)
	})
	s.timersMu.Unlock()
}

func (s *Server) cancelCountdown(roomID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if timer, ok := s.timers[roomID]; ok {
		timer.Stop()
		delete(s.timers, roomID)
	}
}

// countdownTick fires once per second while a round is answering. The state
// guard inside the closure makes the timeout-vs-full-claim race safe: if the
// round already resolved, the tick is a no-op and the chain stops.
func (s *Server) countdownTick(roomID string) {
	remaining := 0
	var outcome *roundOutcome
	room, err := s.registry.UpdateRoom(roomID, func(room *Room) error {
		if room.State != stateAnswering || room.Round == nil {
			return errStateChanged
		}
		room.Round.Remaining--
		remaining = room.Round.Remaining
		if room.Round.Remaining <= 0 {
			outcome = resolveRound(room)
		}
		return nil
	})
	if err != nil {
		s.cancelCountdown(roomID)
		return
	}
	s.hub.Broadcast(roomID, wsEvent{Type: eventTimeUpdate, Data: TimeUpdateData{Remaining: remaining}})
	if outcome != nil {
		s.finishResolution(room, outcome, "timeout")
		return
	}
	s.scheduleCountdown(roomID)
}

// submitAnswer claims the first matching unclaimed keyword for a non-master
// member. Claims are insert-if-absent; the first valid claim wins and later
// matches of the same keyword get alreadyClaimed feedback.
func (s *Server) submitAnswer(c *client, answer string) {
	text, err := validateAnswer(answer)
	if err != nil {
		return
	}
	var feedback *AnswerFeedbackData
	var claimNotice *AnswerCorrectData
	var claimedKeyword string
	var outcome *roundOutcome
	room, err := s.registry.UpdateRoomForConn(c.id, func(room *Room) error {
		if room.State != stateAnswering || room.Round == nil {
			return errStateChanged
		}
		if room.isMaster(c.id) {
			return errStateChanged
		}
		player, ok := room.Players[c.id]
		if !ok {
			return errStateChanged
		}
		round := room.Round
		keyword, matched := matchKeyword(round.Keywords, text)
		if !matched {
			feedback = &AnswerFeedbackData{Correct: false, Message: "incorrect"}
			return nil
		}
		if _, taken := round.Claims[keyword]; taken {
			feedback = &AnswerFeedbackData{Correct: true, AlreadyClaimed: true, Message: "keyword already claimed by another player"}
			return nil
		}
		round.Claims[keyword] = Claim{
			ConnID:     c.id,
			PlayerName: player.Name,
			Order:      len(round.Claims) + 1,
		}
		player.Score++
		claimedKeyword = keyword
		feedback = &AnswerFeedbackData{Correct: true, Message: "correct"}
		claimNotice = &AnswerCorrectData{
			PlayerName:   player.Name,
			ClaimedCount: len(round.Claims),
			TotalCount:   len(round.Keywords),
		}
		if round.allClaimed() {
			outcome = resolveRound(room)
		}
		return nil
	})
	if err != nil {
		return
	}
	if feedback != nil {
		s.hub.Send(c.conn, wsEvent{Type: eventAnswerResult, Data: *feedback})
	}
	if claimNotice != nil {
		log.Printf("keyword claimed room_id=%s player=%s claimed=%d/%d", room.ID, claimNotice.PlayerName, claimNotice.ClaimedCount, claimNotice.TotalCount)
		s.persistClaim(room, claimedKeyword, claimNotice.PlayerName, claimNotice.ClaimedCount)
		s.hub.Broadcast(room.ID, wsEvent{Type: eventAnswerCorrect, Data: *claimNotice})
		s.broadcastRoomUpdate(room.ID)
	}
	if outcome != nil {
		s.finishResolution(room, outcome, "all-claimed")
	}
}

type roundOutcome struct {
	result   RoundResultData
	finished *FinishedData
}

// resolveRound computes a round's terminal outcome and advances the room to
// result (or finished when someone reached the target score). Callers hold
// the registry lock; the answering guard makes resolution idempotent.
func resolveRound(room *Room) *roundOutcome {
	if room.State != stateAnswering || room.Round == nil {
		return nil
	}
	round := room.Round
	claimedBy := make([]ClaimedByData, 0, len(round.Keywords))
	for _, keyword := range round.Keywords {
		entry := ClaimedByData{Prompt: keyword}
		if claim, ok := round.Claims[keyword]; ok {
			name := claim.PlayerName
			entry.PlayerName = &name
		}
		claimedBy = append(claimedBy, entry)
	}
	scores := scoreboard(room)
	var winner *PlayerData
	for i := range scores {
		if scores[i].Score >= room.Settings.TargetScore {
			winner = &scores[i]
			break
		}
	}
	room.State = stateResult
	outcome := &roundOutcome{
		result: RoundResultData{
			Prompts:    round.Keywords,
			ClaimedBy:  claimedBy,
			Scores:     scores,
			IsGameOver: winner != nil,
			Winner:     winner,
		},
	}
	if winner != nil {
		room.State = stateFinished
		outcome.finished = &FinishedData{Winner: *winner, Scores: scores}
	}
	return outcome
}

// scoreboard lists non-master members by descending score. The sort is
// stable so ties keep join order.
func scoreboard(room *Room) []PlayerData {
	players := room.orderedPlayers()
	list := make([]PlayerData, 0, len(players))
	for _, player := range players {
		if player.IsGameMaster {
			continue
		}
		list = append(list, PlayerData{
			ID:    player.ConnID,
			Name:  player.Name,
			Score: player.Score,
		})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Score > list[j].Score
	})
	return list
}

func (s *Server) finishResolution(room *Room, outcome *roundOutcome, reason string) {
	s.cancelCountdown(room.ID)
	s.persistRoundOutcome(room, outcome, reason)
	log.Printf("round resolved room_id=%s reason=%s game_over=%t", room.ID, reason, outcome.result.IsGameOver)
	s.hub.Broadcast(room.ID, wsEvent{Type: eventRoundResult, Data: outcome.result})
	if outcome.finished != nil {
		log.Printf("game finished room_id=%s winner=%s", room.ID, outcome.finished.Winner.Name)
		s.hub.Broadcast(room.ID, wsEvent{Type: eventFinished, Data: *outcome.finished})
	}
	s.broadcastRoomUpdate(room.ID)
}

// nextRound discards the resolved round and returns to waiting. Only valid
// from result; a finished game stays finished until reset.
func (s *Server) nextRound(c *client) {
	room, err := s.registry.UpdateRoomForConn(c.id, func(room *Room) error {
		if !room.isMaster(c.id) || room.State != stateResult {
			return errStateChanged
		}
		room.Round = nil
		room.State = stateWaiting
		return nil
	})
	if err != nil {
		return
	}
	log.Printf("next round room_id=%s round=%d", room.ID, room.RoundNumber)
	s.hub.Broadcast(room.ID, wsEvent{Type: eventNextRound})
	s.broadcastRoomUpdate(room.ID)
}

// resetGame zeroes scores and returns to waiting from any state, including
// finished.
func (s *Server) resetGame(c *client) {
	room, err := s.registry.UpdateRoomForConn(c.id, func(room *Room) error {
		if !room.isMaster(c.id) {
			return errStateChanged
		}
		for _, player := range room.Players {
			player.Score = 0
		}
		room.Round = nil
		room.RoundNumber = 0
		room.State = stateWaiting
		return nil
	})
	if err != nil {
		return
	}
	s.cancelCountdown(room.ID)
	log.Printf("game reset room_id=%s", room.ID)
	s.broadcastRoomUpdate(room.ID)
}

// sendHint relays master free text to the guessing members while answering.
// Hints never touch game state and skip the sender.
func (s *Server) sendHint(c *client, text string) {
	hint, err := validateHint(text)
	if err != nil {
		return
	}
	room, err := s.registry.UpdateRoomForConn(c.id, func(room *Room) error {
		if !room.isMaster(c.id) || room.State != stateAnswering {
			return errStateChanged
		}
		return nil
	})
	if err != nil {
		return
	}
	s.hub.BroadcastExcept(room.ID, c.conn, wsEvent{Type: eventHint, Data: HintData{Text: hint}})
}
