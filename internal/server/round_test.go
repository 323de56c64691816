package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"prompt-rush/internal/config"
)

type staticProvider struct {
	image string
}

func (p staticProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.image, nil
}

type failingProvider struct{}

func (failingProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("provider unavailable")
}

// gatedProvider blocks each Generate call until the test releases that
// prompt. Releasing an empty string makes the call fail.
type gatedProvider struct {
	mu    sync.Mutex
	gates map[string]chan string
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{gates: make(map[string]chan string)}
}

func (p *gatedProvider) gate(prompt string) chan string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.gates[prompt]
	if !ok {
		ch = make(chan string, 1)
		p.gates[prompt] = ch
	}
	return ch
}

func (p *gatedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	image := <-p.gate(prompt)
	if image == "" {
		return "", errors.New("provider unavailable")
	}
	return image, nil
}

// newGameServer wires a server with no database and no live sockets, a
// master plus two members already in one room.
func newGameServer(t *testing.T, settings Settings) (*Server, *client, *client, *client, string) {
	t.Helper()
	s := New(nil, config.Config{
		TargetScore:      settings.TargetScore,
		TimeLimitSeconds: settings.TimeLimitSeconds,
	})
	s.images = staticProvider{image: "data:image/svg+xml;base64,dGVzdA=="}

	master := &client{id: "conn-master"}
	bob := &client{id: "conn-bob"}
	carol := &client{id: "conn-carol"}
	room := s.registry.CreateRoom(master.id, "Alice", settings)
	if _, err := s.registry.JoinRoom(room.ID, bob.id, "Bob"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := s.registry.JoinRoom(room.ID, carol.id, "Carol"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	return s, master, bob, carol, room.ID
}

func inspectRoom(t *testing.T, s *Server, roomID string, fn func(room *Room)) {
	t.Helper()
	if _, err := s.registry.UpdateRoom(roomID, func(room *Room) error {
		fn(room)
		return nil
	}); err != nil {
		t.Fatalf("room %s gone: %v", roomID, err)
	}
}

func waitForState(t *testing.T, s *Server, roomID, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		state := ""
		inspectRoom(t, s, roomID, func(room *Room) {
			state = room.State
		})
		if state == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %s never reached state %s", roomID, want)
}

func TestStartRoundReachesAnswering(t *testing.T) {
	s, master, _, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)

	s.startRound(master, []string{"cat", "hat"})
	waitForState(t, s, roomID, stateAnswering)

	inspectRoom(t, s, roomID, func(room *Room) {
		if room.RoundNumber != 1 {
			t.Errorf("expected round 1, got %d", room.RoundNumber)
		}
		if room.Round == nil {
			t.Fatal("expected an active round")
		}
		if room.Round.CombinedText != "cat, hat" {
			t.Errorf("unexpected combined text %q", room.Round.CombinedText)
		}
		if !strings.HasPrefix(room.Round.Image, "data:image/") {
			t.Errorf("expected data URL image, got %q", room.Round.Image)
		}
		if room.Round.Remaining != 90 {
			t.Errorf("expected full countdown, got %d", room.Round.Remaining)
		}
	})
}

func TestStartRoundIgnoresNonMaster(t *testing.T) {
	s, _, bob, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})

	s.startRound(bob, []string{"cat"})
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateWaiting || room.Round != nil || room.RoundNumber != 0 {
			t.Errorf("expected untouched room, got state=%s round=%v number=%d", room.State, room.Round, room.RoundNumber)
		}
	})
}

func TestStartRoundRejectsEmptyKeywords(t *testing.T) {
	s, master, _, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})

	s.startRound(master, []string{"  ", ""})
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateWaiting {
			t.Errorf("expected waiting, got %s", room.State)
		}
	})
}

func TestImageFailureRevertsToWaiting(t *testing.T) {
	s, master, _, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})
	s.images = failingProvider{}

	s.startRound(master, []string{"cat"})
	waitForState(t, s, roomID, stateWaiting)

	inspectRoom(t, s, roomID, func(room *Room) {
		if room.RoundNumber != 0 {
			t.Errorf("expected round number rolled back, got %d", room.RoundNumber)
		}
		if room.Round != nil {
			t.Error("expected round discarded")
		}
	})

	// The room is usable again: a later attempt with a healthy provider works.
	s.images = staticProvider{image: "data:image/png;base64,dGVzdA=="}
	s.startRound(master, []string{"cat"})
	waitForState(t, s, roomID, stateAnswering)
	defer s.cancelCountdown(roomID)
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.RoundNumber != 1 {
			t.Errorf("expected round 1 after retry, got %d", room.RoundNumber)
		}
	})
}

func TestStaleImageFetchCannotTouchNewRound(t *testing.T) {
	s, master, _, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)
	gate := newGatedProvider()
	s.images = gate

	// The first round's fetch is stuck in flight when the game is reset and a
	// new round starts.
	s.startRound(master, []string{"cat"})
	s.resetGame(master)
	s.startRound(master, []string{"dog"})

	// The stale fetch completes while the new round is still preparing; its
	// image must not end up on the round it never belonged to.
	gate.gate("cat") <- "data:image/png;base64,QQ=="
	time.Sleep(100 * time.Millisecond)
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != statePreparing {
			t.Fatalf("expected preparing, got %s", room.State)
		}
		if room.Round.Image != "" {
			t.Errorf("stale image installed: %q", room.Round.Image)
		}
		if len(room.Round.Keywords) != 1 || room.Round.Keywords[0] != "dog" {
			t.Errorf("unexpected keywords %v", room.Round.Keywords)
		}
	})

	gate.gate("dog") <- "data:image/png;base64,Qg=="
	waitForState(t, s, roomID, stateAnswering)
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.Round.Image != "data:image/png;base64,Qg==" {
			t.Errorf("expected the live round's own image, got %q", room.Round.Image)
		}
	})
}

func TestStaleImageFailureCannotRevertNewRound(t *testing.T) {
	s, master, _, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)
	gate := newGatedProvider()
	s.images = gate

	s.startRound(master, []string{"cat"})
	s.resetGame(master)
	s.startRound(master, []string{"dog"})

	// The stale fetch fails while the new round is still preparing. Its revert
	// path must not discard the round it never belonged to.
	gate.gate("cat") <- ""
	time.Sleep(100 * time.Millisecond)
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != statePreparing || room.Round == nil || room.RoundNumber != 1 {
			t.Fatalf("live round disturbed: state=%s number=%d", room.State, room.RoundNumber)
		}
		if room.Round.Keywords[0] != "dog" {
			t.Errorf("unexpected keywords %v", room.Round.Keywords)
		}
	})

	gate.gate("dog") <- "data:image/png;base64,Qg=="
	waitForState(t, s, roomID, stateAnswering)
}

func TestClaimRaceFirstWriterWins(t *testing.T) {
	s, master, bob, carol, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)

	s.startRound(master, []string{"cat", "hat"})
	waitForState(t, s, roomID, stateAnswering)

	s.submitAnswer(bob, "CAT")
	inspectRoom(t, s, roomID, func(room *Room) {
		claim, ok := room.Round.Claims["cat"]
		if !ok || claim.PlayerName != "Bob" {
			t.Fatalf("expected Bob's claim on cat, got %#v", room.Round.Claims)
		}
		if room.Players[bob.id].Score != 1 {
			t.Errorf("expected Bob at score 1, got %d", room.Players[bob.id].Score)
		}
		if room.State != stateAnswering {
			t.Errorf("expected round still live, got %s", room.State)
		}
	})

	// Carol lands on the same keyword after Bob already took it.
	s.submitAnswer(carol, "cat")
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.Round.Claims["cat"].PlayerName != "Bob" {
			t.Errorf("claimant changed to %s", room.Round.Claims["cat"].PlayerName)
		}
		if room.Players[carol.id].Score != 0 {
			t.Errorf("expected Carol unscored, got %d", room.Players[carol.id].Score)
		}
	})

	// Final keyword resolves the round without ending the game.
	s.submitAnswer(carol, "  hat ")
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateResult {
			t.Fatalf("expected result state, got %s", room.State)
		}
		if room.Players[carol.id].Score != 1 {
			t.Errorf("expected Carol at score 1, got %d", room.Players[carol.id].Score)
		}
	})
}

func TestMasterAnswersIgnored(t *testing.T) {
	s, master, _, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)

	s.startRound(master, []string{"cat"})
	waitForState(t, s, roomID, stateAnswering)

	s.submitAnswer(master, "cat")
	inspectRoom(t, s, roomID, func(room *Room) {
		if len(room.Round.Claims) != 0 {
			t.Errorf("expected no claims, got %#v", room.Round.Claims)
		}
		if room.State != stateAnswering {
			t.Errorf("expected round still live, got %s", room.State)
		}
	})
}

func TestIncorrectAnswerLeavesRoundUntouched(t *testing.T) {
	s, master, bob, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)

	s.startRound(master, []string{"cat"})
	waitForState(t, s, roomID, stateAnswering)

	s.submitAnswer(bob, "dog")
	inspectRoom(t, s, roomID, func(room *Room) {
		if len(room.Round.Claims) != 0 || room.Players[bob.id].Score != 0 {
			t.Errorf("expected no claim, got claims=%#v score=%d", room.Round.Claims, room.Players[bob.id].Score)
		}
	})
}

func TestTargetScoreOneFinishesImmediately(t *testing.T) {
	s, master, bob, _, roomID := newGameServer(t, Settings{TargetScore: 1, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)

	s.startRound(master, []string{"cat"})
	waitForState(t, s, roomID, stateAnswering)

	s.submitAnswer(bob, "cat")
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateFinished {
			t.Fatalf("expected finished, got %s", room.State)
		}
	})

	// A finished game refuses new rounds until reset.
	s.startRound(master, []string{"dog"})
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateFinished || room.RoundNumber != 1 {
			t.Errorf("expected finished game untouched, got state=%s number=%d", room.State, room.RoundNumber)
		}
	})
}

func TestDuplicateKeywordsShareOneSlot(t *testing.T) {
	s, master, bob, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)

	s.startRound(master, []string{"cat", "cat"})
	waitForState(t, s, roomID, stateAnswering)

	s.submitAnswer(bob, "cat")
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateResult {
			t.Fatalf("expected one claim to resolve the round, got %s", room.State)
		}
		if room.Players[bob.id].Score != 1 {
			t.Errorf("expected a single point, got %d", room.Players[bob.id].Score)
		}
	})
}

func TestTimeoutResolvesWithZeroClaims(t *testing.T) {
	s, master, bob, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 1})
	defer s.cancelCountdown(roomID)

	s.startRound(master, []string{"cat"})
	waitForState(t, s, roomID, stateAnswering)
	waitForState(t, s, roomID, stateResult)

	inspectRoom(t, s, roomID, func(room *Room) {
		if len(room.Round.Claims) != 0 {
			t.Errorf("expected no claims, got %#v", room.Round.Claims)
		}
		for _, player := range room.Players {
			if player.Score != 0 {
				t.Errorf("expected %s unscored, got %d", player.Name, player.Score)
			}
		}
	})

	// Late answers bounce off the resolved round.
	s.submitAnswer(bob, "cat")
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.Players[bob.id].Score != 0 {
			t.Errorf("late answer scored: %d", room.Players[bob.id].Score)
		}
	})
}

func TestResolveRoundIdempotent(t *testing.T) {
	room := &Room{
		ID:      "TEST",
		State:   stateAnswering,
		Players: map[string]*Player{},
		Settings: Settings{
			TargetScore:      5,
			TimeLimitSeconds: 90,
		},
		Round: &Round{Keywords: []string{"cat"}, Claims: map[string]Claim{}},
	}
	if resolveRound(room) == nil {
		t.Fatal("expected an outcome on first resolution")
	}
	if resolveRound(room) != nil {
		t.Fatal("expected second resolution to be a no-op")
	}
}

func TestResolveRoundReportsClaimantsAndWinner(t *testing.T) {
	room := &Room{
		ID:    "TEST",
		State: stateAnswering,
		Players: map[string]*Player{
			"conn-master": {ConnID: "conn-master", Name: "Alice", IsGameMaster: true, JoinOrder: 1},
			"conn-bob":    {ConnID: "conn-bob", Name: "Bob", Score: 5, JoinOrder: 2},
			"conn-carol":  {ConnID: "conn-carol", Name: "Carol", Score: 2, JoinOrder: 3},
		},
		GameMasterID: "conn-master",
		Settings:     Settings{TargetScore: 5, TimeLimitSeconds: 90},
		Round: &Round{
			Keywords: []string{"cat", "hat"},
			Claims: map[string]Claim{
				"cat": {ConnID: "conn-bob", PlayerName: "Bob", Order: 1},
			},
		},
	}
	outcome := resolveRound(room)
	if outcome == nil {
		t.Fatal("expected an outcome")
	}
	if room.State != stateFinished {
		t.Fatalf("expected finished, got %s", room.State)
	}
	if !outcome.result.IsGameOver || outcome.result.Winner == nil || outcome.result.Winner.Name != "Bob" {
		t.Fatalf("expected Bob as winner, got %#v", outcome.result.Winner)
	}
	if outcome.finished == nil || outcome.finished.Winner.Name != "Bob" {
		t.Fatalf("expected finished payload for Bob, got %#v", outcome.finished)
	}
	if len(outcome.result.ClaimedBy) != 2 {
		t.Fatalf("expected two claim entries, got %d", len(outcome.result.ClaimedBy))
	}
	if outcome.result.ClaimedBy[0].PlayerName == nil || *outcome.result.ClaimedBy[0].PlayerName != "Bob" {
		t.Errorf("expected cat claimed by Bob, got %#v", outcome.result.ClaimedBy[0])
	}
	if outcome.result.ClaimedBy[1].PlayerName != nil {
		t.Errorf("expected hat unclaimed, got %#v", outcome.result.ClaimedBy[1])
	}
}

func TestScoreboardExcludesMasterSortedDescending(t *testing.T) {
	room := &Room{
		Players: map[string]*Player{
			"conn-master": {ConnID: "conn-master", Name: "Alice", Score: 99, IsGameMaster: true, JoinOrder: 1},
			"conn-bob":    {ConnID: "conn-bob", Name: "Bob", Score: 1, JoinOrder: 2},
			"conn-carol":  {ConnID: "conn-carol", Name: "Carol", Score: 3, JoinOrder: 3},
			"conn-dave":   {ConnID: "conn-dave", Name: "Dave", Score: 3, JoinOrder: 4},
		},
	}
	scores := scoreboard(room)
	if len(scores) != 3 {
		t.Fatalf("expected master excluded, got %d entries", len(scores))
	}
	// Carol before Dave: ties keep join order.
	want := []string{"Carol", "Dave", "Bob"}
	for i, name := range want {
		if scores[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, scores[i].Name)
		}
	}
}

func TestNextRoundOnlyFromResult(t *testing.T) {
	s, master, bob, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)

	// Waiting rooms ignore next-round.
	s.nextRound(master)
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateWaiting {
			t.Fatalf("expected waiting, got %s", room.State)
		}
	})

	s.startRound(master, []string{"cat"})
	waitForState(t, s, roomID, stateAnswering)
	s.submitAnswer(bob, "cat")
	waitForState(t, s, roomID, stateResult)

	// Non-master cannot advance.
	s.nextRound(bob)
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateResult {
			t.Fatalf("expected result, got %s", room.State)
		}
	})

	s.nextRound(master)
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateWaiting || room.Round != nil {
			t.Errorf("expected waiting with no round, got state=%s", room.State)
		}
		if room.RoundNumber != 1 {
			t.Errorf("expected round counter kept, got %d", room.RoundNumber)
		}
		if room.Players[bob.id].Score != 1 {
			t.Errorf("expected score kept across rounds, got %d", room.Players[bob.id].Score)
		}
	})
}

func TestUpdateSettingsMasterOnly(t *testing.T) {
	s, master, bob, _, roomID := newGameServer(t, Settings{TargetScore: 5, TimeLimitSeconds: 90})

	s.handleUpdateSettings(bob, Settings{TargetScore: 3, TimeLimitSeconds: 30})
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.Settings.TargetScore != 5 {
			t.Errorf("non-master changed settings: %+v", room.Settings)
		}
	})

	s.handleUpdateSettings(master, Settings{TargetScore: 3, TimeLimitSeconds: 0})
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.Settings.TimeLimitSeconds != 90 {
			t.Errorf("non-positive time limit applied: %+v", room.Settings)
		}
	})

	s.handleUpdateSettings(master, Settings{TargetScore: 3, TimeLimitSeconds: 30})
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.Settings.TargetScore != 3 || room.Settings.TimeLimitSeconds != 30 {
			t.Errorf("settings not applied: %+v", room.Settings)
		}
	})
}

func TestResetClearsScoresFromAnyState(t *testing.T) {
	s, master, bob, _, roomID := newGameServer(t, Settings{TargetScore: 1, TimeLimitSeconds: 90})
	defer s.cancelCountdown(roomID)

	s.startRound(master, []string{"cat"})
	waitForState(t, s, roomID, stateAnswering)
	s.submitAnswer(bob, "cat")
	waitForState(t, s, roomID, stateFinished)

	s.resetGame(bob)
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateFinished {
			t.Fatalf("non-master reset applied, state=%s", room.State)
		}
	})

	s.resetGame(master)
	inspectRoom(t, s, roomID, func(room *Room) {
		if room.State != stateWaiting || room.Round != nil || room.RoundNumber != 0 {
			t.Errorf("expected fresh room, got state=%s number=%d", room.State, room.RoundNumber)
		}
		for _, player := range room.Players {
			if player.Score != 0 {
				t.Errorf("expected %s at zero, got %d", player.Name, player.Score)
			}
		}
	})
}
