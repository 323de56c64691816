package server

import "time"

const (
	stateWaiting   = "waiting"
	statePreparing = "preparing"
	stateAnswering = "answering"
	stateResult    = "result"
	stateFinished  = "finished"
)

type Settings struct {
	TargetScore      int `json:"targetScore"`
	TimeLimitSeconds int `json:"timeLimitSeconds"`
}

type Player struct {
	ConnID       string
	Name         string
	Score        int
	IsGameMaster bool
	JoinOrder    int
	DBID         uint
}

type Room struct {
	ID           string
	DBID         uint
	Players      map[string]*Player
	GameMasterID string
	State        string
	Settings     Settings
	Round        *Round
	RoundNumber  int
	CreatedAt    time.Time
}

// Round is the active round of a room. It exists from keyword submission
// until the game master advances or resets; Image stays empty while the
// image provider call is in flight.
type Round struct {
	Keywords     []string
	CombinedText string
	Image        string
	Claims       map[string]Claim
	Remaining    int
	DBID         uint
}

type Claim struct {
	ConnID     string
	PlayerName string
	Order      int
}

func (r *Room) master() *Player {
	if r.GameMasterID == "" {
		return nil
	}
	return r.Players[r.GameMasterID]
}

func (r *Room) isMaster(connID string) bool {
	return r.GameMasterID != "" && r.GameMasterID == connID
}

// orderedPlayers returns members sorted by join order, the canonical
// ordering for snapshots and master handover.
func (r *Room) orderedPlayers() []*Player {
	list := make([]*Player, 0, len(r.Players))
	for _, player := range r.Players {
		list = append(list, player)
	}
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j-1].JoinOrder > list[j].JoinOrder; j-- {
			list[j-1], list[j] = list[j], list[j-1]
		}
	}
	return list
}

func (r *Round) allClaimed() bool {
	if len(r.Keywords) == 0 {
		return false
	}
	for _, keyword := range r.Keywords {
		if _, ok := r.Claims[keyword]; !ok {
			return false
		}
	}
	return true
}
