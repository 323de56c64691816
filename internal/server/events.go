package server

const (
	eventRoomUpdated   = "room:updated"
	eventShowImage     = "game:show-image"
	eventTimeUpdate    = "game:time-update"
	eventAnswerCorrect = "game:answer-correct"
	eventAnswerResult  = "game:answer-feedback"
	eventRoundResult   = "game:round-result"
	eventFinished      = "game:finished"
	eventNextRound     = "game:next-round"
	eventHint          = "game:hint"
	eventError         = "error"

	// direct replies standing in for socket acks
	eventRoomCreated = "room:created"
	eventJoinResult  = "room:join-result"
	eventRoomState   = "room:state"
)

type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type PlayerData struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	IsGameMaster bool   `json:"isGameMaster"`
}

type ShowImageData struct {
	ImageData   string `json:"imageData"`
	PromptCount int    `json:"promptCount"`
	TimeLimit   int    `json:"timeLimit"`
	RoundNumber int    `json:"roundNumber"`
}

type TimeUpdateData struct {
	Remaining int `json:"remaining"`
}

type AnswerCorrectData struct {
	PlayerName   string `json:"playerName"`
	ClaimedCount int    `json:"claimedCount"`
	TotalCount   int    `json:"totalCount"`
}

type AnswerFeedbackData struct {
	Correct        bool   `json:"correct"`
	AlreadyClaimed bool   `json:"alreadyClaimed"`
	Message        string `json:"message"`
}

type ClaimedByData struct {
	Prompt     string  `json:"prompt"`
	PlayerName *string `json:"playerName"`
}

type RoundResultData struct {
	Prompts    []string        `json:"prompts"`
	ClaimedBy  []ClaimedByData `json:"claimedBy"`
	Scores     []PlayerData    `json:"scores"`
	IsGameOver bool            `json:"isGameOver"`
	Winner     *PlayerData     `json:"winner"`
}

type FinishedData struct {
	Winner PlayerData   `json:"winner"`
	Scores []PlayerData `json:"scores"`
}

type HintData struct {
	Text string `json:"text"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// EventPayload is the JSON shape persisted to the history event log.
type EventPayload struct {
	RoomID       string `json:"room_id,omitempty"`
	PlayerName   string `json:"player,omitempty"`
	RoundNumber  int    `json:"round_number,omitempty"`
	State        string `json:"state,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Keyword      string `json:"keyword,omitempty"`
	ClaimedCount int    `json:"claimed_count,omitempty"`
	KeywordCount int    `json:"keyword_count,omitempty"`
	Winner       string `json:"winner,omitempty"`
}
