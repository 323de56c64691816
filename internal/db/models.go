package db

import (
	"time"

	"gorm.io/datatypes"
)

type Room struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"size:8;uniqueIndex;not null"`
	State     string    `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Players   []Player
	Rounds    []Round
	Events    []Event
}

type Player struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    uint      `gorm:"index;not null"`
	Name      string    `gorm:"size:64;not null"`
	IsMaster  bool      `gorm:"not null;default:false"`
	JoinedAt  time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Round numbers are not unique per room: a game reset restarts the counter,
// so one room can log several rounds with the same number.
type Round struct {
	ID           uint      `gorm:"primaryKey"`
	RoomID       uint      `gorm:"index;not null"`
	Number       int       `gorm:"not null"`
	CombinedText string    `gorm:"size:512;not null"`
	KeywordCount int       `gorm:"not null"`
	Outcome      string    `gorm:"size:32"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
	Claims       []Claim
}

type Claim struct {
	ID         uint      `gorm:"primaryKey"`
	RoundID    uint      `gorm:"index;not null;uniqueIndex:idx_claims_round_keyword"`
	Keyword    string    `gorm:"size:128;not null;uniqueIndex:idx_claims_round_keyword"`
	PlayerName string    `gorm:"size:64;not null"`
	ClaimOrder int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

type Event struct {
	ID        uint           `gorm:"primaryKey"`
	RoomID    uint           `gorm:"index;not null"`
	RoundID   *uint          `gorm:"index"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
