package models

import (
	"encoding/json"
	"time"
)

// User is an account or guest identity, one per credential.
type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Player is an in-session avatar owned by a user. A user may own
// several players.
type Player struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// GameResult is the archived record of a completed game.
type GameResult struct {
	ID          string          `json:"id"`
	SessionKey  string          `json:"sessionKey"`
	GameType    string          `json:"gameType"`
	Mode        string          `json:"mode"`
	OwnerID     string          `json:"ownerId"`
	FinalState  json.RawMessage `json:"finalState"`
	CompletedAt time.Time       `json:"completedAt"`
}
