package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is an opaque game-specific state document. The core never
// interprets it beyond the Core envelope fields.
type State = json.RawMessage

// Phase represents a stage in a game's state machine. Games may define
// additional phases; setup, playing and complete are universal.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhasePlaying  Phase = "playing"
	PhaseComplete Phase = "complete"
)

// SessionMode distinguishes isolated single-user sessions from shared
// room sessions.
type SessionMode string

const (
	SessionModeLocal SessionMode = "local"
	SessionModeRoom  SessionMode = "room"
)

// Universal move types every game honors. Game-specific moves extend
// this vocabulary.
const (
	MoveTypeSetConfig = "SET_CONFIG"
	MoveTypeGoToSetup = "GO_TO_SETUP"
	MoveTypeStartGame = "START_GAME"
)

// Move is a client-proposed state transition. It is never trusted as
// self-validating: the player/user attribution is checked against the
// membership layer before validation runs.
type Move struct {
	Type      string          `json:"type"`
	PlayerID  string          `json:"playerId"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PlayerMeta holds display metadata for an in-session player avatar.
type PlayerMeta struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Core is the envelope every game state document carries. Game-specific
// state structs embed it so the universal moves and the dispatcher can
// operate on any game type.
type Core struct {
	Phase         Phase                 `json:"phase"`
	Config        map[string]any        `json:"config"`
	ActivePlayers []string              `json:"activePlayers"`
	PlayerMeta    map[string]PlayerMeta `json:"playerMeta"`
}

// DecodeCore extracts the Core envelope from a state document.
func DecodeCore(state State) (*Core, error) {
	core := &Core{}
	if err := json.Unmarshal(state, core); err != nil {
		return nil, fmt.Errorf("failed to decode state envelope: %v", err)
	}
	return core, nil
}

// Session is the live authoritative state for one session key. Exactly
// one exists per key; all mutation goes through the dispatcher.
type Session struct {
	Key            string                `json:"key"`
	Mode           SessionMode           `json:"mode"`
	OwnerID        string                `json:"ownerId"`
	GameType       string                `json:"gameType"`
	Phase          Phase                 `json:"phase"`
	State          State                 `json:"state"`
	ActivePlayers  []string              `json:"activePlayers"`
	PlayerMeta     map[string]PlayerMeta `json:"playerMeta"`
	CreatedAt      time.Time             `json:"createdAt"`
	LastActivityAt time.Time             `json:"lastActivityAt"`
}

// SyncEnvelope refreshes the session's mirrored envelope fields from
// its state document.
func (s *Session) SyncEnvelope() error {
	core, err := DecodeCore(s.State)
	if err != nil {
		return err
	}
	s.Phase = core.Phase
	s.ActivePlayers = core.ActivePlayers
	s.PlayerMeta = core.PlayerMeta
	return nil
}

// ValidationResult is the outcome of validating a move. An invalid
// result never carries a new state.
type ValidationResult struct {
	Valid    bool
	NewState State
	Err      *MoveError
}

// Accept returns a successful validation result carrying the new state.
func Accept(newState State) ValidationResult {
	return ValidationResult{Valid: true, NewState: newState}
}

// Reject returns a failed validation result carrying a classified error.
func Reject(err *MoveError) ValidationResult {
	return ValidationResult{Valid: false, Err: err}
}

// Context supplies the membership facts validation depends on. It is
// computed server-side by the membership layer, never taken from
// client input.
type Context struct {
	// ActivePlayers are the players currently flagged active in scope.
	ActivePlayers []string
	// Owners maps player id to the user id that owns it.
	Owners map[string]string
	// Meta holds display metadata for the players in scope.
	Meta map[string]PlayerMeta
}

// IsActive reports whether the player is flagged active.
func (c Context) IsActive(playerID string) bool {
	for _, id := range c.ActivePlayers {
		if id == playerID {
			return true
		}
	}
	return false
}

// Owns reports whether the user owns the player.
func (c Context) Owns(userID, playerID string) bool {
	return c.Owners[playerID] == userID
}
