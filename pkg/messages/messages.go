package messages

import (
	"encoding/json"

	"github.com/classworks/playsync/pkg/game/types"
)

// MessageType discriminates wire messages.
type MessageType string

const (
	MessageTypeClientLogin            MessageType = "client_login"
	MessageTypeClientJoin             MessageType = "client_join"
	MessageTypeClientLeave            MessageType = "client_leave"
	MessageTypeClientMove             MessageType = "client_move"
	MessageTypeClientSetActivePlayers MessageType = "client_set_active_players"

	MessageTypeServerLoginSuccess MessageType = "server_login_success"
	MessageTypeServerLoginFailure MessageType = "server_login_failure"
	MessageTypeServerJoinAck      MessageType = "server_join_ack"
	MessageTypeServerSessionState MessageType = "server_session_state"
	MessageTypeServerMoveRejected MessageType = "server_move_rejected"
	MessageTypeServerRoomEvicted  MessageType = "server_room_evicted"
	MessageTypeServerError        MessageType = "server_error"
)

// Message is the generic wire envelope.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ClientLogin authenticates a connection with an identity token.
type ClientLogin struct {
	Token string `json:"token"`
}

// ClientJoin subscribes the connection to a session. RoomID selects
// room mode; when empty the session is the user's isolated one.
type ClientJoin struct {
	GameType string         `json:"gameType"`
	RoomID   string         `json:"roomId,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// ClientLeave exits the current session explicitly.
type ClientLeave struct {
}

// ClientMove proposes a state transition. The user attribution is
// overwritten server-side with the connection's resolved identity.
type ClientMove struct {
	Move types.Move `json:"move"`
}

// ClientSetActivePlayers flags which of the user's players participate.
type ClientSetActivePlayers struct {
	PlayerIDs []string `json:"playerIds"`
}

// ServerLoginSuccess confirms authentication.
type ServerLoginSuccess struct {
	UserID      string `json:"userId"`
	ConnectorID string `json:"connectorId"`
}

// ServerLoginFailure reports a failed authentication.
type ServerLoginFailure struct {
	Reason string `json:"reason"`
}

// ServerJoinAck is the one-to-one full-state send to a joining
// connector, distinct from the broadcast path. Late joiners and
// reconnecting observers resync through it.
type ServerJoinAck struct {
	Session *types.Session `json:"session"`
	Role    string         `json:"role"`
}

// ServerSessionState is the authoritative state broadcast published to
// every subscriber of a session key.
type ServerSessionState struct {
	Session *types.Session `json:"session"`
}

// ServerMoveRejected reports a classified rejection to the originating
// connector only. No other subscriber observes a failed attempt.
type ServerMoveRejected struct {
	Move types.Move       `json:"move"`
	Err  *types.MoveError `json:"error"`
}

// ServerRoomEvicted notifies a room that one of its members moved to
// another room, so stale clients self-correct.
type ServerRoomEvicted struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// ServerError reports a non-move protocol failure to the origin.
type ServerError struct {
	Message string `json:"message"`
}
