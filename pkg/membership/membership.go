package membership

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/classworks/playsync/pkg/game/types"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/repositories"
)

// Role is the derived standing of a user within a session's scope.
type Role string

const (
	// RolePlayer is a user with at least one active player.
	RolePlayer Role = "player"
	// RoleSpectator receives every broadcast but fails ownership
	// validation on any move attempt.
	RoleSpectator Role = "spectator"
)

// LocalKey returns the session key for a user's isolated session.
func LocalKey(userID string) string {
	return "user:" + userID
}

// RoomKey returns the session key for a shared room session.
func RoomKey(roomID string) string {
	return "room:" + roomID
}

// Service tracks which room each user is in and which of their players
// are flagged active, and derives the per-session validation context.
// Room assignment has compare-and-set semantics: a user belongs to at
// most one room and joining a new one atomically evicts the old
// membership.
type Service struct {
	mu         sync.Mutex
	repository repositories.Repository
	rooms      map[string]string              // userID -> roomID
	members    map[string]map[string]struct{} // roomID -> userIDs
	active     map[string][]string            // userID -> active player ids, ordered
}

type NewServiceOptions struct {
	Repository repositories.Repository
}

func NewService(opts NewServiceOptions) *Service {
	return &Service{
		repository: opts.Repository,
		rooms:      make(map[string]string),
		members:    make(map[string]map[string]struct{}),
		active:     make(map[string][]string),
	}
}

// SessionKey resolves the session key for a user: the shared room key
// when the user is in a room, the isolated per-user key otherwise.
func (s *Service) SessionKey(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roomID, ok := s.rooms[userID]; ok {
		return RoomKey(roomID)
	}
	return LocalKey(userID)
}

// Mode returns the session mode and owner id the key resolves to.
func (s *Service) Mode(userID string) (types.SessionMode, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roomID, ok := s.rooms[userID]; ok {
		return types.SessionModeRoom, roomID
	}
	return types.SessionModeLocal, userID
}

// JoinRoom assigns the user to a room. Any prior membership is removed
// in the same critical section and the vacated room id is returned so
// the caller can broadcast the eviction to it.
func (s *Service) JoinRoom(userID, roomID string) (evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.rooms[userID]; ok {
		if prior == roomID {
			return ""
		}
		s.removeMemberLocked(prior, userID)
		evicted = prior
		log.Debug("User %s evicted from room %s", userID, prior)
	}

	s.rooms[userID] = roomID
	if s.members[roomID] == nil {
		s.members[roomID] = make(map[string]struct{})
	}
	s.members[roomID][userID] = struct{}{}
	return evicted
}

// LeaveRoom removes the user's room membership and returns the room
// that was left, if any.
func (s *Service) LeaveRoom(userID string) (left string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.rooms[userID]
	if !ok {
		return ""
	}
	delete(s.rooms, userID)
	s.removeMemberLocked(roomID, userID)
	return roomID
}

// Room returns the user's current room, if any.
func (s *Service) Room(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.rooms[userID]
	return roomID, ok
}

// RoomMembers returns the users currently in a room.
func (s *Service) RoomMembers(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]string, 0, len(s.members[roomID]))
	for userID := range s.members[roomID] {
		members = append(members, userID)
	}
	return members
}

// SetActivePlayers flags which of the user's players participate in
// the current game. Every player must be owned by the user.
func (s *Service) SetActivePlayers(ctx context.Context, userID string, playerIDs []string) error {
	for _, playerID := range playerIDs {
		player, err := s.repository.GetPlayer(ctx, playerID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return fmt.Errorf("player %s does not exist", playerID)
			}
			return fmt.Errorf("failed to look up player %s: %v", playerID, err)
		}
		if player.UserID != userID {
			return fmt.Errorf("player %s is not owned by user %s", playerID, userID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[userID] = append([]string(nil), playerIDs...)
	return nil
}

// ActivePlayers returns the user's active player ids.
func (s *Service) ActivePlayers(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.active[userID]...)
}

// Context assembles the validation context for a session key: the
// ordered active players across the key's scope, the player-to-user
// ownership map and player metadata, all computed server-side.
func (s *Service) Context(ctx context.Context, sessionKey string) (types.Context, error) {
	users := s.scopeUsers(sessionKey)

	vctx := types.Context{
		Owners: make(map[string]string),
		Meta:   make(map[string]types.PlayerMeta),
	}
	for _, userID := range users {
		for _, playerID := range s.ActivePlayers(userID) {
			player, err := s.repository.GetPlayer(ctx, playerID)
			if err != nil {
				return types.Context{}, fmt.Errorf("failed to look up player %s: %v", playerID, err)
			}
			vctx.ActivePlayers = append(vctx.ActivePlayers, playerID)
			vctx.Owners[playerID] = userID
			vctx.Meta[playerID] = types.PlayerMeta{Name: player.Name, Color: player.Color}
		}
	}
	return vctx, nil
}

// Role derives the user's standing in their current session scope.
func (s *Service) Role(userID string) Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active[userID]) > 0 {
		return RolePlayer
	}
	return RoleSpectator
}

// Forget clears all membership state for a user and returns the room
// that was vacated, if any. Called when the user's last connection
// goes away.
func (s *Service) Forget(userID string) (left string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, userID)
	roomID, ok := s.rooms[userID]
	if !ok {
		return ""
	}
	delete(s.rooms, userID)
	s.removeMemberLocked(roomID, userID)
	return roomID
}

// scopeUsers returns the users whose players are in scope for a
// session key: all room members for a room key, the single user for a
// local key.
func (s *Service) scopeUsers(sessionKey string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if roomID, ok := parseKey(sessionKey, "room:"); ok {
		users := make([]string, 0, len(s.members[roomID]))
		for userID := range s.members[roomID] {
			users = append(users, userID)
		}
		// stable ordering so every member snapshots the same player order
		sort.Strings(users)
		return users
	}
	if userID, ok := parseKey(sessionKey, "user:"); ok {
		return []string{userID}
	}
	return nil
}

func (s *Service) removeMemberLocked(roomID, userID string) {
	delete(s.members[roomID], userID)
	if len(s.members[roomID]) == 0 {
		delete(s.members, roomID)
	}
}

func parseKey(sessionKey, prefix string) (string, bool) {
	if len(sessionKey) > len(prefix) && sessionKey[:len(prefix)] == prefix {
		return sessionKey[len(prefix):], true
	}
	return "", false
}
