package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/classworks/playsync/pkg/game/types"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/validators"
)

// ErrNotFound is returned when no session exists for a key.
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.Key)
}

func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// entry holds one live session together with its subscriber references.
// The entry mutex serializes all mutation of the session, making the
// registry the single-writer authority per session key.
type entry struct {
	mu         sync.Mutex
	session    *types.Session
	refs       map[string]struct{}
	emptySince time.Time
}

// Registry owns the live authoritative state for each session key.
// Sessions are created on first join and destroyed when their
// subscriber count reaches zero: immediately on explicit leave, after
// the idle window for silent disconnects.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*entry
	validators *validators.Registry
	idleWindow time.Duration
}

type NewRegistryOptions struct {
	Validators *validators.Registry
	IdleWindow time.Duration
}

func NewRegistry(opts NewRegistryOptions) *Registry {
	return &Registry{
		sessions:   make(map[string]*entry),
		validators: opts.Validators,
		idleWindow: opts.IdleWindow,
	}
}

// Join subscribes a connector to the session for key, creating the
// session from the game's initial state if it does not exist yet.
// It returns a snapshot for the one-to-one full-state send to the
// joining connector; this is not a broadcast.
func (r *Registry) Join(key string, mode types.SessionMode, ownerID, gameType, connectorID string, config map[string]any) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[key]
	if !ok {
		validator, err := r.validators.Get(gameType)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve game type: %v", err)
		}
		initial, err := validator.GetInitialState(config)
		if err != nil {
			return nil, fmt.Errorf("failed to build initial state: %v", err)
		}
		now := time.Now().UTC()
		session := &types.Session{
			Key:            key,
			Mode:           mode,
			OwnerID:        ownerID,
			GameType:       gameType,
			State:          initial,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		if err := session.SyncEnvelope(); err != nil {
			return nil, fmt.Errorf("failed to sync session envelope: %v", err)
		}
		e = &entry{
			session: session,
			refs:    make(map[string]struct{}),
		}
		r.sessions[key] = e
		log.Debug("Created session %s (%s)", key, gameType)
		e.refs[connectorID] = struct{}{}
		return snapshot(e.session), nil
	}

	// Apply mutates the session under the entry lock after releasing the
	// registry lock, so an existing session must be read under e.mu or a
	// late joiner can snapshot a state document mid-write.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.GameType != gameType {
		return nil, fmt.Errorf("session %s is running %s, not %s", key, e.session.GameType, gameType)
	}

	e.refs[connectorID] = struct{}{}
	e.emptySince = time.Time{}
	return snapshot(e.session), nil
}

// Leave unsubscribes a connector after an explicit exit. The session is
// destroyed as soon as its subscriber count reaches zero.
func (r *Registry) Leave(key, connectorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[key]
	if !ok {
		return
	}
	delete(e.refs, connectorID)
	if len(e.refs) == 0 {
		delete(r.sessions, key)
		log.Debug("Destroyed session %s on last leave", key)
	}
}

// Disconnect unsubscribes a connector after a silent disconnect. A
// session left with zero subscribers survives until the idle window
// elapses, so reconnecting clients can resync.
func (r *Registry) Disconnect(key, connectorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[key]
	if !ok {
		return
	}
	delete(e.refs, connectorID)
	if len(e.refs) == 0 {
		e.emptySince = time.Now().UTC()
	}
}

// Lookup returns a snapshot of the current session state.
func (r *Registry) Lookup(key string) (*types.Session, error) {
	r.mu.Lock()
	e, ok := r.sessions[key]
	r.mu.Unlock()
	if !ok {
		return nil, &ErrNotFound{Key: key}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.session), nil
}

// Apply runs fn against the live session under the session's write
// lock. Moves for one key are therefore applied in strict receipt
// order while sessions remain independent of each other. A non-nil
// move error from fn leaves the stored state untouched.
func (r *Registry) Apply(key string, fn func(session *types.Session) *types.MoveError) (*types.Session, *types.MoveError) {
	r.mu.Lock()
	e, ok := r.sessions[key]
	r.mu.Unlock()
	if !ok {
		return nil, types.NewNotFound("session not found: %s", key)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if moveErr := fn(e.session); moveErr != nil {
		return nil, moveErr
	}
	e.session.LastActivityAt = time.Now().UTC()
	return snapshot(e.session), nil
}

// SubscriberCount returns the number of connectors subscribed to key.
func (r *Registry) SubscriberCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[key]
	if !ok {
		return 0
	}
	return len(e.refs)
}

// ReapIdle destroys sessions that have had zero subscribers for longer
// than the idle window and returns their keys.
func (r *Registry) ReapIdle(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []string
	for key, e := range r.sessions {
		if len(e.refs) > 0 || e.emptySince.IsZero() {
			continue
		}
		if now.Sub(e.emptySince) >= r.idleWindow {
			delete(r.sessions, key)
			reaped = append(reaped, key)
			log.Debug("Destroyed idle session %s", key)
		}
	}
	return reaped
}

// snapshot copies a session so callers never share memory with the
// live authoritative state.
func snapshot(s *types.Session) *types.Session {
	copied := *s
	copied.State = append(types.State(nil), s.State...)
	copied.ActivePlayers = append([]string(nil), s.ActivePlayers...)
	if s.PlayerMeta != nil {
		copied.PlayerMeta = make(map[string]types.PlayerMeta, len(s.PlayerMeta))
		for id, meta := range s.PlayerMeta {
			copied.PlayerMeta[id] = meta
		}
	}
	return &copied
}
