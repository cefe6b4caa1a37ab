package validators

import (
	"fmt"
	"sync"

	"github.com/classworks/playsync/pkg/game/types"
)

// Validator is the pluggable rule set for one game type. Implementations
// must be pure: no I/O and no hidden state, so the same logic can run
// authoritatively on the server and speculatively on the client.
type Validator interface {
	// GameType returns the discriminated tag this validator handles.
	GameType() string
	// GetInitialState builds the setup-phase state document for a new
	// session, merging the provided config over the game's defaults.
	GetInitialState(config map[string]any) (types.State, error)
	// ValidateMove validates a proposed move against the current state.
	// The context carries membership facts computed server-side.
	ValidateMove(state types.State, move types.Move, vctx types.Context) types.ValidationResult
	// IsGameComplete reports whether the game has reached a terminal state.
	IsGameComplete(state types.State) bool
}

// Registry maps game type tags to validators.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

func NewRegistry() *Registry {
	return &Registry{
		validators: make(map[string]Validator),
	}
}

// NewDefaultRegistry returns a registry with the built-in game types.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewQuizRaceValidator())
	r.Register(NewCardMatchValidator())
	return r
}

// Register adds a validator, replacing any previous one for the same tag.
func (r *Registry) Register(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[v.GameType()] = v
}

// Get returns the validator for a game type tag.
func (r *Registry) Get(gameType string) (Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[gameType]
	if !ok {
		return nil, fmt.Errorf("unknown game type: %s", gameType)
	}
	return v, nil
}

// GameTypes returns the registered game type tags.
func (r *Registry) GameTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.validators))
	for tag := range r.validators {
		tags = append(tags, tag)
	}
	return tags
}
