package client

import (
	"sync"

	"github.com/classworks/playsync/pkg/game/types"
	"github.com/classworks/playsync/pkg/validators"
)

// Projector maintains the client's optimistic view of a session. Moves
// are applied speculatively through the same validator the server runs,
// so a legal move renders instantly. Every authoritative broadcast
// replaces the projection unconditionally: the server always wins, and
// a speculative application that the server rejected simply vanishes
// on the next broadcast or rollback.
type Projector struct {
	mu         sync.Mutex
	validators *validators.Registry

	// authoritative is the last server-confirmed session snapshot.
	authoritative *types.Session
	// projected is the speculative state rendered to the user.
	projected types.State
	// pending counts speculative moves not yet confirmed by a broadcast.
	pending int
}

type NewProjectorOptions struct {
	Validators *validators.Registry
}

func NewProjector(opts NewProjectorOptions) *Projector {
	return &Projector{
		validators: opts.Validators,
	}
}

// ApplyServer installs an authoritative session snapshot. Any
// speculative state is discarded, whether or not it agreed with the
// server.
func (p *Projector) ApplyServer(session *types.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authoritative = session
	p.projected = append(types.State(nil), session.State...)
	p.pending = 0
}

// Predict applies a move speculatively to the projected state. The
// result is what the server will produce if the move arrives against
// the same state; a rejection here costs no round trip.
func (p *Projector) Predict(move types.Move) (types.State, *types.MoveError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.authoritative == nil {
		return nil, types.NewNotFound("no session joined")
	}

	validator, err := p.validators.Get(p.authoritative.GameType)
	if err != nil {
		return nil, types.NewNotFound("unknown game type: %s", p.authoritative.GameType)
	}

	result := validator.ValidateMove(p.projected, move, p.contextLocked())
	if !result.Valid {
		return nil, result.Err
	}

	p.projected = result.NewState
	p.pending++
	return append(types.State(nil), p.projected...), nil
}

// Rollback discards all speculative state after a server rejection,
// reverting the projection to the last authoritative snapshot.
func (p *Projector) Rollback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.authoritative == nil {
		return
	}
	p.projected = append(types.State(nil), p.authoritative.State...)
	p.pending = 0
}

// State returns the state to render: the speculative projection when
// moves are in flight, the authoritative state otherwise.
func (p *Projector) State() types.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append(types.State(nil), p.projected...)
}

// Session returns the last authoritative session snapshot.
func (p *Projector) Session() *types.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authoritative
}

// Pending reports how many speculative moves await confirmation.
func (p *Projector) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// contextLocked derives a validation context from the authoritative
// envelope. Ownership facts live server-side; the client only needs
// the player roster for prediction.
func (p *Projector) contextLocked() types.Context {
	vctx := types.Context{
		ActivePlayers: append([]string(nil), p.authoritative.ActivePlayers...),
		Owners:        make(map[string]string),
		Meta:          make(map[string]types.PlayerMeta, len(p.authoritative.PlayerMeta)),
	}
	for id, meta := range p.authoritative.PlayerMeta {
		vctx.Meta[id] = meta
	}
	return vctx
}
