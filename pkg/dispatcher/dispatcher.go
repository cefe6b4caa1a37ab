package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/classworks/playsync/pkg/broker"
	"github.com/classworks/playsync/pkg/game/types"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/membership"
	"github.com/classworks/playsync/pkg/messages"
	"github.com/classworks/playsync/pkg/queue"
	"github.com/classworks/playsync/pkg/registry"
	"github.com/classworks/playsync/pkg/repositories/models"
	"github.com/classworks/playsync/pkg/validators"
)

// Dispatcher is the single entry point for state mutation. Every move
// flows through Submit: the session key is resolved server-side,
// ownership is checked against the membership layer, the game's
// validator decides the outcome, and only accepted moves are stored
// and broadcast. Rejections surface to the caller alone.
type Dispatcher struct {
	registry   *registry.Registry
	membership *membership.Service
	validators *validators.Registry
	broker     broker.Broker
	results    queue.Queue
}

type NewDispatcherOptions struct {
	Registry   *registry.Registry
	Membership *membership.Service
	Validators *validators.Registry
	Broker     broker.Broker
	// ResultQueue receives a record for every game that reaches the
	// complete phase. Optional.
	ResultQueue queue.Queue
}

func NewDispatcher(opts NewDispatcherOptions) *Dispatcher {
	return &Dispatcher{
		registry:   opts.Registry,
		membership: opts.Membership,
		validators: opts.Validators,
		broker:     opts.Broker,
		results:    opts.ResultQueue,
	}
}

// Submit applies a move to the submitting user's session. The session
// key comes from the membership layer, never from the move payload, so
// a client cannot address another user's session. On success the new
// authoritative state is broadcast to every subscriber of the key and
// the session snapshot is returned; on failure the classified error is
// returned and nothing is published.
func (d *Dispatcher) Submit(ctx context.Context, move types.Move) (*types.Session, *types.MoveError) {
	key := d.membership.SessionKey(move.UserID)

	vctx, err := d.membership.Context(ctx, key)
	if err != nil {
		log.Error("Failed to build validation context for %s: %v", key, err)
		return nil, types.NewNotFound("failed to build validation context for %s", key)
	}

	session, moveErr := d.registry.Apply(key, func(session *types.Session) *types.MoveError {
		if !vctx.IsActive(move.PlayerID) {
			return types.NewOwnershipViolation("player %s is not active in session %s", move.PlayerID, key)
		}
		if !vctx.Owns(move.UserID, move.PlayerID) {
			return types.NewOwnershipViolation("player %s is not owned by user %s", move.PlayerID, move.UserID)
		}

		validator, err := d.validators.Get(session.GameType)
		if err != nil {
			return types.NewNotFound("unknown game type: %s", session.GameType)
		}

		result := validator.ValidateMove(session.State, move, vctx)
		if !result.Valid {
			return result.Err
		}

		session.State = result.NewState
		if err := session.SyncEnvelope(); err != nil {
			log.Error("Failed to sync session envelope for %s: %v", key, err)
			return types.NewFieldViolation("move produced an undecodable state")
		}
		return nil
	})
	if moveErr != nil {
		log.Debug("Rejected %s from player %s in %s: %s", move.Type, move.PlayerID, key, moveErr.Message)
		return nil, moveErr
	}

	if err := d.broadcast(ctx, key, session); err != nil {
		// subscribers will resync on their next join-ack
		log.Error("Failed to broadcast state for %s: %v", key, err)
	}

	if d.results != nil && session.Phase == types.PhaseComplete {
		result := &models.GameResult{
			SessionKey:  session.Key,
			GameType:    session.GameType,
			Mode:        string(session.Mode),
			OwnerID:     session.OwnerID,
			FinalState:  append([]byte(nil), session.State...),
			CompletedAt: time.Now().UTC(),
		}
		if err := d.results.Enqueue(result); err != nil {
			log.Warn("Failed to enqueue game result for %s: %v", key, err)
		}
	}
	return session, nil
}

// Broadcast publishes the current authoritative state of a session to
// its subscribers. Used outside the move path, e.g. after a join
// changes the scope's player roster.
func (d *Dispatcher) Broadcast(ctx context.Context, key string) error {
	session, err := d.registry.Lookup(key)
	if err != nil {
		return fmt.Errorf("failed to look up session %s: %v", key, err)
	}
	return d.broadcast(ctx, key, session)
}

func (d *Dispatcher) broadcast(ctx context.Context, key string, session *types.Session) error {
	message, err := messages.NewMessage(messages.MessageTypeServerSessionState, messages.ServerSessionState{Session: session})
	if err != nil {
		return fmt.Errorf("failed to build state message: %v", err)
	}
	payload, err := messages.SerializeMessage(message)
	if err != nil {
		return fmt.Errorf("failed to serialize state message: %v", err)
	}
	return d.broker.Publish(ctx, key, payload)
}
