package validators

import (
	"encoding/json"
	"fmt"

	"github.com/classworks/playsync/pkg/game/types"
)

const (
	GameTypeCardMatch = "cardmatch"

	// MoveTypeFlipCard flips a face-down card on the current player's turn.
	MoveTypeFlipCard = "FLIP_CARD"
)

// MatchCard is one card in the memory-match grid.
type MatchCard struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	FaceUp    bool   `json:"faceUp"`
	MatchedBy string `json:"matchedBy,omitempty"`
}

type cardMatchState struct {
	types.Core
	Deck      []MatchCard    `json:"deck"`
	TurnIndex int            `json:"turnIndex"`
	Flipped   []string       `json:"flipped"`
	Scores    map[string]int `json:"scores"`
}

// FlipCardData is the payload of a FLIP_CARD move.
type FlipCardData struct {
	CardID string `json:"cardId"`
}

// CardMatchValidator implements turn-based memory matching: players
// flip two cards per turn, keeping the turn on a match and rotating it
// on a miss.
type CardMatchValidator struct {
	spec ConfigSpec
}

func NewCardMatchValidator() *CardMatchValidator {
	return &CardMatchValidator{
		spec: ConfigSpec{
			"pairs": {Name: "pairs", Default: 6, Validate: IntRange(2, 12)},
		},
	}
}

func (v *CardMatchValidator) GameType() string {
	return GameTypeCardMatch
}

func (v *CardMatchValidator) GetInitialState(config map[string]any) (types.State, error) {
	merged, err := v.spec.DefaultConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %v", err)
	}

	state := &cardMatchState{
		Core: types.Core{
			Phase:  types.PhaseSetup,
			Config: merged,
		},
	}
	return json.Marshal(state)
}

func (v *CardMatchValidator) ValidateMove(state types.State, move types.Move, vctx types.Context) types.ValidationResult {
	current := &cardMatchState{}
	if err := json.Unmarshal(state, current); err != nil {
		return types.Reject(types.NewFieldViolation("malformed state document: %v", err))
	}

	switch move.Type {
	case types.MoveTypeSetConfig:
		if moveErr := ApplySetConfig(&current.Core, v.spec, move); moveErr != nil {
			return types.Reject(moveErr)
		}
	case types.MoveTypeGoToSetup:
		ApplyGoToSetup(&current.Core)
		current.Deck = nil
		current.TurnIndex = 0
		current.Flipped = nil
		current.Scores = nil
	case types.MoveTypeStartGame:
		if moveErr := ApplyStartGame(&current.Core, vctx, 2); moveErr != nil {
			return types.Reject(moveErr)
		}
		current.Deck = dealMatchDeck(current.Config)
		current.TurnIndex = 0
		current.Flipped = nil
		current.Scores = make(map[string]int, len(current.ActivePlayers))
		for _, playerID := range current.ActivePlayers {
			current.Scores[playerID] = 0
		}
	case MoveTypeFlipCard:
		if moveErr := v.applyFlipCard(current, move); moveErr != nil {
			return types.Reject(moveErr)
		}
	default:
		return types.Reject(types.NewFieldViolation("unknown move type: %s", move.Type))
	}

	newState, err := json.Marshal(current)
	if err != nil {
		return types.Reject(types.NewFieldViolation("failed to encode state: %v", err))
	}
	return types.Accept(newState)
}

func (v *CardMatchValidator) applyFlipCard(state *cardMatchState, move types.Move) *types.MoveError {
	if state.Phase != types.PhasePlaying {
		return types.NewPhaseViolation("FLIP_CARD is only legal during play, current phase is %s", state.Phase)
	}
	if turn := state.ActivePlayers[state.TurnIndex]; turn != move.PlayerID {
		return types.NewPhaseViolation("it is %s's turn, not %s's", turn, move.PlayerID)
	}

	data := &FlipCardData{}
	if err := json.Unmarshal(move.Data, data); err != nil {
		return types.NewFieldViolation("malformed FLIP_CARD payload: %v", err)
	}

	card := findMatchCard(state.Deck, data.CardID)
	if card == nil {
		return types.NewFieldViolation("unknown card: %s", data.CardID)
	}
	if card.MatchedBy != "" {
		return types.NewResourceConflict("card %s already matched by %s", card.ID, card.MatchedBy)
	}
	if card.FaceUp {
		return types.NewFieldViolation("card %s is already face up", card.ID)
	}

	card.FaceUp = true
	state.Flipped = append(state.Flipped, card.ID)
	if len(state.Flipped) < 2 {
		return nil
	}

	first := findMatchCard(state.Deck, state.Flipped[0])
	second := findMatchCard(state.Deck, state.Flipped[1])
	if first.Symbol == second.Symbol {
		// match: the pair is claimed and the turn stays
		first.MatchedBy = move.PlayerID
		second.MatchedBy = move.PlayerID
		state.Scores[move.PlayerID]++
		if deckCleared(state.Deck) {
			state.Phase = types.PhaseComplete
		}
	} else {
		first.FaceUp = false
		second.FaceUp = false
		state.TurnIndex = (state.TurnIndex + 1) % len(state.ActivePlayers)
	}
	state.Flipped = nil
	return nil
}

func (v *CardMatchValidator) IsGameComplete(state types.State) bool {
	current := &cardMatchState{}
	if err := json.Unmarshal(state, current); err != nil {
		return false
	}
	return current.Phase == types.PhaseComplete
}

// dealMatchDeck lays out the pairs deterministically so the server and
// the client projector agree on the grid. Shuffling is a UI concern.
func dealMatchDeck(config map[string]any) []MatchCard {
	pairs := ConfigInt(config, "pairs", 6)
	symbols := []string{"sun", "moon", "star", "tree", "fish", "bird", "wave", "leaf", "rock", "cloud", "snow", "fire"}

	deck := make([]MatchCard, 0, pairs*2)
	for i := 0; i < pairs; i++ {
		symbol := symbols[i%len(symbols)]
		// interleave the pair across the two halves of the grid
		deck = append(deck, MatchCard{ID: fmt.Sprintf("card-%d", len(deck)+1), Symbol: symbol})
		deck = append(deck, MatchCard{ID: fmt.Sprintf("card-%d", len(deck)+1), Symbol: symbol})
	}
	for i := 0; i < pairs; i++ {
		j := pairs + (pairs-1-i)%pairs
		deck[i*2+1], deck[j] = deck[j], deck[i*2+1]
	}
	return deck
}

func findMatchCard(deck []MatchCard, id string) *MatchCard {
	for i := range deck {
		if deck[i].ID == id {
			return &deck[i]
		}
	}
	return nil
}

func deckCleared(deck []MatchCard) bool {
	for _, card := range deck {
		if card.MatchedBy == "" {
			return false
		}
	}
	return len(deck) > 0
}
