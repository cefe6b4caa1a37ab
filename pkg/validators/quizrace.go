package validators

import (
	"encoding/json"
	"fmt"

	"github.com/classworks/playsync/pkg/game/types"
)

const (
	GameTypeQuizRace = "quizrace"

	// MoveTypeClaimCard claims a shared question card by answering it.
	MoveTypeClaimCard = "CLAIM_CARD"
)

// QuizCard is a shared single-use question card. The first valid claim
// wins it; every later claim fails with a resource conflict.
type QuizCard struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	Answer    int    `json:"answer"`
	ClaimedBy string `json:"claimedBy,omitempty"`
}

type quizRaceState struct {
	types.Core
	Cards  []QuizCard     `json:"cards"`
	Scores map[string]int `json:"scores"`
}

// ClaimCardData is the payload of a CLAIM_CARD move.
type ClaimCardData struct {
	CardID string `json:"cardId"`
	Answer int    `json:"answer"`
}

// QuizRaceValidator implements a free-for-all arithmetic race: a board
// of shared question cards, each awarded to the first player that
// answers it correctly.
type QuizRaceValidator struct {
	spec ConfigSpec
}

func NewQuizRaceValidator() *QuizRaceValidator {
	return &QuizRaceValidator{
		spec: ConfigSpec{
			"difficulty": {Name: "difficulty", Default: 2, Validate: IntRange(1, 5)},
			"cardCount":  {Name: "cardCount", Default: 12, Validate: IntRange(4, 24)},
		},
	}
}

func (v *QuizRaceValidator) GameType() string {
	return GameTypeQuizRace
}

func (v *QuizRaceValidator) GetInitialState(config map[string]any) (types.State, error) {
	merged, err := v.spec.DefaultConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %v", err)
	}

	state := &quizRaceState{
		Core: types.Core{
			Phase:  types.PhaseSetup,
			Config: merged,
		},
	}
	return json.Marshal(state)
}

func (v *QuizRaceValidator) ValidateMove(state types.State, move types.Move, vctx types.Context) types.ValidationResult {
	current := &quizRaceState{}
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
		current.Cards = nil
		current.Scores = nil
	case types.MoveTypeStartGame:
		if moveErr := ApplyStartGame(&current.Core, vctx, 1); moveErr != nil {
			return types.Reject(moveErr)
		}
		current.Cards = dealQuizCards(current.Config)
		current.Scores = make(map[string]int, len(current.ActivePlayers))
		for _, playerID := range current.ActivePlayers {
			current.Scores[playerID] = 0
		}
	case MoveTypeClaimCard:
		if moveErr := v.applyClaimCard(current, move); moveErr != nil {
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

func (v *QuizRaceValidator) applyClaimCard(state *quizRaceState, move types.Move) *types.MoveError {
	if state.Phase != types.PhasePlaying {
		return types.NewPhaseViolation("CLAIM_CARD is only legal during play, current phase is %s", state.Phase)
	}

	data := &ClaimCardData{}
	if err := json.Unmarshal(move.Data, data); err != nil {
		return types.NewFieldViolation("malformed CLAIM_CARD payload: %v", err)
	}

	for i := range state.Cards {
		card := &state.Cards[i]
		if card.ID != data.CardID {
			continue
		}
		if card.ClaimedBy != "" {
			return types.NewResourceConflict("card %s already claimed by %s", card.ID, card.ClaimedBy)
		}
		if card.Answer != data.Answer {
			return types.NewFieldViolation("incorrect answer for card %s", card.ID)
		}
		card.ClaimedBy = move.PlayerID
		state.Scores[move.PlayerID]++
		if quizBoardCleared(state.Cards) {
			state.Phase = types.PhaseComplete
		}
		return nil
	}

	return types.NewFieldViolation("unknown card: %s", data.CardID)
}

func (v *QuizRaceValidator) IsGameComplete(state types.State) bool {
	current := &quizRaceState{}
	if err := json.Unmarshal(state, current); err != nil {
		return false
	}
	return current.Phase == types.PhaseComplete
}

// dealQuizCards builds the card board deterministically from the config
// so the server and the client projector deal identical boards.
func dealQuizCards(config map[string]any) []QuizCard {
	difficulty := ConfigInt(config, "difficulty", 2)
	cardCount := ConfigInt(config, "cardCount", 12)

	cards := make([]QuizCard, cardCount)
	for i := 0; i < cardCount; i++ {
		a := (i*difficulty)%9 + difficulty
		b := i%7 + 1
		cards[i] = QuizCard{
			ID:     fmt.Sprintf("card-%d", i+1),
			Prompt: fmt.Sprintf("%d x %d", a, b),
			Answer: a * b,
		}
	}
	return cards
}

func quizBoardCleared(cards []QuizCard) bool {
	for _, card := range cards {
		if card.ClaimedBy == "" {
			return false
		}
	}
	return len(cards) > 0
}
