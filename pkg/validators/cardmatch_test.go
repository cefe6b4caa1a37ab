package validators

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classworks/playsync/pkg/game/types"
)

func decodeMatchState(t *testing.T, state types.State) *cardMatchState {
	t.Helper()
	decoded := &cardMatchState{}
	require.NoError(t, json.Unmarshal(state, decoded))
	return decoded
}

func matchMove(moveType, playerID string, data interface{}) types.Move {
	var payload json.RawMessage
	if data != nil {
		payload, _ = json.Marshal(data)
	}
	return types.Move{
		Type:     moveType,
		PlayerID: playerID,
		UserID:   "user-1",
		Data:     payload,
	}
}

func startMatchGame(t *testing.T, v *CardMatchValidator, setup types.State) types.State {
	t.Helper()
	vctx := types.Context{
		ActivePlayers: []string{"p1", "p2"},
		Meta: map[string]types.PlayerMeta{
			"p1": {Name: "Ada"},
			"p2": {Name: "Grace"},
		},
	}
	result := v.ValidateMove(setup, matchMove(types.MoveTypeStartGame, "p1", nil), vctx)
	require.True(t, result.Valid)
	return result.NewState
}

// pairOf returns the ids of a card and its matching partner.
func pairOf(deck []MatchCard, id string) (string, string) {
	var symbol string
	for _, card := range deck {
		if card.ID == id {
			symbol = card.Symbol
		}
	}
	for _, card := range deck {
		if card.Symbol == symbol && card.ID != id {
			return id, card.ID
		}
	}
	return id, ""
}

// mismatchOf returns the id of a card with a different symbol.
func mismatchOf(deck []MatchCard, id string) string {
	var symbol string
	for _, card := range deck {
		if card.ID == id {
			symbol = card.Symbol
		}
	}
	for _, card := range deck {
		if card.Symbol != symbol {
			return card.ID
		}
	}
	return ""
}

func TestCardMatchValidator_StartGame(t *testing.T) {
	v := NewCardMatchValidator()

	setup, err := v.GetInitialState(map[string]any{"pairs": 3})
	require.NoError(t, err)

	t.Run("requires two players", func(t *testing.T) {
		vctx := types.Context{ActivePlayers: []string{"p1"}}
		result := v.ValidateMove(setup, matchMove(types.MoveTypeStartGame, "p1", nil), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindFieldViolation, result.Err.Kind)
	})

	t.Run("deals the configured pairs", func(t *testing.T) {
		playing := startMatchGame(t, v, setup)
		decoded := decodeMatchState(t, playing)
		assert.Equal(t, types.PhasePlaying, decoded.Phase)
		assert.Len(t, decoded.Deck, 6)
		assert.Equal(t, 0, decoded.TurnIndex)

		symbols := make(map[string]int)
		for _, card := range decoded.Deck {
			symbols[card.Symbol]++
		}
		for symbol, count := range symbols {
			assert.Equal(t, 2, count, "symbol %s", symbol)
		}
	})
}

func TestCardMatchValidator_FlipCard(t *testing.T) {
	v := NewCardMatchValidator()

	setup, err := v.GetInitialState(map[string]any{"pairs": 2})
	require.NoError(t, err)
	playing := startMatchGame(t, v, setup)
	deck := decodeMatchState(t, playing).Deck
	vctx := types.Context{}

	t.Run("rejects out-of-turn flips", func(t *testing.T) {
		result := v.ValidateMove(playing, matchMove(MoveTypeFlipCard, "p2", FlipCardData{CardID: deck[0].ID}), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindPhaseViolation, result.Err.Kind)
	})

	t.Run("match keeps the turn and scores", func(t *testing.T) {
		first, second := pairOf(deck, deck[0].ID)
		require.NotEmpty(t, second)

		result := v.ValidateMove(playing, matchMove(MoveTypeFlipCard, "p1", FlipCardData{CardID: first}), vctx)
		require.True(t, result.Valid)
		mid := decodeMatchState(t, result.NewState)
		assert.Equal(t, []string{first}, mid.Flipped)

		result = v.ValidateMove(result.NewState, matchMove(MoveTypeFlipCard, "p1", FlipCardData{CardID: second}), vctx)
		require.True(t, result.Valid)
		decoded := decodeMatchState(t, result.NewState)
		assert.Equal(t, 1, decoded.Scores["p1"])
		assert.Equal(t, 0, decoded.TurnIndex)
		assert.Empty(t, decoded.Flipped)

		// matched cards cannot be flipped again
		result = v.ValidateMove(result.NewState, matchMove(MoveTypeFlipCard, "p1", FlipCardData{CardID: first}), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindResourceConflict, result.Err.Kind)
	})

	t.Run("miss flips back and rotates the turn", func(t *testing.T) {
		first := deck[0].ID
		other := mismatchOf(deck, first)
		require.NotEmpty(t, other)

		result := v.ValidateMove(playing, matchMove(MoveTypeFlipCard, "p1", FlipCardData{CardID: first}), vctx)
		require.True(t, result.Valid)
		result = v.ValidateMove(result.NewState, matchMove(MoveTypeFlipCard, "p1", FlipCardData{CardID: other}), vctx)
		require.True(t, result.Valid)

		decoded := decodeMatchState(t, result.NewState)
		assert.Equal(t, 1, decoded.TurnIndex)
		for _, card := range decoded.Deck {
			assert.False(t, card.FaceUp)
		}

		// p1 may no longer move
		result = v.ValidateMove(result.NewState, matchMove(MoveTypeFlipCard, "p1", FlipCardData{CardID: first}), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindPhaseViolation, result.Err.Kind)
	})

	t.Run("double-flipping the same card is a field violation", func(t *testing.T) {
		first := deck[0].ID
		result := v.ValidateMove(playing, matchMove(MoveTypeFlipCard, "p1", FlipCardData{CardID: first}), vctx)
		require.True(t, result.Valid)
		result = v.ValidateMove(result.NewState, matchMove(MoveTypeFlipCard, "p1", FlipCardData{CardID: first}), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindFieldViolation, result.Err.Kind)
	})

	t.Run("matching every pair completes the game", func(t *testing.T) {
		state := playing
		for {
			decoded := decodeMatchState(t, state)
			if decoded.Phase == types.PhaseComplete {
				break
			}
			turn := decoded.ActivePlayers[decoded.TurnIndex]
			var unmatched string
			for _, card := range decoded.Deck {
				if card.MatchedBy == "" {
					unmatched = card.ID
					break
				}
			}
			first, second := pairOf(decoded.Deck, unmatched)
			result := v.ValidateMove(state, matchMove(MoveTypeFlipCard, turn, FlipCardData{CardID: first}), vctx)
			require.True(t, result.Valid)
			result = v.ValidateMove(result.NewState, matchMove(MoveTypeFlipCard, turn, FlipCardData{CardID: second}), vctx)
			require.True(t, result.Valid)
			state = result.NewState
		}
		assert.True(t, v.IsGameComplete(state))
	})
}

func TestCardMatchValidator_GoToSetup(t *testing.T) {
	v := NewCardMatchValidator()
	vctx := types.Context{}

	setup, err := v.GetInitialState(map[string]any{"pairs": 3})
	require.NoError(t, err)
	playing := startMatchGame(t, v, setup)

	result := v.ValidateMove(playing, matchMove(types.MoveTypeGoToSetup, "p1", nil), vctx)
	require.True(t, result.Valid)

	decoded := decodeMatchState(t, result.NewState)
	assert.Equal(t, types.PhaseSetup, decoded.Phase)
	assert.Equal(t, 3, ConfigInt(decoded.Config, "pairs", 0))
	assert.Empty(t, decoded.Deck)
	assert.Empty(t, decoded.ActivePlayers)
}
