package validators

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classworks/playsync/pkg/game/types"
)

func decodeQuizState(t *testing.T, state types.State) *quizRaceState {
	t.Helper()
	decoded := &quizRaceState{}
	require.NoError(t, json.Unmarshal(state, decoded))
	return decoded
}

func quizMove(moveType, playerID string, data interface{}) types.Move {
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

func TestQuizRaceValidator_GetInitialState(t *testing.T) {
	v := NewQuizRaceValidator()

	tests := []struct {
		name           string
		config         map[string]any
		wantErr        bool
		wantDifficulty int
		wantCardCount  int
	}{
		{
			name:           "defaults",
			config:         nil,
			wantDifficulty: 2,
			wantCardCount:  12,
		},
		{
			name:           "overrides",
			config:         map[string]any{"difficulty": 4, "cardCount": 8},
			wantDifficulty: 4,
			wantCardCount:  8,
		},
		{
			name:    "unknown field",
			config:  map[string]any{"bogus": 1},
			wantErr: true,
		},
		{
			name:    "out of range",
			config:  map[string]any{"difficulty": 9},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := v.GetInitialState(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			decoded := decodeQuizState(t, state)
			assert.Equal(t, types.PhaseSetup, decoded.Phase)
			assert.Equal(t, tt.wantDifficulty, ConfigInt(decoded.Config, "difficulty", 0))
			assert.Equal(t, tt.wantCardCount, ConfigInt(decoded.Config, "cardCount", 0))
			assert.Empty(t, decoded.Cards)
		})
	}
}

func TestQuizRaceValidator_SetConfig(t *testing.T) {
	v := NewQuizRaceValidator()
	vctx := types.Context{}

	setup, err := v.GetInitialState(nil)
	require.NoError(t, err)

	t.Run("writes the field during setup", func(t *testing.T) {
		result := v.ValidateMove(setup, quizMove(types.MoveTypeSetConfig, "p1", SetConfigData{Field: "difficulty", Value: 5}), vctx)
		require.True(t, result.Valid)
		decoded := decodeQuizState(t, result.NewState)
		assert.Equal(t, 5, ConfigInt(decoded.Config, "difficulty", 0))
		// untouched fields keep their values
		assert.Equal(t, 12, ConfigInt(decoded.Config, "cardCount", 0))
	})

	t.Run("last write wins", func(t *testing.T) {
		result := v.ValidateMove(setup, quizMove(types.MoveTypeSetConfig, "p1", SetConfigData{Field: "difficulty", Value: 3}), vctx)
		require.True(t, result.Valid)
		result = v.ValidateMove(result.NewState, quizMove(types.MoveTypeSetConfig, "p2", SetConfigData{Field: "difficulty", Value: 5}), vctx)
		require.True(t, result.Valid)
		decoded := decodeQuizState(t, result.NewState)
		assert.Equal(t, 5, ConfigInt(decoded.Config, "difficulty", 0))
	})

	t.Run("unknown field is a field violation", func(t *testing.T) {
		result := v.ValidateMove(setup, quizMove(types.MoveTypeSetConfig, "p1", SetConfigData{Field: "bogus", Value: 1}), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindFieldViolation, result.Err.Kind)
	})

	t.Run("rejected outside setup", func(t *testing.T) {
		playing := startQuizGame(t, v, setup, []string{"p1"})
		result := v.ValidateMove(playing, quizMove(types.MoveTypeSetConfig, "p1", SetConfigData{Field: "difficulty", Value: 3}), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindPhaseViolation, result.Err.Kind)
	})
}

func startQuizGame(t *testing.T, v *QuizRaceValidator, setup types.State, players []string) types.State {
	t.Helper()
	vctx := types.Context{ActivePlayers: players, Meta: map[string]types.PlayerMeta{}}
	for _, p := range players {
		vctx.Meta[p] = types.PlayerMeta{Name: p}
	}
	result := v.ValidateMove(setup, quizMove(types.MoveTypeStartGame, players[0], nil), vctx)
	require.True(t, result.Valid)
	return result.NewState
}

func TestQuizRaceValidator_StartGame(t *testing.T) {
	v := NewQuizRaceValidator()

	setup, err := v.GetInitialState(map[string]any{"cardCount": 4})
	require.NoError(t, err)

	t.Run("snapshots the roster and deals the board", func(t *testing.T) {
		vctx := types.Context{
			ActivePlayers: []string{"p1", "p2"},
			Meta: map[string]types.PlayerMeta{
				"p1": {Name: "Ada", Color: "#aa3355"},
				"p2": {Name: "Grace"},
			},
		}
		result := v.ValidateMove(setup, quizMove(types.MoveTypeStartGame, "p1", nil), vctx)
		require.True(t, result.Valid)

		decoded := decodeQuizState(t, result.NewState)
		assert.Equal(t, types.PhasePlaying, decoded.Phase)
		assert.Equal(t, []string{"p1", "p2"}, decoded.ActivePlayers)
		assert.Equal(t, "Ada", decoded.PlayerMeta["p1"].Name)
		assert.Len(t, decoded.Cards, 4)
		assert.Equal(t, map[string]int{"p1": 0, "p2": 0}, decoded.Scores)
	})

	t.Run("requires an active player", func(t *testing.T) {
		result := v.ValidateMove(setup, quizMove(types.MoveTypeStartGame, "p1", nil), types.Context{})
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindFieldViolation, result.Err.Kind)
	})

	t.Run("rejected outside setup", func(t *testing.T) {
		playing := startQuizGame(t, v, setup, []string{"p1"})
		vctx := types.Context{ActivePlayers: []string{"p1"}}
		result := v.ValidateMove(playing, quizMove(types.MoveTypeStartGame, "p1", nil), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindPhaseViolation, result.Err.Kind)
	})
}

func TestQuizRaceValidator_ClaimCard(t *testing.T) {
	v := NewQuizRaceValidator()
	vctx := types.Context{}

	setup, err := v.GetInitialState(map[string]any{"cardCount": 4})
	require.NoError(t, err)
	playing := startQuizGame(t, v, setup, []string{"p1", "p2"})
	board := decodeQuizState(t, playing)

	t.Run("first correct claim wins the card", func(t *testing.T) {
		card := board.Cards[0]
		result := v.ValidateMove(playing, quizMove(MoveTypeClaimCard, "p1", ClaimCardData{CardID: card.ID, Answer: card.Answer}), vctx)
		require.True(t, result.Valid)

		decoded := decodeQuizState(t, result.NewState)
		assert.Equal(t, "p1", decoded.Cards[0].ClaimedBy)
		assert.Equal(t, 1, decoded.Scores["p1"])

		// a later claim for the same card is a resource conflict
		result = v.ValidateMove(result.NewState, quizMove(MoveTypeClaimCard, "p2", ClaimCardData{CardID: card.ID, Answer: card.Answer}), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindResourceConflict, result.Err.Kind)
	})

	t.Run("wrong answer is a field violation", func(t *testing.T) {
		card := board.Cards[1]
		result := v.ValidateMove(playing, quizMove(MoveTypeClaimCard, "p1", ClaimCardData{CardID: card.ID, Answer: card.Answer + 1}), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindFieldViolation, result.Err.Kind)
	})

	t.Run("rejected during setup", func(t *testing.T) {
		result := v.ValidateMove(setup, quizMove(MoveTypeClaimCard, "p1", ClaimCardData{CardID: "card-1", Answer: 1}), vctx)
		require.False(t, result.Valid)
		assert.Equal(t, types.ErrorKindPhaseViolation, result.Err.Kind)
	})

	t.Run("clearing the board completes the game", func(t *testing.T) {
		state := playing
		for _, card := range board.Cards {
			result := v.ValidateMove(state, quizMove(MoveTypeClaimCard, "p1", ClaimCardData{CardID: card.ID, Answer: card.Answer}), vctx)
			require.True(t, result.Valid)
			state = result.NewState
		}
		decoded := decodeQuizState(t, state)
		assert.Equal(t, types.PhaseComplete, decoded.Phase)
		assert.True(t, v.IsGameComplete(state))
	})
}

func TestQuizRaceValidator_GoToSetup(t *testing.T) {
	v := NewQuizRaceValidator()
	vctx := types.Context{}

	setup, err := v.GetInitialState(map[string]any{"difficulty": 4, "cardCount": 4})
	require.NoError(t, err)
	playing := startQuizGame(t, v, setup, []string{"p1"})

	result := v.ValidateMove(playing, quizMove(types.MoveTypeGoToSetup, "p1", nil), vctx)
	require.True(t, result.Valid)

	decoded := decodeQuizState(t, result.NewState)
	assert.Equal(t, types.PhaseSetup, decoded.Phase)
	// configuration survives the rewind, progress does not
	assert.Equal(t, 4, ConfigInt(decoded.Config, "difficulty", 0))
	assert.Empty(t, decoded.Cards)
	assert.Empty(t, decoded.Scores)
	assert.Empty(t, decoded.ActivePlayers)
}

func TestDealQuizCards_Deterministic(t *testing.T) {
	config := map[string]any{"difficulty": 3, "cardCount": 10}
	first := dealQuizCards(config)
	second := dealQuizCards(config)
	assert.Equal(t, first, second)
	for _, card := range first {
		assert.NotEmpty(t, card.Prompt)
		assert.Empty(t, card.ClaimedBy)
	}
}
