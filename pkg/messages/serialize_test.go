package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classworks/playsync/pkg/game/types"
)

func TestSerializeDeserializeMessage(t *testing.T) {
	move := types.Move{
		Type:      types.MoveTypeSetConfig,
		PlayerID:  "p1",
		UserID:    "u1",
		Timestamp: 1700000000000,
		Data:      json.RawMessage(`{"field":"difficulty","value":3}`),
	}
	message, err := NewMessage(MessageTypeClientMove, ClientMove{Move: move})
	require.NoError(t, err)

	b, err := SerializeMessage(message)
	require.NoError(t, err)

	got, err := DeserializeMessage(b)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeClientMove, got.Type)

	body := &ClientMove{}
	require.NoError(t, json.Unmarshal(got.Payload, body))
	assert.Equal(t, move, body.Move)
}

func TestDeserializeMessage_Garbage(t *testing.T) {
	_, err := DeserializeMessage([]byte("not compressed"))
	assert.Error(t, err)
}
