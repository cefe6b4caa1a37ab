package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue(t *testing.T) {
	q := NewInMemoryQueue(2)

	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	assert.Equal(t, 2, q.Size())

	// a full queue rejects instead of blocking
	assert.Error(t, q.Enqueue("c"))

	items, err := q.ReadAllMessages()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, items)
	assert.Equal(t, 0, q.Size())

	items, err = q.ReadAllMessages()
	require.NoError(t, err)
	assert.Empty(t, items)
}
