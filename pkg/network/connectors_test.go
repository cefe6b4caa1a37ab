package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestConnectorManager_Lifecycle(t *testing.T) {
	cm := NewConnectorManager()

	conn := &websocket.Conn{}
	connector := cm.AddConnector(conn)
	require.NotEmpty(t, connector.ID)

	byConn, err := cm.GetConnectorByConn(conn)
	require.NoError(t, err)
	assert.Equal(t, connector.ID, byConn.ID)

	require.NoError(t, cm.Authenticate(connector.ID, "u1"))
	assert.Error(t, cm.Authenticate(connector.ID, "u1"))

	assert.Empty(t, cm.SetSessionKey(connector.ID, "room:r1"))
	assert.Equal(t, "room:r1", cm.SessionKey(connector.ID))
	assert.Equal(t, "room:r1", cm.SetSessionKey(connector.ID, "user:u1"))

	removed, lastForUser := cm.RemoveConnector(connector.ID)
	require.NotNil(t, removed)
	assert.True(t, lastForUser)

	_, err = cm.GetConnectorByConn(conn)
	assert.Error(t, err)
}

func TestConnectorManager_MultipleConnectorsPerUser(t *testing.T) {
	cm := NewConnectorManager()

	first := cm.AddConnector(&websocket.Conn{})
	second := cm.AddConnector(&websocket.Conn{})
	require.NoError(t, cm.Authenticate(first.ID, "u1"))
	require.NoError(t, cm.Authenticate(second.ID, "u1"))

	_, lastForUser := cm.RemoveConnector(first.ID)
	assert.False(t, lastForUser)
	_, lastForUser = cm.RemoveConnector(second.ID)
	assert.True(t, lastForUser)
}

func TestConnectorManager_UnknownConnector(t *testing.T) {
	cm := NewConnectorManager()
	_, err := cm.GetConnector("missing")
	assert.Error(t, err)
	assert.Error(t, cm.Authenticate("missing", "u1"))
	assert.Empty(t, cm.SessionKey("missing"))
	removed, lastForUser := cm.RemoveConnector("missing")
	assert.Nil(t, removed)
	assert.False(t, lastForUser)
}
