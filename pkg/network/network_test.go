package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	authproviders "github.com/classworks/playsync/pkg/auth/providers"
	"github.com/classworks/playsync/pkg/broker"
	"github.com/classworks/playsync/pkg/dispatcher"
	"github.com/classworks/playsync/pkg/membership"
	"github.com/classworks/playsync/pkg/messages"
	"github.com/classworks/playsync/pkg/registry"
	"github.com/classworks/playsync/pkg/repositories"
	"github.com/classworks/playsync/pkg/validators"
)

func newTestNetworkManager(t *testing.T) *NetworkManager {
	t.Helper()
	repository := repositories.NewInMemoryRepository()
	membershipService := membership.NewService(membership.NewServiceOptions{
		Repository: repository,
	})
	validatorRegistry := validators.NewDefaultRegistry()
	sessionRegistry := registry.NewRegistry(registry.NewRegistryOptions{
		Validators: validatorRegistry,
		IdleWindow: time.Minute,
	})
	messageBroker := broker.NewInMemoryBroker()
	moveDispatcher := dispatcher.NewDispatcher(dispatcher.NewDispatcherOptions{
		Registry:   sessionRegistry,
		Membership: membershipService,
		Validators: validatorRegistry,
		Broker:     messageBroker,
	})
	return NewNetworkManager(NewNetworkManagerOptions{
		AuthProvider: authproviders.NewStaticAuthProvider(),
		Repository:   repository,
		Membership:   membershipService,
		Registry:     sessionRegistry,
		Dispatcher:   moveDispatcher,
		Broker:       messageBroker,
	})
}

// dialTestConn opens a real in-process WebSocket pair and returns both
// ends.
func dialTestConn(t *testing.T) (serverConn, clientConn *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			t.Errorf("failed to accept connection: %v", err)
			return
		}
		conns <- conn
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clientConn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		clientConn.Close(websocket.StatusNormalClosure, "")
	})
	return <-conns, clientConn
}

func clientMessage(t *testing.T, messageType messages.MessageType, body interface{}) *messages.Message {
	t.Helper()
	message, err := messages.NewMessage(messageType, body)
	require.NoError(t, err)
	return message
}

func readServerMessage(t *testing.T, conn *websocket.Conn) *messages.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	message, err := ReadMessageFromWS(ctx, conn)
	require.NoError(t, err)
	return message
}

func TestNetworkManager_JoinRoomBroadcastsEviction(t *testing.T) {
	nm := newTestNetworkManager(t)
	serverConn, clientConn := dialTestConn(t)
	ctx := context.Background()

	nm.handleConnect(serverConn)
	nm.handleMessage(ctx, serverConn, clientMessage(t, messages.MessageTypeClientLogin, messages.ClientLogin{Token: "static:u1"}))
	reply := readServerMessage(t, clientConn)
	require.Equal(t, messages.MessageTypeServerLoginSuccess, reply.Type)

	// an observer on the first room's channel
	sub, err := nm.Broker.Subscribe(ctx, membership.RoomKey("r1"))
	require.NoError(t, err)

	nm.handleMessage(ctx, serverConn, clientMessage(t, messages.MessageTypeClientJoin, messages.ClientJoin{
		GameType: validators.GameTypeQuizRace,
		RoomID:   "r1",
	}))
	reply = readServerMessage(t, clientConn)
	require.Equal(t, messages.MessageTypeServerJoinAck, reply.Type)
	joinAck := &messages.ServerJoinAck{}
	require.NoError(t, json.Unmarshal(reply.Payload, joinAck))
	assert.Equal(t, "room:r1", joinAck.Session.Key)
	assert.Equal(t, string(membership.RoleSpectator), joinAck.Role)

	// joining another room evicts the prior membership and broadcasts
	// the eviction on the vacated room's channel
	nm.handleMessage(ctx, serverConn, clientMessage(t, messages.MessageTypeClientJoin, messages.ClientJoin{
		GameType: validators.GameTypeQuizRace,
		RoomID:   "r2",
	}))
	reply = readServerMessage(t, clientConn)
	require.Equal(t, messages.MessageTypeServerJoinAck, reply.Type)
	joinAck = &messages.ServerJoinAck{}
	require.NoError(t, json.Unmarshal(reply.Payload, joinAck))
	assert.Equal(t, "room:r2", joinAck.Session.Key)

	select {
	case payload := <-sub.Channel():
		message, err := messages.DeserializeMessage(payload)
		require.NoError(t, err)
		require.Equal(t, messages.MessageTypeServerRoomEvicted, message.Type)
		evicted := &messages.ServerRoomEvicted{}
		require.NoError(t, json.Unmarshal(message.Payload, evicted))
		assert.Equal(t, "u1", evicted.UserID)
		assert.Equal(t, "r1", evicted.RoomID)
	case <-time.After(5 * time.Second):
		t.Fatal("no eviction broadcast on the vacated room channel")
	}

	room, ok := nm.Membership.Room("u1")
	require.True(t, ok)
	assert.Equal(t, "r2", room)

	// the vacated session lost its last subscriber and was destroyed
	_, err = nm.Registry.Lookup("room:r1")
	assert.True(t, registry.IsNotFound(err))
}

func TestNetworkManager_LeaveRoomBroadcastsEviction(t *testing.T) {
	nm := newTestNetworkManager(t)
	serverConn, clientConn := dialTestConn(t)
	ctx := context.Background()

	nm.handleConnect(serverConn)
	nm.handleMessage(ctx, serverConn, clientMessage(t, messages.MessageTypeClientLogin, messages.ClientLogin{Token: "static:u1"}))
	require.Equal(t, messages.MessageTypeServerLoginSuccess, readServerMessage(t, clientConn).Type)

	nm.handleMessage(ctx, serverConn, clientMessage(t, messages.MessageTypeClientJoin, messages.ClientJoin{
		GameType: validators.GameTypeQuizRace,
		RoomID:   "r1",
	}))
	require.Equal(t, messages.MessageTypeServerJoinAck, readServerMessage(t, clientConn).Type)

	sub, err := nm.Broker.Subscribe(ctx, membership.RoomKey("r1"))
	require.NoError(t, err)

	nm.handleMessage(ctx, serverConn, clientMessage(t, messages.MessageTypeClientLeave, messages.ClientLeave{}))

	select {
	case payload := <-sub.Channel():
		message, err := messages.DeserializeMessage(payload)
		require.NoError(t, err)
		require.Equal(t, messages.MessageTypeServerRoomEvicted, message.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no eviction broadcast after leave")
	}

	_, ok := nm.Membership.Room("u1")
	assert.False(t, ok)
}

func TestNetworkManager_DeadSocketDropsSubscription(t *testing.T) {
	nm := newTestNetworkManager(t)
	serverConn, clientConn := dialTestConn(t)
	ctx := context.Background()

	connector := nm.ConnectorManager.AddConnector(serverConn)
	require.NoError(t, nm.subscribeConnector(ctx, connector, "room:r9"))
	require.True(t, nm.ConnectorManager.HasSubscription(connector.ID, "room:r9"))

	// kill the socket; the next forwarded payload must unsubscribe the
	// connector instead of buffering for a dead peer
	clientConn.Close(websocket.StatusNormalClosure, "")
	serverConn.Close(websocket.StatusNormalClosure, "")
	require.NoError(t, nm.Broker.Publish(ctx, "room:r9", []byte("payload")))

	assert.Eventually(t, func() bool {
		return !nm.ConnectorManager.HasSubscription(connector.ID, "room:r9")
	}, 2*time.Second, 10*time.Millisecond)
}
