package client

import (
	"context"
	"fmt"
	"sync"

	"nhooyr.io/websocket"

	"github.com/classworks/playsync/pkg/game/types"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/messages"
	"github.com/classworks/playsync/pkg/queue"
)

// NetworkManager is the client-side connection to the sync server.
// Incoming server messages are placed on the message queue for the
// application loop to drain.
type NetworkManager struct {
	serverURL          string
	serverMessageQueue queue.Queue

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

type NewNetworkManagerOptions struct {
	ServerURL    string
	MessageQueue queue.Queue
}

func NewNetworkManager(opts NewNetworkManagerOptions) *NetworkManager {
	return &NetworkManager{
		serverURL:          opts.ServerURL,
		serverMessageQueue: opts.MessageQueue,
	}
}

// Start dials the server and begins reading messages. It returns once
// the connection is established; reading continues in the background
// until the context is cancelled or the connection drops.
func (m *NetworkManager) Start(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, m.serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial server: %v", err)
	}
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	go m.handleMessages(ctx, conn)
	return nil
}

// Stop closes the connection.
func (m *NetworkManager) Stop() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "client closed")
}

func (m *NetworkManager) handleMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		_, b, err := conn.Read(ctx)
		if err != nil {
			log.Trace("Connection closed: %v", err)
			return
		}
		message, err := messages.DeserializeMessage(b)
		if err != nil {
			log.Error("Failed to deserialize server message: %v", err)
			continue
		}
		if err := m.serverMessageQueue.Enqueue(message); err != nil {
			log.Error("Failed to enqueue server message: %v", err)
		}
	}
}

// ServerMessageQueue returns the queue of received server messages.
func (m *NetworkManager) ServerMessageQueue() queue.Queue {
	return m.serverMessageQueue
}

// Login authenticates the connection with an identity token.
func (m *NetworkManager) Login(ctx context.Context, token string) error {
	return m.send(ctx, messages.MessageTypeClientLogin, messages.ClientLogin{Token: token})
}

// Join subscribes to a session. An empty roomID joins the user's
// isolated session.
func (m *NetworkManager) Join(ctx context.Context, gameType, roomID string, config map[string]any) error {
	return m.send(ctx, messages.MessageTypeClientJoin, messages.ClientJoin{
		GameType: gameType,
		RoomID:   roomID,
		Config:   config,
	})
}

// Leave exits the current session.
func (m *NetworkManager) Leave(ctx context.Context) error {
	return m.send(ctx, messages.MessageTypeClientLeave, messages.ClientLeave{})
}

// SubmitMove proposes a move to the server.
func (m *NetworkManager) SubmitMove(ctx context.Context, move types.Move) error {
	return m.send(ctx, messages.MessageTypeClientMove, messages.ClientMove{Move: move})
}

// SetActivePlayers flags which of the user's players participate.
func (m *NetworkManager) SetActivePlayers(ctx context.Context, playerIDs []string) error {
	return m.send(ctx, messages.MessageTypeClientSetActivePlayers, messages.ClientSetActivePlayers{PlayerIDs: playerIDs})
}

func (m *NetworkManager) send(ctx context.Context, messageType messages.MessageType, body interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	message, err := messages.NewMessage(messageType, body)
	if err != nil {
		return fmt.Errorf("failed to build message: %v", err)
	}
	b, err := messages.SerializeMessage(message)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("failed to write message: %v", err)
	}
	return nil
}
