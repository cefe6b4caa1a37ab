package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/classworks/playsync/pkg/broker"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/messages"
)

// Connector represents one connected client socket. A user may hold
// several connectors at once (multiple tabs or devices); session
// subscriptions are per-connector.
type Connector struct {
	ID     string
	UserID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	// sessionKey is the session this connector currently subscribes to,
	// empty before the first join.
	sessionKey string
	// subs maps broker channel name to the live subscription.
	subs map[string]broker.Subscription
}

// Send serializes a message and writes it to this connector's socket.
func (c *Connector) Send(ctx context.Context, msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}
	return c.SendRaw(ctx, b)
}

// SendRaw writes an already-serialized payload to the socket.
func (c *Connector) SendRaw(ctx context.Context, b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}
	return nil
}

// ConnectorManager tracks connected sockets and their authenticated
// identities.
type ConnectorManager struct {
	mu         sync.RWMutex
	connectors map[string]*Connector
	byConn     map[*websocket.Conn]string
	// users counts live connectors per authenticated user
	users map[string]int
}

func NewConnectorManager() *ConnectorManager {
	return &ConnectorManager{
		connectors: make(map[string]*Connector),
		byConn:     make(map[*websocket.Conn]string),
		users:      make(map[string]int),
	}
}

// AddConnector registers a new socket and returns its connector.
func (cm *ConnectorManager) AddConnector(conn *websocket.Conn) *Connector {
	connector := &Connector{
		ID:   uuid.New().String(),
		conn: conn,
		subs: make(map[string]broker.Subscription),
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connectors[connector.ID] = connector
	cm.byConn[conn] = connector.ID
	return connector
}

// GetConnectorByConn retrieves the connector for a socket.
func (cm *ConnectorManager) GetConnectorByConn(conn *websocket.Conn) (*Connector, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	connectorID, ok := cm.byConn[conn]
	if !ok {
		return nil, fmt.Errorf("unknown connection")
	}
	return cm.connectors[connectorID], nil
}

// Authenticate binds a verified user identity to a connector.
func (cm *ConnectorManager) Authenticate(connectorID, userID string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	connector, ok := cm.connectors[connectorID]
	if !ok {
		return fmt.Errorf("unknown connector %s", connectorID)
	}
	if connector.UserID != "" {
		return fmt.Errorf("connector %s is already authenticated", connectorID)
	}
	connector.UserID = userID
	cm.users[userID]++
	return nil
}

// RemoveConnector unregisters a socket, closes its subscriptions, and
// reports whether it was the user's last live connector.
func (cm *ConnectorManager) RemoveConnector(connectorID string) (connector *Connector, lastForUser bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	connector, ok := cm.connectors[connectorID]
	if !ok {
		return nil, false
	}
	delete(cm.connectors, connectorID)
	delete(cm.byConn, connector.conn)
	for channel, sub := range connector.subs {
		if err := sub.Close(); err != nil {
			log.Warn("Failed to close subscription to %s: %v", channel, err)
		}
	}
	connector.subs = make(map[string]broker.Subscription)

	if connector.UserID != "" {
		cm.users[connector.UserID]--
		if cm.users[connector.UserID] <= 0 {
			delete(cm.users, connector.UserID)
			lastForUser = true
		}
	}
	return connector, lastForUser
}

// GetConnector retrieves a connector by id.
func (cm *ConnectorManager) GetConnector(connectorID string) (*Connector, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	connector, ok := cm.connectors[connectorID]
	if !ok {
		return nil, fmt.Errorf("unknown connector %s", connectorID)
	}
	return connector, nil
}

// SetSessionKey records the session a connector subscribes to and
// returns the previous key, if any.
func (cm *ConnectorManager) SetSessionKey(connectorID, key string) (previous string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	connector, ok := cm.connectors[connectorID]
	if !ok {
		return ""
	}
	previous = connector.sessionKey
	connector.sessionKey = key
	return previous
}

// SessionKey returns the session a connector currently subscribes to.
func (cm *ConnectorManager) SessionKey(connectorID string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	connector, ok := cm.connectors[connectorID]
	if !ok {
		return ""
	}
	return connector.sessionKey
}

// AddSubscription attaches a broker subscription to a connector. It is
// a no-op when the connector already subscribes to the channel.
func (cm *ConnectorManager) AddSubscription(connectorID, channel string, sub broker.Subscription) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	connector, ok := cm.connectors[connectorID]
	if !ok {
		return false
	}
	if _, exists := connector.subs[channel]; exists {
		return false
	}
	connector.subs[channel] = sub
	return true
}

// HasSubscription reports whether a connector subscribes to a channel.
func (cm *ConnectorManager) HasSubscription(connectorID, channel string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	connector, ok := cm.connectors[connectorID]
	if !ok {
		return false
	}
	_, exists := connector.subs[channel]
	return exists
}

// CloseSubscription detaches and closes a connector's subscription to
// a channel.
func (cm *ConnectorManager) CloseSubscription(connectorID, channel string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	connector, ok := cm.connectors[connectorID]
	if !ok {
		return
	}
	sub, exists := connector.subs[channel]
	if !exists {
		return
	}
	delete(connector.subs, channel)
	if err := sub.Close(); err != nil {
		log.Warn("Failed to close subscription to %s: %v", channel, err)
	}
}
