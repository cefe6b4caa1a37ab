package network

import (
	"context"
	"encoding/json"
	"fmt"

	"nhooyr.io/websocket"

	authproviders "github.com/classworks/playsync/pkg/auth/providers"
	"github.com/classworks/playsync/pkg/broker"
	"github.com/classworks/playsync/pkg/dispatcher"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/membership"
	"github.com/classworks/playsync/pkg/messages"
	"github.com/classworks/playsync/pkg/registry"
	"github.com/classworks/playsync/pkg/repositories"
)

// NetworkManager owns the socket lifecycle: authentication, session
// join/leave, move submission and the broadcast fan-out from the
// broker to each connected socket.
type NetworkManager struct {
	AuthProvider     authproviders.AuthProvider
	ConnectorManager *ConnectorManager
	Repository       repositories.Repository
	Membership       *membership.Service
	Registry         *registry.Registry
	Dispatcher       *dispatcher.Dispatcher
	Broker           broker.Broker
	WSServer         *WSServer
}

type NewNetworkManagerOptions struct {
	AuthProvider authproviders.AuthProvider
	Repository   repositories.Repository
	Membership   *membership.Service
	Registry     *registry.Registry
	Dispatcher   *dispatcher.Dispatcher
	Broker       broker.Broker
	WSPort       int
	WSServerTLS  *TLSConfig
}

func NewNetworkManager(opts NewNetworkManagerOptions) *NetworkManager {
	return &NetworkManager{
		AuthProvider:     opts.AuthProvider,
		ConnectorManager: NewConnectorManager(),
		Repository:       opts.Repository,
		Membership:       opts.Membership,
		Registry:         opts.Registry,
		Dispatcher:       opts.Dispatcher,
		Broker:           opts.Broker,
		WSServer: NewWSServer(NewWSServerOptions{
			Port: opts.WSPort,
			TLS:  opts.WSServerTLS,
		}),
	}
}

func (n *NetworkManager) Start(ctx context.Context) {
	go n.WSServer.Start(ctx, n.handleConnect, n.handleDisconnect, n.handleMessage)
}

func (n *NetworkManager) handleConnect(conn *websocket.Conn) {
	connector := n.ConnectorManager.AddConnector(conn)
	log.Debug("Connector %s connected", connector.ID)
}

// handleDisconnect runs when a socket goes away without an explicit
// leave. The session survives for the idle window so the client can
// reconnect and resync.
func (n *NetworkManager) handleDisconnect(conn *websocket.Conn) {
	connector, err := n.ConnectorManager.GetConnectorByConn(conn)
	if err != nil {
		log.Warn("Unknown connection disconnected")
		return
	}

	key := n.ConnectorManager.SessionKey(connector.ID)
	removed, lastForUser := n.ConnectorManager.RemoveConnector(connector.ID)
	if removed == nil {
		return
	}
	if key != "" {
		n.Registry.Disconnect(key, removed.ID)
	}
	if lastForUser {
		if vacated := n.Membership.Forget(removed.UserID); vacated != "" {
			n.publishEviction(context.Background(), removed.UserID, vacated)
		}
	}
	log.Info("Connector %s disconnected", removed.ID)
}

func (n *NetworkManager) handleMessage(ctx context.Context, conn *websocket.Conn, message *messages.Message) {
	connector, err := n.ConnectorManager.GetConnectorByConn(conn)
	if err != nil {
		log.Warn("Received message from unknown connection")
		return
	}

	if message.Type == messages.MessageTypeClientLogin {
		if err := n.handleClientLogin(ctx, connector, message); err != nil {
			log.Error("Failed to handle client login: %v", err)
			n.sendLoginFailure(ctx, connector, err.Error())
		}
		return
	}

	if connector.UserID == "" {
		log.Warn("Received %s from unauthenticated connector %s", message.Type, connector.ID)
		n.sendError(ctx, connector, "not authenticated")
		return
	}

	switch message.Type {
	case messages.MessageTypeClientJoin:
		if err := n.handleClientJoin(ctx, connector, message); err != nil {
			log.Error("Failed to handle client join: %v", err)
			n.sendError(ctx, connector, err.Error())
		}
	case messages.MessageTypeClientLeave:
		n.handleClientLeave(ctx, connector)
	case messages.MessageTypeClientMove:
		if err := n.handleClientMove(ctx, connector, message); err != nil {
			log.Error("Failed to handle client move: %v", err)
			n.sendError(ctx, connector, err.Error())
		}
	case messages.MessageTypeClientSetActivePlayers:
		if err := n.handleClientSetActivePlayers(ctx, connector, message); err != nil {
			log.Error("Failed to handle set active players: %v", err)
			n.sendError(ctx, connector, err.Error())
		}
	default:
		log.Warn("Received message of unknown type %s from connector %s", message.Type, connector.ID)
	}
}

// handleClientLogin verifies the token, upserts the user and opens the
// connector's personal broadcast channel.
func (n *NetworkManager) handleClientLogin(ctx context.Context, connector *Connector, message *messages.Message) error {
	clientLogin := &messages.ClientLogin{}
	if err := json.Unmarshal(message.Payload, clientLogin); err != nil {
		return fmt.Errorf("failed to unmarshal client login: %v", err)
	}

	token, err := n.AuthProvider.VerifyToken(ctx, clientLogin.Token)
	if err != nil {
		return fmt.Errorf("failed to verify token: %v", err)
	}

	user, err := n.Repository.CreateUser(ctx, token.UID)
	if err != nil {
		return fmt.Errorf("failed to create user: %v", err)
	}

	if err := n.ConnectorManager.Authenticate(connector.ID, user.ID); err != nil {
		return fmt.Errorf("failed to authenticate connector: %v", err)
	}

	if err := n.subscribeConnector(ctx, connector, membership.LocalKey(user.ID)); err != nil {
		return fmt.Errorf("failed to subscribe to personal channel: %v", err)
	}

	log.Info("Connector %s authenticated as user %s", connector.ID, user.ID)
	msg, err := messages.NewMessage(messages.MessageTypeServerLoginSuccess, messages.ServerLoginSuccess{
		UserID:      user.ID,
		ConnectorID: connector.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to build login success: %v", err)
	}
	return connector.Send(ctx, msg)
}

// handleClientJoin resolves the session key for the user, performs the
// room compare-and-set when a room is requested, subscribes the
// connector and replies with the one-to-one full-state send.
func (n *NetworkManager) handleClientJoin(ctx context.Context, connector *Connector, message *messages.Message) error {
	clientJoin := &messages.ClientJoin{}
	if err := json.Unmarshal(message.Payload, clientJoin); err != nil {
		return fmt.Errorf("failed to unmarshal client join: %v", err)
	}

	if clientJoin.RoomID != "" {
		if evicted := n.Membership.JoinRoom(connector.UserID, clientJoin.RoomID); evicted != "" {
			evictedKey := membership.RoomKey(evicted)
			n.Registry.Leave(evictedKey, connector.ID)
			n.ConnectorManager.CloseSubscription(connector.ID, evictedKey)
			n.publishEviction(ctx, connector.UserID, evicted)
		}
	} else if left := n.Membership.LeaveRoom(connector.UserID); left != "" {
		leftKey := membership.RoomKey(left)
		n.Registry.Leave(leftKey, connector.ID)
		n.ConnectorManager.CloseSubscription(connector.ID, leftKey)
		n.publishEviction(ctx, connector.UserID, left)
	}

	key := n.Membership.SessionKey(connector.UserID)
	mode, ownerID := n.Membership.Mode(connector.UserID)

	if previous := n.ConnectorManager.SetSessionKey(connector.ID, key); previous != "" && previous != key {
		n.Registry.Leave(previous, connector.ID)
		if previous != membership.LocalKey(connector.UserID) {
			n.ConnectorManager.CloseSubscription(connector.ID, previous)
		}
	}

	session, err := n.Registry.Join(key, mode, ownerID, clientJoin.GameType, connector.ID, clientJoin.Config)
	if err != nil {
		return fmt.Errorf("failed to join session: %v", err)
	}

	if err := n.subscribeConnector(ctx, connector, key); err != nil {
		return fmt.Errorf("failed to subscribe to session channel: %v", err)
	}

	msg, err := messages.NewMessage(messages.MessageTypeServerJoinAck, messages.ServerJoinAck{
		Session: session,
		Role:    string(n.Membership.Role(connector.UserID)),
	})
	if err != nil {
		return fmt.Errorf("failed to build join ack: %v", err)
	}
	return connector.Send(ctx, msg)
}

// handleClientLeave is the explicit exit: the subscription is dropped
// immediately and the session is destroyed as soon as nobody is left.
func (n *NetworkManager) handleClientLeave(ctx context.Context, connector *Connector) {
	key := n.ConnectorManager.SetSessionKey(connector.ID, "")
	if key == "" {
		return
	}
	n.Registry.Leave(key, connector.ID)
	if key != membership.LocalKey(connector.UserID) {
		n.ConnectorManager.CloseSubscription(connector.ID, key)
	}
	if left := n.Membership.LeaveRoom(connector.UserID); left != "" {
		n.publishEviction(ctx, connector.UserID, left)
	}
	log.Debug("Connector %s left session %s", connector.ID, key)
}

// handleClientMove submits a move through the dispatcher. The user
// attribution on the move is overwritten with the connector's verified
// identity before anything else looks at it. Rejections are sent to
// this connector only.
func (n *NetworkManager) handleClientMove(ctx context.Context, connector *Connector, message *messages.Message) error {
	clientMove := &messages.ClientMove{}
	if err := json.Unmarshal(message.Payload, clientMove); err != nil {
		return fmt.Errorf("failed to unmarshal client move: %v", err)
	}

	move := clientMove.Move
	move.UserID = connector.UserID

	if _, moveErr := n.Dispatcher.Submit(ctx, move); moveErr != nil {
		msg, err := messages.NewMessage(messages.MessageTypeServerMoveRejected, messages.ServerMoveRejected{
			Move: move,
			Err:  moveErr,
		})
		if err != nil {
			return fmt.Errorf("failed to build move rejection: %v", err)
		}
		return connector.Send(ctx, msg)
	}
	return nil
}

// handleClientSetActivePlayers updates the user's active roster and
// re-broadcasts the session so every subscriber sees the new scope.
func (n *NetworkManager) handleClientSetActivePlayers(ctx context.Context, connector *Connector, message *messages.Message) error {
	clientSet := &messages.ClientSetActivePlayers{}
	if err := json.Unmarshal(message.Payload, clientSet); err != nil {
		return fmt.Errorf("failed to unmarshal set active players: %v", err)
	}

	if err := n.Membership.SetActivePlayers(ctx, connector.UserID, clientSet.PlayerIDs); err != nil {
		return fmt.Errorf("failed to set active players: %v", err)
	}

	if key := n.ConnectorManager.SessionKey(connector.ID); key != "" {
		if err := n.Dispatcher.Broadcast(ctx, key); err != nil {
			log.Warn("Failed to broadcast after roster change for %s: %v", key, err)
		}
	}
	return nil
}

// subscribeConnector opens a broker subscription for the connector and
// pumps its payloads to the socket. Duplicate subscriptions to the
// same channel are ignored.
func (n *NetworkManager) subscribeConnector(ctx context.Context, connector *Connector, channel string) error {
	if n.ConnectorManager.HasSubscription(connector.ID, channel) {
		return nil
	}
	sub, err := n.Broker.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to channel %s: %v", channel, err)
	}
	if !n.ConnectorManager.AddSubscription(connector.ID, channel, sub) {
		return sub.Close()
	}
	go func() {
		for payload := range sub.Channel() {
			if err := connector.SendRaw(ctx, payload); err != nil {
				// the socket is dead; drop the subscription so the broker
				// stops buffering for it
				log.Warn("Failed to forward payload to connector %s: %v", connector.ID, err)
				n.ConnectorManager.CloseSubscription(connector.ID, channel)
				return
			}
		}
	}()
	return nil
}

// publishEviction notifies a vacated room that a member moved on.
func (n *NetworkManager) publishEviction(ctx context.Context, userID, roomID string) {
	msg, err := messages.NewMessage(messages.MessageTypeServerRoomEvicted, messages.ServerRoomEvicted{
		UserID: userID,
		RoomID: roomID,
	})
	if err != nil {
		log.Error("Failed to build eviction message: %v", err)
		return
	}
	payload, err := messages.SerializeMessage(msg)
	if err != nil {
		log.Error("Failed to serialize eviction message: %v", err)
		return
	}
	if err := n.Broker.Publish(ctx, membership.RoomKey(roomID), payload); err != nil {
		log.Error("Failed to publish eviction to room %s: %v", roomID, err)
	}
}

func (n *NetworkManager) sendLoginFailure(ctx context.Context, connector *Connector, reason string) {
	msg, err := messages.NewMessage(messages.MessageTypeServerLoginFailure, messages.ServerLoginFailure{Reason: reason})
	if err != nil {
		log.Error("Failed to build login failure: %v", err)
		return
	}
	if err := connector.Send(ctx, msg); err != nil {
		log.Error("Failed to send login failure: %v", err)
	}
}

func (n *NetworkManager) sendError(ctx context.Context, connector *Connector, message string) {
	msg, err := messages.NewMessage(messages.MessageTypeServerError, messages.ServerError{Message: message})
	if err != nil {
		log.Error("Failed to build error message: %v", err)
		return
	}
	if err := connector.Send(ctx, msg); err != nil {
		log.Error("Failed to send error message: %v", err)
	}
}
