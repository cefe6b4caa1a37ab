package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/classworks/playsync/pkg/client"
	"github.com/classworks/playsync/pkg/game/types"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/messages"
	"github.com/classworks/playsync/pkg/queue"
	"github.com/classworks/playsync/pkg/repositories/models"
	"github.com/classworks/playsync/pkg/validators"
)

// A headless demo client: it logs in, provisions two players through
// the API, joins a quiz race session and races itself to a completed
// game, rendering each speculative and authoritative state transition
// to the log.
func main() {
	wsURL := flag.String("ws-url", "ws://localhost:8890", "WebSocket server URL")
	apiURL := flag.String("api-url", "http://localhost:8891", "API server URL")
	token := flag.String("token", "static:demo-user", "Identity token")
	roomID := flag.String("room", "", "Room to join (empty for an isolated session)")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	serverMessageQueue := queue.NewInMemoryQueue(1000)
	networkManager := client.NewNetworkManager(client.NewNetworkManagerOptions{
		ServerURL:    *wsURL,
		MessageQueue: serverMessageQueue,
	})
	if err := networkManager.Start(ctx); err != nil {
		panic(fmt.Sprintf("Failed to connect: %v", err))
	}
	defer networkManager.Stop()

	projector := client.NewProjector(client.NewProjectorOptions{
		Validators: validators.NewDefaultRegistry(),
	})

	if err := networkManager.Login(ctx, *token); err != nil {
		panic(fmt.Sprintf("Failed to send login: %v", err))
	}

	demo := &demoRunner{
		apiURL:         *apiURL,
		token:          *token,
		roomID:         *roomID,
		networkManager: networkManager,
		projector:      projector,
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			panic("Demo timed out")
		case <-ticker.C:
			items, err := serverMessageQueue.ReadAllMessages()
			if err != nil {
				log.Error("Failed to read server messages: %v", err)
				continue
			}
			for _, item := range items {
				message, ok := item.(*messages.Message)
				if !ok {
					log.Error("Failed to cast queue item to message")
					continue
				}
				done, err := demo.handle(ctx, message)
				if err != nil {
					panic(fmt.Sprintf("Demo failed: %v", err))
				}
				if done {
					log.Info("Demo complete")
					return
				}
			}
		}
	}
}

type demoRunner struct {
	apiURL         string
	token          string
	roomID         string
	networkManager *client.NetworkManager
	projector      *client.Projector

	playerIDs []string
}

func (d *demoRunner) handle(ctx context.Context, message *messages.Message) (done bool, err error) {
	switch message.Type {
	case messages.MessageTypeServerLoginSuccess:
		loginSuccess := &messages.ServerLoginSuccess{}
		if err := json.Unmarshal(message.Payload, loginSuccess); err != nil {
			return false, fmt.Errorf("failed to unmarshal login success: %v", err)
		}
		log.Info("Logged in as user %s", loginSuccess.UserID)
		return false, d.provisionAndJoin(ctx)
	case messages.MessageTypeServerLoginFailure:
		loginFailure := &messages.ServerLoginFailure{}
		if err := json.Unmarshal(message.Payload, loginFailure); err != nil {
			return false, fmt.Errorf("failed to unmarshal login failure: %v", err)
		}
		return false, fmt.Errorf("login failed: %s", loginFailure.Reason)
	case messages.MessageTypeServerJoinAck:
		joinAck := &messages.ServerJoinAck{}
		if err := json.Unmarshal(message.Payload, joinAck); err != nil {
			return false, fmt.Errorf("failed to unmarshal join ack: %v", err)
		}
		log.Info("Joined session %s as %s in phase %s", joinAck.Session.Key, joinAck.Role, joinAck.Session.Phase)
		d.projector.ApplyServer(joinAck.Session)
		return false, d.advance(ctx)
	case messages.MessageTypeServerSessionState:
		sessionState := &messages.ServerSessionState{}
		if err := json.Unmarshal(message.Payload, sessionState); err != nil {
			return false, fmt.Errorf("failed to unmarshal session state: %v", err)
		}
		d.projector.ApplyServer(sessionState.Session)
		if sessionState.Session.Phase == types.PhaseComplete {
			d.printScores()
			return true, d.networkManager.Leave(ctx)
		}
		return false, d.advance(ctx)
	case messages.MessageTypeServerMoveRejected:
		rejected := &messages.ServerMoveRejected{}
		if err := json.Unmarshal(message.Payload, rejected); err != nil {
			return false, fmt.Errorf("failed to unmarshal move rejection: %v", err)
		}
		log.Warn("Move %s rejected: %s", rejected.Move.Type, rejected.Err.Message)
		d.projector.Rollback()
		return false, nil
	case messages.MessageTypeServerRoomEvicted:
		evicted := &messages.ServerRoomEvicted{}
		if err := json.Unmarshal(message.Payload, evicted); err != nil {
			return false, fmt.Errorf("failed to unmarshal eviction: %v", err)
		}
		log.Info("User %s left room %s", evicted.UserID, evicted.RoomID)
		return false, nil
	case messages.MessageTypeServerError:
		serverError := &messages.ServerError{}
		if err := json.Unmarshal(message.Payload, serverError); err != nil {
			return false, fmt.Errorf("failed to unmarshal server error: %v", err)
		}
		return false, fmt.Errorf("server error: %s", serverError.Message)
	default:
		log.Debug("Ignoring message of type %s", message.Type)
		return false, nil
	}
}

// provisionAndJoin creates two players through the API, flags them
// active and joins the session.
func (d *demoRunner) provisionAndJoin(ctx context.Context) error {
	for _, spec := range []struct{ name, color string }{
		{"Ada", "#aa3355"},
		{"Grace", "#3355aa"},
	} {
		player, err := d.createPlayer(ctx, spec.name, spec.color)
		if err != nil {
			return fmt.Errorf("failed to create player %s: %v", spec.name, err)
		}
		d.playerIDs = append(d.playerIDs, player.ID)
	}

	if err := d.networkManager.SetActivePlayers(ctx, d.playerIDs); err != nil {
		return fmt.Errorf("failed to set active players: %v", err)
	}
	return d.networkManager.Join(ctx, validators.GameTypeQuizRace, d.roomID, map[string]any{
		"cardCount": 6,
	})
}

// advance plays the next step of the script against the current phase.
func (d *demoRunner) advance(ctx context.Context) error {
	session := d.projector.Session()
	if session == nil || len(d.playerIDs) == 0 {
		return nil
	}

	switch session.Phase {
	case types.PhaseSetup:
		return d.startGame(ctx)
	case types.PhasePlaying:
		return d.claimNextCard(ctx)
	}
	return nil
}

func (d *demoRunner) startGame(ctx context.Context) error {
	core, err := types.DecodeCore(d.projector.State())
	if err != nil {
		return fmt.Errorf("failed to decode state: %v", err)
	}

	if core.Config["difficulty"] != float64(3) {
		data, _ := json.Marshal(validators.SetConfigData{Field: "difficulty", Value: 3})
		return d.submit(ctx, types.Move{
			Type:      types.MoveTypeSetConfig,
			PlayerID:  d.playerIDs[0],
			Timestamp: time.Now().UnixMilli(),
			Data:      data,
		})
	}

	return d.submit(ctx, types.Move{
		Type:      types.MoveTypeStartGame,
		PlayerID:  d.playerIDs[0],
		Timestamp: time.Now().UnixMilli(),
	})
}

// claimNextCard answers the first unclaimed card, alternating players
// so both score.
func (d *demoRunner) claimNextCard(ctx context.Context) error {
	state := struct {
		Cards []validators.QuizCard `json:"cards"`
	}{}
	if err := json.Unmarshal(d.projector.State(), &state); err != nil {
		return fmt.Errorf("failed to decode cards: %v", err)
	}

	for i, card := range state.Cards {
		if card.ClaimedBy != "" {
			continue
		}
		data, _ := json.Marshal(validators.ClaimCardData{CardID: card.ID, Answer: card.Answer})
		log.Info("Claiming card %s (%s)", card.ID, card.Prompt)
		return d.submit(ctx, types.Move{
			Type:      validators.MoveTypeClaimCard,
			PlayerID:  d.playerIDs[i%len(d.playerIDs)],
			Timestamp: time.Now().UnixMilli(),
			Data:      data,
		})
	}
	return nil
}

// submit applies the move speculatively, then sends it. A local
// rejection is surfaced immediately without a round trip.
func (d *demoRunner) submit(ctx context.Context, move types.Move) error {
	if _, moveErr := d.projector.Predict(move); moveErr != nil {
		log.Debug("Prediction rejected %s locally: %s", move.Type, moveErr.Message)
	}
	return d.networkManager.SubmitMove(ctx, move)
}

func (d *demoRunner) printScores() {
	state := struct {
		Scores map[string]int `json:"scores"`
	}{}
	if err := json.Unmarshal(d.projector.State(), &state); err != nil {
		log.Error("Failed to decode scores: %v", err)
		return
	}
	for playerID, score := range state.Scores {
		log.Info("Player %s scored %d", playerID, score)
	}
}

func (d *demoRunner) createPlayer(ctx context.Context, name, color string) (*models.Player, error) {
	form := url.Values{}
	form.Set("name", name)
	form.Set("color", color)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+"/players", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call API: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	player := &models.Player{}
	if err := json.NewDecoder(resp.Body).Decode(player); err != nil {
		return nil, fmt.Errorf("failed to decode player: %v", err)
	}
	return player, nil
}
