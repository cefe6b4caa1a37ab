package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/classworks/playsync/pkg/repositories/models"
	"github.com/google/uuid"
)

// InMemoryRepository keeps the roster in process memory. It backs
// local development and tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	users   map[string]*models.User
	players map[string]*models.Player
	results []*models.GameResult
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:   make(map[string]*models.User),
		players: make(map[string]*models.Player),
	}
}

func (r *InMemoryRepository) Close(ctx context.Context) error {
	return nil
}

func (r *InMemoryRepository) CreateUser(ctx context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		return user, nil
	}
	user := &models.User{
		ID:        userID,
		CreatedAt: time.Now().UTC(),
	}
	r.users[userID] = user
	return user, nil
}

func (r *InMemoryRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, &ErrNotFound{}
	}
	return user, nil
}

func (r *InMemoryRepository) CreatePlayer(ctx context.Context, userID, name, color string) (*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	player := &models.Player{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Color:     color,
		CreatedAt: time.Now().UTC(),
	}
	r.players[player.ID] = player
	return player, nil
}

func (r *InMemoryRepository) GetPlayer(ctx context.Context, playerID string) (*models.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	player, ok := r.players[playerID]
	if !ok {
		return nil, &ErrNotFound{}
	}
	return player, nil
}

func (r *InMemoryRepository) ListPlayers(ctx context.Context, userID string) ([]*models.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	players := make([]*models.Player, 0)
	for _, player := range r.players {
		if player.UserID == userID {
			players = append(players, player)
		}
	}
	return players, nil
}

func (r *InMemoryRepository) UpdatePlayer(ctx context.Context, userID, playerID, name, color string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[playerID]
	if !ok || player.UserID != userID {
		return &ErrNotFound{}
	}
	player.Name = name
	player.Color = color
	return nil
}

func (r *InMemoryRepository) DeletePlayer(ctx context.Context, userID, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[playerID]
	if !ok || player.UserID != userID {
		return &ErrNotFound{}
	}
	delete(r.players, playerID)
	return nil
}

func (r *InMemoryRepository) SaveGameResult(ctx context.Context, result *models.GameResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	r.results = append(r.results, result)
	return nil
}

func (r *InMemoryRepository) ListGameResults(ctx context.Context, ownerID string, limit int) ([]*models.GameResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	results := make([]*models.GameResult, 0)
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].OwnerID != ownerID {
			continue
		}
		results = append(results, r.results[i])
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}
