package repositories

import (
	"context"

	"github.com/classworks/playsync/pkg/repositories/models"
)

// Repository persists the player roster: users, their player avatars
// and the user-to-player ownership the membership layer authorizes
// moves against.
type Repository interface {
	Close(ctx context.Context) error
	// CreateUser upserts a user by its resolved identity.
	CreateUser(ctx context.Context, userID string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	CreatePlayer(ctx context.Context, userID, name, color string) (*models.Player, error)
	GetPlayer(ctx context.Context, playerID string) (*models.Player, error)
	ListPlayers(ctx context.Context, userID string) ([]*models.Player, error)
	UpdatePlayer(ctx context.Context, userID, playerID, name, color string) error
	DeletePlayer(ctx context.Context, userID, playerID string) error
	// SaveGameResult archives a completed game.
	SaveGameResult(ctx context.Context, result *models.GameResult) error
	// ListGameResults returns the owner's completed games, newest first.
	ListGameResults(ctx context.Context, ownerID string, limit int) ([]*models.GameResult, error)
}
