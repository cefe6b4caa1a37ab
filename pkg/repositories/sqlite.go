package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/classworks/playsync/pkg/repositories/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS players (
	player_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users (user_id),
	name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_players_user_id ON players (user_id);
CREATE TABLE IF NOT EXISTS game_results (
	result_id TEXT PRIMARY KEY,
	session_key TEXT NOT NULL,
	game_type TEXT NOT NULL,
	mode TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	final_state TEXT NOT NULL,
	completed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_game_results_owner_id ON game_results (owner_id);
`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %v", err)
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, userID string) (*models.User, error) {
	now := time.Now().UTC()
	q := `
	INSERT INTO users (user_id, created_at) VALUES (?, ?)
	ON CONFLICT (user_id) DO NOTHING;
	`
	if _, err := r.db.ExecContext(ctx, q, userID, now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to insert user: %v", err)
	}
	return r.GetUser(ctx, userID)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	q := `
	SELECT user_id, created_at FROM users WHERE user_id = ?;
	`
	user := &models.User{}
	var createdAt int64
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(&user.ID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan user: %v", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return user, nil
}

func (r *SQLiteRepository) CreatePlayer(ctx context.Context, userID, name, color string) (*models.Player, error) {
	player := &models.Player{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Color:     color,
		CreatedAt: time.Now().UTC(),
	}
	q := `
	INSERT INTO players (player_id, user_id, name, color, created_at)
	VALUES (?, ?, ?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, player.ID, player.UserID, player.Name, player.Color, player.CreatedAt.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to insert player: %v", err)
	}
	return player, nil
}

func (r *SQLiteRepository) GetPlayer(ctx context.Context, playerID string) (*models.Player, error) {
	q := `
	SELECT player_id, user_id, name, color, created_at FROM players WHERE player_id = ?;
	`
	player := &models.Player{}
	var createdAt int64
	if err := r.db.QueryRowContext(ctx, q, playerID).Scan(&player.ID, &player.UserID, &player.Name, &player.Color, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan player: %v", err)
	}
	player.CreatedAt = time.UnixMilli(createdAt).UTC()
	return player, nil
}

func (r *SQLiteRepository) ListPlayers(ctx context.Context, userID string) ([]*models.Player, error) {
	q := `
	SELECT player_id, user_id, name, color, created_at FROM players
	WHERE user_id = ? ORDER BY created_at;
	`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %v", err)
	}
	defer rows.Close()

	players := make([]*models.Player, 0)
	for rows.Next() {
		player := &models.Player{}
		var createdAt int64
		if err := rows.Scan(&player.ID, &player.UserID, &player.Name, &player.Color, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan player: %v", err)
		}
		player.CreatedAt = time.UnixMilli(createdAt).UTC()
		players = append(players, player)
	}
	return players, rows.Err()
}

func (r *SQLiteRepository) UpdatePlayer(ctx context.Context, userID, playerID, name, color string) error {
	q := `
	UPDATE players SET name = ?, color = ? WHERE player_id = ? AND user_id = ?;
	`
	result, err := r.db.ExecContext(ctx, q, name, color, playerID, userID)
	if err != nil {
		return fmt.Errorf("failed to update player: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if affected == 0 {
		return &ErrNotFound{}
	}
	return nil
}

func (r *SQLiteRepository) DeletePlayer(ctx context.Context, userID, playerID string) error {
	q := `
	DELETE FROM players WHERE player_id = ? AND user_id = ?;
	`
	result, err := r.db.ExecContext(ctx, q, playerID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete player: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if affected == 0 {
		return &ErrNotFound{}
	}
	return nil
}

func (r *SQLiteRepository) SaveGameResult(ctx context.Context, gameResult *models.GameResult) error {
	if gameResult.ID == "" {
		gameResult.ID = uuid.NewString()
	}
	q := `
	INSERT INTO game_results (result_id, session_key, game_type, mode, owner_id, final_state, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, gameResult.ID, gameResult.SessionKey, gameResult.GameType, gameResult.Mode, gameResult.OwnerID, string(gameResult.FinalState), gameResult.CompletedAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to insert game result: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) ListGameResults(ctx context.Context, ownerID string, limit int) ([]*models.GameResult, error) {
	q := `
	SELECT result_id, session_key, game_type, mode, owner_id, final_state, completed_at
	FROM game_results WHERE owner_id = ? ORDER BY completed_at DESC LIMIT ?;
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, q, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query game results: %v", err)
	}
	defer rows.Close()

	results := make([]*models.GameResult, 0)
	for rows.Next() {
		gameResult := &models.GameResult{}
		var finalState string
		var completedAt int64
		if err := rows.Scan(&gameResult.ID, &gameResult.SessionKey, &gameResult.GameType, &gameResult.Mode, &gameResult.OwnerID, &finalState, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game result: %v", err)
		}
		gameResult.FinalState = []byte(finalState)
		gameResult.CompletedAt = time.UnixMilli(completedAt).UTC()
		results = append(results, gameResult)
	}
	return results, rows.Err()
}
