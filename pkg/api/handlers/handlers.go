package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/classworks/playsync/pkg/api/middleware"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/registry"
	"github.com/classworks/playsync/pkg/repositories"
	"github.com/classworks/playsync/pkg/repositories/models"
)

const (
	// MaxPlayersPerUser caps the roster size for one user.
	MaxPlayersPerUser = 8
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9 ]+$`)
var colorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func HandleListPlayers(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		players, err := repository.ListPlayers(r.Context(), user.ID)
		if err != nil {
			log.Error("failed to list players: %v", err)
			http.Error(w, "Failed to list players", http.StatusInternalServerError)
			return
		}

		writeJSON(w, players)
	}
}

func HandleCreatePlayer(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		name := r.FormValue("name")
		color := r.FormValue("color")
		if msg := validatePlayerFields(name, color); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}

		players, err := repository.ListPlayers(r.Context(), user.ID)
		if err != nil {
			log.Error("failed to list players: %v", err)
			http.Error(w, "Failed to list players", http.StatusInternalServerError)
			return
		}
		if len(players) >= MaxPlayersPerUser {
			http.Error(w, "Player limit reached", http.StatusBadRequest)
			return
		}

		player, err := repository.CreatePlayer(r.Context(), user.ID, name, color)
		if err != nil {
			log.Error("failed to create player: %v", err)
			http.Error(w, "Failed to create player", http.StatusInternalServerError)
			return
		}

		writeJSON(w, player)
	}
}

func HandleUpdatePlayer(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		playerID := mux.Vars(r)["playerID"]

		name := r.FormValue("name")
		color := r.FormValue("color")
		if msg := validatePlayerFields(name, color); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}

		if err := repository.UpdatePlayer(r.Context(), user.ID, playerID, name, color); err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Player not found", http.StatusNotFound)
				return
			}
			log.Error("failed to update player: %v", err)
			http.Error(w, "Failed to update player", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleDeletePlayer(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		playerID := mux.Vars(r)["playerID"]

		if err := repository.DeletePlayer(r.Context(), user.ID, playerID); err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Player not found", http.StatusNotFound)
				return
			}
			log.Error("failed to delete player: %v", err)
			http.Error(w, "Failed to delete player", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleListGameResults returns the user's archived games, newest first.
func HandleListGameResults(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		results, err := repository.ListGameResults(r.Context(), user.ID, limit)
		if err != nil {
			log.Error("failed to list game results: %v", err)
			http.Error(w, "Failed to list game results", http.StatusInternalServerError)
			return
		}

		writeJSON(w, results)
	}
}

// HandleGetSession returns a read-only snapshot of a live session.
func HandleGetSession(sessionRegistry *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["sessionKey"]
		session, err := sessionRegistry.Lookup(key)
		if err != nil {
			if registry.IsNotFound(err) {
				http.Error(w, "Session not found", http.StatusNotFound)
				return
			}
			log.Error("failed to look up session: %v", err)
			http.Error(w, "Failed to look up session", http.StatusInternalServerError)
			return
		}

		writeJSON(w, session)
	}
}

func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func validatePlayerFields(name, color string) string {
	if len(name) < 1 || len(name) > 16 {
		return "Name must be between 1 and 16 characters"
	}
	if !nameRegex.MatchString(name) {
		return "Name cannot contain special characters"
	}
	if color != "" && !colorRegex.MatchString(color) {
		return "Color must be a hex color like #aabbcc"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
