package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/classworks/playsync/pkg/api/handlers"
	"github.com/classworks/playsync/pkg/api/middleware"
	authproviders "github.com/classworks/playsync/pkg/auth/providers"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/registry"
	"github.com/classworks/playsync/pkg/repositories"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AuthProvider authproviders.AuthProvider
	Repository   repositories.Repository
	Registry     *registry.Registry
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	authMiddleware := middleware.NewAuthMiddleware(opts.AuthProvider, opts.Repository)

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.HandleFunc("/health", handlers.HandleHealth()).Methods(http.MethodGet)

	authed := router.NewRoute().Subrouter()
	authed.Use(authMiddleware)
	authed.HandleFunc("/players", handlers.HandleListPlayers(opts.Repository)).Methods(http.MethodGet)
	authed.HandleFunc("/players", handlers.HandleCreatePlayer(opts.Repository)).Methods(http.MethodPost)
	authed.HandleFunc("/players/{playerID}", handlers.HandleUpdatePlayer(opts.Repository)).Methods(http.MethodPut)
	authed.HandleFunc("/players/{playerID}", handlers.HandleDeletePlayer(opts.Repository)).Methods(http.MethodDelete)
	authed.HandleFunc("/results", handlers.HandleListGameResults(opts.Repository)).Methods(http.MethodGet)
	authed.HandleFunc("/sessions/{sessionKey}", handlers.HandleGetSession(opts.Registry)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
