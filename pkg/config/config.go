package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server configuration, populated from the environment.
type Config struct {
	WSPort   int    `env:"PLAYSYNC_WS_PORT" envDefault:"8890"`
	APIPort  int    `env:"PLAYSYNC_API_PORT" envDefault:"8891"`
	LogLevel string `env:"PLAYSYNC_LOG_LEVEL" envDefault:"info"`

	// DatabaseURL selects the postgres roster repository when set.
	// SQLitePath is used otherwise; when both are empty the roster
	// is kept in memory.
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"PLAYSYNC_SQLITE_PATH"`

	// RedisAddr selects the redis broker for multi-node fan-out.
	// The in-memory broker is used when empty.
	RedisAddr string `env:"PLAYSYNC_REDIS_ADDR"`

	// AuthProvider selects the identity provider: "static" or "firebase".
	AuthProvider           string `env:"PLAYSYNC_AUTH_PROVIDER" envDefault:"static"`
	FirebaseCredentialsKey string `env:"PLAYSYNC_FIREBASE_CREDENTIALS"`

	// SessionIdleWindow is how long a session with zero subscribers
	// survives a silent disconnect before it is torn down.
	SessionIdleWindow time.Duration `env:"PLAYSYNC_SESSION_IDLE_WINDOW" envDefault:"30s"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %v", err)
	}
	// the reaper ticks at a fraction of the window; a sub-second window
	// would produce a non-positive ticker interval
	if cfg.SessionIdleWindow < time.Second {
		return nil, fmt.Errorf("session idle window must be at least 1s, got %s", cfg.SessionIdleWindow)
	}
	return cfg, nil
}
