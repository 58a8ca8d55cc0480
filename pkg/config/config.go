package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Server holds runtime configuration for the API server.
type Server struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	ServerPort string `envconfig:"SERVER_PORT"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"text"`

	DatabaseURL        string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns         int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	DBMaxConnIdleTime  time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	ApplySchemaOnStart bool          `envconfig:"APPLY_SCHEMA_ON_START" default:"true"`
	SeedOnStart        bool          `envconfig:"SEED_ON_START" default:"false"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	StatsCacheTTL time.Duration `envconfig:"STATS_CACHE_TTL" default:"30s"`

	CORSAllowedOrigins   []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	CORSAllowCredentials bool     `envconfig:"CORS_ALLOW_CREDENTIALS" default:"false"`

	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"120"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	SendgridAPIKey      string `envconfig:"SENDGRID_API_KEY"`
	SendgridSenderEmail string `envconfig:"SENDGRID_SENDER_EMAIL"`
	SendgridSenderName  string `envconfig:"SENDGRID_SENDER_NAME" default:"User Management"`

	EnableTLS     bool   `envconfig:"ENABLE_TLS" default:"false"`
	TLSCertPath   string `envconfig:"TLS_CERT_PATH"`
	TLSKeyPath    string `envconfig:"TLS_KEY_PATH"`
	TLSCertPEM    string `envconfig:"TLS_CERT"`
	TLSKeyPEM     string `envconfig:"TLS_KEY"`
	TLSSelfSigned bool   `envconfig:"TLS_SELF_SIGNED" default:"true"`
}

// Dashboard holds configuration for the terminal dashboard.
type Dashboard struct {
	APIURL         string        `envconfig:"API_URL" default:"http://localhost:8000/api"`
	SearchDebounce time.Duration `envconfig:"SEARCH_DEBOUNCE" default:"500ms"`
	PerPage        int           `envconfig:"PER_PAGE" default:"10"`
	HTTPTimeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"text"`
}

// loadDotEnv reads .env when present. A missing file is not an error.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
}

// LoadServer reads the server configuration from the environment.
func LoadServer() (*Server, error) {
	loadDotEnv()

	var cfg Server
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.CORSAllowedOrigins = cleanOrigins(cfg.CORSAllowedOrigins)
	if cfg.IsProduction() {
		cfg.EnableTLS = true
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8000"
		if cfg.EnableTLS {
			cfg.ServerPort = "8443"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the settings are safe for the selected environment.
func (c *Server) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL environment variable not set")
	}
	if c.DBMinConns > c.DBMaxConns {
		return errors.New("DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}
	if c.RateLimitRequests < 0 {
		return errors.New("RATE_LIMIT_REQUESTS must not be negative")
	}
	if c.IsProduction() {
		if !c.EnableTLS {
			return errors.New("TLS must be enabled in production")
		}
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return errors.New("TLS_CERT_PATH and TLS_KEY_PATH are required in production")
		}
	}
	return nil
}

func (c *Server) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// LoadDashboard reads the dashboard configuration from the environment.
func LoadDashboard() (*Dashboard, error) {
	loadDotEnv()

	var cfg Dashboard
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.PerPage <= 0 {
		return nil, errors.New("PER_PAGE must be positive")
	}
	if cfg.SearchDebounce < 0 {
		return nil, errors.New("SEARCH_DEBOUNCE must not be negative")
	}
	return &cfg, nil
}

// cleanOrigins trims entries and falls back to the wildcard when none remain.
func cleanOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
