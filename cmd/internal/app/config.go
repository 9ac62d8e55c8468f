package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"devtree/cmd/identity"
	authapi "devtree/cmd/internal/auth/api"
	"devtree/cmd/internal/realtime"
	"devtree/cmd/security/password"
	"devtree/cmd/security/token"
)

// StoreKind selects the identity persistence backend.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StorePostgres StoreKind = "postgres"
	StoreSQLite   StoreKind = "sqlite"
	StoreMongo    StoreKind = "mongo"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"DEVTREE_HTTP_ADDR"`
	LogLevel  string `env:"DEVTREE_LOG_LEVEL"`
	LogFormat string `env:"DEVTREE_LOG_FORMAT"` // json | text | pretty

	ReadHeaderTimeout time.Duration `env:"DEVTREE_HTTP_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `env:"DEVTREE_HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `env:"DEVTREE_HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `env:"DEVTREE_HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `env:"DEVTREE_HTTP_SHUTDOWN_TIMEOUT"`
	MaxHeaderBytes    int           `env:"DEVTREE_HTTP_MAX_HEADER_BYTES"`

	// Store defaults to postgres when DatabaseURL is set, memory otherwise.
	Store StoreKind `env:"DEVTREE_STORE"`

	DatabaseURL string `env:"DEVTREE_DATABASE_URL"`
	DBSchema    string `env:"DEVTREE_DB_SCHEMA"`
	DBMaxConns  int32  `env:"DEVTREE_DB_MAX_CONNS"`
	DBMinConns  int32  `env:"DEVTREE_DB_MIN_CONNS"`

	SQLitePath string `env:"DEVTREE_SQLITE_PATH"`

	MongoURI      string `env:"DEVTREE_MONGO_URI"`
	MongoDatabase string `env:"DEVTREE_MONGO_DATABASE"`

	// AutoMigrate applies embedded migrations (or Mongo indexes) at startup.
	AutoMigrate bool `env:"DEVTREE_AUTO_MIGRATE"`

	// CORS whitelist. Requests without Origin pass only when CORSAllowAPI is set.
	CORSAllowedOrigins   []string `env:"DEVTREE_FRONTEND_URL" envSeparator:","`
	CORSAllowAPI         bool     `env:"DEVTREE_CORS_ALLOW_API"`
	CORSAllowCredentials bool     `env:"DEVTREE_CORS_ALLOW_CREDENTIALS"`
	CORSMaxAgeSeconds    int      `env:"DEVTREE_CORS_MAX_AGE"`

	// Tracing is opt-in: an empty endpoint installs no exporter.
	OTELEndpoint string `env:"DEVTREE_OTEL_ENDPOINT"`
	ServiceName  string `env:"DEVTREE_SERVICE_NAME"`

	Password password.Config
	Token    token.Config
	API      authapi.Config
	Realtime realtime.Config
}

// DefaultConfig returns every default; the token secret is deliberately empty.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:  "0.0.0.0:4000",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,

		DBSchema:   identity.DefaultSchema,
		DBMaxConns: 10,

		SQLitePath:    "devtree.db",
		MongoDatabase: "devtree",
		AutoMigrate:   true,

		CORSMaxAgeSeconds: 600,

		ServiceName: "devtree",

		Password: password.DefaultConfig(),
		Token:    token.DefaultConfig(),
		API:      authapi.DefaultConfig(),
		Realtime: realtime.DefaultConfig(),
	}
}

// LoadConfig overlays DEVTREE_* variables on DefaultConfig and validates the result.
func LoadConfig() (Config, error) {
	cfg, err := ParseConfig()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig is LoadConfig without validation, for callers that apply
// overrides (CLI flags) first. New validates again before wiring anything.
func ParseConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.Token.Secret = strings.TrimSpace(c.Token.Secret)
	c.Store = StoreKind(strings.ToLower(strings.TrimSpace(string(c.Store))))
	if c.Store == "" {
		c.Store = StoreMemory
		if c.DatabaseURL != "" {
			c.Store = StorePostgres
		}
	}

	origins := make([]string, 0, len(c.CORSAllowedOrigins))
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins
	// The websocket origin policy follows the CORS whitelist.
	c.Realtime.AllowedOrigins = origins
	return c
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: DEVTREE_HTTP_ADDR is empty")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DEVTREE_STORE=postgres requires DEVTREE_DATABASE_URL")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("config: DEVTREE_STORE=sqlite requires DEVTREE_SQLITE_PATH")
		}
	case StoreMongo:
		if strings.TrimSpace(c.MongoURI) == "" || strings.TrimSpace(c.MongoDatabase) == "" {
			return errors.New("config: DEVTREE_STORE=mongo requires DEVTREE_MONGO_URI and DEVTREE_MONGO_DATABASE")
		}
	default:
		return fmt.Errorf("config: unknown DEVTREE_STORE %q", c.Store)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("config: invalid pool bounds min=%d max=%d", c.DBMinConns, c.DBMaxConns)
	}
	if err := c.Password.Check(); err != nil {
		return err
	}
	return ValidateSecurityConfig(c)
}
