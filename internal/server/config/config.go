// Package config handles configuration for the server component: defaults,
// a JSON overlay, a dotenv file, the process environment and command-line
// flags, applied in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/ritw/internal/flagx"
	"github.com/dmitrijs2005/ritw/internal/logging"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds runtime settings for the ritw server.
//
// Fields:
//   - ListenAddr: bind address of the HTTP endpoint.
//   - DBDriver: "pgx" or "sqlite".
//   - Postgres*: where the PostgreSQL server lives and how to log in.
//   - SQLitePath: database file for the sqlite driver.
//   - SignKey: secret the session-token key is derived from. Never logged.
//   - TokenValidity: lifetime of issued session tokens.
//   - KeepaliveInterval: period of the gateway connection check.
//   - AllowedOrigins: CORS origins allowed to send credentialed requests.
//   - RevealUnknownUser: distinguish unknown accounts from wrong passwords at signin.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ListenAddr        string        `env:"RITW_LISTEN_ADDR"`
	DBDriver          string        `env:"RITW_DB_DRIVER"`
	PostgresHost      string        `env:"POSTGRES_HOST"`
	PostgresPort      uint16        `env:"POSTGRES_PORT"`
	PostgresDB        string        `env:"POSTGRES_DB"`
	PostgresUser      string        `env:"POSTGRES_USER"`
	PostgresPassword  string        `env:"POSTGRES_PASSWORD"`
	SQLitePath        string        `env:"RITW_SQLITE_PATH"`
	SignKey           string        `env:"RITW_SIGNKEY"`
	TokenValidity     time.Duration `env:"RITW_TOKEN_VALIDITY"`
	KeepaliveInterval time.Duration `env:"RITW_KEEPALIVE_INTERVAL"`
	AllowedOrigins    []string      `env:"RITW_ALLOWED_ORIGINS" envSeparator:","`
	RevealUnknownUser bool          `env:"RITW_REVEAL_UNKNOWN_USER"`
	LogLevel          string        `env:"RITW_LOG_LEVEL"`
}

// LoadDefaults populates Config with development defaults. There is no
// default signing key and no default database credentials.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8080"
	c.DBDriver = DriverPostgres
	c.PostgresHost = "postgres"
	c.PostgresPort = 5432
	c.PostgresDB = "postgres"
	c.SQLitePath = "ritw.db"
	c.TokenValidity = 24 * time.Hour
	c.KeepaliveInterval = 30 * time.Second
	c.LogLevel = "info"
}

var (
	ErrMissingSignKey     = errors.New("RITW_SIGNKEY is required")
	ErrMissingCredentials = errors.New("POSTGRES_USER and POSTGRES_PASSWORD are required")
)

// Validate reports the first setting that makes the config unusable.
func (c *Config) Validate() error {
	if c.SignKey == "" {
		return ErrMissingSignKey
	}

	switch c.DBDriver {
	case DriverPostgres:
		if c.PostgresUser == "" || c.PostgresPassword == "" {
			return ErrMissingCredentials
		}
		if c.PostgresHost == "" {
			return errors.New("POSTGRES_HOST must not be empty")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("RITW_SQLITE_PATH must not be empty")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}

	if c.TokenValidity <= 0 {
		return fmt.Errorf("token validity must be positive, got %s", c.TokenValidity)
	}
	if c.KeepaliveInterval < 0 {
		return fmt.Errorf("keepalive interval must not be negative, got %s", c.KeepaliveInterval)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Resolve builds a Config from defaults, the optional JSON file named by
// -c/-config, the dotenv file named by -env, environ and finally flags. It
// does not validate the result.
func Resolve(args, environ []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, flagx.JsonConfigFlags(args)); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, flagx.EnvFileFlags(args), environ); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is Resolve followed by Validate.
func Load(args, environ []string) (*Config, error) {
	cfg, err := Resolve(args, environ)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads the configuration of the running process.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:], os.Environ())
}

func toMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}
