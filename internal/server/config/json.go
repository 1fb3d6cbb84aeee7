package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// duration accepts both "1s"-style strings and integer nanoseconds.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// JsonConfig is the on-disk shape of the configuration file. Only fields
// present in the file override the current values.
type JsonConfig struct {
	ListenAddr        *string   `json:"listen_addr"`
	DBDriver          *string   `json:"db_driver"`
	PostgresHost      *string   `json:"postgres_host"`
	PostgresPort      *uint16   `json:"postgres_port"`
	PostgresDB        *string   `json:"postgres_db"`
	PostgresUser      *string   `json:"postgres_user"`
	SQLitePath        *string   `json:"sqlite_path"`
	TokenValidity     *duration `json:"token_validity"`
	KeepaliveInterval *duration `json:"keepalive_interval"`
	AllowedOrigins    []string  `json:"allowed_origins"`
	RevealUnknownUser *bool     `json:"reveal_unknown_user"`
	LogLevel          *string   `json:"log_level"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// parseJson loads the JSON file at path into config. Secrets are not read
// from the file; they come from the environment only. An empty path loads
// nothing.
func parseJson(config *Config, path string) error {
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	set(&config.ListenAddr, c.ListenAddr)
	set(&config.DBDriver, c.DBDriver)
	set(&config.PostgresHost, c.PostgresHost)
	set(&config.PostgresPort, c.PostgresPort)
	set(&config.PostgresDB, c.PostgresDB)
	set(&config.PostgresUser, c.PostgresUser)
	set(&config.SQLitePath, c.SQLitePath)
	set(&config.RevealUnknownUser, c.RevealUnknownUser)
	set(&config.LogLevel, c.LogLevel)
	if c.TokenValidity != nil {
		config.TokenValidity = time.Duration(*c.TokenValidity)
	}
	if c.KeepaliveInterval != nil {
		config.KeepaliveInterval = time.Duration(*c.KeepaliveInterval)
	}
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
	return nil
}
