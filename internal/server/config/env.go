package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// parseEnv overlays variables from the dotenv file at path and then from
// environ. The process environment wins over the file. A missing file is
// not an error.
func parseEnv(config *Config, path string, environ []string) error {
	vars := map[string]string{}

	if path != "" {
		fileVars, err := godotenv.Read(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("error reading %s: %w", path, err)
		default:
			vars = fileVars
		}
	}

	for k, v := range toMap(environ) {
		vars[k] = v
	}

	if err := env.ParseWithOptions(config, env.Options{Environment: vars}); err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	return nil
}
