package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/ritw/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   database driver, "pgx" or "sqlite"
//	-f string   SQLite database file
//	-t int      session token validity, minutes
//	-l string   log level
//
// Only these flags are considered; -c/-config and -env are handled by
// earlier layers.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-f", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.DBDriver, "d", config.DBDriver, "database driver")
	fs.StringVar(&config.SQLitePath, "f", config.SQLitePath, "sqlite database file")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	tokenValidity := fs.Int("t", int(config.TokenValidity.Minutes()), "token validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.TokenValidity = time.Duration(*tokenValidity) * time.Minute
		}
	})
	return nil
}
