// Package storage is the persistence gateway: one shared database
// connection, opened once at startup, over which every entity operation is
// multiplexed.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/ritw/internal/dbx"
	"github.com/dmitrijs2005/ritw/internal/filex"
	"github.com/dmitrijs2005/ritw/internal/logging"
	"github.com/dmitrijs2005/ritw/internal/server/statements"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

var (
	ErrAlreadyInitialized = errors.New("gateway already initialized")
	ErrNotInitialized     = errors.New("gateway not initialized")
	ErrConnection         = errors.New("connection error")
)

// ProbeValue is echoed back by the liveness probe run at Init.
const ProbeValue = "hello world"

// Options describe how to reach the backing store.
type Options struct {
	Dialect           Dialect
	Host              string
	Port              uint16
	Database          string
	User              string
	Password          string
	SQLitePath        string
	KeepaliveInterval time.Duration
}

// Gateway owns the single connection to the store. Use NewGateway and
// then Init exactly once. A closed gateway cannot be initialized again.
//
// All operations take the gateway lock for their full duration, including
// draining result rows, so queries on the shared connection never
// interleave.
type Gateway struct {
	logger logging.Logger

	mu      sync.Mutex
	db      *sql.DB
	conn    dbx.Conn
	dialect Dialect
	started bool

	stopKeepalive context.CancelFunc
	keepaliveDone chan struct{}
}

func NewGateway(logger logging.Logger) *Gateway {
	return &Gateway{logger: logger.With("module", "gateway")}
}

// openDB is a seam for tests.
var openDB = func(opts Options) (*sql.DB, error) {
	switch opts.Dialect {
	case DialectSQLite:
		if _, err := filex.EnsureParentDir(opts.SQLitePath); err != nil {
			return nil, err
		}
		return sql.Open("sqlite", opts.SQLitePath)
	case DialectPostgres, "":
		cfg, err := pgx.ParseConfig("")
		if err != nil {
			return nil, err
		}
		cfg.Host = opts.Host
		if opts.Port != 0 {
			cfg.Port = opts.Port
		}
		cfg.Database = opts.Database
		cfg.User = opts.User
		cfg.Password = opts.Password
		cfg.Fallbacks = nil
		return stdlib.OpenDB(*cfg), nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", opts.Dialect)
}

// Init connects to the store described by opts, checks the connection with
// a round trip and publishes it. Init must be called once; a second call
// returns ErrAlreadyInitialized.
func (g *Gateway) Init(ctx context.Context, opts Options) error {
	if g.initialized() {
		return ErrAlreadyInitialized
	}

	dialect := opts.Dialect
	if dialect == "" {
		dialect = DialectPostgres
	}

	db, err := openDB(opts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if err := g.InitWithDB(ctx, db, dialect, opts.KeepaliveInterval); err != nil {
		_ = db.Close()
		return err
	}
	return nil
}

// InitWithDB is Init for an already opened *sql.DB. The gateway takes
// ownership of db and closes it in Close.
func (g *Gateway) InitWithDB(ctx context.Context, db *sql.DB, dialect Dialect, keepalive time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return ErrAlreadyInitialized
	}

	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if err := probe(ctx, conn, dialect); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	g.db = db
	g.conn = conn
	g.dialect = dialect
	g.started = true

	if keepalive > 0 {
		kctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		g.stopKeepalive = cancel
		g.keepaliveDone = done
		go g.keepalive(kctx, keepalive, done)
	}

	g.logger.Info(ctx, "gateway initialized", "dialect", string(dialect))
	return nil
}

func probe(ctx context.Context, conn dbx.Conn, dialect Dialect) error {
	rows, err := conn.QueryContext(ctx, dialect.Rebind("SELECT CAST($1 AS TEXT) AS probe"), ProbeValue)
	if err != nil {
		return err
	}

	got, err := dbx.ScanRows(rows)
	if err != nil {
		return err
	}
	if len(got) != 1 {
		return fmt.Errorf("liveness probe returned %d rows", len(got))
	}

	v, err := got[0].String("probe")
	if err != nil {
		return err
	}
	if v != ProbeValue {
		return fmt.Errorf("liveness probe returned %q", v)
	}
	return nil
}

func (g *Gateway) initialized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

// Dialect reports the SQL dialect of the connected store.
func (g *Gateway) Dialect() Dialect {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dialect
}

// Ping checks the shared connection.
func (g *Gateway) Ping(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return ErrNotInitialized
	}
	return g.conn.PingContext(ctx)
}

func (g *Gateway) keepalive(ctx context.Context, every time.Duration, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := g.Ping(ctx)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil:
			g.logger.Warn(ctx, "connection check failed", "error", err)
			healthy = false
		case !healthy:
			g.logger.Info(ctx, "connection check recovered")
			healthy = true
		}
	}
}

// Close stops the keep-alive worker and releases the connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	stop, done := g.stopKeepalive, g.keepaliveDone
	g.stopKeepalive, g.keepaliveDone = nil, nil
	g.mu.Unlock()

	// The worker pings under g.mu, so it is stopped with the lock released.
	if stop != nil {
		stop()
		<-done
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil
	}

	err := errors.Join(g.conn.Close(), g.db.Close())
	g.conn = nil
	g.db = nil
	return err
}

// Prepare compiles def on the shared connection. It is the Compiler used by
// the statement registry.
func (g *Gateway) Prepare(ctx context.Context, def statements.Definition) (*sql.Stmt, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", statements.ErrCompilation, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil, ErrNotInitialized
	}

	stmt, err := g.conn.PrepareContext(ctx, g.dialect.Rebind(def.Query))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", statements.ErrCompilation, err)
	}
	return stmt, nil
}
