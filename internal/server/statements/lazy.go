package statements

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrCompilation marks a statement that failed to compile.
var ErrCompilation = errors.New("statement compilation failed")

// CompilationError is the panic value raised by Lazy.Get when the
// statement cannot be compiled. It means the schema and the query
// disagree; the process is not expected to continue.
type CompilationError struct {
	Name string
	Err  error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrCompilation, e.Name, e.Err)
}

func (e *CompilationError) Unwrap() []error {
	return []error{ErrCompilation, e.Err}
}

// Compiler turns a definition into a prepared statement.
type Compiler interface {
	Prepare(ctx context.Context, def Definition) (*sql.Stmt, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, def Definition) (*sql.Stmt, error)

func (f CompilerFunc) Prepare(ctx context.Context, def Definition) (*sql.Stmt, error) {
	return f(ctx, def)
}

// Lazy is a query plan compiled on first use and kept for the life of the
// process.
type Lazy struct {
	def Definition
	get func() *Plan
}

// NewLazy wraps def. Nothing is compiled until the first Get.
func NewLazy(def Definition, c Compiler) *Lazy {
	l := &Lazy{def: def}
	l.get = sync.OnceValue(func() *Plan {
		return compile(def, c)
	})
	return l
}

// Definition returns the definition the plan is compiled from.
func (l *Lazy) Definition() Definition {
	return l.def
}

// Get returns the compiled plan, compiling it on the first call. Callers
// arriving while compilation is in flight block until it finishes.
//
// Get panics with *CompilationError if compilation fails, and keeps
// panicking with the same value on every later call.
func (l *Lazy) Get() *Plan {
	return l.get()
}

type compileResult struct {
	stmt *sql.Stmt
	err  error
}

func compile(def Definition, c Compiler) *Plan {
	if err := def.Validate(); err != nil {
		panic(&CompilationError{Name: def.Name, Err: err})
	}

	done := make(chan compileResult, 1)

	// The worker runs under its own context, detached from the caller's.
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stmt, err := c.Prepare(ctx, def)
		done <- compileResult{stmt: stmt, err: err}
	}()

	res := <-done
	if res.err != nil {
		panic(&CompilationError{Name: def.Name, Err: res.err})
	}

	return &Plan{Definition: def, Stmt: res.stmt}
}
