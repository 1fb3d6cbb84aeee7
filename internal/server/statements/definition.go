// Package statements holds the table of prepared query plans used by the
// entity repositories and compiles each of them at most once per process.
//
// Compilation is asynchronous work against the database, but plans are
// resolved from call sites that expect a ready handle. Lazy bridges the
// two: the first caller hands compilation to a dedicated worker goroutine
// and every caller, concurrent or later, observes the same result.
package statements

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ParamType is the declared type of a statement parameter.
type ParamType string

const (
	Varchar     ParamType = "VARCHAR"
	Text        ParamType = "TEXT"
	Bytea       ParamType = "BYTEA"
	Int8        ParamType = "INT8"
	Bool        ParamType = "BOOL"
	Timestamptz ParamType = "TIMESTAMPTZ"
)

// Accepts reports whether v may be bound to a parameter of type p.
// nil is accepted for every type and binds NULL.
func (p ParamType) Accepts(v any) bool {
	if v == nil {
		return true
	}
	switch p {
	case Varchar, Text:
		_, ok := v.(string)
		return ok
	case Bytea:
		_, ok := v.([]byte)
		return ok
	case Int8:
		switch v.(type) {
		case int, int32, int64:
			return true
		}
	case Bool:
		_, ok := v.(bool)
		return ok
	case Timestamptz:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

// Definition is the source of a query plan: a name unique within the
// registry, the query text with $n placeholders and the parameter
// signature. The signature is enforced by Plan.Bind; database/sql has no
// typed prepare, so it never reaches the server.
type Definition struct {
	Name   string
	Query  string
	Params []ParamType
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Placeholders returns the highest $n placeholder referenced by the query.
func (d Definition) Placeholders() int {
	highest := 0
	for _, m := range placeholderRe.FindAllStringSubmatch(d.Query, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// Validate checks that the declared signature covers the query's placeholders.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("statement has no name")
	}
	if n := d.Placeholders(); n != len(d.Params) {
		return fmt.Errorf("statement %s: query references %d parameters, signature declares %d", d.Name, n, len(d.Params))
	}
	return nil
}

// Plan is a compiled statement together with the definition it came from.
type Plan struct {
	Definition
	Stmt *sql.Stmt
}

// Bind checks args against the plan's signature.
func (p *Plan) Bind(args []any) error {
	if len(args) != len(p.Params) {
		return fmt.Errorf("statement %s: got %d arguments, want %d", p.Name, len(args), len(p.Params))
	}
	for i, a := range args {
		if !p.Params[i].Accepts(a) {
			return fmt.Errorf("statement %s: argument $%d: %T is not %s", p.Name, i+1, a, p.Params[i])
		}
	}
	return nil
}
