package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"gastos/internal/core"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver (no CGO)
)

// Driver selects the relational engine behind the store.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// dialect hides the few places where SQLite and PostgreSQL disagree.
type dialect struct {
	driver     Driver
	driverName string
	// lockSuffix turns a SELECT into a locking read. SQLite has no row locks;
	// its write transactions are opened IMMEDIATE so they are serialized anyway.
	lockSuffix string
	numbered   bool
	// readTx opens the snapshot used by InReadTx. Nil keeps the driver default,
	// which for SQLite is the same IMMEDIATE transaction writers use.
	readTx *sql.TxOptions
}

func dialectFor(driver Driver) (dialect, error) {
	switch driver {
	case DriverSQLite, "":
		return dialect{driver: DriverSQLite, driverName: "sqlite"}, nil
	case DriverPostgres:
		return dialect{
			driver:     DriverPostgres,
			driverName: "pgx",
			lockSuffix: " FOR UPDATE",
			numbered:   true,
			readTx:     &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// dsn expands a SQLite file path into a DSN with the pragmas the store relies on.
func (d dialect) dsn(raw string) string {
	if d.driver != DriverSQLite || strings.HasPrefix(raw, "file:") {
		return raw
	}
	return "file:" + raw +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) lock(query string) string {
	return query + d.lockSuffix
}

// dateArg converts a calendar date to the driver's column representation:
// ISO text for SQLite, a time.Time for PostgreSQL DATE columns.
func (d dialect) dateArg(date core.Date) any {
	if d.driver == DriverPostgres {
		return date.Time
	}
	return date.String()
}
