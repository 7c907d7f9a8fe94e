package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// dialect captures the differences between the supported SQL backends: placeholder syntax, row
// locking, transaction setup and the driver errors that signal lock contention.
type dialect struct {
	name      string
	forUpdate string
	schema    string
	txOptions *sql.TxOptions
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, "sqlite", "":
		// Writers are serialised by BEGIN IMMEDIATE (see _txlock in the DSN), so no row lock clause.
		return dialect{name: DriverSQLite, schema: sqliteSchema}, nil
	case DriverPostgres, "postgresql":
		return dialect{
			name:      DriverPostgres,
			forUpdate: " FOR UPDATE",
			schema:    postgresSchema,
			txOptions: &sql.TxOptions{Isolation: sql.LevelSerializable},
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d dialect) dsn(path, url string, lockTimeout time.Duration) string {
	if d.name == DriverPostgres {
		return url
	}
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=%d&_txlock=immediate&_foreign_keys=1",
		path, lockTimeout.Milliseconds())
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres || !strings.Contains(query, "?") {
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

// locking appends the row lock clause for the backend.
func (d dialect) locking(query string) string {
	return d.rebind(query + d.forUpdate)
}

// prepareTx bounds how long statements in tx wait for row locks.
func (d dialect) prepareTx(ctx context.Context, tx *sql.Tx, lockTimeout time.Duration) error {
	if d.name != DriverPostgres || lockTimeout <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds()))
	return err
}

// isContention reports whether err is the driver telling us a lock could not be acquired in time.
func isContention(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01":
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
