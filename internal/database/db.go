// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinovest/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Open connects to the database and runs all pending migrations.
func Open(dsn string) (*sqlx.DB, error) {
	conn, err := Connect(dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(context.Background(), conn.DB); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

// DefaultDSN is used when no database is configured.
const DefaultDSN = "./data/ballot.db"

// dsnDefaults are appended to a DSN that does not already mention them.
var dsnDefaults = []struct{ marker, param string }{
	{"_txlock=", "_txlock=immediate"},
	{"_pragma=busy_timeout", "_pragma=busy_timeout(5000)"},
	{"_pragma=foreign_keys", "_pragma=foreign_keys(1)"},
	{"_pragma=synchronous", "_pragma=synchronous(2)"},
}

// sessionPragmas run once per Connect. Per-connection settings such as
// synchronous=FULL also travel in the DSN so every pooled connection gets
// them; FULL fsyncs the WAL on each commit.
var sessionPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = FULL",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA journal_size_limit = 27103364",
	"PRAGMA cache_size = 2000",
}

// Connect opens the ledger database without touching the schema.
func Connect(dsn string) (*sqlx.DB, error) {
	dsn = cmp.Or(dsn, DefaultDSN)
	inMemory := isMemory(dsn)

	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sqlx.Open("sqlite", withDefaults(dsn))
	if err != nil {
		return nil, err
	}

	// Each :memory: connection is a separate database.
	if inMemory {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
	}
	conn.SetConnMaxLifetime(time.Hour)

	for _, pragma := range sessionPragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return conn, nil
}

func isMemory(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func withDefaults(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, d := range dsnDefaults {
		if strings.Contains(dsn, d.marker) {
			continue
		}
		b.WriteString(sep)
		b.WriteString(d.param)
		sep = "&"
	}
	return b.String()
}

// Ping checks that the database is reachable.
func Ping(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint
// failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// IsTransient reports whether err is a busy/locked/IO condition that may
// succeed when retried.
func IsTransient(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR:
		return true
	}
	return false
}
