// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"codeberg.org/oliverandrich/ballot-ledger/internal/config"
	"codeberg.org/oliverandrich/ballot-ledger/internal/database"
	"codeberg.org/oliverandrich/ballot-ledger/internal/server"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "ballot-ledger",
		Usage:   "Voter verification and tamper-evident ballot ledger",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   config.Flags(),
		Action:  server.Run,
		Commands: []*cli.Command{
			migrateCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Action: withDatabase(database.RunMigrations),
			},
			{
				Name:   "down",
				Usage:  "Roll back the last migration",
				Action: withDatabase(database.MigrateDown),
			},
			{
				Name:   "reset",
				Usage:  "Roll back all migrations",
				Action: withDatabase(database.MigrateReset),
			},
			{
				Name:   "status",
				Usage:  "Show the applied state of every migration",
				Action: withDatabase(func(ctx context.Context, db *sql.DB) error {
					return database.MigrationStatus(ctx, db, os.Stdout)
				}),
			},
		},
	}
}

func withDatabase(fn func(context.Context, *sql.DB) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg := config.NewFromCLI(cmd)

		db, err := database.Connect(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			_ = db.Close()
		}()

		return fn(ctx, db.DB)
	}
}
