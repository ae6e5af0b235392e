// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires the ballot services into an HTTP server and runs it.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/config"
	"codeberg.org/oliverandrich/ballot-ledger/internal/database"
	"codeberg.org/oliverandrich/ballot-ledger/internal/i18n"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Run is the root CLI action. It opens and migrates the database, wires the
// app and serves until SIGINT or SIGTERM.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	if err := i18n.Init(); err != nil {
		return fmt.Errorf("failed to init i18n: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, db, Options{})
	if err != nil {
		return err
	}

	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := listen(ctx, addr, tlsResult.TLSConfig)
	if err != nil {
		return err
	}

	slog.Info("server running",
		"addr", ln.Addr().String(),
		"base_url", cfg.Server.BaseURL,
		"tls", tlsResult.Mode,
	)
	return app.Serve(ctx, ln)
}

func listen(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	return ln, nil
}

// Serve runs the API on ln together with the janitor. When ctx ends it stops
// accepting connections and waits up to shutdownTimeout for in-flight
// requests, so a ballot that is being committed still gets its receipt.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Echo,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Janitor.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		slog.Error("server error", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
