// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"codeberg.org/oliverandrich/ballot-ledger/internal/config"
	"codeberg.org/oliverandrich/ballot-ledger/internal/handlers"
	"codeberg.org/oliverandrich/ballot-ledger/internal/metrics"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/candidates"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/challenge"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/delivery"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/enrollment"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/janitor"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/ledger"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/session"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/tally"
	"codeberg.org/oliverandrich/ballot-ledger/internal/sse"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vinovest/sqlx"
)

// App is the fully wired API.
type App struct {
	Echo     *echo.Echo
	Janitor  *janitor.Janitor
	Services handlers.Services
}

// Options carries dependencies that differ between production and tests.
type Options struct {
	// Registry receives all metrics. A fresh registry with Go and process
	// collectors is used when nil.
	Registry *prometheus.Registry
	// Outbox receives codes when SMTP is not configured. Defaults to stdout.
	Outbox io.Writer
}

// NewApp wires services, handlers and middleware on top of an open,
// migrated database. It also bootstraps the administrator and the
// candidate feed.
func NewApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, opts Options) (*App, error) {
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if opts.Outbox == nil {
		opts.Outbox = os.Stdout
	}

	pepper, err := loadKey("password-pepper", cfg.Secrets.Pepper)
	if err != nil {
		return nil, err
	}
	commitmentKey, err := loadKey("commitment-key", cfg.Secrets.CommitmentKey)
	if err != nil {
		return nil, err
	}
	ledgerKey, err := loadKey("ledger-key", cfg.Secrets.LedgerKey)
	if err != nil {
		return nil, err
	}

	repo := repository.New(db)
	m := metrics.New(opts.Registry)

	hasher, err := credential.NewHasher(pepper, credential.HashParams{
		Time:    cfg.Argon2.Time,
		Memory:  cfg.Argon2.Memory,
		Threads: cfg.Argon2.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid argon2 settings: %w", err)
	}
	credentials := credential.NewService(repo, hasher, credential.WithMetrics(m))

	challenges := challenge.NewService(repo, pepper, challenge.Config{
		TTL:            cfg.Challenge.TTL,
		ResendCooldown: cfg.Challenge.ResendCooldown,
		MaxAttempts:    cfg.Challenge.MaxAttempts,
		AttemptWindow:  cfg.Challenge.AttemptWindow,
		Lockout:        cfg.Challenge.Lockout,
	}, challenge.WithMetrics(m))

	deliverer, err := newDeliverer(cfg, opts.Outbox)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewService(repo, credentials, &cfg.Session, session.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	if err := sessions.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	registry := candidates.NewService(repo)
	if err := seedCandidates(ctx, registry, &cfg.Candidates); err != nil {
		return nil, err
	}

	sealer, err := ledger.NewAEADSealer(ledgerKey)
	if err != nil {
		return nil, err
	}
	hub := sse.NewHub()
	ballots, err := ledger.NewService(repo, registry, sealer, commitmentKey,
		ledger.Config{Retries: cfg.Ledger.Retries, Backoff: cfg.Ledger.RetryBackoff},
		ledger.WithMetrics(m),
		ledger.WithAppendHook(ballotEvents(hub)),
	)
	if err != nil {
		return nil, err
	}

	svc := handlers.Services{
		Enrollment:  enrollment.NewService(credentials, challenges, deliverer),
		Credentials: credentials,
		Sessions:    sessions,
		Candidates:  registry,
		Ledger:      ballots,
		Tally:       tally.NewService(repo, credentials, ballots),
		Events:      hub,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg)
	setupRoutes(e, handlers.New(repo, svc), sessions, opts.Registry)

	return &App{
		Echo:     e,
		Janitor:  janitor.New(challenges, sessions, cfg.Challenge.JanitorEvery, m),
		Services: svc,
	}, nil
}

// loadKey decodes a configured secret. Missing secrets are generated, which
// only suits development: data sealed with them is unreadable after restart.
func loadKey(name, value string) ([]byte, error) {
	key, generated, err := config.DecodeKey(name, value)
	if err != nil {
		return nil, err
	}
	if generated {
		slog.Warn("secret not configured, using a random key for this run", "secret", name)
	}
	return key, nil
}

func newDeliverer(cfg *config.Config, outbox io.Writer) (delivery.Deliverer, error) {
	if cfg.SMTP.Enabled() {
		d, err := delivery.NewMailDeliverer(&cfg.SMTP, cfg.Challenge.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP settings: %w", err)
		}
		slog.Info("OTP delivery via SMTP", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
		return d, nil
	}
	slog.Warn("SMTP not configured, verification codes go to the console outbox")
	return delivery.NewConsoleDeliverer(outbox), nil
}

// seedCandidates imports the candidate feed file, or the demo candidates
// when no file is set and seeding is enabled.
func seedCandidates(ctx context.Context, registry *candidates.Service, cfg *config.CandidatesConfig) error {
	var feed []models.Candidate
	switch {
	case cfg.File != "":
		cs, err := candidates.LoadFile(cfg.File)
		if err != nil {
			return err
		}
		feed = cs
	case cfg.SeedDemo:
		feed = candidates.DemoCandidates()
	default:
		return nil
	}

	if err := registry.Import(ctx, feed); err != nil {
		return fmt.Errorf("failed to import candidates: %w", err)
	}
	slog.Info("candidates_imported", "count", len(feed), "source", cmp.Or(cfg.File, "demo"))
	return nil
}

// ballotEvents tells admin dashboards that a ballot was committed. The event
// carries no sequence number or time, so it cannot be matched to an audit
// entry.
func ballotEvents(hub *sse.Hub) func() {
	cast := sse.Event{Name: "ballot", Data: "cast"}.String()
	return func() {
		hub.Broadcast(cast)
	}
}
