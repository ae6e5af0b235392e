// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var (
	configFile   = "config.toml"
	configSource = altsrc.NewStringPtrSourcer(&configFile)
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	TLS        TLSConfig
	Session    SessionConfig
	Secrets    SecretsConfig
	Argon2     Argon2Config
	Challenge  ChallengeConfig
	Ledger     LedgerConfig
	Admin      AdminConfig
	Candidates CandidatesConfig
	SMTP       SMTPConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type TLSConfig struct {
	Mode     string // auto, selfsigned, manual, off
	CertDir  string // Directory for auto-generated certificates
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	HashKey     string        // 32-byte hex string for HMAC signing of bearer tokens
	BlockKey    string        // 32-byte hex string for AES encryption (optional)
	IdleTimeout time.Duration // sliding inactivity window
	MaxAge      time.Duration // absolute lifetime
}

// SecretsConfig holds the system secrets. Each one is a 32-byte hex string.
type SecretsConfig struct {
	Pepper        string // mixed into every password hash
	CommitmentKey string // keys the voter-commitment tag
	LedgerKey     string // seals ballot payloads
}

type Argon2Config struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

type ChallengeConfig struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	AttemptWindow  time.Duration
	Lockout        time.Duration
	JanitorEvery   time.Duration
}

type LedgerConfig struct {
	Retries      int
	RetryBackoff time.Duration
}

type AdminConfig struct {
	Username string
	Password string
}

type CandidatesConfig struct {
	File     string // TOML feed of approved candidates
	SeedDemo bool   // load the four demo candidates when no file is set
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// Enabled reports whether OTP codes should be delivered by mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Session: SessionConfig{
			HashKey:     cmd.String("session-hash-key"),
			BlockKey:    cmd.String("session-block-key"),
			IdleTimeout: cmd.Duration("session-idle-timeout"),
			MaxAge:      cmd.Duration("session-max-age"),
		},
		Secrets: SecretsConfig{
			Pepper:        cmd.String("password-pepper"),
			CommitmentKey: cmd.String("commitment-key"),
			LedgerKey:     cmd.String("ledger-key"),
		},
		Argon2: Argon2Config{
			Time:    uint32(cmd.Uint("argon2-time")),
			Memory:  uint32(cmd.Uint("argon2-memory")),
			Threads: uint8(cmd.Uint("argon2-threads")),
		},
		Challenge: ChallengeConfig{
			TTL:            cmd.Duration("challenge-ttl"),
			ResendCooldown: cmd.Duration("challenge-resend-cooldown"),
			MaxAttempts:    int(cmd.Int("challenge-max-attempts")),
			AttemptWindow:  cmd.Duration("challenge-attempt-window"),
			Lockout:        cmd.Duration("challenge-lockout"),
			JanitorEvery:   cmd.Duration("janitor-interval"),
		},
		Ledger: LedgerConfig{
			Retries:      int(cmd.Int("ledger-retries")),
			RetryBackoff: cmd.Duration("ledger-retry-backoff"),
		},
		Admin: AdminConfig{
			Username: cmd.String("admin-username"),
			Password: cmd.String("admin-password"),
		},
		Candidates: CandidatesConfig{
			File:     cmd.String("candidates-file"),
			SeedDemo: cmd.Bool("candidates-seed-demo"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// DecodeKey decodes a 32-byte hex secret. An empty value yields a random key
// and generated=true, which callers log as a development-only fallback.
func DecodeKey(name, value string) (key []byte, generated bool, err error) {
	if value == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, false, fmt.Errorf("failed to generate %s: %w", name, err)
		}
		return key, true, nil
	}

	key, err = hex.DecodeString(value)
	if err != nil {
		return nil, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	if len(key) != 32 {
		return nil, false, fmt.Errorf("invalid %s: must be 32 bytes, got %d", name, len(key))
	}
	return key, false, nil
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode, host) {
		scheme = "https"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "selfsigned", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func src(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configSource))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configFile,
			Sources:     cli.EnvVars("CONFIG"),
		},
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: src("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: src("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: src("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: src("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: src("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: src("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/ballot.db",
			Usage:   "Database DSN",
			Sources: src("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, selfsigned, manual, off)",
			Sources: src("TLS_MODE", "tls.mode"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for auto-generated certificates",
			Sources: src("TLS_CERT_DIR", "tls.cert_dir"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: src("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: src("TLS_KEY_FILE", "tls.key_file"),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Token signing key (32-byte hex, auto-generated if empty in dev)",
			Sources: src("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Token encryption key (32-byte hex, optional)",
			Sources: src("SESSION_BLOCK_KEY", "session.block_key"),
		},
		&cli.DurationFlag{
			Name:    "session-idle-timeout",
			Value:   30 * time.Minute,
			Usage:   "Inactivity window after which a session expires",
			Sources: src("SESSION_IDLE_TIMEOUT", "session.idle_timeout"),
		},
		&cli.DurationFlag{
			Name:    "session-max-age",
			Value:   12 * time.Hour,
			Usage:   "Absolute session lifetime",
			Sources: src("SESSION_MAX_AGE", "session.max_age"),
		},
		// Secrets
		&cli.StringFlag{
			Name:    "password-pepper",
			Usage:   "System-wide password pepper (32-byte hex)",
			Sources: src("PASSWORD_PEPPER", "secrets.pepper"),
		},
		&cli.StringFlag{
			Name:    "commitment-key",
			Usage:   "Key for voter-commitment tags (32-byte hex)",
			Sources: src("COMMITMENT_KEY", "secrets.commitment_key"),
		},
		&cli.StringFlag{
			Name:    "ledger-key",
			Usage:   "Key sealing ballot payloads (32-byte hex)",
			Sources: src("LEDGER_KEY", "secrets.ledger_key"),
		},
		&cli.UintFlag{
			Name:    "argon2-time",
			Value:   1,
			Usage:   "Argon2id iterations",
			Sources: src("ARGON2_TIME", "argon2.time"),
		},
		&cli.UintFlag{
			Name:    "argon2-memory",
			Value:   64 * 1024,
			Usage:   "Argon2id memory in KiB",
			Sources: src("ARGON2_MEMORY", "argon2.memory"),
		},
		&cli.UintFlag{
			Name:    "argon2-threads",
			Value:   2,
			Usage:   "Argon2id parallelism",
			Sources: src("ARGON2_THREADS", "argon2.threads"),
		},
		// Challenge flags
		&cli.DurationFlag{
			Name:    "challenge-ttl",
			Value:   5 * time.Minute,
			Usage:   "Lifetime of a one-time code",
			Sources: src("CHALLENGE_TTL", "challenge.ttl"),
		},
		&cli.DurationFlag{
			Name:    "challenge-resend-cooldown",
			Value:   60 * time.Second,
			Usage:   "Minimum delay between two codes for the same voter",
			Sources: src("CHALLENGE_RESEND_COOLDOWN", "challenge.resend_cooldown"),
		},
		&cli.IntFlag{
			Name:    "challenge-max-attempts",
			Value:   5,
			Usage:   "Failed verifications allowed per attempt window",
			Sources: src("CHALLENGE_MAX_ATTEMPTS", "challenge.max_attempts"),
		},
		&cli.DurationFlag{
			Name:    "challenge-attempt-window",
			Value:   15 * time.Minute,
			Usage:   "Window in which failed verifications are counted",
			Sources: src("CHALLENGE_ATTEMPT_WINDOW", "challenge.attempt_window"),
		},
		&cli.DurationFlag{
			Name:    "challenge-lockout",
			Value:   15 * time.Minute,
			Usage:   "Lock duration once the attempt limit is reached",
			Sources: src("CHALLENGE_LOCKOUT", "challenge.lockout"),
		},
		&cli.DurationFlag{
			Name:    "janitor-interval",
			Value:   time.Minute,
			Usage:   "Interval for purging expired challenges and sessions",
			Sources: src("JANITOR_INTERVAL", "challenge.janitor_interval"),
		},
		// Ledger flags
		&cli.IntFlag{
			Name:    "ledger-retries",
			Value:   3,
			Usage:   "Retries for transient storage failures while appending a ballot",
			Sources: src("LEDGER_RETRIES", "ledger.retries"),
		},
		&cli.DurationFlag{
			Name:    "ledger-retry-backoff",
			Value:   20 * time.Millisecond,
			Usage:   "Base backoff between ballot append retries",
			Sources: src("LEDGER_RETRY_BACKOFF", "ledger.retry_backoff"),
		},
		// Admin flags
		&cli.StringFlag{
			Name:    "admin-username",
			Value:   "admin",
			Usage:   "Bootstrap administrator username",
			Sources: src("ADMIN_USERNAME", "admin.username"),
		},
		&cli.StringFlag{
			Name:    "admin-password",
			Usage:   "Bootstrap administrator password (only used when no admin exists)",
			Sources: src("ADMIN_PASSWORD", "admin.password"),
		},
		// Candidate feed
		&cli.StringFlag{
			Name:    "candidates-file",
			Usage:   "TOML file with the approved candidate feed",
			Sources: src("CANDIDATES_FILE", "candidates.file"),
		},
		&cli.BoolFlag{
			Name:    "candidates-seed-demo",
			Usage:   "Load the demo candidates when no feed file is set",
			Sources: src("CANDIDATES_SEED_DEMO", "candidates.seed_demo"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host for OTP delivery (codes are only logged when empty)",
			Sources: src("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: src("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: src("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: src("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: src("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Ballot Ledger",
			Usage:   "Sender display name",
			Sources: src("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: src("SMTP_TLS", "smtp.tls"),
		},
	}
}
