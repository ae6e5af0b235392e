// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"sub.domain.localhost", true},
		{"example.com", false},
		{"www.example.com", false},
		{"192.168.1.1", false},
		{"localhost.com", false}, // not a real localhost
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func TestShouldUseTLS(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		host     string
		expected bool
	}{
		{"off mode", "off", "example.com", false},
		{"selfsigned mode", "selfsigned", "localhost", true},
		{"manual mode", "manual", "localhost", true},
		{"auto mode with localhost", "auto", "localhost", false},
		{"auto mode with remote host", "auto", "example.com", true},
		{"empty mode with localhost", "", "localhost", false},
		{"empty mode with remote host", "", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldUseTLS(tt.mode, tt.host))
		})
	}
}

func TestBuildBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		expected string
	}{
		{
			name: "localhost HTTP default port",
			cfg: &Config{
				Server: ServerConfig{Host: "localhost", Port: 80},
				TLS:    TLSConfig{Mode: "off"},
			},
			expected: "http://localhost",
		},
		{
			name: "localhost HTTP custom port",
			cfg: &Config{
				Server: ServerConfig{Host: "localhost", Port: 8080},
				TLS:    TLSConfig{Mode: "off"},
			},
			expected: "http://localhost:8080",
		},
		{
			name: "remote host with auto TLS",
			cfg: &Config{
				Server: ServerConfig{Host: "example.com", Port: 443},
				TLS:    TLSConfig{Mode: "auto"},
			},
			expected: "https://example.com",
		},
		{
			name: "remote host with auto TLS custom port",
			cfg: &Config{
				Server: ServerConfig{Host: "example.com", Port: 8443},
				TLS:    TLSConfig{Mode: "selfsigned"},
			},
			expected: "https://example.com:8443",
		},
		{
			name: "localhost with auto TLS uses HTTP",
			cfg: &Config{
				Server: ServerConfig{Host: "localhost", Port: 8080},
				TLS:    TLSConfig{Mode: "auto"},
			},
			expected: "http://localhost:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildBaseURL(tt.cfg))
		})
	}
}

func TestFlags(t *testing.T) {
	flagNames := make(map[string]bool)
	for _, f := range Flags() {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	for _, name := range []string{
		"host", "port", "base-url", "log-level", "database-dsn", "tls-mode",
		"session-hash-key", "session-idle-timeout", "password-pepper",
		"commitment-key", "ledger-key", "challenge-ttl", "challenge-max-attempts",
		"ledger-retries", "admin-username", "candidates-file", "smtp-host",
	} {
		assert.True(t, flagNames[name], "missing flag %q", name)
	}
}

func runWith(t *testing.T, args []string, check func(cfg *Config)) {
	t.Helper()
	t.Chdir(t.TempDir())

	cmd := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			check(NewFromCLI(cmd))
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...)))
}

func TestNewFromCLI(t *testing.T) {
	runWith(t, nil, func(cfg *Config) {
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, "./data/ballot.db", cfg.Database.DSN)

		assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
		assert.Equal(t, 12*time.Hour, cfg.Session.MaxAge)

		assert.Equal(t, 5*time.Minute, cfg.Challenge.TTL)
		assert.Equal(t, time.Minute, cfg.Challenge.ResendCooldown)
		assert.Equal(t, 5, cfg.Challenge.MaxAttempts)
		assert.Equal(t, 15*time.Minute, cfg.Challenge.Lockout)

		assert.Equal(t, uint32(1), cfg.Argon2.Time)
		assert.Equal(t, uint32(64*1024), cfg.Argon2.Memory)
		assert.Equal(t, uint8(2), cfg.Argon2.Threads)

		assert.Equal(t, 3, cfg.Ledger.Retries)
		assert.Equal(t, "admin", cfg.Admin.Username)
		assert.False(t, cfg.Candidates.SeedDemo)
		assert.False(t, cfg.SMTP.Enabled())
	})
}

func TestNewFromCLIWithCustomValues(t *testing.T) {
	args := []string{
		"--host", "0.0.0.0",
		"--port", "9000",
		"--base-url", "https://ballot.example.com",
		"--log-level", "debug",
		"--database-dsn", "./data/test.db",
		"--challenge-max-attempts", "3",
		"--session-idle-timeout", "10m",
		"--candidates-seed-demo",
		"--smtp-host", "mail.example.com",
	}

	runWith(t, args, func(cfg *Config) {
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "https://ballot.example.com", cfg.Server.BaseURL)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "./data/test.db", cfg.Database.DSN)
		assert.Equal(t, 3, cfg.Challenge.MaxAttempts)
		assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
		assert.True(t, cfg.Candidates.SeedDemo)
		assert.True(t, cfg.SMTP.Enabled())
	})
}

func TestNewFromCLIReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ballot.toml")
	content := `
[server]
port = 9443

[challenge]
max_attempts = 7

[admin]
username = "returning-officer"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	runWith(t, []string{"--config", path}, func(cfg *Config) {
		assert.Equal(t, 9443, cfg.Server.Port)
		assert.Equal(t, 7, cfg.Challenge.MaxAttempts)
		assert.Equal(t, "returning-officer", cfg.Admin.Username)
	})
}

func TestDecodeKey(t *testing.T) {
	t.Run("empty generates a random key", func(t *testing.T) {
		a, generated, err := DecodeKey("ledger key", "")
		require.NoError(t, err)
		assert.True(t, generated)
		assert.Len(t, a, 32)

		b, _, err := DecodeKey("ledger key", "")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("valid hex", func(t *testing.T) {
		value := strings.Repeat("ab", 32)
		key, generated, err := DecodeKey("pepper", value)
		require.NoError(t, err)
		assert.False(t, generated)
		assert.Equal(t, byte(0xab), key[0])
		assert.Len(t, key, 32)
	})

	t.Run("invalid hex", func(t *testing.T) {
		_, _, err := DecodeKey("pepper", "not-hex")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid pepper")
	})

	t.Run("wrong length", func(t *testing.T) {
		_, _, err := DecodeKey("pepper", strings.Repeat("ab", 16))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be 32 bytes, got 16")
	})
}

func TestSMTPEnabled(t *testing.T) {
	assert.False(t, SMTPConfig{}.Enabled())
	assert.True(t, SMTPConfig{Host: "localhost"}.Enabled())
}
