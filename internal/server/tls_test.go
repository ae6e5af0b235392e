// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"bytes"
	"crypto/x509"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTLSMode(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		mode     string
		certFile string
		keyFile  string
		expected TLSMode
	}{
		{"explicit off", "ballot.example.com", "off", "", "", TLSModeOff},
		{"explicit selfsigned", "localhost", "selfsigned", "", "", TLSModeSelfSigned},
		{"explicit manual", "localhost", "MANUAL", "", "", TLSModeManual},
		{"auto on localhost", "localhost", "auto", "", "", TLSModeOff},
		{"empty on loopback", "127.0.0.1", "", "", "", TLSModeOff},
		{"auto with cert files", "ballot.example.com", "auto", "cert.pem", "key.pem", TLSModeManual},
		{"auto with only a cert", "ballot.example.com", "auto", "cert.pem", "", TLSModeSelfSigned},
		{"auto on remote host", "ballot.example.com", "auto", "", "", TLSModeSelfSigned},
		{"unknown falls back to auto", "localhost", "acme", "", "", TLSModeOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Server: config.ServerConfig{Host: tt.host},
				TLS:    config.TLSConfig{Mode: tt.mode, CertFile: tt.certFile, KeyFile: tt.keyFile},
			}
			assert.Equal(t, tt.expected, resolveTLSMode(cfg))
		})
	}
}

func TestSetupTLS_Off(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "localhost"},
		TLS:    config.TLSConfig{Mode: "off"},
	}

	result, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, TLSModeOff, result.Mode)
	assert.Nil(t, result.TLSConfig)
}

func TestSetupTLS_SelfSigned(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "ballot.example.com"},
		TLS:    config.TLSConfig{Mode: "selfsigned", CertDir: dir},
	}

	result, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, TLSModeSelfSigned, result.Mode)
	require.NotNil(t, result.TLSConfig)
	require.Len(t, result.TLSConfig.Certificates, 1)

	leaf, err := x509.ParseCertificate(result.TLSConfig.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "ballot.example.com", leaf.Subject.CommonName)
	assert.Contains(t, leaf.DNSNames, "ballot.example.com")
	assert.Contains(t, leaf.DNSNames, "localhost")

	certFile := filepath.Join(dir, "selfsigned", "cert.pem")
	assert.FileExists(t, certFile)
	assert.FileExists(t, filepath.Join(dir, "selfsigned", "key.pem"))

	// A second start reuses the stored certificate.
	again, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, result.TLSConfig.Certificates[0].Certificate[0], again.TLSConfig.Certificates[0].Certificate[0])
}

func TestSetupTLS_ManualUsesGeneratedPair(t *testing.T) {
	dir := t.TempDir()
	_, err := SetupTLS(&config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1"},
		TLS:    config.TLSConfig{Mode: "selfsigned", CertDir: dir},
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "ballot.example.com"},
		TLS: config.TLSConfig{
			Mode:     "manual",
			CertFile: filepath.Join(dir, "selfsigned", "cert.pem"),
			KeyFile:  filepath.Join(dir, "selfsigned", "key.pem"),
		},
	}
	result, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, TLSModeManual, result.Mode)
	assert.NotNil(t, result.TLSConfig)
}

func TestSetupTLS_ManualErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := SetupTLS(&config.Config{TLS: config.TLSConfig{Mode: "manual"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires both cert-file and key-file")

	_, err = SetupTLS(&config.Config{TLS: config.TLSConfig{
		Mode:     "manual",
		CertFile: filepath.Join(dir, "missing.pem"),
		KeyFile:  filepath.Join(dir, "missing.key"),
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certificate file not found")

	bogus := filepath.Join(dir, "bogus.pem")
	require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0o600))
	_, err = SetupTLS(&config.Config{TLS: config.TLSConfig{Mode: "manual", CertFile: bogus, KeyFile: bogus}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load certificate")
}

func TestFormatFingerprint(t *testing.T) {
	assert.Equal(t, "00:AB:FF", formatFingerprint([]byte{0x00, 0xab, 0xff}))
	assert.Empty(t, formatFingerprint(nil))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNewLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "warn", "json"))

	logger.Info("hidden")
	logger.Warn("ballot rejected", "reason", "already_voted")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"ballot rejected"`)
	assert.Contains(t, out, `"reason":"already_voted"`)

	buf.Reset()
	text := slog.New(newLogHandler(&buf, "debug", "text"))
	text.Debug("tinted")
	assert.True(t, strings.Contains(buf.String(), "tinted"))
}

func TestCertPairRenewsExpiringCertificate(t *testing.T) {
	dir := t.TempDir()
	pair := certPair{
		cert: filepath.Join(dir, "certs", "cert.pem"),
		key:  filepath.Join(dir, "certs", "key.pem"),
	}

	old, err := pair.loadOrCreate("ballot.example.com", time.Now().Add(-350*24*time.Hour))
	require.NoError(t, err)

	fresh, err := pair.loadOrCreate("ballot.example.com", time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, old.Certificate[0], fresh.Certificate[0])

	again, err := pair.loadOrCreate("ballot.example.com", time.Now())
	require.NoError(t, err)
	assert.Equal(t, fresh.Certificate[0], again.Certificate[0])
}
