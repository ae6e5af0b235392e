// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/config"
)

// TLSMode is the resolved TLS mode.
type TLSMode string

const (
	TLSModeOff        TLSMode = "off"
	TLSModeSelfSigned TLSMode = "selfsigned"
	TLSModeManual     TLSMode = "manual"
)

const (
	selfSignedValidity = 365 * 24 * time.Hour
	renewBefore        = 30 * 24 * time.Hour
)

// TLSResult is the outcome of SetupTLS. TLSConfig is nil when TLS is off.
type TLSResult struct {
	TLSConfig *tls.Config
	Mode      TLSMode
}

// SetupTLS resolves the TLS mode and loads or creates the certificate.
func SetupTLS(cfg *config.Config) (*TLSResult, error) {
	mode := resolveTLSMode(cfg)
	slog.Info("tls mode resolved", "mode", mode)

	var (
		cert *tls.Certificate
		err  error
	)
	switch mode {
	case TLSModeOff:
		return &TLSResult{Mode: TLSModeOff}, nil
	case TLSModeSelfSigned:
		pair := certPair{
			cert: filepath.Join(cfg.TLS.CertDir, "selfsigned", "cert.pem"),
			key:  filepath.Join(cfg.TLS.CertDir, "selfsigned", "key.pem"),
		}
		cert, err = pair.loadOrCreate(cfg.Server.Host, time.Now())
		if err == nil {
			slog.Warn("self-signed certificate in use, clients must trust its fingerprint")
		}
	case TLSModeManual:
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return nil, errors.New("manual TLS mode requires both cert-file and key-file")
		}
		cert, err = certPair{cert: cfg.TLS.CertFile, key: cfg.TLS.KeyFile}.load()
	default:
		return nil, fmt.Errorf("unknown TLS mode: %s", mode)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("certificate loaded", "sha256", certFingerprint(cert))
	return &TLSResult{
		Mode: mode,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{*cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

// resolveTLSMode maps the configured mode to a concrete one. Auto serves
// plain HTTP on localhost and prefers configured cert files over a generated
// certificate elsewhere.
func resolveTLSMode(cfg *config.Config) TLSMode {
	switch mode := strings.ToLower(cfg.TLS.Mode); mode {
	case "off":
		return TLSModeOff
	case "selfsigned":
		return TLSModeSelfSigned
	case "manual":
		return TLSModeManual
	case "auto", "":
	default:
		slog.Warn("unknown TLS mode, using auto", "mode", mode)
	}

	switch {
	case config.IsLocalhost(cfg.Server.Host):
		return TLSModeOff
	case cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "":
		return TLSModeManual
	default:
		return TLSModeSelfSigned
	}
}

// certPair is a PEM certificate and key on disk.
type certPair struct {
	cert string
	key  string
}

func (p certPair) load() (*tls.Certificate, error) {
	for _, path := range []string{p.cert, p.key} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("certificate file not found: %w", err)
		}
	}
	cert, err := tls.LoadX509KeyPair(p.cert, p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	return &cert, nil
}

// loadOrCreate reuses a stored certificate unless it is unreadable or
// expires within renewBefore, in which case a new one is written.
func (p certPair) loadOrCreate(host string, now time.Time) (*tls.Certificate, error) {
	cert, err := p.load()
	switch {
	case err == nil && !expiresBefore(cert, now.Add(renewBefore)):
		return cert, nil
	case err == nil:
		slog.Info("self-signed certificate expiring soon, renewing")
	case !errors.Is(err, fs.ErrNotExist):
		slog.Warn("stored certificate unusable, renewing", "error", err)
	}

	certPEM, keyPEM, err := selfSignedPEM(host, now)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p.cert), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := os.WriteFile(p.cert, certPEM, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(p.key, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key: %w", err)
	}

	generated, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load generated certificate: %w", err)
	}
	slog.Info("self-signed certificate generated", "host", host, "not_after", now.Add(selfSignedValidity))
	return &generated, nil
}

// selfSignedPEM creates an ECDSA P-256 certificate for host that is also
// valid for the loopback names.
func selfSignedPEM(host string, now time.Time) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Ballot Ledger (self-signed)"},
			CommonName:   host,
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	if ip := net.ParseIP(host); ip != nil {
		tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
	} else if host != "" && host != "localhost" {
		tmpl.DNSNames = append([]string{host}, tmpl.DNSNames...)
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// expiresBefore reports whether the leaf of cert is invalid at t. An
// unparsable leaf counts as expired.
func expiresBefore(cert *tls.Certificate, t time.Time) bool {
	if len(cert.Certificate) == 0 {
		return true
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return true
	}
	return leaf.NotAfter.Before(t)
}

func certFingerprint(cert *tls.Certificate) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	sum := sha256.Sum256(cert.Certificate[0])
	return formatFingerprint(sum[:])
}

// formatFingerprint renders a digest as colon-separated upper-case hex.
func formatFingerprint(sum []byte) string {
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
