package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/logging"
)

// NewTLSConfig loads a PEM certificate pair for serving the bridge over
// HTTPS. An expired certificate is logged but still served so a LAN bridge
// keeps working for clients that pin it.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	fields := []zap.Field{zap.String("cert", certPath)}
	if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
		fields = append(fields, zap.String("subject", leaf.Subject.CommonName), zap.Time("not_after", leaf.NotAfter))
		if time.Now().After(leaf.NotAfter) {
			logging.Warn("TLS certificate has expired", fields...)
		}
	}
	logging.Info("TLS enabled", fields...)

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// GetTLSInfo returns loggable details of a TLS configuration.
func GetTLSInfo(config *tls.Config) map[string]any {
	if config == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"enabled":     true,
		"min_version": tls.VersionName(config.MinVersion),
		"num_certs":   len(config.Certificates),
	}
}
