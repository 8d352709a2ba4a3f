package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfig holds TLS configuration.
type TLSConfig struct {
	CertFile          string
	KeyFile           string
	CAFile            string
	RequireClientAuth bool
}

// LoadServerTLSConfig loads server TLS configuration with mutual TLS support.
func LoadServerTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate and key: %w", err)
	}

	clientAuth := tls.NoClientCert
	if cfg.RequireClientAuth {
		clientAuth = tls.RequireAndVerifyClientCert
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
		},
		ClientAuth: clientAuth,
	}

	if cfg.CAFile != "" {
		caData, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caData) {
			return nil, errors.New("failed to parse CA certificate")
		}

		tlsCfg.ClientCAs = caCertPool
	}

	return tlsCfg, nil
}
