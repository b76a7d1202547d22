package tls

import (
	"context"
	"crypto/tls"
	"fmt"

	"mercator-hq/policysync/pkg/config"
)

// NewClientConfig builds the TLS configuration of the fetch client. The
// certificate reloader, if any, runs until ctx is done.
func NewClientConfig(ctx context.Context, cfg config.ClientTLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CAFile != "" {
		pool, err := LoadCertPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}

	switch {
	case cfg.CertFile == "" && cfg.KeyFile == "":
	case cfg.CertFile == "" || cfg.KeyFile == "":
		return nil, fmt.Errorf("cert_file and key_file must be set together")
	default:
		reloader := NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval)
		if err := reloader.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.GetClientCertificate = reloader.GetClientCertificate
	}

	return tlsCfg, nil
}

func parseTLSVersion(v string) uint16 {
	if v == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
