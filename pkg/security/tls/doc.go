// Package tls builds the TLS configuration of outgoing fetch requests.
//
// NewClientConfig trusts the system roots plus an optional CA bundle and,
// when a client certificate is configured, presents it to servers that
// request one. The certificate is loaded through a CertificateReloader,
// which polls the files and swaps in rotated certificates without a
// restart:
//
//	tlsCfg, err := tls.NewClientConfig(ctx, cfg.Fetcher.HTTP.TLS)
//	if err != nil {
//	    return err
//	}
//	transport.TLSClientConfig = tlsCfg
//
// Certificates outside their validity window are rejected; certificates
// expiring within 30 days are logged as warnings.
package tls
