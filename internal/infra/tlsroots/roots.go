package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrEmptyBundle means a CA bundle held no CERTIFICATE blocks.
var ErrEmptyBundle = errors.New("tlsroots: CA bundle contains no certificates")

// AppendPEM adds every CERTIFICATE block in bundle to pool and returns how
// many were added. Keys and other block types are ignored.
func AppendPEM(pool *x509.CertPool, bundle []byte) (int, error) {
	n := 0
	for rest := bundle; ; {
		var block *pem.Block
		if block, rest = pem.Decode(rest); block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return n, fmt.Errorf("tlsroots: certificate %d: %w", n+1, err)
		}
		pool.AddCert(cert)
		n++
	}
	if n == 0 {
		return 0, ErrEmptyBundle
	}
	return n, nil
}

// TrustFile returns the host's root pool extended with the CA bundle at
// caFile. Hosts without a readable system pool start from an empty one.
func TrustFile(caFile string) (*x509.CertPool, error) {
	bundle, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if _, err := AppendPEM(pool, bundle); err != nil {
		return nil, fmt.Errorf("%w (%s)", err, caFile)
	}
	return pool, nil
}

// ClientTLS builds a TLS 1.2+ client config. An empty caFile keeps the
// system roots.
func ClientTLS(caFile, serverName string) (*tls.Config, error) {
	cfg := &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}

	pool, err := TrustFile(caFile)
	if err != nil {
		return nil, err
	}
	cfg.RootCAs = pool
	return cfg, nil
}
