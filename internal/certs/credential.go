package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Credential points at the client certificate and key issued during
// enrollment. The files are owned by the enrollment agent; this package only
// reads them.
type Credential struct {
	CertFile string `json:"certFile"`
	KeyFile  string `json:"keyFile"`
}

// DefaultCredential is the path convention the enrollment agent uses when
// it cannot report its own configuration.
func DefaultCredential(baseDir string) Credential {
	return Credential{
		CertFile: filepath.Join(baseDir, "certs", "client.crt"),
		KeyFile:  filepath.Join(baseDir, "keys", "client.key"),
	}
}

// Check verifies both files exist and are readable.
func (c Credential) Check() error {
	if c.CertFile == "" || c.KeyFile == "" {
		return fmt.Errorf("certificate or key path is empty")
	}
	for _, path := range []string{c.CertFile, c.KeyFile} {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("credential file not readable: %w", err)
		}
		f.Close()
	}
	return nil
}

func (c Credential) Load() (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load client certificate: %w", err)
	}
	return cert, nil
}

// Leaf parses the first certificate of the pair, used for logging the
// identity the controller will see.
func (c Credential) Leaf() (*x509.Certificate, error) {
	certBytes, err := os.ReadFile(c.CertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client certificate: %w", err)
	}

	certBlock, _ := pem.Decode(certBytes)
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode client certificate PEM")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client certificate: %w", err)
	}
	return cert, nil
}
