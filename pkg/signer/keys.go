package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadPrivateKey reads a PEM-encoded RSA private key (PKCS#1 or PKCS#8)
// from path. Loaded once at process startup per the specification's
// concurrency model: the key is read-only for the remainder of the
// process lifetime.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("signer: no PEM block found in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signer: private key in %s is not RSA", path)
	}
	return rsaKey, nil
}

// LoadPublicKeyPEM reads the PEM file at path verbatim, for serving at
// GET /index.html. It is never parsed into a structured key: the notary
// only ever signs, so it has no need to validate its own public key,
// and serving the raw bytes avoids any risk of re-encoding drift from
// what was actually published.
func LoadPublicKeyPEM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: read public key: %w", err)
	}
	return data, nil
}
