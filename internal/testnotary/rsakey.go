package testnotary

import (
	"crypto/rand"
	"crypto/rsa"
)

// MustRSAKey returns a small (fast to generate) RSA key pair for use in
// tests. Production keys are loaded from PEM per pkg/config; 1024 bits is
// intentionally undersized here purely to keep test generation cheap.
func MustRSAKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		panic(err)
	}
	return key
}
