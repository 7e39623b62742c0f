package secure

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// LoadKeyPair loads the server signing keypair used for SAML responses and
// OAuth access tokens. The key must be RSA.
func LoadKeyPair(certPath, keyPath string) (*x509.Certificate, *rsa.PrivateKey, error) {
	keyPair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("secure: failed to load signing keypair: %w", err)
	}

	cert := keyPair.Leaf
	if cert == nil {
		cert, err = x509.ParseCertificate(keyPair.Certificate[0])
		if err != nil {
			return nil, nil, fmt.Errorf("secure: failed to parse signing certificate: %w", err)
		}
	}

	key, ok := keyPair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("secure: signing key must be RSA, got %T", keyPair.PrivateKey)
	}

	return cert, key, nil
}
