package authn

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"

	"harmonia.org/internal/fault"
)

// ParsePrivateKey decodes a PKCS#8 PEM-encoded Ed25519 private key.
func ParsePrivateKey(pemData string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fault.Bad("signing key is not valid PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fault.Badf("parse signing key: %v", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fault.Bad("signing key is not Ed25519")
	}
	return key, nil
}

// ParsePublicKey decodes a PKIX PEM-encoded Ed25519 public key.
func ParsePublicKey(pemData string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fault.Bad("verification key is not valid PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fault.Badf("parse verification key: %v", err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fault.Bad("verification key is not Ed25519")
	}
	return key, nil
}
