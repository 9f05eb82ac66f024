package core

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var ErrKeyLoad = errors.New("key load failed")

// KeySet holds the two ECDSA P-256 key pairs the token codec operates with:
// one pair for signing/verifying compact JWTs and one pair acting as the JWE
// recipient. The signing public key is what browser-side code verifies the
// session_id cookie against, so it may be published.
type KeySet struct {
	SigningKey    *ecdsa.PrivateKey
	EncryptionKey *ecdsa.PrivateKey
}

// NewKeySet parses both private keys from PEM. It is a pure function of the
// secret bytes and safe to call repeatedly.
func NewKeySet(signingKeyPEM, encryptionKeyPEM string) (*KeySet, error) {
	signingKey, err := parseECPrivateKey(signingKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: signing key: %v", ErrKeyLoad, err)
	}

	encryptionKey, err := parseECPrivateKey(encryptionKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key: %v", ErrKeyLoad, err)
	}

	return &KeySet{
		SigningKey:    signingKey,
		EncryptionKey: encryptionKey,
	}, nil
}

func parseECPrivateKey(pemData string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		// PKCS#8 wrapping is also accepted
		parsed, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if pkcs8Err != nil {
			return nil, fmt.Errorf("parsing EC private key: %v", err)
		}
		ecKey, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("not an ECDSA private key")
		}
		key = ecKey
	}

	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported curve %s, want P-256", key.Curve.Params().Name)
	}

	return key, nil
}
