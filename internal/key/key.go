// Package key provides RSA key loading and the canonical public-key text form
// used by wallet files.
package key

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// Bits is the RSA modulus size used for newly generated identities.
const Bits = 2048

// Public wraps an RSA public key with zold's canonical text serialization.
type Public struct {
	Key *rsa.PublicKey
}

// Private wraps an RSA private key.
type Private struct {
	Key *rsa.PrivateKey
}

// Generate creates a new RSA private key suitable for a wallet identity.
func Generate() (*Private, error) {
	k, err := rsa.GenerateKey(rand.Reader, Bits)
	if err != nil {
		return nil, fmt.Errorf("key: generate: %w", err)
	}
	return &Private{Key: k}, nil
}

// ParsePublic loads a PEM-encoded RSA public key from text.
func ParsePublic(text string) (*Public, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, fmt.Errorf("key: no PEM block found in public key text")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key: not an RSA public key")
	}
	return &Public{Key: rsaPub}, nil
}

// LoadPublicFile loads a PEM-encoded RSA public key from a file.
func LoadPublicFile(path string) (*Public, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("key: read public key file %s: %w", path, err)
	}
	return ParsePublic(string(data))
}

// ParsePrivate loads a PEM-encoded PKCS#1 RSA private key from text.
func ParsePrivate(text string) (*Private, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, fmt.Errorf("key: no PEM block found in private key text")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key: parse private key: %w", err)
	}
	return &Private{Key: priv}, nil
}

// LoadPrivateFile loads a PEM-encoded RSA private key from a file.
func LoadPrivateFile(path string) (*Private, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("key: read private key file %s: %w", path, err)
	}
	return ParsePrivate(string(data))
}

// Public returns the public half of the private key.
func (p *Private) Public() *Public {
	return &Public{Key: &p.Key.PublicKey}
}

// Text renders the public key in zold's canonical single-block,
// newline-terminated PEM text form.
func (p *Public) Text() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(p.Key)
	if err != nil {
		return "", fmt.Errorf("key: marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	text := string(pem.EncodeToMemory(block))
	return strings.TrimRight(text, "\n") + "\n", nil
}

// PrivateText renders the private key in PKCS#1 PEM text form.
func (p *Private) PrivateText() string {
	der := x509.MarshalPKCS1PrivateKey(p.Key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

// Equal reports whether two public keys represent the same RSA modulus/exponent.
func (p *Public) Equal(other *Public) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Key.Equal(other.Key)
}
