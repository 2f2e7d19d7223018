package identity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Keys holds the signing method and key material. A verify-only key set has
// a nil sign key.
type Keys struct {
	Method jwt.SigningMethod
	KeyID  string
	sign   any
	verify any
}

func (k Keys) CanSign() bool { return k.sign != nil }

// HMACKeys uses a shared secret for both signing and verification (HS256).
func HMACKeys(secret []byte) (Keys, error) {
	if len(secret) < 32 {
		return Keys{}, errors.New("hmac secret must be at least 32 bytes")
	}
	return Keys{Method: jwt.SigningMethodHS256, sign: secret, verify: secret}, nil
}

// LoadJWK reads an EC JWK from path. A private key signs and verifies; a
// public key only verifies.
func LoadJWK(path string) (Keys, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Keys{}, fmt.Errorf("read jwk: %w", err)
	}
	key, err := jwk.ParseKey(b)
	if err != nil {
		return Keys{}, fmt.Errorf("parse jwk: %w", err)
	}
	kid, _ := key.KeyID()

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return Keys{}, fmt.Errorf("export jwk: %w", err)
	}

	switch k := raw.(type) {
	case *ecdsa.PrivateKey:
		m, err := ecMethod(k.Curve)
		if err != nil {
			return Keys{}, err
		}
		return Keys{Method: m, KeyID: kid, sign: k, verify: &k.PublicKey}, nil
	case *ecdsa.PublicKey:
		m, err := ecMethod(k.Curve)
		if err != nil {
			return Keys{}, err
		}
		return Keys{Method: m, KeyID: kid, verify: k}, nil
	default:
		return Keys{}, fmt.Errorf("unsupported jwk key type %T", raw)
	}
}

func ecMethod(c elliptic.Curve) (jwt.SigningMethod, error) {
	switch c {
	case elliptic.P256():
		return jwt.SigningMethodES256, nil
	case elliptic.P384():
		return jwt.SigningMethodES384, nil
	}
	return nil, fmt.Errorf("unsupported curve %s", c.Params().Name)
}

// GenerateSigningKey writes an ES384 key pair to dir as key-<thumb>.jwk and
// key-<thumb>.pub.jwk, where thumb is the RFC 7638 thumbprint.
func GenerateSigningKey(dir string) (privPath string, thumb string, err error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}

	privKey, err := jwk.Import(privateKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to import private key: %w", err)
	}
	if err := privKey.Set(jwk.AlgorithmKey, jwa.ES384()); err != nil {
		return "", "", fmt.Errorf("failed to set algorithm: %w", err)
	}

	pubKey, err := jwk.PublicKeyOf(privKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to get public key: %w", err)
	}

	tp, err := pubKey.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", "", fmt.Errorf("failed to compute thumbprint: %w", err)
	}
	thumb = base64.RawURLEncoding.EncodeToString(tp)

	if err := privKey.Set(jwk.KeyIDKey, thumb); err != nil {
		return "", "", fmt.Errorf("failed to set private key ID: %w", err)
	}
	if err := pubKey.Set(jwk.KeyIDKey, thumb); err != nil {
		return "", "", fmt.Errorf("failed to set public key ID: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("create key dir: %w", err)
	}
	privPath = filepath.Join(dir, fmt.Sprintf("key-%s.jwk", thumb))
	pubPath := filepath.Join(dir, fmt.Sprintf("key-%s.pub.jwk", thumb))

	privJSON, err := json.MarshalIndent(privKey, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := writeFile(privPath, privJSON, 0o600); err != nil {
		return "", "", err
	}

	pubJSON, err := json.MarshalIndent(pubKey, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	if err := writeFile(pubPath, pubJSON, 0o644); err != nil {
		return "", "", err
	}
	return privPath, thumb, nil
}

// writeFile is swapped in tests.
var writeFile = func(path string, b []byte, perm os.FileMode) error {
	return os.WriteFile(path, b, perm)
}
