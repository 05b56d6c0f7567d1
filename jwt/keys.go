package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names a supported signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 (asymmetric).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 (symmetric).
	MethodHS256 SigningMethod = "hs256"
)

const minHMACKeyLen = 32

// KeyConfig holds the signing material for one token class.
//
// For HS256 only PrivateKey is used (the shared secret). For Ed25519,
// PrivateKey is needed to sign and PublicKey (or VerifyKeys) to verify; keys
// may be raw bytes or PEM. VerifyKeys enables key rotation by kid.
type KeyConfig struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte
}

type keySet struct {
	cfg    KeyConfig
	method jwt.SigningMethod
	sign   interface{}
	verify interface{}
	byKid  map[string]interface{}
}

func newKeySet(class string, cfg KeyConfig) (*keySet, error) {
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	ks := &keySet{cfg: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKeyLen {
			return nil, fmt.Errorf("%s: hs256 requires a key of at least %d bytes", class, minHMACKeyLen)
		}
		ks.method = jwt.SigningMethodHS256
		ks.sign = cfg.PrivateKey
		ks.verify = cfg.PrivateKey
	case MethodEd25519:
		ks.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", class, err)
			}
			ks.sign = priv
			if len(cfg.PublicKey) == 0 {
				ks.verify = priv.Public()
			}
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", class, err)
			}
			ks.verify = pub
		}
		if ks.verify == nil && len(cfg.VerifyKeys) == 0 {
			return nil, fmt.Errorf("%s: ed25519 requires public key or verify key set", class)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported signing method %q", class, cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		ks.byKid = make(map[string]interface{}, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, fmt.Errorf("%s: verify key map contains empty kid", class)
			}
			key, err := ks.verifyKeyFromBytes(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid verify key for kid %q: %w", class, kid, err)
			}
			ks.byKid[kid] = key
		}
		if cfg.KeyID != "" {
			if _, ok := ks.byKid[cfg.KeyID]; !ok {
				return nil, fmt.Errorf("%s: KeyID is not present in VerifyKeys", class)
			}
		}
	}

	return ks, nil
}

func (k *keySet) signKey() (interface{}, error) {
	if k.sign == nil {
		return nil, errors.New("signing key not configured")
	}
	return k.sign, nil
}

func (k *keySet) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != k.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(k.byKid) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := k.byKid[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}

	if k.cfg.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		if kid != k.cfg.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return k.verify, nil
}

func (k *keySet) verifyKeyFromBytes(key []byte) (interface{}, error) {
	if k.cfg.SigningMethod == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
