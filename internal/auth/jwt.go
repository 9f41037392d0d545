package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnsupportedAlg = errors.New("unsupported jwt alg")
	ErrInvalidToken   = errors.New("invalid token")
)

type JWTValidator struct {
	alg    string
	pubKey *rsa.PublicKey
	secret []byte
}

func NewJWTValidator(pubKeyPath, alg, secret string) (*JWTValidator, error) {
	alg = strings.ToUpper(alg)
	jv := &JWTValidator{alg: alg}
	switch alg {
	case "RS256":
		b, err := os.ReadFile(pubKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read pubkey: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, fmt.Errorf("parse pubkey: %w", err)
		}
		jv.pubKey = key
	case "HS256":
		if secret == "" {
			return nil, errors.New("hs256 secret required")
		}
		jv.secret = []byte(secret)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}
	return jv, nil
}

// Validate returns the subject (user id) of a valid token.
func (j *JWTValidator) Validate(token string) (string, error) {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if j.alg == "RS256" {
			return j.pubKey, nil
		}
		return j.secret, nil
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{j.alg}), jwt.WithExpirationRequired())
	tok, err := parser.Parse(token, keyFunc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return "", ErrInvalidToken
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: sub missing", ErrInvalidToken)
	}
	return sub, nil
}
