package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signBearerToken creates an HMAC-signed JWT for the given subject,
// valid for ttl. It's meant for wsecho's own demo clients; production
// deployments are expected to bring their own identity provider.
func signBearerToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("no bearer token secret configured")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign bearer token: %w", err)
	}
	return signed, nil
}

// verifyBearerToken checks an HMAC-signed JWT against secret and
// returns its subject claim.
func verifyBearerToken(secret, raw string) (string, error) {
	if secret == "" {
		return "", errors.New("no bearer token secret configured")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid bearer token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid bearer token claims")
	}

	sub, _ := claims["sub"].(string)
	return sub, nil
}
