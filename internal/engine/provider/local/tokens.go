package local

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/palmsestate/palms/internal/engine/domain"
)

// AccessClaims are the claims carried by a minted access token.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (p *Provider) mintAccessToken(rec domain.IdentityRecord, issuedAt, expiresAt time.Time) (string, error) {
	claims := AccessClaims{
		Email: rec.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.cfg.Issuer,
			Subject:   rec.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.cfg.SigningSecret)
}

// ParseAccessToken verifies an access token and returns its claims.
func (p *Provider) ParseAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return p.cfg.SigningSecret, nil
	}, jwt.WithIssuer(p.cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid access token")
	}
	return claims, nil
}
