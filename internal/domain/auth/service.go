package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/nbertagnolli/sql-rag/pkg/errors"
)

// Config holds service-token settings.
type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// Claims is the validated identity attached to a request.
type Claims struct {
	Subject string
}

// Service issues and validates HS256 service tokens.
type Service interface {
	IssueToken(ctx context.Context, subject string) (string, error)
	ValidateToken(ctx context.Context, token string) (Claims, error)
}

type service struct {
	cfg Config
}

// NewService constructs the token service.
func NewService(cfg Config) Service {
	return &service{cfg: cfg}
}

func (s *service) IssueToken(_ context.Context, subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", apperrors.Wrap("invalid_input", "token subject cannot be empty", nil)
	}
	if strings.TrimSpace(s.cfg.Secret) == "" {
		return "", apperrors.Wrap("auth_error", "signing secret not configured", nil)
	}
	ttl := s.cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", apperrors.Wrap("auth_error", "failed to sign token", err)
	}
	return signed, nil
}

func (s *service) ValidateToken(_ context.Context, token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, apperrors.Wrap("invalid_token", "token validation failed", err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return Claims{}, apperrors.Wrap("invalid_token", "token invalid", nil)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, apperrors.Wrap("invalid_token", "token missing expiry", nil)
	}
	if s.cfg.Issuer != "" && claims.Issuer != s.cfg.Issuer {
		return Claims{}, apperrors.Wrap("invalid_token", "token issuer mismatch", nil)
	}
	return Claims{Subject: claims.Subject}, nil
}
