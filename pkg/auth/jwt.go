package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	issuer = "patient-records"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")
)

// Subject is the identity a token is issued for.
type Subject struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenType string    `json:"type"`
}

type JWTService interface {
	GenerateAccessToken(sub Subject) (string, *Claims, error)
	GenerateRefreshToken(sub Subject) (string, *Claims, error)
	ValidateAccessToken(token string) (*Claims, error)
	ValidateRefreshToken(token string) (*Claims, error)
}

type Config struct {
	Secret        string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type jwtService struct {
	cfg Config
	now func() time.Time
}

func NewJWTService(cfg Config) JWTService {
	return &jwtService{cfg: cfg, now: time.Now}
}

// newJWTServiceWithClock is used by tests to control token timestamps.
func newJWTServiceWithClock(cfg Config, now func() time.Time) *jwtService {
	return &jwtService{cfg: cfg, now: now}
}

func (s *jwtService) GenerateAccessToken(sub Subject) (string, *Claims, error) {
	return s.generate(sub, TokenTypeAccess, []byte(s.cfg.Secret), s.cfg.AccessTTL)
}

func (s *jwtService) GenerateRefreshToken(sub Subject) (string, *Claims, error) {
	return s.generate(sub, TokenTypeRefresh, []byte(s.cfg.RefreshSecret), s.cfg.RefreshTTL)
}

func (s *jwtService) ValidateAccessToken(token string) (*Claims, error) {
	return s.validate(token, TokenTypeAccess, []byte(s.cfg.Secret))
}

func (s *jwtService) ValidateRefreshToken(token string) (*Claims, error) {
	return s.validate(token, TokenTypeRefresh, []byte(s.cfg.RefreshSecret))
}

func (s *jwtService) generate(sub Subject, tokenType string, secret []byte, ttl time.Duration) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   sub.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    sub.UserID,
		Email:     sub.Email,
		Role:      sub.Role,
		TokenType: tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

func (s *jwtService) validate(token, tokenType string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.TokenType != tokenType {
		return nil, ErrWrongTokenType
	}
	if claims.UserID == uuid.Nil || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
