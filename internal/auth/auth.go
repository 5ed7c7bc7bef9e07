package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSecret           = errors.New("jwt secret is empty")
)

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates HS256 tokens for the operator API.
type Service struct {
	secret   []byte
	duration time.Duration
	issuer   string
	now      func() time.Time
}

type Option func(*Service)

func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(secret string, duration time.Duration, opts ...Option) *Service {
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	s := &Service{
		secret:   []byte(secret),
		duration: duration,
		issuer:   "elastic-orchestrator",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Duration() time.Duration {
	return s.duration
}

func (s *Service) GenerateToken(username, role string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := s.now()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Credentials holds the single operator account allowed to obtain tokens.
type Credentials struct {
	Username     string
	PasswordHash string
}

func (c Credentials) Verify(username, password string) error {
	if c.Username == "" || c.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	if username != c.Username || !CheckPassword(password, c.PasswordHash) {
		return ErrInvalidCredentials
	}
	return nil
}
