package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
)

// refreshTTLFactor stretches the refresh token's lifetime relative to the
// configured session TTL.
const refreshTTLFactor = 3

// ──────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ──────────────────────────────────────────────────────────────────────────────

// LoginRequest carries the operator credentials.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned on successful operator login.
type LoginResponse struct {
	Operator     string    `json:"operator"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenPair holds both tokens returned by generateTokenPair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// OperatorClaims extends jwt.RegisteredClaims with the session token type.
type OperatorClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type"` // "access" or "refresh"
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService issues and validates backoffice operator sessions. There is a
// single operator identity; its name and bcrypt password hash come from the
// environment, so compromising the database yields no credentials.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// ──────────────────────────────────────────────────────────────────────────────
// Login
// ──────────────────────────────────────────────────────────────────────────────

// Login validates operator credentials and returns a fresh token pair.
// Name and password failures are indistinguishable to the caller.
func (s *AuthService) Login(req LoginRequest) (*LoginResponse, error) {
	if s.cfg.Admin.OperatorPassBcrypt == "" {
		return nil, fmt.Errorf("service.Login: operator password not configured: %w", domain.ErrInvalidCredentials)
	}
	nameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.Admin.OperatorName)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(s.cfg.Admin.OperatorPassBcrypt), []byte(req.Password))
	if !nameOK || passErr != nil {
		return nil, domain.ErrInvalidCredentials
	}

	pair, err := s.generateTokenPair()
	if err != nil {
		return nil, fmt.Errorf("service.Login: %w", err)
	}
	return &LoginResponse{
		Operator:     s.cfg.Admin.OperatorName,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// RefreshToken validates a refresh token and issues a new token pair.
func (s *AuthService) RefreshToken(refreshToken string) (*LoginResponse, error) {
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "refresh" {
		return nil, domain.ErrTokenInvalid
	}
	pair, err := s.generateTokenPair()
	if err != nil {
		return nil, fmt.Errorf("service.RefreshToken: %w", err)
	}
	return &LoginResponse{
		Operator:     s.cfg.Admin.OperatorName,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Token helpers
// ──────────────────────────────────────────────────────────────────────────────

// generateTokenPair creates a signed access token (SessionTTL) and a signed
// refresh token (refreshTTLFactor × SessionTTL).
func (s *AuthService) generateTokenPair() (TokenPair, error) {
	now := time.Now().UTC()
	secret := []byte(s.cfg.Admin.JWTSecret) // same secret for both; type claim differentiates
	accessExpiry := now.Add(s.cfg.Admin.SessionTTL)

	accessClaims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.cfg.Admin.OperatorName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
		},
		TokenType: "access",
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshClaims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.cfg.Admin.OperatorName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(refreshTTLFactor * s.cfg.Admin.SessionTTL)),
		},
		TokenType: "refresh",
	}
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExpiry}, nil
}

// parseToken validates the token signature, algorithm, and expiry.
func (s *AuthService) parseToken(tokenString string) (*OperatorClaims, error) {
	secret := []byte(s.cfg.Admin.JWTSecret)
	tok, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*OperatorClaims)
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// ValidateAccessToken is exported for use by the session middleware.
func (s *AuthService) ValidateAccessToken(tokenString string) (*OperatorClaims, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "access" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
