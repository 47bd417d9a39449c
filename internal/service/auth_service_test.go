package service

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
)

const testOperatorPass = "opensesame"

func newTestAuthService(t *testing.T, ttl time.Duration) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testOperatorPass), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword: %v", err)
	}
	cfg := &config.Config{}
	cfg.Admin = config.AdminConfig{
		JWTSecret:          "unit-test-secret",
		SessionTTL:         ttl,
		OperatorName:       "admin",
		OperatorPassBcrypt: string(hash),
	}
	return NewAuthService(cfg)
}

func TestLoginIssuesValidTokenPair(t *testing.T) {
	svc := newTestAuthService(t, 8*time.Hour)

	resp, err := svc.Login(LoginRequest{Username: "admin", Password: testOperatorPass})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Operator != "admin" {
		t.Errorf("operator = %q, want admin", resp.Operator)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens to be set")
	}
	if resp.AccessToken == resp.RefreshToken {
		t.Error("access and refresh tokens must differ")
	}
	if remaining := time.Until(resp.ExpiresAt); remaining < 7*time.Hour {
		t.Errorf("access expiry %v from now, want ~8h", remaining)
	}

	claims, err := svc.ValidateAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Subject != "admin" {
		t.Errorf("subject = %q, want admin", claims.Subject)
	}
	if claims.TokenType != "access" {
		t.Errorf("token type = %q, want access", claims.TokenType)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestAuthService(t, time.Hour)

	cases := []struct {
		name string
		user string
		pass string
	}{
		{"wrong password", "admin", "not-the-password"},
		{"wrong username", "root", testOperatorPass},
		{"both wrong", "root", "nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(LoginRequest{Username: tc.user, Password: tc.pass})
			if !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Errorf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestLoginFailsWhenPasswordUnconfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.Admin = config.AdminConfig{JWTSecret: "s", SessionTTL: time.Hour, OperatorName: "admin"}
	svc := NewAuthService(cfg)

	_, err := svc.Login(LoginRequest{Username: "admin", Password: "anything"})
	if !domain.IsAuthError(err) {
		t.Errorf("err = %v, want an auth error", err)
	}
}

func TestRefreshTokenIssuesNewPair(t *testing.T) {
	svc := newTestAuthService(t, time.Hour)

	first, err := svc.Login(LoginRequest{Username: "admin", Password: testOperatorPass})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	second, err := svc.RefreshToken(first.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if _, err := svc.ValidateAccessToken(second.AccessToken); err != nil {
		t.Errorf("refreshed access token invalid: %v", err)
	}
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	svc := newTestAuthService(t, time.Hour)

	resp, err := svc.Login(LoginRequest{Username: "admin", Password: testOperatorPass})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// The type claim keeps a stolen access token from minting new sessions.
	if _, err := svc.RefreshToken(resp.AccessToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestValidateAccessTokenRejectsRefreshToken(t *testing.T) {
	svc := newTestAuthService(t, time.Hour)

	resp, err := svc.Login(LoginRequest{Username: "admin", Password: testOperatorPass})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.ValidateAccessToken(resp.RefreshToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestValidateAccessTokenRejectsForeignSecret(t *testing.T) {
	minter := newTestAuthService(t, time.Hour)
	resp, err := minter.Login(LoginRequest{Username: "admin", Password: testOperatorPass})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	verifier := newTestAuthService(t, time.Hour)
	verifier.cfg.Admin.JWTSecret = "a-different-secret"

	if _, err := verifier.ValidateAccessToken(resp.AccessToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestValidateAccessTokenExpiry(t *testing.T) {
	svc := newTestAuthService(t, -time.Minute)

	resp, err := svc.Login(LoginRequest{Username: "admin", Password: testOperatorPass})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.ValidateAccessToken(resp.AccessToken); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}
