package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/google/uuid"
)

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "vowvendors",
		ExpirationMinutes: 30,
	}
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: userID,
		Role:   enums.RoleScheduler,
		JTI:    "run-1",
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Subject != userID.String() {
		t.Fatalf("expected subject %s, got %s", userID, claims.Subject)
	}
	if claims.Role != enums.RoleScheduler {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.ID != "run-1" {
		t.Fatalf("expected jti run-1, got %s", claims.ID)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v (diff %v)", exp.UTC(), claims.ExpiresAt.UTC(), diff)
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "vowvendors",
		ExpirationMinutes: 10,
	}
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}

	other := cfg
	other.Secret = "another"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected error for a token signed with another secret")
	}
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "vowvendors", ExpirationMinutes: 10}
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "vowvendors",
		ExpirationMinutes: 15,
	}
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleVendor,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	_, err = ParseAccessToken(cfg, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMintAccessTokenRejectsBadPayload(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "vowvendors",
		ExpirationMinutes: 5,
	}

	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New()}); err == nil {
		t.Fatal("expected invalid role error")
	}
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.RoleAdmin}); err == nil {
		t.Fatal("expected missing user id error")
	}
}
