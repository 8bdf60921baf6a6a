package services

import (
	"errors"
	"testing"
	"time"

	"github.com/opencircles/backend/internal/config"
	"github.com/opencircles/backend/internal/domain"
	"github.com/opencircles/backend/internal/models"
	"github.com/opencircles/backend/internal/utils"
)

func init() {
	utils.SetJWTSecret("test-secret-for-service-testing")
}

func newAuthService(t *testing.T) (*AuthService, *testEnv) {
	t.Helper()

	env := newTestEnv(t)
	jwtCfg := &config.JWTConfig{Secret: "test-secret-for-service-testing", ExpireHour: 1, RefreshExpireHour: 24}
	ldapCfg := &config.LDAPConfig{Enabled: false}
	return NewAuthService(env.db, jwtCfg, ldapCfg), env
}

func seedLocalUser(t *testing.T, env *testEnv, username, password string) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &models.User{
		Username: username,
		Password: hash,
		Email:    username + "@example.com",
		Role:     "member",
		AuthType: "local",
		IsActive: true,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestLogin_LocalSuccess(t *testing.T) {
	auth, env := newAuthService(t)
	seedLocalUser(t, env, "alice", "correct-horse-battery")

	result, err := auth.Login(&LoginRequest{Username: "alice", Password: "correct-horse-battery"}, "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("tokens should not be empty")
	}

	claims, err := utils.ParseToken(result.AccessToken)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("claims username = %q, expected alice", claims.Username)
	}

	var stored models.RefreshToken
	if err := env.db.Where("user_id = ?", result.User.ID).First(&stored).Error; err != nil {
		t.Fatalf("refresh token should be persisted: %v", err)
	}
	if stored.TokenHash == result.RefreshToken {
		t.Error("refresh token must be stored hashed, not in the clear")
	}
}

func TestLogin_Failures(t *testing.T) {
	auth, env := newAuthService(t)
	user := seedLocalUser(t, env, "bob", "secret-password")

	if _, err := auth.Login(&LoginRequest{Username: "bob", Password: "wrong"}, "", ""); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("wrong password: expected permission error, got %v", err)
	}
	if _, err := auth.Login(&LoginRequest{Username: "nobody", Password: "x"}, "", ""); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("unknown user: expected permission error, got %v", err)
	}

	env.db.Model(user).Update("is_active", false)
	if _, err := auth.Login(&LoginRequest{Username: "bob", Password: "secret-password"}, "", ""); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("disabled account: expected permission error, got %v", err)
	}

	if _, err := auth.Login(&LoginRequest{Username: "bob", Password: "x", AuthType: "carrier-pigeon"}, "", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown auth type: expected validation error, got %v", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	auth, env := newAuthService(t)
	seedLocalUser(t, env, "carol", "rotate-me-please")

	login, err := auth.Login(&LoginRequest{Username: "carol", Password: "rotate-me-please"}, "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := auth.Refresh(login.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Error("refresh must rotate the token")
	}

	// The old token is revoked and cannot be used again.
	if _, err := auth.Refresh(login.RefreshToken, "", ""); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("reused token: expected permission error, got %v", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	auth, env := newAuthService(t)
	user := seedLocalUser(t, env, "dave", "expiring-token")

	login, err := auth.Login(&LoginRequest{Username: "dave", Password: "expiring-token"}, "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.db.Model(&models.RefreshToken{}).
		Where("user_id = ?", user.ID).
		Update("expires_at", time.Now().Add(-time.Hour))

	if _, err := auth.Refresh(login.RefreshToken, "", ""); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("expired token: expected permission error, got %v", err)
	}
}

func TestLogout_RevokesAllTokens(t *testing.T) {
	auth, env := newAuthService(t)
	user := seedLocalUser(t, env, "erin", "log-me-out")

	login, err := auth.Login(&LoginRequest{Username: "erin", Password: "log-me-out"}, "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := auth.Logout(user.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := auth.Refresh(login.RefreshToken, "", ""); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("token after logout: expected permission error, got %v", err)
	}
}
