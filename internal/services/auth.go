package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/opencircles/backend/internal/config"
	"github.com/opencircles/backend/internal/domain"
	"github.com/opencircles/backend/internal/models"
	"github.com/opencircles/backend/internal/utils"
)

type AuthService struct {
	db          *gorm.DB
	ldapService *LDAPService
	jwtConfig   *config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig, ldapCfg *config.LDAPConfig) *AuthService {
	return &AuthService{
		db:          db,
		ldapService: NewLDAPService(ldapCfg),
		jwtConfig:   jwtCfg,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type"` // local, ldap
}

type LoginResult struct {
	AccessToken     string
	AccessExpireAt  time.Time
	RefreshToken    string
	RefreshExpireAt time.Time
	User            *models.User
}

// Login authenticates a user and returns access and refresh tokens.
func (s *AuthService) Login(req *LoginRequest, clientIP, userAgent string) (*LoginResult, error) {
	var user *models.User
	var err error

	if req.AuthType == "" {
		req.AuthType = "local"
	}

	switch req.AuthType {
	case "local":
		user, err = s.localAuth(req.Username, req.Password)
	case "ldap":
		user, err = s.ldapAuth(req.Username, req.Password)
	default:
		return nil, fmt.Errorf("%w: unknown auth type %q", domain.ErrValidation, req.AuthType)
	}

	if err != nil {
		return nil, err
	}

	accessHours, refreshHours := s.tokenLifetimes()

	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, accessHours)
	if err != nil {
		return nil, infraErr("generate token", err)
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, infraErr("generate refresh token", err)
	}

	refreshExpireAt := time.Now().Add(time.Duration(refreshHours) * time.Hour)
	refreshRecord := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   refreshHash,
		ExpiresAt:   refreshExpireAt,
		CreatedByIP: clientIP,
		UserAgent:   userAgent,
	}
	if err := s.db.Create(&refreshRecord).Error; err != nil {
		return nil, infraErr("store refresh token", err)
	}

	now := time.Now()
	user.LastLogin = &now
	s.db.Save(user)

	return &LoginResult{
		AccessToken:     token,
		AccessExpireAt:  time.Now().Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    refreshToken,
		RefreshExpireAt: refreshExpireAt,
		User:            user,
	}, nil
}

type RefreshResult struct {
	AccessToken     string
	AccessExpireAt  time.Time
	RefreshToken    string
	RefreshExpireAt time.Time
}

// Refresh rotates a refresh token and issues a new access token.
func (s *AuthService) Refresh(refreshToken, clientIP, userAgent string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token required", domain.ErrValidation)
	}

	hash := hashRefreshToken(refreshToken)

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ?", hash).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invalid refresh token", domain.ErrPermissionDenied)
		}
		return nil, infraErr("get refresh token", err)
	}

	if stored.RevokedAt != nil {
		return nil, fmt.Errorf("%w: refresh token revoked", domain.ErrPermissionDenied)
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh token expired", domain.ErrPermissionDenied)
	}

	var user models.User
	if err := s.db.First(&user, stored.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, stored.UserID)
		}
		return nil, infraErr("get user", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account disabled", domain.ErrPermissionDenied)
	}

	accessHours, refreshHours := s.tokenLifetimes()

	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, accessHours)
	if err != nil {
		return nil, infraErr("generate token", err)
	}

	newToken, newHash, err := generateRefreshToken()
	if err != nil {
		return nil, infraErr("generate refresh token", err)
	}

	newExpireAt := time.Now().Add(time.Duration(refreshHours) * time.Hour)
	replacement := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   newHash,
		ExpiresAt:   newExpireAt,
		CreatedByIP: clientIP,
		UserAgent:   userAgent,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&replacement).Error; err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&stored).Updates(map[string]interface{}{
			"revoked_at":           now,
			"replaced_by_token_id": replacement.ID,
		}).Error
	})
	if err != nil {
		return nil, infraErr("rotate refresh token", err)
	}

	return &RefreshResult{
		AccessToken:     token,
		AccessExpireAt:  time.Now().Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    newToken,
		RefreshExpireAt: newExpireAt,
	}, nil
}

// Logout revokes every outstanding refresh token for the user.
func (s *AuthService) Logout(userID uint) error {
	now := time.Now()
	err := s.db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now).Error
	if err != nil {
		return infraErr("revoke refresh tokens", err)
	}
	return nil
}

func (s *AuthService) tokenLifetimes() (accessHours, refreshHours int) {
	accessHours = s.jwtConfig.ExpireHour
	if accessHours <= 0 {
		accessHours = 24
	}
	refreshHours = s.jwtConfig.RefreshExpireHour
	if refreshHours <= 0 {
		refreshHours = 24 * 14
	}
	return accessHours, refreshHours
}

func (s *AuthService) localAuth(username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ? AND auth_type = ?", username, "local").First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invalid username or password", domain.ErrPermissionDenied)
		}
		return nil, infraErr("get user", err)
	}

	if !user.IsActive {
		return nil, fmt.Errorf("%w: account disabled", domain.ErrPermissionDenied)
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, fmt.Errorf("%w: invalid username or password", domain.ErrPermissionDenied)
	}
	return &user, nil
}

// ldapAuth verifies credentials against LDAP and provisions a local shadow
// user on first login.
func (s *AuthService) ldapAuth(username, password string) (*models.User, error) {
	ldapUser, err := s.ldapService.Authenticate(username, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}

	var user models.User
	err = s.db.Where("username = ? AND auth_type = ?", ldapUser.Username, "ldap").First(&user).Error
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, fmt.Errorf("%w: account disabled", domain.ErrPermissionDenied)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Username: ldapUser.Username,
			Email:    ldapUser.Email,
			Nickname: ldapUser.Nickname,
			Role:     "member",
			AuthType: "ldap",
			IsActive: true,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, infraErr("create ldap user", err)
		}
		return &user, nil
	default:
		return nil, infraErr("get user", err)
	}
}

func generateRefreshToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	return token, hashRefreshToken(token), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
