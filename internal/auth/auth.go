// Package auth is the identity provider behind the admin surface: email and
// password login issuing signed session tokens, token resolution, sign-out
// and the single-administrator check.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"activation-portal/internal/model"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrTokenRevoked       = errors.New("session token revoked")
	ErrUserDisabled       = errors.New("user disabled")
)

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Service struct {
	db         *gorm.DB
	secret     []byte
	ttl        time.Duration
	adminEmail string
	log        *zap.Logger
}

func NewService(db *gorm.DB, secret string, ttl time.Duration, adminEmail string, log *zap.Logger) *Service {
	return &Service{
		db:         db,
		secret:     []byte(secret),
		ttl:        ttl,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		log:        log.Named("auth"),
	}
}

// Login checks the credentials and returns a signed session token.
// Every attempt is written to the login log.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (string, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	db := s.db.WithContext(ctx)

	var user model.User
	err := db.Where("email = ?", email).First(&user).Error
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	}
	if err != nil {
		s.recordLogin(ctx, nil, email, ip, userAgent, "failed")
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("login: %w", err)
	}
	if user.Status != "" && user.Status != "active" {
		s.recordLogin(ctx, &user.ID, email, ip, userAgent, "failed")
		return "", nil, ErrUserDisabled
	}

	token, err := s.issue(&user)
	if err != nil {
		return "", nil, err
	}

	s.recordLogin(ctx, &user.ID, email, ip, userAgent, "success")
	user.LastLogin = time.Now()
	if err := db.Model(&user).Update("last_login", user.LastLogin).Error; err != nil {
		s.log.Warn("failed to update last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	return token, &user, nil
}

// CurrentUser resolves a session token to its user.
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var revoked int64
	if err := db.Model(&model.RevokedToken{}).Where("jti = ?", claims.ID).Count(&revoked).Error; err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked > 0 {
		return nil, ErrTokenRevoked
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var user model.User
	if err := db.First(&user, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Status != "" && user.Status != "active" {
		return nil, ErrUserDisabled
	}
	return &user, nil
}

// SignOut revokes the token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	now := time.Now()
	if err := db.Where("expires_at < ?", now).Delete(&model.RevokedToken{}).Error; err != nil {
		s.log.Warn("failed to prune revoked tokens", zap.Error(err))
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	rt := &model.RevokedToken{JTI: claims.ID, ExpiresAt: exp}
	if err := db.Where(model.RevokedToken{JTI: claims.ID}).FirstOrCreate(rt).Error; err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsAdmin reports whether the token belongs to the configured administrator.
func (s *Service) IsAdmin(ctx context.Context, token string) bool {
	user, err := s.CurrentUser(ctx, token)
	if err != nil {
		return false
	}
	return s.IsAdminUser(user)
}

func (s *Service) IsAdminUser(user *model.User) bool {
	if user == nil || s.adminEmail == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(user.Email), s.adminEmail)
}

func (s *Service) issue(user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("令牌生成失败: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) recordLogin(ctx context.Context, userID *uint, email, ip, userAgent, status string) {
	entry := &model.LoginLog{
		UserID:    userID,
		Email:     email,
		IP:        ip,
		UserAgent: userAgent,
		Status:    status,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.log.Warn("failed to record login", zap.Error(err))
	}
}
