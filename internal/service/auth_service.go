package service

import (
	"context"
	"errors"
	"fmt"
	"smart_edu_backend/internal/config"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"
	"smart_edu_backend/pkg/logger"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Name     string         `json:"name" validate:"required,notblank,max=100"`
	Email    string         `json:"email" validate:"required,email,max=100"`
	Password string         `json:"password" validate:"required,min=8,max=72"`
	Role     model.UserRole `json:"role" validate:"omitempty,oneof=student teacher"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token   string         `json:"token"`
	Session *model.Session `json:"session"`
	User    *model.User    `json:"user"`
}

type AuthService struct {
	users    UserStore
	sessions SessionStore
	secret   string
	ttl      time.Duration
	now      Clock
}

func NewAuthService(users UserStore, sessions SessionStore, cfg config.JWTConfig) *AuthService {
	ttl := cfg.ExpireTime
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		secret:   cfg.Secret,
		ttl:      ttl,
		now:      systemClock,
	}
}

// Register 公开注册只能创建学生或教师，管理员需直接写库
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if verr := validateStruct(&req); len(verr.Fields) > 0 {
		return nil, verr
	}

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, util.ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = model.Student
	}
	user := &model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Password: string(hashed),
		Role:     role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login 校验密码并创建会话，令牌中只携带会话 ID
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if verr := validateStruct(&req); len(verr.Fields) > 0 {
		return nil, verr
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Disabled {
		return nil, fmt.Errorf("%w: account disabled", util.ErrPermissionDenied)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}

	now := s.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Role:      user.Role,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	token, err := util.GenerateJWT(session, s.secret)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		logger.Log.Warn("Failed to update last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	return &LoginResult{Token: token, Session: session, User: user}, nil
}

// Authenticate 解析令牌并确认会话仍然有效
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	claims, err := util.ParseJWT(token, s.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrSessionInvalid, err)
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, util.ErrSessionInvalid
		}
		return nil, err
	}
	if session.Expired(s.now()) || session.UserID != claims.UserID {
		return nil, util.ErrSessionInvalid
	}
	return session, nil
}

func (s *AuthService) Logout(ctx context.Context, sess *model.Session) error {
	return s.sessions.Delete(ctx, sess.ID)
}

func (s *AuthService) Profile(ctx context.Context, sess *model.Session) (*model.User, error) {
	return s.users.GetByID(ctx, sess.UserID)
}
