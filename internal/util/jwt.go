package util

import (
	"smart_edu_backend/internal/model"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims 令牌只携带会话 ID，会话是否有效以 SessionStore 为准
type Claims struct {
	SessionID string         `json:"sid"`
	UserID    uint           `json:"user_id"`
	Role      model.UserRole `json:"role"`
	jwt.RegisteredClaims
}

const sessionContextKey = "session"

func GenerateJWT(session *model.Session, secret string) (string, error) {
	claims := &Claims{
		SessionID: session.ID,
		UserID:    session.UserID,
		Role:      session.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(5*time.Second))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrSessionInvalid
}

func SetSession(c *gin.Context, session *model.Session) {
	c.Set(sessionContextKey, session)
}

// GetSession 认证中间件放入的会话，未登录时为 nil
func GetSession(c *gin.Context) *model.Session {
	v, exists := c.Get(sessionContextKey)
	if !exists {
		return nil
	}
	session, ok := v.(*model.Session)
	if !ok {
		return nil
	}
	return session
}
