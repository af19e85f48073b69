package model

import "time"

// Session 登录会话，登录时创建，登出或令牌失效时作废。
// 每个请求通过 gin.Context 显式携带，不在处理器之间共享。
type Session struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Role      UserRole  `json:"role"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// IsStaff 教师和管理员
func (s *Session) IsStaff() bool {
	return s.Role == Teacher || s.Role == Admin
}
