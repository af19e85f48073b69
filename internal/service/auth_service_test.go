package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"smart_edu_backend/internal/config"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/repository/inmem"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAuth(t *testing.T) (*service.AuthService, *inmem.UserStore, *inmem.SessionStore) {
	t.Helper()
	users := inmem.NewUserStore()
	sessions := inmem.NewSessionStore()
	return service.NewAuthService(users, sessions, config.JWTConfig{Secret: testSecret, ExpireTime: time.Hour}), users, sessions
}

func TestRegisterAndLogin(t *testing.T) {
	auth, users, _ := newAuth(t)
	ctx := context.Background()

	u, err := auth.Register(ctx, service.RegisterRequest{
		Name: " Ada ", Email: " Ada@Example.com ", Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, model.Student, u.Role)
	assert.NotEqual(t, "correct horse", u.Password)

	res, err := auth.Login(ctx, service.LoginRequest{Email: "ADA@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, u.ID, res.Session.UserID)
	assert.Equal(t, model.Student, res.Session.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.Session.ExpiresAt, 5*time.Second)

	stored, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)

	sess, err := auth.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, sess.ID)

	profile, err := auth.Profile(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", profile.Email)
}

func TestRegisterRejects(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, service.RegisterRequest{Name: "T", Email: "t@example.com", Password: "password1", Role: model.Teacher})
	require.NoError(t, err)

	_, err = auth.Register(ctx, service.RegisterRequest{Name: "T2", Email: "T@example.com", Password: "password1"})
	assert.ErrorIs(t, err, util.ErrEmailRegistered)

	cases := map[string]service.RegisterRequest{
		"role":     {Name: "Root", Email: "root@example.com", Password: "password1", Role: model.Admin},
		"password": {Name: "Short", Email: "short@example.com", Password: "short"},
		"email":    {Name: "Bad", Email: "not-an-email", Password: "password1"},
		"name":     {Name: "   ", Email: "blank@example.com", Password: "password1"},
	}
	for field, req := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := auth.Register(ctx, req)
			var verr *util.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, field, verr.Fields[0].Field)
		})
	}
}

func TestLoginFailures(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()
	_, err := auth.Register(ctx, service.RegisterRequest{Name: "S", Email: "s@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = auth.Login(ctx, service.LoginRequest{Email: "s@example.com", Password: "password2"})
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)

	_, err = auth.Login(ctx, service.LoginRequest{Email: "nobody@example.com", Password: "password1"})
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
	assert.Equal(t, 401, util.StatusFor(err))
}

func TestLogoutInvalidatesSession(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()
	_, err := auth.Register(ctx, service.RegisterRequest{Name: "S", Email: "s@example.com", Password: "password1"})
	require.NoError(t, err)
	res, err := auth.Login(ctx, service.LoginRequest{Email: "s@example.com", Password: "password1"})
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, res.Session))

	_, err = auth.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, util.ErrSessionInvalid)
}

func TestAuthenticateRejectsForeignTokens(t *testing.T) {
	auth, _, sessions := newAuth(t)
	ctx := context.Background()

	_, err := auth.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, util.ErrSessionInvalid)

	sess := &model.Session{ID: "s", UserID: 7, Role: model.Student, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, sessions.Save(ctx, sess))

	forged, err := util.GenerateJWT(sess, "another-secret-another-secret-123")
	require.NoError(t, err)
	_, err = auth.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, util.ErrSessionInvalid)

	// 会话存在但用户不一致
	mismatched := *sess
	mismatched.UserID = 8
	token, err := util.GenerateJWT(&mismatched, testSecret)
	require.NoError(t, err)
	_, err = auth.Authenticate(ctx, token)
	assert.ErrorIs(t, err, util.ErrSessionInvalid)

	token, err = util.GenerateJWT(sess, testSecret)
	require.NoError(t, err)
	got, err := auth.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), got.UserID)
}
