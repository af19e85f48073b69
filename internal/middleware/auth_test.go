package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubAuth map[string]*model.Session

func (s stubAuth) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	if token == "broken" {
		return nil, errors.New("session store down")
	}
	sess, ok := s[token]
	if !ok {
		return nil, util.ErrSessionInvalid
	}
	return sess, nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := stubAuth{
		"student": {ID: "1", UserID: 1, Role: model.Student},
		"teacher": {ID: "2", UserID: 2, Role: model.Teacher},
		"admin":   {ID: "3", UserID: 3, Role: model.Admin},
	}
	r := gin.New()
	g := r.Group("/", AuthMiddleware(auth))
	g.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, string(util.GetSession(c).Role))
	})
	g.GET("/staff", RoleMiddleware(model.Teacher), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func call(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusUnauthorized, call(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "/me", "revoked").Code)
	assert.Equal(t, http.StatusInternalServerError, call(r, "/me", "broken").Code)

	w := call(r, "/me", "student")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student", w.Body.String())
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusForbidden, call(r, "/staff", "student").Code)
	assert.Equal(t, http.StatusOK, call(r, "/staff", "teacher").Code)
	assert.Equal(t, http.StatusOK, call(r, "/staff", "admin").Code)
}

func TestRoleMiddlewareWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", RoleMiddleware(model.Teacher), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, call(r, "/", "").Code)
}
