package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smart_edu_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field  string `json:"field"`
		Reason string `json:"reason"`
	} `json:"errors"`
}

type testServer struct {
	t   *testing.T
	app *App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.Database.Driver = "memory"
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.JWT.ExpireTime = time.Hour
	cfg.Storage.Type = "local"
	cfg.Storage.LocalPath = t.TempDir()
	cfg.RateLimit.MaxRequests = 10000
	cfg.RateLimit.WindowMinutes = 1

	a := build(cfg, memoryStores(nil), nil, nil, nil)
	t.Cleanup(func() { a.services.runner.Stop() })
	return &testServer{t: t, app: a}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return s.send(req, token)
}

func (s *testServer) send(req *http.Request, token string) (int, envelope) {
	s.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (s *testServer) login(name, role string) string {
	s.t.Helper()
	email := name + "@example.com"
	code, _ := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": name, "email": email, "password": "password123", "role": role,
	})
	require.Equal(s.t, http.StatusCreated, code)

	code, env := s.do(http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": "password123"})
	require.Equal(s.t, http.StatusOK, code)
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &res))
	return res.Token
}

func assessmentBody() map[string]interface{} {
	return map[string]interface{}{
		"title":        "Week 1 quiz",
		"course_id":    7,
		"type":         "quiz",
		"max_attempts": 1,
		"is_published": true,
		"sections": []map[string]interface{}{
			{
				"type": "multiple_choice", "score_per_question": 4,
				"questions": []map[string]interface{}{
					{"stem": "2+2", "type": "multiple_choice", "options": []string{"A. 3", "B. 4"}, "answer": "B"},
				},
			},
			{
				"type": "essay", "score_per_question": 6,
				"questions": []map[string]interface{}{
					{"stem": "Explain goroutines", "type": "essay", "reference_answer": "lightweight threads"},
				},
			},
		},
	}
}

func TestAssessmentLifecycle(t *testing.T) {
	s := newTestServer(t)
	teacher := s.login("teacher", "teacher")
	student := s.login("student", "")

	code, env := s.do(http.MethodPost, "/api/assessments", student, assessmentBody())
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodPost, "/api/assessments", teacher, assessmentBody())
	require.Equal(t, http.StatusCreated, code, env.Message)
	var created struct {
		Assessment struct {
			ID         uint    `json:"id"`
			TotalScore float64 `json:"total_score"`
		} `json:"assessment"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	id := created.Assessment.ID
	assert.Equal(t, 10.0, created.Assessment.TotalScore)

	// 学生视角不含答案
	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/assessments/%d", id), student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), `"answer"`)
	assert.NotContains(t, string(env.Data), "lightweight threads")

	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/assessments/%d/submit", id), student, map[string]interface{}{
		"time_spent": 120,
		"answers": []map[string]interface{}{
			{"question_id": 1, "value": "B"},
			{"question_id": 2, "value": map[string]string{"text": "They are scheduled by the runtime"}},
		},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var sub struct {
		ID     uint    `json:"id"`
		Status string  `json:"status"`
		Score  float64 `json:"score"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	assert.Equal(t, "partially_graded", sub.Status)
	assert.Equal(t, 4.0, sub.Score)

	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/assessments/%d/submit", id), student, map[string]interface{}{})
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/submissions/%d/grade", sub.ID), teacher, map[string]interface{}{
		"score": 5, "feedback": "good",
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	assert.Equal(t, "graded", sub.Status)
	assert.Equal(t, 9.0, sub.Score)

	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/submissions/%d/grade", sub.ID), teacher, map[string]interface{}{"score": 6})
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/submissions/%d", sub.ID), student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"graded"`)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/assessments/%d/stats", id), teacher, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"average_score":9`)

	// 已有提交时不能删除
	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/assessments/%d", id), teacher, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestValidationEnvelope(t *testing.T) {
	s := newTestServer(t)
	teacher := s.login("teacher", "teacher")

	body := assessmentBody()
	sections := body["sections"].([]map[string]interface{})
	questions := sections[0]["questions"].([]map[string]interface{})
	questions[0]["answer"] = "Z"

	code, env := s.do(http.MethodPost, "/api/assessments", teacher, body)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation failed", env.Message)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, "sections[0].questions[0].answer", env.Errors[0].Field)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodGet, "/api/assessments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/api/assessments", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	token := s.login("student", "student")
	code, _ = s.do(http.MethodGet, "/api/profile", token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/api/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodPost, "/api/login", "", map[string]string{"email": "student@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHealthWithoutBackends(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, code)

	var health struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "memory", health.Components["database"])
	assert.Equal(t, "disabled", health.Components["redis"])
	assert.Equal(t, "disabled", health.Components["ai"])
}

func TestAIEndpointsWithoutProvider(t *testing.T) {
	s := newTestServer(t)
	teacher := s.login("teacher", "teacher")

	code, _ := s.do(http.MethodPost, "/api/assessments/ai-generate", teacher, map[string]interface{}{
		"course_id": 1, "title": "Generated", "type": "quiz", "topic": "maps",
		"question_types": []map[string]interface{}{{"type": "multiple_choice", "count": 2}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = s.do(http.MethodGet, "/api/assessments/ai-generate/unknown", teacher, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUploadAttachment(t *testing.T) {
	s := newTestServer(t)
	student := s.login("student", "")

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("my working notes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	code, env := s.send(req, student)
	require.Equal(t, http.StatusCreated, code, env.Message)

	var f struct {
		URL  string `json:"url"`
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &f))
	assert.Equal(t, "text/plain", f.Type)

	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, f.URL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "my working notes", rec.Body.String())
}
