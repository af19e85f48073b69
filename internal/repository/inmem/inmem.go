// Package inmem 内存版存储，用于 memory 驱动和测试，语义与 gorm 版本一致：
// 作答编号唯一、提交按版本号乐观锁更新。
package inmem

import (
	"context"
	"encoding/json"
	"sort"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"
	"sync"
	"time"

	"github.com/google/uuid"
)

// clone 通过 JSON 深拷贝，避免调用方修改存储中的对象
func clone[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
	return out
}

func now() time.Time {
	return time.Now().UTC()
}

func paginate[T any](items []T, page, limit int) []T {
	page, limit = util.NormalizePage(page, limit)
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

type AssessmentStore struct {
	mu     sync.RWMutex
	nextID uint
	items  map[uint]*model.Assessment
}

func NewAssessmentStore() *AssessmentStore {
	return &AssessmentStore{items: make(map[uint]*model.Assessment)}
}

func (s *AssessmentStore) Create(ctx context.Context, a *model.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	a.CreatedAt = now()
	a.UpdatedAt = a.CreatedAt
	s.items[a.ID] = clone(a)
	return nil
}

func (s *AssessmentStore) Get(ctx context.Context, id uint) (*model.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return clone(a), nil
}

func (s *AssessmentStore) List(ctx context.Context, filter service.AssessmentFilter) ([]model.Assessment, int64, error) {
	s.mu.RLock()
	var matched []model.Assessment
	for _, a := range s.items {
		if filter.CourseID > 0 && a.CourseID != filter.CourseID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Published != nil && a.IsPublished != *filter.Published {
			continue
		}
		if filter.VisibleOnly && !(a.IsPublished && a.IsActive) {
			continue
		}
		matched = append(matched, *clone(a))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, filter.Page, filter.Limit), int64(len(matched)), nil
}

func (s *AssessmentStore) Update(ctx context.Context, a *model.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.items[a.ID]
	if !ok {
		return util.ErrNotFound
	}
	a.CreatedAt = old.CreatedAt
	a.UpdatedAt = now()
	s.items[a.ID] = clone(a)
	return nil
}

func (s *AssessmentStore) Delete(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return util.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

type attemptKey struct {
	student    uint
	assessment uint
	attempt    int
}

type SubmissionStore struct {
	mu       sync.RWMutex
	nextID   uint
	items    map[uint]*model.Submission
	attempts map[attemptKey]uint
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		items:    make(map[uint]*model.Submission),
		attempts: make(map[attemptKey]uint),
	}
}

func keyOf(sub *model.Submission) attemptKey {
	return attemptKey{student: sub.StudentID, assessment: sub.AssessmentID, attempt: sub.AttemptNumber}
}

func (s *SubmissionStore) Create(ctx context.Context, sub *model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(sub)
	if _, exists := s.attempts[key]; exists {
		return util.ErrDuplicateAttempt
	}
	s.nextID++
	sub.ID = s.nextID
	if sub.Version == 0 {
		sub.Version = 1
	}
	sub.CreatedAt = now()
	sub.UpdatedAt = sub.CreatedAt
	s.items[sub.ID] = clone(sub)
	s.attempts[key] = sub.ID
	return nil
}

func (s *SubmissionStore) Get(ctx context.Context, id uint) (*model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.items[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return clone(sub), nil
}

func (s *SubmissionStore) List(ctx context.Context, filter service.SubmissionFilter) ([]model.Submission, int64, error) {
	s.mu.RLock()
	var matched []model.Submission
	for _, sub := range s.items {
		if filter.AssessmentID > 0 && sub.AssessmentID != filter.AssessmentID {
			continue
		}
		if filter.StudentID > 0 && sub.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		matched = append(matched, *clone(sub))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, filter.Page, filter.Limit), int64(len(matched)), nil
}

func (s *SubmissionStore) ListAll(ctx context.Context, assessmentID uint) ([]model.Submission, error) {
	s.mu.RLock()
	var out []model.Submission
	for _, sub := range s.items {
		if sub.AssessmentID == assessmentID {
			out = append(out, *clone(sub))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *SubmissionStore) LastAttempt(ctx context.Context, studentID, assessmentID uint) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := 0
	for _, sub := range s.items {
		if sub.StudentID == studentID && sub.AssessmentID == assessmentID && sub.AttemptNumber > last {
			last = sub.AttemptNumber
		}
	}
	return last, nil
}

func (s *SubmissionStore) CountByAssessment(ctx context.Context, assessmentID uint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, sub := range s.items {
		if sub.AssessmentID == assessmentID && sub.Status != model.SubmissionDraft {
			n++
		}
	}
	return n, nil
}

func (s *SubmissionStore) Update(ctx context.Context, sub *model.Submission, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.items[sub.ID]
	if !ok {
		return util.ErrNotFound
	}
	if old.Version != expectedVersion {
		return util.ErrVersionConflict
	}
	oldKey, newKey := keyOf(old), keyOf(sub)
	if oldKey != newKey {
		if _, exists := s.attempts[newKey]; exists {
			return util.ErrDuplicateAttempt
		}
		delete(s.attempts, oldKey)
		s.attempts[newKey] = sub.ID
	}
	sub.Version = expectedVersion + 1
	sub.CreatedAt = old.CreatedAt
	sub.UpdatedAt = now()
	s.items[sub.ID] = clone(sub)
	return nil
}

type AIJobStore struct {
	mu    sync.RWMutex
	items map[string]*model.AIJob
}

func NewAIJobStore() *AIJobStore {
	return &AIJobStore{items: make(map[string]*model.AIJob)}
}

func (s *AIJobStore) Create(ctx context.Context, job *model.AIJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.CreatedAt = now()
	job.UpdatedAt = job.CreatedAt
	s.items[job.ID] = clone(job)
	return nil
}

func (s *AIJobStore) Get(ctx context.Context, id string) (*model.AIJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.items[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return clone(job), nil
}

func (s *AIJobStore) Update(ctx context.Context, job *model.AIJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.items[job.ID]
	if !ok {
		return util.ErrNotFound
	}
	job.CreatedAt = old.CreatedAt
	job.UpdatedAt = now()
	s.items[job.ID] = clone(job)
	return nil
}

func (s *AIJobStore) ListUnfinished(ctx context.Context) ([]model.AIJob, error) {
	s.mu.RLock()
	var out []model.AIJob
	for _, job := range s.items {
		if !job.Status.Terminal() {
			out = append(out, *clone(job))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type UserStore struct {
	mu      sync.RWMutex
	nextID  uint
	items   map[uint]*model.User
	byEmail map[string]uint
}

func NewUserStore() *UserStore {
	return &UserStore{
		items:   make(map[uint]*model.User),
		byEmail: make(map[string]uint),
	}
}

func copyUser(u *model.User) *model.User {
	out := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		out.LastLogin = &t
	}
	return &out
}

func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[u.Email]; exists {
		return util.ErrEmailRegistered
	}
	s.nextID++
	u.ID = s.nextID
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt
	s.items[u.ID] = copyUser(u)
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id uint) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.items[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, util.ErrNotFound
	}
	return copyUser(s.items[id]), nil
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.items[id]
	if !ok {
		return util.ErrNotFound
	}
	t := at
	u.LastLogin = &t
	return nil
}

type SessionStore struct {
	mu    sync.RWMutex
	items map[string]model.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{items: make(map[string]model.Session)}
}

func (s *SessionStore) Save(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sess.ID] = *sess
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	sess, ok := s.items[id]
	s.mu.RUnlock()
	if !ok || sess.Expired(now()) {
		return nil, util.ErrNotFound
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

var (
	_ service.AssessmentStore = (*AssessmentStore)(nil)
	_ service.SubmissionStore = (*SubmissionStore)(nil)
	_ service.AIJobStore      = (*AIJobStore)(nil)
	_ service.UserStore       = (*UserStore)(nil)
	_ service.SessionStore    = (*SessionStore)(nil)
)
