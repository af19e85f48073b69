package repository

import (
	"context"
	"encoding/json"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const sessionKeyPrefix = "session:"

// SessionRepository 会话存在 Redis 中，过期时间与会话一致
type SessionRepository struct {
	rdb *redis.Client
}

func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

func (r *SessionRepository) Save(ctx context.Context, s *model.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	ttl := time.Duration(0)
	if !s.ExpiresAt.IsZero() {
		ttl = time.Until(s.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	return errors.Wrap(r.rdb.Set(ctx, sessionKeyPrefix+s.ID, b, ttl).Err(), "save session")
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	b, err := r.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	var s model.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "unmarshal session")
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return errors.Wrap(r.rdb.Del(ctx, sessionKeyPrefix+id).Err(), "delete session")
}
