// Package redisstore хранит сессии анкеты в Redis, чтобы их видели все экземпляры бота.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"driver_bot/internal/registration"
)

const defaultPrefix = "session"

// SessionStore хранит сессию JSON-документом с TTL простоя.
type SessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	clock  func() time.Time
}

// NewSessionStore создает хранилище; TTL продлевается при каждой записи.
func NewSessionStore(client redis.UniversalClient, ttl time.Duration, prefix string) *SessionStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &SessionStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		clock:  time.Now,
	}
}

func (s *SessionStore) key(submitterID int64) string {
	return s.prefix + ":" + strconv.FormatInt(submitterID, 10)
}

func (s *SessionStore) Get(ctx context.Context, submitterID int64) (registration.Session, error) {
	raw, err := s.client.Get(ctx, s.key(submitterID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return registration.Session{}, registration.ErrSessionNotFound
		}
		return registration.Session{}, fmt.Errorf("redis get session: %w", err)
	}
	var session registration.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return registration.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (s *SessionStore) Put(ctx context.Context, session registration.Session) error {
	session.UpdatedAt = s.clock().UTC()
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(session.SubmitterID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, submitterID int64) error {
	if err := s.client.Del(ctx, s.key(submitterID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
