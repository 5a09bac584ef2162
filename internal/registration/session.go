package registration

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound сообщает об отсутствии активной сессии.
var ErrSessionNotFound = errors.New("registration session not found")

// Session хранит состояние заполнения анкеты одним пользователем.
type Session struct {
	SubmitterID int64                       `json:"submitter_id"`
	Username    string                      `json:"username,omitempty"`
	Language    string                      `json:"language"`
	Stage       Stage                       `json:"stage"`
	Field       string                      `json:"field,omitempty"`
	Data        map[Stage]map[string]string `json:"data"`
	Delegated   bool                        `json:"delegated,omitempty"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

func (s *Session) set(stage Stage, field, value string) {
	if s.Data == nil {
		s.Data = map[Stage]map[string]string{}
	}
	if s.Data[stage] == nil {
		s.Data[stage] = map[string]string{}
	}
	s.Data[stage][field] = value
}

// Value возвращает собранное значение поля.
func (s Session) Value(stage Stage, field string) string {
	return s.Data[stage][field]
}

// SessionStore хранит живые сессии по ID отправителя.
type SessionStore interface {
	Get(ctx context.Context, submitterID int64) (Session, error)
	Put(ctx context.Context, session Session) error
	Delete(ctx context.Context, submitterID int64) error
}

// MemorySessionStore хранит сессии в памяти и забывает неактивные после ttl.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[int64]Session
	clock    func() time.Time
}

// NewMemorySessionStore создает хранилище; ttl <= 0 отключает вытеснение.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:      ttl,
		sessions: make(map[int64]Session),
		clock:    time.Now,
	}
}

func (s *MemorySessionStore) Get(_ context.Context, submitterID int64) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[submitterID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.expired(session, s.clock()) {
		delete(s.sessions, submitterID)
		return Session{}, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *MemorySessionStore) Put(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.UpdatedAt = s.clock()
	s.sessions[session.SubmitterID] = cloneSession(session)
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, submitterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, submitterID)
	return nil
}

// Sweep удаляет просроченные сессии и возвращает их количество.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	removed := 0
	for id, session := range s.sessions {
		if s.expired(session, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run периодически вызывает Sweep до отмены ctx.
func (s *MemorySessionStore) Run(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemorySessionStore) expired(session Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(session.UpdatedAt) > s.ttl
}

func cloneSession(in Session) Session {
	out := in
	if in.Data != nil {
		out.Data = make(map[Stage]map[string]string, len(in.Data))
		for stage, fields := range in.Data {
			copied := make(map[string]string, len(fields))
			for k, v := range fields {
				copied[k] = v
			}
			out.Data[stage] = copied
		}
	}
	return out
}
