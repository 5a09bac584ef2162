package driver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Filter выбирает заявки; нулевые поля не участвуют в отборе.
type Filter struct {
	InvitedBy  int64
	TelegramID int64
	Status     Status
}

// Match сообщает, подходит ли заявка под фильтр.
func (f Filter) Match(d Driver) bool {
	if f.InvitedBy != 0 && d.InvitedBy != f.InvitedBy {
		return false
	}
	if f.TelegramID != 0 && d.TelegramID != f.TelegramID {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}

// Mutator изменяет заявку внутри атомарного обновления.
// Ошибка мутатора отменяет запись.
type Mutator func(d *Driver) error

// Store хранит заявки водителей.
type Store interface {
	Create(ctx context.Context, d Driver) (Driver, error)
	Get(ctx context.Context, id string) (Driver, error)
	// Update применяет mutator к текущей версии заявки атомарно.
	Update(ctx context.Context, id string, mutate Mutator) (Driver, error)
	// Find возвращает заявки в порядке создания.
	Find(ctx context.Context, filter Filter) ([]Driver, error)
	// Delete удаляет заявку, которую не удалось опубликовать.
	Delete(ctx context.Context, id string) error
}

// NewID генерирует идентификатор заявки.
func NewID() string {
	return uuid.NewString()
}

// PrepareNew заполняет служебные поля новой заявки.
func PrepareNew(d Driver, now time.Time) Driver {
	if d.ID == "" {
		d.ID = NewID()
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	d.ClaimedBy = 0
	d.ClaimedByName = ""
	d.CreatedAt = now.UTC()
	d.UpdatedAt = d.CreatedAt
	return d
}

// MemoryStore хранит заявки в памяти.
type MemoryStore struct {
	mu      sync.Mutex
	drivers map[string]Driver
	order   []string
	clock   func() time.Time
}

// NewMemoryStore создает хранилище заявок в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers: make(map[string]Driver),
		clock:   time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, d Driver) (Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d = PrepareNew(d, s.clock())
	if _, exists := s.drivers[d.ID]; exists {
		return Driver{}, ErrConflict
	}
	s.drivers[d.ID] = clone(d)
	s.order = append(s.order, d.ID)
	return clone(d), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return Driver{}, ErrNotFound
	}
	return clone(d), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate Mutator) (Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.drivers[id]
	if !ok {
		return Driver{}, ErrNotFound
	}
	next := clone(current)
	if err := mutate(&next); err != nil {
		return Driver{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.clock().UTC()
	s.drivers[id] = next
	return clone(next), nil
}

func (s *MemoryStore) Find(_ context.Context, filter Filter) ([]Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Driver
	for _, id := range s.order {
		if d := s.drivers[id]; filter.Match(d) {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drivers[id]; !ok {
		return ErrNotFound
	}
	delete(s.drivers, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func clone(d Driver) Driver {
	if d.Media != nil {
		media := make(map[string]string, len(d.Media))
		for k, v := range d.Media {
			media[k] = v
		}
		d.Media = media
	}
	return d
}
