package registration

import (
	"context"
	"fmt"
	"sync"
)

// Locker блокирует отправителя для всех экземпляров бота.
type Locker interface {
	Lock(ctx context.Context, submitterID int64) (func(), error)
}

// keyedMutex сериализует обработку событий одного отправителя.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*keyedLock)}
}

// Lock блокирует ключ и возвращает функцию разблокировки.
func (k *keyedMutex) Lock(key int64) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// lock берет локальную блокировку и, если задана, общую.
func (e *Engine) lock(ctx context.Context, submitterID int64) (func(), error) {
	unlock := e.locks.Lock(submitterID)
	if e.shared == nil {
		return unlock, nil
	}
	release, err := e.shared.Lock(ctx, submitterID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return func() {
		release()
		unlock()
	}, nil
}
