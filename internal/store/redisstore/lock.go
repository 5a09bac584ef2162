package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL  = 30 * time.Second
	lockPollEvery   = 25 * time.Millisecond
	lockReleaseWait = 2 * time.Second
)

// Снимаем блокировку только если она все еще наша.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// SessionLocker сериализует события одного отправителя между экземплярами бота.
// TTL ограничивает блокировку, если экземпляр упал, не сняв ее.
type SessionLocker struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	poll    time.Duration
	release *redis.Script
}

// NewSessionLocker создает блокировку с ключами prefix:<id>.
func NewSessionLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *SessionLocker {
	if prefix == "" {
		prefix = defaultPrefix + ":lock"
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &SessionLocker{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		poll:    lockPollEvery,
		release: redis.NewScript(releaseScript),
	}
}

// Lock ждет освобождения ключа, пока не отменен ctx.
func (l *SessionLocker) Lock(ctx context.Context, submitterID int64) (func(), error) {
	key := l.prefix + ":" + strconv.FormatInt(submitterID, 10)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis acquire lock: %w", err)
		}
		if ok {
			return func() { l.unlock(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *SessionLocker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), lockReleaseWait)
	defer cancel()
	// Если снять не удалось, ключ истечет по TTL.
	_ = l.release.Run(ctx, l.client, []string{key}, token).Err()
}
