package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RedisLimiter делит окно между всеми экземплярами бота.
// При недоступности Redis событие пропускается.
type RedisLimiter struct {
	client  redis.UniversalClient
	limit   int
	window  time.Duration
	prefix  string
	timeout time.Duration
	script  *redis.Script
	logger  *slog.Logger
}

func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, prefix string, logger *slog.Logger) *RedisLimiter {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client:  client,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		timeout: 250 * time.Millisecond,
		script:  redis.NewScript(rateLimitScript),
		logger:  logger,
	}
}

func (l *RedisLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	if l.limit <= 0 || l.window <= 0 || key == "" {
		return true
	}
	redisKey := key
	if l.prefix != "" {
		redisKey = l.prefix + ":" + key
	}
	ttl := l.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{redisKey}, ttl, l.limit).Int64()
	if err != nil {
		l.logger.Warn("redis rate limit check failed", slog.String("key", redisKey), slog.String("error", err.Error()))
		return true
	}
	return allowed == 1
}

// New выбирает реализацию: Redis при наличии клиента, иначе память процесса.
func New(client redis.UniversalClient, limit int, window time.Duration, prefix string, logger *slog.Logger) Limiter {
	if limit <= 0 || window <= 0 {
		return NoopLimiter{}
	}
	if client != nil {
		return NewRedisLimiter(client, limit, window, prefix, logger)
	}
	return NewMemoryLimiter(limit, window)
}
