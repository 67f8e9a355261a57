package redis

import (
	"context"
	"time"

	"storybook-pipeline/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RunLocker serializes generation runs: at most one pipeline run may hold the
// lock for a given task at a time, even across processes.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type RedisRunLocker struct {
	cli *redis.Client
}

var _ RunLocker = (*RedisRunLocker)(nil)

func NewRunLocker(c *Client) *RedisRunLocker {
	return &RedisRunLocker{cli: c.cli}
}

// TryLock takes the lock or fails immediately with ErrRunInProgress. Runs are
// long-lived, so there is no point spinning on a held lock.
func (l *RedisRunLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrRunInProgress
	}
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisRunLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}

// RunLockKey names the per-task lock.
func RunLockKey(taskID string) string { return "run:task:" + taskID }
