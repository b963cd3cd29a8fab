package kv

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LockManager grants short-lived named locks used to serialize a single
// alert's or group's send path across worker processes.
type LockManager interface {
	// AlertLock returns a lock guarding the send path for fingerprint.
	AlertLock(fingerprint string) Lock
	// GroupLock returns a lock guarding the send path for groupKey.
	GroupLock(groupKey string) Lock
}

// Lock is a single named distributed (or in-process) mutual-exclusion
// handle. Acquire is non-blocking: it reports whether the lock was won.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

const (
	alertLockTTL = 60 * time.Second
	groupLockTTL = 30 * time.Second
)

// releaseScript is the compare-and-delete Lua script: only the holder
// that set the value may delete the key, preventing a slow holder from
// releasing a lock someone else has since acquired.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// RedisLockManager implements LockManager over SET NX EX / Lua CAS,
// grounded in distributed_lock.py's DistributedLock/AlertLockManager.
type RedisLockManager struct {
	client *redis.Client
}

// NewRedisLockManager wraps an existing go-redis client.
func NewRedisLockManager(client *redis.Client) *RedisLockManager {
	return &RedisLockManager{client: client}
}

type redisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	value  string
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	l.value = uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *redisLock) Release(ctx context.Context) error {
	if l.value == "" {
		return nil
	}
	return l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Err()
}

// AlertLock implements LockManager.
func (m *RedisLockManager) AlertLock(fingerprint string) Lock {
	return &redisLock{client: m.client, key: "lock:alert:" + fingerprint, ttl: alertLockTTL}
}

// GroupLock implements LockManager.
func (m *RedisLockManager) GroupLock(groupKey string) Lock {
	return &redisLock{client: m.client, key: "lock:group:" + groupKey, ttl: groupLockTTL}
}

// MemoryLockManager is the single-node fallback, backed by an in-process
// map instead of Redis. Locks still expire on TTL so a crashed holder
// doesn't wedge the key forever.
type MemoryLockManager struct {
	mu    sync.Mutex
	holds map[string]memoryHold
}

type memoryHold struct {
	value   string
	expires time.Time
}

// NewMemoryLockManager builds an empty in-process lock manager.
func NewMemoryLockManager() *MemoryLockManager {
	return &MemoryLockManager{holds: make(map[string]memoryHold)}
}

type memoryLock struct {
	mgr   *MemoryLockManager
	key   string
	ttl   time.Duration
	value string
}

func (l *memoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mgr.mu.Lock()
	defer l.mgr.mu.Unlock()

	now := time.Now()
	if hold, ok := l.mgr.holds[l.key]; ok && now.Before(hold.expires) {
		return false, nil
	}
	l.value = uuid.New().String()
	l.mgr.holds[l.key] = memoryHold{value: l.value, expires: now.Add(l.ttl)}
	return true, nil
}

func (l *memoryLock) Release(ctx context.Context) error {
	l.mgr.mu.Lock()
	defer l.mgr.mu.Unlock()

	if hold, ok := l.mgr.holds[l.key]; ok && hold.value == l.value {
		delete(l.mgr.holds, l.key)
	}
	return nil
}

// AlertLock implements LockManager.
func (m *MemoryLockManager) AlertLock(fingerprint string) Lock {
	return &memoryLock{mgr: m, key: "lock:alert:" + fingerprint, ttl: alertLockTTL}
}

// GroupLock implements LockManager.
func (m *MemoryLockManager) GroupLock(groupKey string) Lock {
	return &memoryLock{mgr: m, key: "lock:group:" + groupKey, ttl: groupLockTTL}
}
