package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Ledger records in-flight provision requests per element key. A request ID
// can be recorded at most once.
type Ledger interface {
	Add(ctx context.Context, key, requestID string) (bool, error)
	Remove(ctx context.Context, key, requestID string) (bool, error)
	Count(ctx context.Context, key string) (int, error)
	Clear(ctx context.Context, key string) error
}

type MemoryLedger struct {
	entries map[string]map[string]struct{}
	mu      sync.Mutex
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]map[string]struct{})}
}

func (l *MemoryLedger) Add(ctx context.Context, key, requestID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.entries[key]
	if !ok {
		set = make(map[string]struct{})
		l.entries[key] = set
	}
	if _, exists := set[requestID]; exists {
		return false, nil
	}
	set[requestID] = struct{}{}
	return true, nil
}

func (l *MemoryLedger) Remove(ctx context.Context, key, requestID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set := l.entries[key]
	if _, exists := set[requestID]; !exists {
		return false, nil
	}
	delete(set, requestID)
	if len(set) == 0 {
		delete(l.entries, key)
	}
	return true, nil
}

func (l *MemoryLedger) Count(ctx context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries[key]), nil
}

func (l *MemoryLedger) Clear(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

const defaultLedgerPrefix = "orchestrator:pending:"

// RedisLedger keeps the ledger in Redis sets so several managers can share
// pending counts.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

func NewRedisLedger(client *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = defaultLedgerPrefix
	}
	return &RedisLedger{client: client, prefix: prefix}
}

func (l *RedisLedger) Add(ctx context.Context, key, requestID string) (bool, error) {
	added, err := l.client.SAdd(ctx, l.prefix+key, requestID).Result()
	if err != nil {
		return false, fmt.Errorf("ledger add %s: %w", key, err)
	}
	return added == 1, nil
}

func (l *RedisLedger) Remove(ctx context.Context, key, requestID string) (bool, error) {
	removed, err := l.client.SRem(ctx, l.prefix+key, requestID).Result()
	if err != nil {
		return false, fmt.Errorf("ledger remove %s: %w", key, err)
	}
	return removed == 1, nil
}

func (l *RedisLedger) Count(ctx context.Context, key string) (int, error) {
	n, err := l.client.SCard(ctx, l.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger count %s: %w", key, err)
	}
	return int(n), nil
}

func (l *RedisLedger) Clear(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("ledger clear %s: %w", key, err)
	}
	return nil
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
