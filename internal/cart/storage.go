package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is the durable home of a cart.
type Storage interface {
	Load(ctx context.Context, owner string) ([]Item, error)
	Save(ctx context.Context, owner string, items []Item) error
}

const defaultCartTTL = 30 * 24 * time.Hour

// RedisStorage keeps each cart as a JSON document under cart:{owner}.
type RedisStorage struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStorage(rdb *redis.Client, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &RedisStorage{rdb: rdb, ttl: ttl}
}

func cartKey(owner string) string { return "cart:" + owner }

func (s *RedisStorage) Load(ctx context.Context, owner string) ([]Item, error) {
	data, err := s.rdb.Get(ctx, cartKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return items, nil
}

func (s *RedisStorage) Save(ctx context.Context, owner string, items []Item) error {
	if len(items) == 0 {
		if err := s.rdb.Del(ctx, cartKey(owner)).Err(); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.rdb.Set(ctx, cartKey(owner), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set cart: %w", err)
	}
	return nil
}

type MemoryStorage struct {
	mu    sync.Mutex
	carts map[string][]Item
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{carts: map[string][]Item{}}
}

func (s *MemoryStorage) Load(ctx context.Context, owner string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item{}, s.carts[owner]...), nil
}

func (s *MemoryStorage) Save(ctx context.Context, owner string, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[owner] = append([]Item(nil), items...)
	return nil
}
