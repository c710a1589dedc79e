package inflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLua deletes the key only while it still carries our token, so an
// entry that expired and was taken by another process is left alone.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua pushes the expiry forward only while the key still carries our
// token. Returns 0 once the entry has been lost.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// RedisConfig holds connection parameters for the shared store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	// RefreshInterval is how often a held entry has its TTL renewed.
	// Defaults to TTL/3.
	RefreshInterval time.Duration
}

// RedisStore shares the in-flight set between processes. Every held entry is
// renewed on a heartbeat until released, so only a crashed process lets an
// entry lapse after TTL.
type RedisStore struct {
	rdb       *redis.Client
	releaseSc *redis.Script
	extendSc  *redis.Script
	prefix    string
	ttl       time.Duration
	refresh   time.Duration

	mu    sync.Mutex
	holds map[string]*hold
}

type hold struct {
	token string
	stop  chan struct{}
}

// NewRedisStore connects to Redis and verifies it with a ping
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return newRedisStore(rdb, cfg), nil
}

func newRedisStore(rdb *redis.Client, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "sniper:inflight:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.RefreshInterval <= 0 || cfg.RefreshInterval >= cfg.TTL {
		cfg.RefreshInterval = cfg.TTL / 3
	}
	return &RedisStore{
		rdb:       rdb,
		releaseSc: redis.NewScript(releaseLua),
		extendSc:  redis.NewScript(extendLua),
		prefix:    cfg.Prefix,
		ttl:       cfg.TTL,
		refresh:   cfg.RefreshInterval,
		holds:     make(map[string]*hold),
	}
}

func (s *RedisStore) key(address string) string {
	return s.prefix + address
}

func (s *RedisStore) TryAcquire(ctx context.Context, address string) (bool, error) {
	token := uuid.New().String()
	ok, err := s.rdb.SetNX(ctx, s.key(address), token, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire %s: %w", address, err)
	}
	if !ok {
		return false, nil
	}

	h := &hold{token: token, stop: make(chan struct{})}
	s.mu.Lock()
	s.holds[address] = h
	s.mu.Unlock()

	go s.heartbeat(address, h)
	return true, nil
}

// Refresh renews the TTL of an entry this store holds. It reports false when
// the entry is not held here or was lost to expiry.
func (s *RedisStore) Refresh(ctx context.Context, address string) (bool, error) {
	s.mu.Lock()
	h, ok := s.holds[address]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	n, err := s.extendSc.Run(ctx, s.rdb, []string{s.key(address)}, h.token, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis: refresh %s: %w", address, err)
	}
	return n == 1, nil
}

func (s *RedisStore) heartbeat(address string, h *hold) {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			held, err := s.Refresh(ctx, address)
			cancel()
			// transient errors are retried on the next beat while the TTL still covers us
			if err == nil && !held {
				return
			}
		}
	}
}

// Release drops our hold on address. It runs on its own context so a
// cancelled caller still frees the entry.
func (s *RedisStore) Release(_ context.Context, address string) error {
	s.mu.Lock()
	h, ok := s.holds[address]
	delete(s.holds, address)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	close(h.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.releaseSc.Run(ctx, s.rdb, []string{s.key(address)}, h.token).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", address, err)
	}
	return nil
}

// Close stops all heartbeats and closes the Redis connection. Entries still
// held are left to expire.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	for address, h := range s.holds {
		close(h.stop)
		delete(s.holds, address)
	}
	s.mu.Unlock()
	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
