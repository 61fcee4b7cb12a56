package telegram

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupTTL = 24 * time.Hour

// Deduper remembers update ids. MarkSeen reports true the first time an id is seen.
type Deduper interface {
	MarkSeen(ctx context.Context, updateID int64) (bool, error)
}

// RedisDeduper uses SET NX with a TTL so webhook replicas share one view.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &RedisDeduper{client: client, prefix: "fleetdocs:tg:update:", ttl: ttl}
}

func (d *RedisDeduper) MarkSeen(ctx context.Context, updateID int64) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+strconv.FormatInt(updateID, 10), 1, d.ttl).Result()
}

// MemoryDeduper is the single-process fallback.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[int64]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &MemoryDeduper{seen: make(map[int64]time.Time), ttl: ttl, now: time.Now}
}

func (d *MemoryDeduper) MarkSeen(_ context.Context, updateID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for id, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, id)
		}
	}
	if _, ok := d.seen[updateID]; ok {
		return false, nil
	}
	d.seen[updateID] = now.Add(d.ttl)
	return true, nil
}
