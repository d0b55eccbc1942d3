package redisad

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"review_notifier/internal/adapters/observability"
	"review_notifier/internal/domain"
)

// Ledger records posted reviews as keys that expire after ttl.
type Ledger struct {
	c   *redis.Client
	ttl time.Duration
}

func New(addr, pass string, db int, ttl time.Duration) *Ledger {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}), ttl)
}

func NewWithClient(c *redis.Client, ttl time.Duration) *Ledger {
	return &Ledger{c: c, ttl: ttl}
}

func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error { return l.c.Close() }

func key(r domain.Review) string {
	return fmt.Sprintf("review:%s:%s", r.Platform, r.ID)
}

func (l *Ledger) Claim(ctx context.Context, r domain.Review) (bool, error) {
	ok, err := l.c.SetNX(ctx, key(r), time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", key(r), err)
	}
	if !ok {
		observability.ObserveLedger("redis", "duplicate")
		return false, nil
	}
	observability.ObserveLedger("redis", "claim")
	return true, nil
}

func (l *Ledger) Release(ctx context.Context, r domain.Review) error {
	observability.ObserveLedger("redis", "release")
	if err := l.c.Del(ctx, key(r)).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", key(r), err)
	}
	return nil
}
