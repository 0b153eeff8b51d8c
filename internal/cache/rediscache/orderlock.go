package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// OrderLocker — мьютекс на заказ через SET NX PX.
// Держится на время fill+submit+persist, чтобы два конкурентных запроса
// по одному заказу не успели оба пройти проверку идемпотентности.
type OrderLocker struct {
	c   *redis.Client
	ttl time.Duration
}

func NewOrderLocker(addr string, ttl time.Duration) *OrderLocker {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &OrderLocker{
		c:   redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

func orderLockKey(orderID int64) string {
	return fmt.Sprintf("lock:order:%d", orderID)
}

// Acquire пытается взять лок. Возвращает release-функцию и флаг успеха.
// Не блокируется: занятый лок — это конкурентная заявка по тому же заказу.
func (l *OrderLocker) Acquire(ctx context.Context, orderID int64) (func(), bool, error) {
	key := orderLockKey(orderID)
	ok, err := l.c.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "redis setnx")
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		_ = l.c.Del(context.Background(), key).Err()
	}
	return release, true, nil
}
