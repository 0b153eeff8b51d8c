// Package addresses — нормализация адресов доставки с кэшированием.
package addresses

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/artem12345-png/tkfulfill/internal/models"
)

// Виды записей в кэше: сырой адрес заказа и адрес доставки/терминала,
// собранный из свободного поля ТК.
const (
	KindAddress  = "address"
	KindDelivery = "delivery"
)

type cleaner interface {
	Clean(ctx context.Context, query string) (models.NormalizedAddress, error)
}

type cacheStore interface {
	GetCachedAddress(ctx context.Context, kind, query string, ttl time.Duration) (json.RawMessage, bool, error)
	PutCachedAddress(ctx context.Context, kind, query string, payload json.RawMessage) error
}

type Resolver struct {
	cleaner cleaner
	store   cacheStore
	ttl     time.Duration
	log     *slog.Logger
}

// NewResolver. ttl=0 — записи кэша не протухают.
func NewResolver(cl cleaner, store cacheStore, ttl time.Duration, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{cleaner: cl, store: store, ttl: ttl, log: log}
}

// Resolve возвращает нормализованный адрес. Сбой нормализации не фатален:
// возвращается пустой адрес, решение о судьбе заказа принимает вызывающий.
// Ключ кэша — (вид, сырая строка запроса): один и тот же адрес спрашивают
// десятки раз за батч.
func (r *Resolver) Resolve(ctx context.Context, kind, query string) models.NormalizedAddress {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.NormalizedAddress{}
	}

	if payload, ok, err := r.store.GetCachedAddress(ctx, kind, query, r.ttl); err != nil {
		r.log.Warn("чтение кэша адресов", "query", query, "err", err)
	} else if ok {
		var addr models.NormalizedAddress
		if err := json.Unmarshal(payload, &addr); err == nil {
			return addr
		}
		r.log.Warn("битая запись в кэше адресов", "query", query)
	}

	addr, err := r.cleaner.Clean(ctx, query)
	if err != nil {
		r.log.Warn("нормализация адреса", "query", query, "err", err)
		return models.NormalizedAddress{}
	}
	if addr.IsEmpty() {
		// dadata не распознала адрес; пустой ответ не кэшируем
		return addr
	}

	payload, err := json.Marshal(addr)
	if err == nil {
		if err := r.store.PutCachedAddress(ctx, kind, query, payload); err != nil {
			r.log.Warn("запись кэша адресов", "query", query, "err", err)
		}
	}
	return addr
}
