package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// GetCachedAddress возвращает закэшированный ответ нормализации.
// ttl=0 — кэш вечный (исторически так и жили); протухшие записи отдаются
// как промах, но не удаляются — их перезапишет свежий ответ.
func (s *Storage) GetCachedAddress(ctx context.Context, kind, query string, ttl time.Duration) (json.RawMessage, bool, error) {
	var payload json.RawMessage
	var fetchedAt time.Time
	err := s.db.QueryRow(ctx, `
SELECT payload, fetched_at FROM address_cache WHERE kind = $1 AND query = $2
`, kind, query).Scan(&payload, &fetchedAt)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "select address cache")
	}
	if ttl > 0 && time.Since(fetchedAt) > ttl {
		return nil, false, nil
	}
	if len(payload) == 0 || string(payload) == "null" || string(payload) == "{}" {
		// пустой закэшированный ответ трактуем как промах, чтобы дать
		// сервису нормализации второй шанс
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *Storage) PutCachedAddress(ctx context.Context, kind, query string, payload json.RawMessage) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO address_cache (kind, query, payload, fetched_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (kind, query) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
`, kind, query, payload, time.Now().UTC())
	return errors.Wrap(err, "upsert address cache")
}
