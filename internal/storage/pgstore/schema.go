package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		// Заявки в ТК. PK по заказу — атомарная защита от двойной отправки.
		`
CREATE TABLE IF NOT EXISTS submissions (
  order_id BIGINT PRIMARY KEY,
  carrier_code TEXT NOT NULL,
  request JSONB NOT NULL,
  payload JSONB NULL,
  response JSONB NULL,
  is_error BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS address_cache (
  id BIGSERIAL PRIMARY KEY,
  kind TEXT NOT NULL,
  query TEXT NOT NULL,
  payload JSONB NOT NULL,
  fetched_at TIMESTAMPTZ NOT NULL,
  UNIQUE (kind, query)
)`,
		// Статусы заявок для цикла обновления.
		`
CREATE TABLE IF NOT EXISTS applications (
  order_id BIGINT PRIMARY KEY,
  carrier_id INT NOT NULL,
  carrier_code TEXT NOT NULL,
  tk_num TEXT NOT NULL,
  status TEXT NULL,
  status_changed_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_carrier ON applications(carrier_id)`,
		// Гарантия "не больше одной СМС на заказ". Строка пишется даже при
		// неудачной отправке, чтобы не заспамить покупателя повторами.
		`
CREATE TABLE IF NOT EXISTS sms_log (
  order_id BIGINT PRIMARY KEY,
  send_failed BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS batch_tasks (
  token UUID PRIMARY KEY,
  request JSONB NOT NULL,
  response JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		// Read model заказов. В проде наполняется админкой, здесь создаётся
		// для тестов и локального запуска.
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGINT PRIMARY KEY,
  carrier_id INT NOT NULL,
  warehouse_num INT NOT NULL,
  tk TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  receiver TEXT NOT NULL DEFAULT '',
  payer_name TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  inn TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  passport TEXT NOT NULL DEFAULT '',
  comment_as_site TEXT NOT NULL DEFAULT '',
  buyer_id BIGINT NOT NULL DEFAULT 0,
  zakaz_id BIGINT NOT NULL DEFAULT 0
)`,
		`
CREATE TABLE IF NOT EXISTS order_goods (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL,
  idgood BIGINT NOT NULL,
  title TEXT NOT NULL,
  price BIGINT NOT NULL DEFAULT 0,
  amount INT NOT NULL DEFAULT 1,
  weight DOUBLE PRECISION NOT NULL DEFAULT 0,
  volume DOUBLE PRECISION NOT NULL DEFAULT 0,
  length DOUBLE PRECISION NOT NULL DEFAULT 0,
  width DOUBLE PRECISION NOT NULL DEFAULT 0,
  height DOUBLE PRECISION NOT NULL DEFAULT 0,
  fragile BOOLEAN NOT NULL DEFAULT FALSE,
  oversized BOOLEAN NOT NULL DEFAULT FALSE,
  warm_car BOOLEAN NOT NULL DEFAULT FALSE
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_goods_order_id ON order_goods(order_id)`,
		`
CREATE TABLE IF NOT EXISTS warehouses (
  num INT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  inn TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  person TEXT NOT NULL DEFAULT ''
)`,
		`
CREATE TABLE IF NOT EXISTS terminals (
  id BIGSERIAL PRIMARY KEY,
  carrier_id INT NOT NULL,
  code TEXT NOT NULL,
  city TEXT NOT NULL,
  address TEXT NOT NULL DEFAULT ''
)`,
		`CREATE INDEX IF NOT EXISTS idx_terminals_carrier_city ON terminals(carrier_id, city)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
