package pgstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// MarkSMSSent атомарно резервирует отправку SMS по заказу. Возвращает true,
// если запись создана этим вызовом — только тогда SMS можно отправлять.
// Запись остаётся и при неудачной отправке: лучше не отправить, чем
// отправить дважды.
func (s *Storage) MarkSMSSent(ctx context.Context, orderID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO sms_log (order_id, send_failed, created_at)
VALUES ($1, FALSE, $2)
ON CONFLICT (order_id) DO NOTHING
`, orderID, time.Now().UTC())
	if err != nil {
		return false, errors.Wrap(err, "insert sms log")
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSMSFailed помечает, что отправка не удалась (для ручного разбора).
func (s *Storage) MarkSMSFailed(ctx context.Context, orderID int64) error {
	_, err := s.db.Exec(ctx, `
UPDATE sms_log SET send_failed = TRUE WHERE order_id = $1
`, orderID)
	return errors.Wrap(err, "mark sms failed")
}
