package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/artem12345-png/tkfulfill/internal/models"
)

// GetSubmission возвращает запись заявки или nil, если её нет.
func (s *Storage) GetSubmission(ctx context.Context, orderID int64) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.QueryRow(ctx, `
SELECT order_id, carrier_code, request, payload, response, is_error, created_at
FROM submissions
WHERE order_id = $1
`, orderID).Scan(
		&sub.OrderID, &sub.CarrierCode, &sub.Request, &sub.Payload,
		&sub.Response, &sub.IsError, &sub.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select submission")
	}
	return &sub, nil
}

// InsertSubmissionIfAbsent — атомарный insert-if-absent по заказу.
// Возвращает запись-победителя и признак, что записана именно наша версия.
// Успешная строка никогда не перезаписывается: конкурентный запрос по тому же
// заказу переиспользует чужой ответ ТК. Ошибочная строка замещается.
func (s *Storage) InsertSubmissionIfAbsent(ctx context.Context, sub models.Submission) (*models.Submission, bool, error) {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	tag, err := s.db.Exec(ctx, `
INSERT INTO submissions (order_id, carrier_code, request, payload, response, is_error, created_at)
VALUES ($1,$2,$3,$4,$5,FALSE,$6)
ON CONFLICT (order_id) DO UPDATE SET
  carrier_code = EXCLUDED.carrier_code,
  request = EXCLUDED.request,
  payload = EXCLUDED.payload,
  response = EXCLUDED.response,
  is_error = FALSE,
  created_at = EXCLUDED.created_at
WHERE submissions.is_error
`, sub.OrderID, sub.CarrierCode, sub.Request, sub.Payload, sub.Response, sub.CreatedAt)
	if err != nil {
		return nil, false, errors.Wrap(err, "insert submission")
	}

	inserted := tag.RowsAffected() == 1
	winner, err := s.GetSubmission(ctx, sub.OrderID)
	if err != nil {
		return nil, false, err
	}
	if winner == nil {
		return nil, false, errors.New("submission vanished after insert")
	}
	return winner, inserted, nil
}

// SaveSubmissionError фиксирует ошибочную попытку. Ошибочная запись
// перезаписывается: она не блокирует повторную отправку.
func (s *Storage) SaveSubmissionError(ctx context.Context, sub models.Submission) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO submissions (order_id, carrier_code, request, payload, response, is_error, created_at)
VALUES ($1,$2,$3,$4,$5,TRUE,$6)
ON CONFLICT (order_id) DO UPDATE SET
  carrier_code = EXCLUDED.carrier_code,
  request = EXCLUDED.request,
  payload = EXCLUDED.payload,
  response = EXCLUDED.response,
  is_error = TRUE,
  created_at = EXCLUDED.created_at
WHERE submissions.is_error
`, sub.OrderID, sub.CarrierCode, sub.Request, sub.Payload, sub.Response, sub.CreatedAt)
	return errors.Wrap(err, "save submission error")
}

func (s *Storage) DeleteSubmission(ctx context.Context, orderID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM submissions WHERE order_id = $1`, orderID)
	return errors.Wrap(err, "delete submission")
}
