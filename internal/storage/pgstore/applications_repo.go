package pgstore

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/artem12345-png/tkfulfill/internal/models"
)

// UpsertApplication регистрирует заявку для последующего опроса статусов.
// Повторная регистрация того же заказа обновляет накладную (force-пересоздание).
func (s *Storage) UpsertApplication(ctx context.Context, orderID int64, carrierID int, carrierCode, tkNum string) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO applications (order_id, carrier_id, carrier_code, tk_num, status, created_at)
VALUES ($1,$2,$3,$4,'',$5)
ON CONFLICT (order_id) DO UPDATE SET
    carrier_id = EXCLUDED.carrier_id,
    carrier_code = EXCLUDED.carrier_code,
    tk_num = EXCLUDED.tk_num,
    status = '',
    status_changed_at = NULL
`, orderID, carrierID, carrierCode, tkNum, time.Now().UTC())
	return errors.Wrap(err, "upsert application")
}

// ListOpenApplications возвращает заявки перевозчика, ещё не дошедшие до
// финального статуса. finished — финальные статусы перевозчика.
func (s *Storage) ListOpenApplications(ctx context.Context, carrierCode string, finished []string) ([]models.StatusApplication, error) {
	rows, err := s.db.Query(ctx, `
SELECT order_id, tk_num, status
FROM applications
WHERE carrier_code = $1 AND tk_num <> '' AND NOT (status = ANY($2))
ORDER BY order_id
`, carrierCode, finished)
	if err != nil {
		return nil, errors.Wrap(err, "select open applications")
	}
	defer rows.Close()

	var apps []models.StatusApplication
	for rows.Next() {
		var a models.StatusApplication
		if err := rows.Scan(&a.OrderID, &a.TkNum, &a.Status); err != nil {
			return nil, errors.Wrap(err, "scan application")
		}
		apps = append(apps, a)
	}
	return apps, errors.Wrap(rows.Err(), "iterate applications")
}

func (s *Storage) UpdateApplicationStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.Exec(ctx, `
UPDATE applications SET status = $2, status_changed_at = $3 WHERE order_id = $1
`, orderID, status, time.Now().UTC())
	return errors.Wrap(err, "update application status")
}
